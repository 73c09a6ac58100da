package core

import "fmt"

// Network tags which Tangle a node or client belongs to. A node whose
// reported network differs from the pool's configured Network is
// rejected during sync (spec §4.4 check 3).
type Network uint8

const (
	Mainnet Network = iota
	Comnet
	Devnet
)

func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Comnet:
		return "comnet"
	case Devnet:
		return "devnet"
	default:
		return fmt.Sprintf("network(%d)", uint8(n))
	}
}

// ParseNetwork parses the string form a node's /api/v1/info reports.
func ParseNetwork(s string) (Network, error) {
	switch s {
	case "mainnet":
		return Mainnet, nil
	case "comnet":
		return Comnet, nil
	case "devnet":
		return Devnet, nil
	default:
		return 0, fmt.Errorf("unrecognized network: %s", s)
	}
}
