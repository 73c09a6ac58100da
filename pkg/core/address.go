package core

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tangle-go/client/pkg/tangleerr"
	"golang.org/x/crypto/blake2b"
)

// AddressVariant tags which signature scheme an Address was derived
// under.
type AddressVariant uint8

const (
	AddressEd25519 AddressVariant = iota
	AddressWots
)

func (v AddressVariant) String() string {
	switch v {
	case AddressEd25519:
		return "ed25519"
	case AddressWots:
		return "wots"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// addressEd25519Prefix/addressWotsPrefix tag the human-readable string
// form so a misrouted address is rejected before any network round
// trip, per spec §4.5.4 ("validates each address's checksum and
// variant tag before dispatch").
const (
	addressEd25519Prefix = "ed2"
	addressWotsPrefix    = "wot"
)

// Address is the tagged variant from spec §3: Ed25519(32-byte
// public-key hash) or Wots(legacy bytes). This module only derives and
// signs for the Ed25519 variant — Wots exists solely so a node's
// historical outputs round-trip through the codec; see SPEC_FULL.md §D
// for why WOTS signing itself is out of scope.
type Address struct {
	Variant AddressVariant
	// Payload is the 32-byte Blake2b-256 hash of the Ed25519 public key
	// for AddressEd25519, or the legacy raw bytes for AddressWots.
	Payload []byte
}

// NewEd25519Address hashes a raw 32-byte Ed25519 public key into an
// Address, per original_source/address.rs: a single Blake2b-256 digest
// over the public key, no double-hashing.
func NewEd25519Address(publicKey []byte) (Address, error) {
	if len(publicKey) != 32 {
		return Address{}, tangleerr.New(tangleerr.KindInvalidAddress, "public key must be 32 bytes, got %d", len(publicKey))
	}
	sum := blake2b.Sum256(publicKey)
	return Address{Variant: AddressEd25519, Payload: sum[:]}, nil
}

// NewWotsAddress wraps legacy WOTS address bytes without interpreting
// them further.
func NewWotsAddress(legacy []byte) Address {
	out := make([]byte, len(legacy))
	copy(out, legacy)
	return Address{Variant: AddressWots, Payload: out}
}

// checksum is a tiny fixed-size digest appended to the string form so a
// single-character typo is caught locally instead of round-tripping to
// a node as AddressQueryFailed.
func checksum(variant AddressVariant, payload []byte) string {
	h := blake2b.Sum256(append([]byte{byte(variant)}, payload...))
	return hex.EncodeToString(h[:4])
}

// String renders the address as prefix + hex payload + checksum.
func (a Address) String() string {
	prefix := addressEd25519Prefix
	if a.Variant == AddressWots {
		prefix = addressWotsPrefix
	}
	return fmt.Sprintf("%s%s%s", prefix, hex.EncodeToString(a.Payload), checksum(a.Variant, a.Payload))
}

// ParseAddress validates prefix and checksum and rebuilds the Address.
func ParseAddress(s string) (Address, error) {
	var variant AddressVariant
	switch {
	case strings.HasPrefix(s, addressEd25519Prefix):
		variant = AddressEd25519
		s = s[len(addressEd25519Prefix):]
	case strings.HasPrefix(s, addressWotsPrefix):
		variant = AddressWots
		s = s[len(addressWotsPrefix):]
	default:
		return Address{}, tangleerr.New(tangleerr.KindInvalidAddress, "unrecognized address prefix")
	}
	if len(s) < 8 {
		return Address{}, tangleerr.New(tangleerr.KindInvalidAddress, "address too short")
	}
	payloadHex, checksumHex := s[:len(s)-8], s[len(s)-8:]
	payload, err := hex.DecodeString(payloadHex)
	if err != nil {
		return Address{}, tangleerr.Wrap(tangleerr.KindInvalidAddress, err, "address payload is not valid hex")
	}
	if checksum(variant, payload) != checksumHex {
		return Address{}, tangleerr.New(tangleerr.KindInvalidAddress, "checksum mismatch")
	}
	return Address{Variant: variant, Payload: payload}, nil
}

// Eq compares variant and payload.
func (a Address) Eq(other Address) bool {
	if a.Variant != other.Variant || len(a.Payload) != len(other.Payload) {
		return false
	}
	for i := range a.Payload {
		if a.Payload[i] != other.Payload[i] {
			return false
		}
	}
	return true
}

func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

func (a *Address) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
