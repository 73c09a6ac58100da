package core

import (
	"fmt"
	"strings"

	"github.com/tangle-go/client/pkg/tangleerr"
)

// Bip32HardenedOffset is added to every index in a BIP32Path: this
// module only ever derives hardened children (SLIP-10 Ed25519 supports
// nothing else, per original_source/address.rs). HardenedIndex applies
// the offset; NewBIP32Path takes indices as given, and Validate rejects
// any that lack it.
const Bip32HardenedOffset uint32 = 1 << 31

// BIP32Path is an ordered list of hardened child indices. A "wallet
// chain" path has depth 2 (e.g. m/0'/0'); an address path extends a
// wallet chain by exactly one more hardened index, forming depth 3
// (spec §3, "BIP32Path").
type BIP32Path struct {
	indices []uint32
}

// HardenedIndex builds a single path segment from a plain (un-offset)
// child index, applying the hardened bit.
func HardenedIndex(i uint32) uint32 {
	return Bip32HardenedOffset + i
}

// NewBIP32Path builds a path from already-hardened indices.
func NewBIP32Path(indices ...uint32) BIP32Path {
	out := make([]uint32, len(indices))
	copy(out, indices)
	return BIP32Path{indices: out}
}

// WalletChainPath builds the depth-2 path m/account'/chain' that
// get_unspent_address/get_balance/send take as their scan root.
func WalletChainPath(account, chain uint32) BIP32Path {
	return NewBIP32Path(HardenedIndex(account), HardenedIndex(chain))
}

// AddressPath extends a depth-2 wallet chain path with the hardened
// index of a single address, forming the depth-3 path that derives
// that address's signing key.
func (p BIP32Path) AddressPath(index uint32) BIP32Path {
	return NewBIP32Path(append(p.Indices(), HardenedIndex(index))...)
}

// Indices returns a copy of the path's raw (already-hardened) indices.
func (p BIP32Path) Indices() []uint32 {
	out := make([]uint32, len(p.indices))
	copy(out, p.indices)
	return out
}

func (p BIP32Path) Depth() int {
	return len(p.indices)
}

func (p BIP32Path) String() string {
	parts := make([]string, len(p.indices))
	for i, idx := range p.indices {
		parts[i] = fmt.Sprintf("%d'", idx-Bip32HardenedOffset)
	}
	return "m/" + strings.Join(parts, "/")
}

// Validate rejects an empty path or a path in which any index lacks the
// hardened bit, both of which the signing pipeline treats as malformed
// configuration rather than a derivable key.
func (p BIP32Path) Validate() error {
	if len(p.indices) == 0 {
		return tangleerr.New(tangleerr.KindInvalidBip32Path, "path has no segments")
	}
	for i, idx := range p.indices {
		if idx < Bip32HardenedOffset {
			return tangleerr.New(tangleerr.KindInvalidBip32Path, "segment %d (%d) is not hardened", i, idx)
		}
	}
	return nil
}
