package core

import (
	"encoding/hex"

	"github.com/tangle-go/client/pkg/tangleerr"
)

// SeedSize is the length in bytes of the master secret a Seed wraps.
const SeedSize = 32

// Seed is the opaque master secret every BIP32 derivation in this module
// starts from. Its String and GoString return a fixed placeholder and it
// has no MarshalJSON or other method that could leak its bytes into a
// log line or wire payload — callers that truly need the raw bytes call
// Bytes() explicitly.
type Seed struct {
	b [SeedSize]byte
}

// NewSeedFromHex parses a 64-character hex string into a Seed.
func NewSeedFromHex(s string) (Seed, error) {
	if len(s) != SeedSize*2 {
		return Seed{}, tangleerr.New(
			tangleerr.KindInvalidSeed, "seed hex must be %d characters, got %d", SeedSize*2, len(s),
		)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Seed{}, tangleerr.Wrap(tangleerr.KindInvalidSeed, err, "seed is not valid hex")
	}
	return NewSeedFromBytes(raw)
}

// NewSeedFromBytes wraps exactly SeedSize bytes as a Seed.
func NewSeedFromBytes(b []byte) (Seed, error) {
	if len(b) != SeedSize {
		return Seed{}, tangleerr.New(
			tangleerr.KindInvalidSeed, "seed must be %d bytes, got %d", SeedSize, len(b),
		)
	}
	var s Seed
	copy(s.b[:], b)
	return s, nil
}

// Bytes returns a copy of the seed's raw bytes. Callers must not retain
// or log the result.
func (s Seed) Bytes() []byte {
	out := make([]byte, SeedSize)
	copy(out, s.b[:])
	return out
}

// String and GoString print a placeholder so %v, %s and %#v never show
// the seed's bytes.
func (s Seed) String() string {
	return "core.Seed{...}"
}

func (s Seed) GoString() string {
	return "core.Seed{...}"
}
