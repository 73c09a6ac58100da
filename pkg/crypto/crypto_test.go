package crypto_test

import (
	"bytes"
	"testing"

	. "github.com/tangle-go/client/pkg/crypto"
	"github.com/tangle-go/client/pkg/core"
	"github.com/tangle-go/client/pkg/util"
)

func testSeed(t *testing.T, b byte) core.Seed {
	raw := make([]byte, core.SeedSize)
	for i := range raw {
		raw[i] = b
	}
	seed, err := core.NewSeedFromBytes(raw)
	util.AssertNoErr(t, err)
	return seed
}

func TestDeriveReconstruct(t *testing.T) {
	seed := testSeed(t, 0x01)
	path := core.WalletChainPath(0, 0).AddressPath(0)

	key1, err := Derive(seed, path)
	util.AssertNoErr(t, err)
	key2, err := Derive(seed, path)
	util.AssertNoErr(t, err)

	util.Assert(t, key1.PublicKey() == key2.PublicKey(), "same seed and path must derive the same public key")
}

func TestDeriveDistinctPathsDiverge(t *testing.T) {
	seed := testSeed(t, 0x02)
	pathA := core.WalletChainPath(0, 0).AddressPath(0)
	pathB := core.WalletChainPath(0, 0).AddressPath(1)

	keyA, err := Derive(seed, pathA)
	util.AssertNoErr(t, err)
	keyB, err := Derive(seed, pathB)
	util.AssertNoErr(t, err)

	util.Assert(t, keyA.PublicKey() != keyB.PublicKey(), "different address indices must derive different keys")
}

func TestDeriveDistinctSeedsDiverge(t *testing.T) {
	path := core.WalletChainPath(0, 0).AddressPath(0)
	keyA, err := Derive(testSeed(t, 0x03), path)
	util.AssertNoErr(t, err)
	keyB, err := Derive(testSeed(t, 0x04), path)
	util.AssertNoErr(t, err)

	util.Assert(t, keyA.PublicKey() != keyB.PublicKey(), "different seeds must derive different keys")
}

func TestDeriveRejectsUnhardenedPath(t *testing.T) {
	seed := testSeed(t, 0x05)
	_, err := Derive(seed, core.NewBIP32Path(0))
	util.Assert(t, err != nil, "an unhardened path segment must be rejected")
}

func TestSignVerify(t *testing.T) {
	seed := testSeed(t, 0x06)
	key, err := Derive(seed, core.WalletChainPath(0, 0).AddressPath(0))
	util.AssertNoErr(t, err)

	message := []byte("essence hash goes here")
	sig := key.Sign(message)
	util.Assert(t, Verify(key.PublicKey(), message, sig), "a signature over message must verify against the signer's public key")
}

func TestVerifyRejectsWrongMessage(t *testing.T) {
	seed := testSeed(t, 0x07)
	key, err := Derive(seed, core.WalletChainPath(0, 0).AddressPath(0))
	util.AssertNoErr(t, err)

	sig := key.Sign([]byte("original message"))
	util.Assert(t, !Verify(key.PublicKey(), []byte("tampered message"), sig), "a signature must not verify against a different message")
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	seed := testSeed(t, 0x08)
	keyA, err := Derive(seed, core.WalletChainPath(0, 0).AddressPath(0))
	util.AssertNoErr(t, err)
	keyB, err := Derive(seed, core.WalletChainPath(0, 0).AddressPath(1))
	util.AssertNoErr(t, err)

	message := []byte("essence hash goes here")
	sig := keyA.Sign(message)
	util.Assert(t, !Verify(keyB.PublicKey(), message, sig), "a signature must not verify against a different signer's public key")
}

func TestBlake2b256Deterministic(t *testing.T) {
	data := []byte("some canonical bytes")
	sumA := Blake2b256(data)
	sumB := Blake2b256(data)
	util.Assert(t, bytes.Equal(sumA[:], sumB[:]), "hashing the same bytes twice must produce the same digest")
}

func TestDeriveAddressMatchesDerivedKey(t *testing.T) {
	seed := testSeed(t, 0x09)
	path := core.WalletChainPath(0, 0).AddressPath(0)

	key, err := Derive(seed, path)
	util.AssertNoErr(t, err)
	addr, err := DeriveAddress(seed, path)
	util.AssertNoErr(t, err)

	pub := key.PublicKey()
	want, err := core.NewEd25519Address(pub[:])
	util.AssertNoErr(t, err)
	util.Assert(t, addr.Eq(want), "DeriveAddress must hash the same public key Derive produces")
}
