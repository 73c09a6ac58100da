// Package pow computes the nonce that makes a message's canonical
// encoding satisfy a node's minimum PoW score. The search loop is
// adapted from the teacher's miner.mine(rounds) — try a batch of
// nonces, then yield back to the caller to check for cancellation —
// but the per-attempt test is numeric (hash value vs a target derived
// from MinPowScore) rather than the teacher's fixed-difficulty target
// compare, since this module has no consensus-wide retargeting.
package pow

import (
	"context"
	"math"
	"math/big"

	"github.com/tangle-go/client/pkg/codec"
	"github.com/tangle-go/client/pkg/core"
	"github.com/tangle-go/client/pkg/tangleerr"
)

var bigInt2_256 = func() *big.Int {
	out := new(big.Int)
	out.SetString("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff", 16)
	return out
}()

// TargetFromScore converts a node-reported minimum PoW score into the
// largest hash value (as a big.Int) that satisfies it: a hash "works"
// at a score proportional to 2^256 / hashValue, so a higher required
// score means a smaller accepted target.
func TargetFromScore(minScore float64) *big.Int {
	if minScore <= 0 {
		return new(big.Int).Set(bigInt2_256)
	}
	scaled := new(big.Float).Quo(
		new(big.Float).SetInt(bigInt2_256),
		big.NewFloat(minScore),
	)
	out, _ := scaled.Int(nil)
	return out
}

// Options configures a PoW search.
type Options struct {
	MinScore float64
	// CheckpointHashes is how many nonces are tried between
	// cancellation checks (spec §4.6: "polled each N hash attempts").
	CheckpointHashes uint64
}

// Search mines msg.Nonce in place until its canonical encoding's hash
// satisfies minScore, or ctx is cancelled. On cancellation it returns
// tangleerr.Cancelled with no MessageId payload, since no message has
// been submitted yet — this search never touches the network.
func Search(ctx context.Context, msg *core.Message, opts Options) error {
	if opts.CheckpointHashes == 0 {
		opts.CheckpointHashes = 1 << 16
	}
	target := TargetFromScore(opts.MinScore)
	for {
		select {
		case <-ctx.Done():
			return tangleerr.Cancelled(nil, ctx.Err())
		default:
		}
		if mineBatch(msg, target, opts.CheckpointHashes) {
			return nil
		}
	}
}

// mineBatch tries up to rounds consecutive nonces starting from
// msg.Nonce, returning true and leaving msg.Nonce set to the winner as
// soon as one satisfies target.
func mineBatch(msg *core.Message, target *big.Int, rounds uint64) bool {
	for i := uint64(0); i < rounds; i++ {
		id := codec.MessageId(*msg)
		hashInt := new(big.Int).SetBytes(id.Bytes())
		if hashInt.Cmp(target) <= 0 {
			return true
		}
		if msg.Nonce == math.MaxUint64 {
			return false
		}
		msg.Nonce++
	}
	return false
}
