package core

import (
	"fmt"
	"time"
)

// Params collects the tunables shared by every component that isn't
// pure node-pool/transport configuration (those live in pkg/tangle's
// Builder instead). Unlike the node-side consensus params this was
// adapted from, nothing here is negotiated with peers — it's all
// client-local policy.
type Params struct {
	DefaultOpTimeout            time.Duration `json:"defaultOpTimeout"`            // bounds reads with no more specific named timeout (balance/outputs/metadata)
	GetHealthTimeout            time.Duration `json:"getHealthTimeout"`            // bounds GetHealth
	GetTipsTimeout              time.Duration `json:"getTipsTimeout"`              // bounds GetTips
	GetMilestoneTimeout         time.Duration `json:"getMilestoneTimeout"`         // bounds GetMilestone
	PostMessageTimeout          time.Duration `json:"postMessageTimeout"`          // bounds PostMessage when PoW was already computed locally
	PostMessageRemotePowTimeout time.Duration `json:"postMessageRemotePowTimeout"` // bounds PostMessage when the node computes PoW itself
	GapLimit                    int           `json:"gapLimit"`                    // address-scan window size
	PowCheckpointHashes         uint64        `json:"powCheckpointHashes"`         // hash attempts between PoW cancellation checks
}

// verify panics on a Params combination that can never produce correct
// behavior, mirroring the teacher's own fail-fast verify() on Params.
func (p Params) verify() {
	if p.GapLimit <= 0 {
		panic(fmt.Sprint("invalid gap limit:", p.GapLimit))
	}
	for _, d := range []time.Duration{
		p.DefaultOpTimeout, p.GetHealthTimeout, p.GetTipsTimeout, p.GetMilestoneTimeout,
		p.PostMessageTimeout, p.PostMessageRemotePowTimeout,
	} {
		if d <= 0 {
			panic("operation timeouts must be positive")
		}
	}
	if p.PowCheckpointHashes == 0 {
		panic("pow checkpoint interval must be positive")
	}
}

// DefaultParams returns the defaults named throughout spec §4: 2000ms
// per operation, 30000ms for post_message under remote PoW, and a
// gap limit of 20.
func DefaultParams() Params {
	params := Params{
		DefaultOpTimeout:            2000 * time.Millisecond,
		GetHealthTimeout:            2000 * time.Millisecond,
		GetTipsTimeout:              2000 * time.Millisecond,
		GetMilestoneTimeout:         2000 * time.Millisecond,
		PostMessageTimeout:          2000 * time.Millisecond,
		PostMessageRemotePowTimeout: 30000 * time.Millisecond,
		GapLimit:                    20,
		PowCheckpointHashes:         1 << 16,
	}
	params.verify()
	return params
}
