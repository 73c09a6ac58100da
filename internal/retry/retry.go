// Package retry implements reattach/promote decisioning and the
// append-only ReattachmentChain registry (spec §4.6). Its decision
// tree walk is the same shape as the teacher's internal/miner retry
// path has for stalled blocks — inspect metadata, branch on a small
// fixed set of flags, never touch the network on the path that decides
// nothing is needed.
package retry

import (
	"context"
	"sync"

	"github.com/tangle-go/client/internal/nodeclient"
	"github.com/tangle-go/client/internal/nodepool"
	"github.com/tangle-go/client/pkg/codec"
	"github.com/tangle-go/client/pkg/core"
	"github.com/tangle-go/client/pkg/pow"
	"github.com/tangle-go/client/pkg/tangleerr"
)

// Action reports which branch retry took.
type Action uint8

const (
	ActionNoneNeeded Action = iota
	ActionPromoted
	ActionReattached
)

// Result is what retry/reattach/promote hand back to the caller.
type Result struct {
	Action  Action
	NewId   core.MessageId
	Message core.Message
}

// Chain is the append-only registry mapping an original MessageId to
// the ordered sequence of MessageIds produced by successive
// reattachments (spec §3 ReattachmentChain: "forest, no back-pointers").
type Chain struct {
	mu    sync.RWMutex
	links map[core.MessageId][]core.MessageId
}

func NewChain() *Chain {
	return &Chain{links: make(map[core.MessageId][]core.MessageId)}
}

func (c *Chain) append(original, derived core.MessageId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links[original] = append(c.links[original], derived)
}

// Descendants returns the ordered reattachments recorded for original.
func (c *Chain) Descendants(original core.MessageId) []core.MessageId {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.MessageId, len(c.links[original]))
	copy(out, c.links[original])
	return out
}

// Controller runs retry/reattach/promote against a node pool.
type Controller struct {
	pool   *nodepool.Pool
	params core.Params
	chain  *Chain
}

func New(pool *nodepool.Pool, params core.Params) *Controller {
	return &Controller{pool: pool, params: params, chain: NewChain()}
}

func (ctl *Controller) Chain() *Chain { return ctl.chain }

// fetchMetadata retries GetMessageMetadata against another synced node
// on timeout/transport failure (spec §7).
func (ctl *Controller) fetchMetadata(ctx context.Context, id core.MessageId) (nodeclient.MessageMetadata, error) {
	return nodepool.Do(ctl.pool, func(_ nodepool.Node, client *nodeclient.Client) (nodeclient.MessageMetadata, error) {
		metadataCtx, cancel := context.WithTimeout(ctx, ctl.params.DefaultOpTimeout)
		defer cancel()
		return client.GetMessageMetadata(metadataCtx, id)
	})
}

// Retry implements spec §4.6's decision tree.
func (ctl *Controller) Retry(ctx context.Context, id core.MessageId) (Result, error) {
	metadata, err := ctl.fetchMetadata(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if metadata.ReferencedByMilestone != nil {
		return Result{}, tangleerr.New(tangleerr.KindAlreadyConfirmed, "message %s already confirmed at milestone %d", id, *metadata.ReferencedByMilestone)
	}
	if metadata.ShouldPromote {
		return ctl.promoteLocked(ctx, id)
	}
	if metadata.ShouldReattach {
		return ctl.reattachLocked(ctx, id)
	}
	return Result{Action: ActionNoneNeeded}, nil
}

// Reattach re-fetches id's body, attaches fresh tips and PoW, and
// posts it as a new message, recording the lineage in the chain
// (spec §4.6). It re-checks confirmation first — the invariant that
// neither operation ever runs on a confirmed message is enforced here
// regardless of what the caller already believes.
func (ctl *Controller) Reattach(ctx context.Context, id core.MessageId) (Result, error) {
	metadata, err := ctl.fetchMetadata(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if metadata.ReferencedByMilestone != nil {
		return Result{}, tangleerr.New(tangleerr.KindAlreadyConfirmed, "message %s already confirmed", id)
	}
	return ctl.reattachLocked(ctx, id)
}

// Promote builds and posts the empty-Indexation promotion message for
// id (spec §4.6), after the same confirmation re-check as Reattach.
func (ctl *Controller) Promote(ctx context.Context, id core.MessageId) (Result, error) {
	metadata, err := ctl.fetchMetadata(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if metadata.ReferencedByMilestone != nil {
		return Result{}, tangleerr.New(tangleerr.KindAlreadyConfirmed, "message %s already confirmed", id)
	}
	return ctl.promoteLocked(ctx, id)
}

// reattachLocked fetches id's body once (any synced node can answer
// this, and a fresh reattach attempt will hit the network again
// regardless), then retries the tips-fetch/PoW/post pipeline against
// another synced node on timeout/transport failure (spec §7), the same
// way attachAndSubmit does for a fresh send.
func (ctl *Controller) reattachLocked(ctx context.Context, id core.MessageId) (Result, error) {
	original, err := nodepool.Do(ctl.pool, func(_ nodepool.Node, client *nodeclient.Client) (core.Message, error) {
		dataCtx, cancel := context.WithTimeout(ctx, ctl.params.DefaultOpTimeout)
		defer cancel()
		return client.GetMessageData(dataCtx, id, codec.DecodeMessage)
	})
	if err != nil {
		return Result{}, err
	}

	result, err := nodepool.Do(ctl.pool, func(node nodepool.Node, client *nodeclient.Client) (Result, error) {
		tipsCtx, cancel := context.WithTimeout(ctx, ctl.params.GetTipsTimeout)
		parent1, parent2, err := client.GetTips(tipsCtx)
		cancel()
		if err != nil {
			return Result{}, err
		}
		msg := core.Message{Parent1: parent1, Parent2: parent2, Payload: original.Payload}
		if err := pow.Search(ctx, &msg, pow.Options{MinScore: node.MinPowScore, CheckpointHashes: ctl.params.PowCheckpointHashes}); err != nil {
			return Result{}, err
		}
		postCtx, cancel := context.WithTimeout(ctx, ctl.params.PostMessageTimeout)
		newId, err := client.PostMessage(postCtx, codec.EncodeMessage(msg))
		cancel()
		if err != nil {
			return Result{}, err
		}
		return Result{Action: ActionReattached, NewId: newId, Message: msg}, nil
	})
	if err != nil {
		return Result{}, err
	}
	ctl.chain.append(id, result.NewId)
	return result, nil
}

func (ctl *Controller) promoteLocked(ctx context.Context, id core.MessageId) (Result, error) {
	return nodepool.Do(ctl.pool, func(node nodepool.Node, client *nodeclient.Client) (Result, error) {
		tipsCtx, cancel := context.WithTimeout(ctx, ctl.params.GetTipsTimeout)
		_, tip, err := client.GetTips(tipsCtx)
		cancel()
		if err != nil {
			return Result{}, err
		}
		indexation := core.Indexation{Index: "PROMOTE", Data: nil}
		msg := core.Message{Parent1: id, Parent2: tip, Payload: core.IndexationPayload(&indexation)}
		if err := pow.Search(ctx, &msg, pow.Options{MinScore: node.MinPowScore, CheckpointHashes: ctl.params.PowCheckpointHashes}); err != nil {
			return Result{}, err
		}
		postCtx, cancel := context.WithTimeout(ctx, ctl.params.PostMessageTimeout)
		newId, err := client.PostMessage(postCtx, codec.EncodeMessage(msg))
		cancel()
		if err != nil {
			return Result{}, err
		}
		return Result{Action: ActionPromoted, NewId: newId, Message: msg}, nil
	})
}
