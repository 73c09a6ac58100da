package tangle

import (
	"context"
	"sync"

	"github.com/tangle-go/client/internal/nodeclient"
	"github.com/tangle-go/client/internal/nodepool"
	"github.com/tangle-go/client/internal/retry"
	"github.com/tangle-go/client/internal/subscribe"
	"github.com/tangle-go/client/internal/transfer"
	"github.com/tangle-go/client/pkg/core"
	"github.com/tangle-go/client/pkg/stateadapter"
)

// Client is the assembled façade over every component: node pool,
// transfer engine, retry controller, and (lazily, on first Subscribe)
// the subscription multiplexer.
type Client struct {
	pool    *nodepool.Pool
	params  core.Params
	adapter stateadapter.Adapter

	localPow bool
	transfer *transfer.Engine
	retry    *retry.Controller

	subMu sync.Mutex
	sub   *subscribe.Multiplexer
}

func newClient(pool *nodepool.Pool, params core.Params, adapter stateadapter.Adapter, localPow bool) *Client {
	return &Client{
		pool:     pool,
		params:   params,
		adapter:  adapter,
		localPow: localPow,
		transfer: transfer.New(pool, params),
		retry:    retry.New(pool, params),
	}
}

// GetUnspentAddress is C5's get_unspent_address (spec §4.5.2).
func (c *Client) GetUnspentAddress(ctx context.Context, seed core.Seed, path core.BIP32Path, start uint32) (core.Address, uint32, error) {
	return c.transfer.GetUnspentAddress(ctx, seed, path, start)
}

// GetBalance is C5's get_balance (spec §4.5.3).
func (c *Client) GetBalance(ctx context.Context, seed core.Seed, path core.BIP32Path) (uint64, error) {
	return c.transfer.GetBalance(ctx, seed, path)
}

// GetHealth reports whether a currently selected synced node considers
// itself healthy, bounded by get_health_timeout (spec §4.3). Timeout/
// transport failures are retried against another synced node (spec
// §7).
func (c *Client) GetHealth(ctx context.Context) (bool, error) {
	return nodepool.Do(c.pool, func(_ nodepool.Node, client *nodeclient.Client) (bool, error) {
		healthCtx, cancel := context.WithTimeout(ctx, c.params.GetHealthTimeout)
		defer cancel()
		return client.GetHealth(healthCtx)
	})
}

// GetMilestone fetches milestone index from a currently selected synced
// node, bounded by get_milestone_timeout (spec §4.3). Timeout/transport
// failures are retried against another synced node (spec §7).
func (c *Client) GetMilestone(ctx context.Context, index uint32) (core.Milestone, error) {
	return nodepool.Do(c.pool, func(_ nodepool.Node, client *nodeclient.Client) (core.Milestone, error) {
		msCtx, cancel := context.WithTimeout(ctx, c.params.GetMilestoneTimeout)
		defer cancel()
		return client.GetMilestone(msCtx, index)
	})
}

// GetAddressBalances is C5's get_address_balances (spec §4.5.4).
func (c *Client) GetAddressBalances(ctx context.Context, addresses []core.Address) (map[string]uint64, error) {
	return c.transfer.GetAddressBalances(ctx, addresses)
}

// Send is C5's send (spec §4.5.5).
func (c *Client) Send(ctx context.Context, req transfer.SendRequest) (core.Message, error) {
	if req.Seed != nil && !req.LocalPow {
		req.LocalPow = c.localPow
	}
	return c.transfer.Send(ctx, req)
}

// Retry is C6's retry (spec §4.6).
func (c *Client) Retry(ctx context.Context, id core.MessageId) (retry.Result, error) {
	return c.retry.Retry(ctx, id)
}

// Reattach is C6's reattach (spec §4.6).
func (c *Client) Reattach(ctx context.Context, id core.MessageId) (retry.Result, error) {
	return c.retry.Reattach(ctx, id)
}

// Promote is C6's promote (spec §4.6).
func (c *Client) Promote(ctx context.Context, id core.MessageId) (retry.Result, error) {
	return c.retry.Promote(ctx, id)
}

// ReattachmentChain exposes the descendants recorded for a reattached
// message's original id (spec §3 ReattachmentChain).
func (c *Client) ReattachmentChain(original core.MessageId) []core.MessageId {
	return c.retry.Chain().Descendants(original)
}

// Subscribe is C7's subscribe (spec §4.7). The multiplexer's MQTT
// session is established lazily, on the first call, since Build()
// never touches the network.
func (c *Client) Subscribe(ctx context.Context, topic string, cb subscribe.Callback) error {
	mux, err := c.multiplexer(ctx)
	if err != nil {
		return err
	}
	return mux.Subscribe(topic, cb)
}

// Unsubscribe is C7's unsubscribe (spec §4.7). Per spec §8's round-trip
// property ("unsubscribe without prior subscribe is a no-op returning
// success"), this must never establish the MQTT session itself — that
// would turn a trivially-successful no-op into a network operation
// that can fail or block.
func (c *Client) Unsubscribe(ctx context.Context, topic string) error {
	c.subMu.Lock()
	mux := c.sub
	c.subMu.Unlock()
	if mux == nil {
		return nil
	}
	return mux.Unsubscribe(topic)
}

func (c *Client) multiplexer(ctx context.Context) (*subscribe.Multiplexer, error) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.sub != nil {
		return c.sub, nil
	}
	mux, err := subscribe.New(ctx, c.pool)
	if err != nil {
		return nil, err
	}
	c.sub = mux
	return mux, nil
}

// StateAdapter exposes the configured persistence hook (opaque to the
// core itself; spec §6 "state_adapter").
func (c *Client) StateAdapter() stateadapter.Adapter { return c.adapter }

// Close releases the node pool monitor and, if established, the MQTT
// session.
func (c *Client) Close() {
	c.subMu.Lock()
	if c.sub != nil {
		c.sub.Close()
	}
	c.subMu.Unlock()
	c.pool.Close()
}
