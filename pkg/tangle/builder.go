// Package tangle is the public façade: a Builder with chained setters
// mirroring spec §6's configuration-option table, producing a Client
// that wires together the node pool, transfer engine, retry
// controller, and subscription multiplexer. The chained-setter-then-
// terminal-constructor shape is adapted from the teacher's
// cmd/bcwallet/config.go Config/Verify pairing, generalized from a
// file-backed CLI config to an in-memory builder, since validation
// here must never touch the network (spec §7).
package tangle

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/tangle-go/client/internal/nodepool"
	"github.com/tangle-go/client/pkg/core"
	"github.com/tangle-go/client/pkg/stateadapter"
	"github.com/tangle-go/client/pkg/tangleerr"
)

// Builder accumulates configuration options before Build().
type Builder struct {
	network core.Network

	nodes        []string
	nodePoolURLs []string

	nodeSyncInterval    time.Duration
	getInfoTimeout      time.Duration
	getHealthTimeout    time.Duration
	getMilestoneTimeout time.Duration
	getTipsTimeout      time.Duration

	postMessageTimeout          time.Duration
	postMessageRemotePowTimeout time.Duration

	localPow bool

	quorumSize      int
	quorumThreshold float64

	stateAdapter stateadapter.Adapter
}

// NewBuilder starts a Builder with spec §6's stated defaults.
func NewBuilder() *Builder {
	return &Builder{
		network:                     core.Mainnet,
		nodeSyncInterval:            60000 * time.Millisecond,
		getInfoTimeout:              2000 * time.Millisecond,
		getHealthTimeout:            2000 * time.Millisecond,
		getMilestoneTimeout:         2000 * time.Millisecond,
		getTipsTimeout:              2000 * time.Millisecond,
		postMessageTimeout:          2000 * time.Millisecond,
		postMessageRemotePowTimeout: 30000 * time.Millisecond,
		localPow:                    true,
	}
}

func (b *Builder) Network(n core.Network) *Builder { b.network = n; return b }

func (b *Builder) Node(url string) *Builder { b.nodes = append(b.nodes, url); return b }

func (b *Builder) Nodes(urls ...string) *Builder { b.nodes = append(b.nodes, urls...); return b }

func (b *Builder) NodePoolURLs(urls ...string) *Builder {
	b.nodePoolURLs = append(b.nodePoolURLs, urls...)
	return b
}

func (b *Builder) NodeSyncInterval(d time.Duration) *Builder { b.nodeSyncInterval = d; return b }

func (b *Builder) GetInfoTimeout(d time.Duration) *Builder { b.getInfoTimeout = d; return b }

func (b *Builder) GetHealthTimeout(d time.Duration) *Builder { b.getHealthTimeout = d; return b }

func (b *Builder) GetMilestoneTimeout(d time.Duration) *Builder { b.getMilestoneTimeout = d; return b }

func (b *Builder) GetTipsTimeout(d time.Duration) *Builder { b.getTipsTimeout = d; return b }

func (b *Builder) PostMessageTimeout(d time.Duration) *Builder { b.postMessageTimeout = d; return b }

func (b *Builder) PostMessageRemotePowTimeout(d time.Duration) *Builder {
	b.postMessageRemotePowTimeout = d
	return b
}

func (b *Builder) LocalPow(enabled bool) *Builder { b.localPow = enabled; return b }

func (b *Builder) Quorum(size int, threshold float64) *Builder {
	b.quorumSize = size
	b.quorumThreshold = threshold
	return b
}

func (b *Builder) StateAdapter(adapter stateadapter.Adapter) *Builder {
	b.stateAdapter = adapter
	return b
}

// Build validates the accumulated options and constructs a Client. Per
// spec §7, a configuration error is returned here without ever
// contacting the network; resolving node_pool_urls into concrete node
// URLs is a network fetch that only runs once validation has passed.
func (b *Builder) Build() (*Client, error) {
	if len(b.nodes) == 0 && len(b.nodePoolURLs) == 0 {
		return nil, tangleerr.New(tangleerr.KindNoNodesConfigured, "at least one of node, nodes, or node_pool_urls must be set")
	}
	if b.nodeSyncInterval <= 0 {
		return nil, tangleerr.New(tangleerr.KindInvalidTimeout, "node_sync_interval must be > 0")
	}
	for _, d := range []time.Duration{b.getInfoTimeout, b.getHealthTimeout, b.getMilestoneTimeout, b.getTipsTimeout, b.postMessageTimeout, b.postMessageRemotePowTimeout} {
		if d <= 0 {
			return nil, tangleerr.New(tangleerr.KindInvalidTimeout, "per-operation timeouts must be > 0")
		}
	}

	nodes := append([]string{}, b.nodes...)
	for _, poolURL := range b.nodePoolURLs {
		resolved, err := fetchNodeList(poolURL)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, resolved...)
	}

	poolParams := nodepool.DefaultParams(b.network)
	poolParams.LocalPow = b.localPow
	poolParams.SyncInterval = b.nodeSyncInterval
	poolParams.GetInfoTimeout = b.getInfoTimeout
	poolParams.QuorumSize = b.quorumSize
	poolParams.QuorumThreshold = b.quorumThreshold
	// Subscriptions start inactive; pkg/tangle.Client flips this on via
	// nodepool.Pool.ActivateSubscriptions the first time Subscribe
	// actually needs a live MQTT session (spec §7: Build() itself never
	// touches the network).
	poolParams.SubscriptionsActive = false

	pool, err := nodepool.New(poolParams, nodes)
	if err != nil {
		return nil, err
	}

	coreParams := core.DefaultParams()
	coreParams.GetHealthTimeout = b.getHealthTimeout
	coreParams.GetTipsTimeout = b.getTipsTimeout
	coreParams.GetMilestoneTimeout = b.getMilestoneTimeout
	coreParams.PostMessageTimeout = b.postMessageTimeout
	coreParams.PostMessageRemotePowTimeout = b.postMessageRemotePowTimeout

	adapter := b.stateAdapter
	if adapter == nil {
		adapter = stateadapter.NewMemoryAdapter()
	}

	return newClient(pool, coreParams, adapter, b.localPow), nil
}

func fetchNodeList(poolURL string) ([]string, error) {
	resp, err := http.Get(poolURL)
	if err != nil {
		return nil, tangleerr.Wrap(tangleerr.KindTransport, err, "fetching node_pool_urls entry %s", poolURL)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, tangleerr.Wrap(tangleerr.KindTransport, err, "reading node_pool_urls entry %s", poolURL)
	}
	var urls []string
	if err := json.Unmarshal(body, &urls); err != nil {
		return nil, tangleerr.Wrap(tangleerr.KindMalformedResponse, err, "decoding node_pool_urls entry %s", poolURL)
	}
	return urls, nil
}
