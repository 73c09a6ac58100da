// Package nodepool owns the set of configured node URLs, probes them
// on a fixed interval, and exposes node selection to every other
// component (spec §4.4). The monitor's ticker-driven select loop is
// adapted from the teacher's internal/peerfactory.Loop: a background
// goroutine that reacts to a ticker and to inbound commands over
// channels, never blocking the caller-facing methods.
package nodepool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	neturl "net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tangle-go/client/internal/nodeclient"
	"github.com/tangle-go/client/pkg/core"
	"github.com/tangle-go/client/pkg/set"
	"github.com/tangle-go/client/pkg/tangleerr"
	"github.com/tangle-go/client/pkg/util"
)

// Health tags a Node's current standing in the pool.
type Health uint8

const (
	HealthHealthy Health = iota
	HealthUnresponsive
	HealthBlacklisted
)

// Node is the pool's internal record of one configured URL (spec §3
// "Node"). Mutated only by the pool's probes (the monitor loop, New's
// first pass, and ActivateSubscriptions); callers only ever see copies.
type Node struct {
	URL         string
	Network     core.Network
	MqttPort    int // 0 if none configured
	RemotePow   bool
	MinPowScore float64
	Health      Health
	LastProbeAt time.Time
	Reason      string
}

// Params configures the pool's monitor loop and selection policy.
type Params struct {
	Network             core.Network
	LocalPow            bool
	SyncInterval        time.Duration // default 60s
	GetInfoTimeout      time.Duration // default 2s
	SubscriptionsActive bool
	QuorumSize          int     // 0 or 1 disables quorum mode
	QuorumThreshold     float64 // fraction, e.g. 1.0
	BulkBatchLimit      int     // max ids per single-node bulk call
}

// DefaultParams fills in spec §4.4's stated defaults.
func DefaultParams(network core.Network) Params {
	return Params{
		Network:        network,
		SyncInterval:   60 * time.Second,
		GetInfoTimeout: 2 * time.Second,
		BulkBatchLimit: 100,
	}
}

func (p Params) validate() error {
	if p.SyncInterval <= 0 {
		return tangleerr.New(tangleerr.KindInvalidTimeout, "node_sync_interval must be > 0")
	}
	if p.GetInfoTimeout <= 0 {
		return tangleerr.New(tangleerr.KindInvalidTimeout, "get_info_timeout must be > 0")
	}
	return nil
}

// Pool owns a snapshot of every configured node's health and serves
// node selection to every other component.
type Pool struct {
	params  Params
	clients map[string]*nodeclient.Client

	mu          sync.RWMutex
	nodes       map[string]Node
	blacklisted *set.Set[string]

	// subscriptionsActive gates admission check 5 (spec §4.4: "MQTT
	// port is reachable if subscriptions are active"). It starts at
	// params.SubscriptionsActive and is flipped on, once, by
	// ActivateSubscriptions the first time a caller actually needs a
	// live MQTT session — never by construction alone, so Build()
	// itself stays network-free (spec §7).
	subscriptionsActive atomic.Bool

	stop chan struct{}
}

// New builds a Pool over urls and starts its background monitor. The
// monitor's first probe pass runs synchronously so Build() never
// returns a pool with zero knowledge of its nodes' health.
func New(params Params, urls []string) (*Pool, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, tangleerr.New(tangleerr.KindNoNodesConfigured, "no node URLs configured")
	}
	p := &Pool{
		params:      params,
		clients:     make(map[string]*nodeclient.Client, len(urls)),
		nodes:       make(map[string]Node, len(urls)),
		blacklisted: set.NewSet[string](),
		stop:        make(chan struct{}),
	}
	p.subscriptionsActive.Store(params.SubscriptionsActive)
	for _, url := range urls {
		p.clients[url] = nodeclient.New(url, nil)
		p.nodes[url] = Node{URL: url, Health: HealthUnresponsive}
	}
	p.probeAll(context.Background())
	go p.loop()
	return p, nil
}

// Close stops the monitor loop.
func (p *Pool) Close() {
	close(p.stop)
}

// loop is the monitor: re-probes every node each SyncInterval and
// never blocks a concurrent Select/Snapshot call, per spec §4.4's
// invariant.
func (p *Pool) loop() {
	ticker := time.NewTicker(p.params.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			fmt.Println("nodepool monitor closed")
			return
		case <-ticker.C:
			p.probeAll(context.Background())
		}
	}
}

func (p *Pool) probeAll(ctx context.Context) {
	var wg sync.WaitGroup
	for url := range p.clients {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			p.probeOne(ctx, url)
		}(url)
	}
	wg.Wait()
}

func (p *Pool) probeOne(ctx context.Context, url string) {
	client := p.clients[url]
	probeCtx, cancel := context.WithTimeout(ctx, p.params.GetInfoTimeout)
	defer cancel()

	info, err := client.GetInfo(probeCtx)
	now := time.Now()
	if err != nil {
		p.setNode(url, Node{
			URL: url, Health: HealthBlacklisted, LastProbeAt: now,
			Reason: fmt.Sprintf("get_info failed: %s", err),
		})
		return
	}
	if !info.IsHealthy {
		p.setNode(url, Node{URL: url, Health: HealthBlacklisted, LastProbeAt: now, Reason: "reported unhealthy"})
		return
	}
	if info.Network != p.params.Network {
		p.setNode(url, Node{
			URL: url, Health: HealthBlacklisted, LastProbeAt: now,
			Reason: fmt.Sprintf("network mismatch: %s != %s", info.Network, p.params.Network),
		})
		return
	}
	remotePow := hasFeature(info.Features, "pow")
	if !p.params.LocalPow && !remotePow {
		p.setNode(url, Node{URL: url, Health: HealthBlacklisted, LastProbeAt: now, Reason: "no pow capability, local_pow disabled"})
		return
	}
	mqttPort := 0
	if p.subscriptionsActive.Load() {
		port, ok := mqttPortOf(url)
		if !ok || !mqttReachable(url, port) {
			p.setNode(url, Node{URL: url, Health: HealthBlacklisted, LastProbeAt: now, Reason: "mqtt unreachable"})
			return
		}
		mqttPort = port
	}
	p.setNode(url, Node{
		URL: url, Network: info.Network, MqttPort: mqttPort, RemotePow: remotePow,
		MinPowScore: info.MinPowScore, Health: HealthHealthy, LastProbeAt: now,
	})
}

func hasFeature(features []core.MilestoneFeature, name string) bool {
	for _, f := range features {
		if string(f) == name {
			return true
		}
	}
	return false
}

// mqttPortOf resolves the MQTT port configured alongside a node's URL.
// Nodes in this pool expose MQTT on the same host at port 1883 unless
// otherwise reconfigured out-of-band; this is a placeholder for pool
// setups that supply an explicit port map.
func mqttPortOf(url string) (int, bool) {
	host, _, err := net.SplitHostPort(url)
	if err != nil {
		return 1883, true
	}
	_ = host
	return 1883, true
}

func mqttReachable(url string, port int) bool {
	host, _, err := net.SplitHostPort(url)
	if err != nil {
		host = url
	}
	if u, perr := neturl.Parse(url); perr == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (p *Pool) setNode(url string, n Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes[url] = n
	if n.Health == HealthBlacklisted {
		p.blacklisted.Add(url)
	} else {
		p.blacklisted.Remove(url)
	}
}

// ActivateSubscriptions flips the pool into MQTT-reachability-checked
// mode (spec §4.4 check 5) the first time it's called, and immediately
// re-probes every node so a node whose HTTP API is healthy but whose
// MQTT port is unreachable gets demoted before any subscribe attempt
// picks it via Select. Idempotent: only the first call triggers a
// re-probe.
func (p *Pool) ActivateSubscriptions(ctx context.Context) {
	if p.subscriptionsActive.CompareAndSwap(false, true) {
		p.probeAll(ctx)
	}
}

// Blacklisted lists the URLs currently failing admission (spec §4.4's
// blacklist-with-reason standing), in no particular order.
func (p *Pool) Blacklisted() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.blacklisted.ToList()
}

// Snapshot returns every node's current record.
func (p *Pool) Snapshot() []Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Node, 0, len(p.nodes))
	for _, n := range p.nodes {
		out = append(out, n)
	}
	return out
}

// synced returns the current synced-set snapshot: every node in
// HealthHealthy standing.
func (p *Pool) synced() []Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Node, 0, len(p.nodes))
	for _, n := range p.nodes {
		if n.Health == HealthHealthy {
			out = append(out, n)
		}
	}
	return out
}

// Select picks one synced node uniformly at random.
func (p *Pool) Select() (Node, *nodeclient.Client, error) {
	synced := p.synced()
	if len(synced) == 0 {
		return Node{}, nil, tangleerr.New(tangleerr.KindNoSyncedNodes, "no synced nodes available")
	}
	node := synced[rand.Intn(len(synced))]
	return node, p.clients[node.URL], nil
}

// Do runs fn against a synced node, retrying against a different
// synced node on Timeout/Transport failures up to len(synced set)
// attempts total (spec §7: "Network errors on selection-time attempts
// are retried against another synced node up to |synced_set| attempts;
// persistent failure surfaces NoSyncedNodes or the last transport
// error"). Any other error kind, or success, returns immediately.
func Do[T any](p *Pool, fn func(Node, *nodeclient.Client) (T, error)) (T, error) {
	var zero T
	synced := p.synced()
	if len(synced) == 0 {
		return zero, tangleerr.New(tangleerr.KindNoSyncedNodes, "no synced nodes available")
	}
	order := util.CopyList(synced)
	rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	var lastErr error
	for _, node := range order {
		result, err := fn(node, p.clients[node.URL])
		if err == nil {
			return result, nil
		}
		if !isRetryable(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}

func isRetryable(err error) bool {
	return errors.Is(err, tangleerr.Of(tangleerr.KindTimeout)) ||
		errors.Is(err, tangleerr.Of(tangleerr.KindTransport))
}

// SelectQuorum picks quorum_size distinct synced nodes. Returns
// NoSyncedNodes if fewer than quorum_size nodes are synced.
func (p *Pool) SelectQuorum() ([]Node, []*nodeclient.Client, error) {
	synced := p.synced()
	size := p.params.QuorumSize
	if size < 2 {
		size = 1
	}
	if len(synced) < size {
		return nil, nil, tangleerr.New(tangleerr.KindNoSyncedNodes, "only %d synced nodes, need %d for quorum", len(synced), size)
	}
	shuffled := util.CopyList(synced)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	picked := shuffled[:size]
	clients := make([]*nodeclient.Client, size)
	for i, n := range picked {
		clients[i] = p.clients[n.URL]
	}
	return picked, clients, nil
}

// QuorumEnabled reports whether the pool was configured for quorum
// mode (spec §4.4: "quorum_size >= 2 is configured").
func (p *Pool) QuorumEnabled() bool {
	return p.params.QuorumSize >= 2
}

func (p *Pool) QuorumThreshold() float64 {
	return p.params.QuorumThreshold
}

// BulkBatchLimit is the per-node cap used to shard bulk fan-out.
func (p *Pool) BulkBatchLimit() int {
	if p.params.BulkBatchLimit <= 0 {
		return 100
	}
	return p.params.BulkBatchLimit
}

// ShardAcrossSynced splits ids into batches of at most BulkBatchLimit
// and assigns each batch a synced node round-robin, for bulk
// operations like find_messages/find_outputs (spec §4.4).
func (p *Pool) ShardAcrossSynced(ids []string) ([][]string, []*nodeclient.Client, error) {
	synced := p.synced()
	if len(synced) == 0 {
		return nil, nil, tangleerr.New(tangleerr.KindNoSyncedNodes, "no synced nodes available")
	}
	chunks := util.Chunk(ids, p.BulkBatchLimit())
	clients := make([]*nodeclient.Client, len(chunks))
	for i := range chunks {
		node := synced[i%len(synced)]
		clients[i] = p.clients[node.URL]
	}
	return chunks, clients, nil
}
