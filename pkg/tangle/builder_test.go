package tangle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tangle-go/client/internal/testutil/mocknode"
	"github.com/tangle-go/client/pkg/core"
)

func TestBuildRejectsNoNodeSource(t *testing.T) {
	_, err := NewBuilder().Build()
	require.Error(t, err)
}

func TestBuildRejectsNonPositiveTimeout(t *testing.T) {
	_, err := NewBuilder().Node("http://example.invalid").GetInfoTimeout(0).Build()
	require.Error(t, err)
}

func TestBuildSucceedsAndQueriesBalance(t *testing.T) {
	node := mocknode.New(core.Mainnet)
	defer node.Close()

	client, err := NewBuilder().Network(core.Mainnet).Node(node.URL()).Build()
	require.NoError(t, err)
	defer client.Close()

	seed, err := core.NewSeedFromBytes(make([]byte, 32))
	require.NoError(t, err)
	balance, err := client.GetBalance(context.Background(), seed, core.WalletChainPath(0, 0))
	require.NoError(t, err)
	require.Equal(t, uint64(0), balance)
}

// TestUnsubscribeWithoutSubscribeIsNoop exercises spec §8's round-trip
// property directly: unsubscribing a topic that was never subscribed
// must succeed trivially, without ever dialing the broker. The node
// configured here has subscriptions disabled at the pool level (no
// MQTT listener is even reachable), so if Unsubscribe reached
// c.multiplexer it would fail or hang rather than return nil.
func TestUnsubscribeWithoutSubscribeIsNoop(t *testing.T) {
	node := mocknode.New(core.Mainnet)
	defer node.Close()

	client, err := NewBuilder().Network(core.Mainnet).Node(node.URL()).Build()
	require.NoError(t, err)
	defer client.Close()

	err = client.Unsubscribe(context.Background(), "messages")
	require.NoError(t, err)

	client.subMu.Lock()
	mux := client.sub
	client.subMu.Unlock()
	require.Nil(t, mux, "Unsubscribe without a prior Subscribe must never establish the MQTT session")
}
