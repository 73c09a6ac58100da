package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tangle-go/client/internal/nodepool"
	"github.com/tangle-go/client/internal/testutil/mocknode"
	"github.com/tangle-go/client/pkg/codec"
	"github.com/tangle-go/client/pkg/core"
)

func newTestController(t *testing.T, node *mocknode.Server) *Controller {
	params := nodepool.DefaultParams(core.Mainnet)
	params.SyncInterval = time.Hour
	params.GetInfoTimeout = time.Second
	pool, err := nodepool.New(params, []string{node.URL()})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return New(pool, core.DefaultParams())
}

func sampleMessageId(b byte) core.MessageId {
	id, _ := core.NewMessageIdFromBytes(append([]byte{b}, make([]byte, 31)...))
	return id
}

func TestRetryAlreadyConfirmed(t *testing.T) {
	node := mocknode.New(core.Mainnet)
	defer node.Close()
	ctl := newTestController(t, node)

	id := sampleMessageId(0x01)
	index := uint32(5)
	node.SetMetadata(id, mocknode.MessageMetadata{ReferencedByMilestone: &index})

	_, err := ctl.Retry(context.Background(), id)
	require.Error(t, err)
}

func TestRetryNoActionNeeded(t *testing.T) {
	node := mocknode.New(core.Mainnet)
	defer node.Close()
	ctl := newTestController(t, node)

	id := sampleMessageId(0x02)
	node.SetMetadata(id, mocknode.MessageMetadata{})

	result, err := ctl.Retry(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, ActionNoneNeeded, result.Action)
}

// TestRetryReattachesWhenUnconfirmed exercises spec §8 scenario 4.
func TestRetryReattachesWhenUnconfirmed(t *testing.T) {
	node := mocknode.New(core.Mainnet)
	defer node.Close()

	indexation := core.Indexation{Index: "X", Data: []byte{0x9}}
	original := core.Message{Payload: core.IndexationPayload(&indexation)}
	id := sampleMessageId(0x03)
	node.SetMessage(id, codec.EncodeMessage(original))
	node.SetMetadata(id, mocknode.MessageMetadata{ShouldReattach: true})
	tip1, tip2 := sampleMessageId(0xa1), sampleMessageId(0xa2)
	node.Tip1, node.Tip2 = tip1, tip2

	ctl := newTestController(t, node)
	result, err := ctl.Retry(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, ActionReattached, result.Action)
	require.Equal(t, tip1, result.Message.Parent1)
	require.Equal(t, tip2, result.Message.Parent2)
	require.Equal(t, []core.MessageId{result.NewId}, ctl.Chain().Descendants(id))
}

// TestRetryPromotesWhenRequired exercises spec §8 scenario 5.
func TestRetryPromotesWhenRequired(t *testing.T) {
	node := mocknode.New(core.Mainnet)
	defer node.Close()

	id := sampleMessageId(0x04)
	node.SetMetadata(id, mocknode.MessageMetadata{ShouldPromote: true})
	tip := sampleMessageId(0xb1)
	node.Tip1, node.Tip2 = sampleMessageId(0x00), tip

	ctl := newTestController(t, node)
	result, err := ctl.Retry(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, ActionPromoted, result.Action)
	require.Equal(t, id, result.Message.Parent1)
	require.NotNil(t, result.Message.Payload.Indexation)
	require.Equal(t, "PROMOTE", result.Message.Payload.Indexation.Index)
}
