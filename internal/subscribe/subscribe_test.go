package subscribe

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tangle-go/client/pkg/topic"
)

func TestValidateTopicAcceptsLiterals(t *testing.T) {
	for _, topic := range []string{"milestones/latest", "milestones/solid", "messages", "messages/referenced"} {
		if err := ValidateTopic(topic); err != nil {
			t.Errorf("expected %q to be valid, got %v", topic, err)
		}
	}
}

func TestValidateTopicAcceptsTemplates(t *testing.T) {
	cases := []string{
		"messages/aa11bb22aa11bb22aa11bb22aa11bb22aa11bb22aa11bb22aa11bb22aa11bb22/metadata",
		"outputs/abc123",
		"addresses/ed2abcdef0011/outputs",
		"messages/indexation/TEST",
	}
	for _, topic := range cases {
		if err := ValidateTopic(topic); err != nil {
			t.Errorf("expected %q to be valid, got %v", topic, err)
		}
	}
}

func TestValidateTopicRejectsUnknown(t *testing.T) {
	for _, topic := range []string{"", "bogus", "milestones", "messages/bogus/path"} {
		if err := ValidateTopic(topic); err == nil {
			t.Errorf("expected %q to be rejected", topic)
		}
	}
}

// The tests below exercise dispatch/closeSubscription directly against a
// bare subscription, the same machinery Subscribe/Unsubscribe drive in
// production, without opening a real broker connection. A full
// reconnect-resubscribe test would need a live (or faked) MQTT broker;
// paho's mqtt.Client interface has no lightweight in-pack fake, so that
// path is left to integration testing against a real node.

func newTestSubscription() *subscription {
	sub := &subscription{fanout: topic.NewTopic[event]()}
	sub.sub = sub.fanout.Sub()
	return sub
}

func TestDispatchInvokesCallbacksInRegistrationOrder(t *testing.T) {
	sub := newTestSubscription()
	go dispatch("messages", sub)

	var mu sync.Mutex
	var order []int
	record := func(n int) Callback {
		return func(_ string, _ []byte) {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
		}
	}
	sub.mu.Lock()
	sub.cbs = append(sub.cbs, record(1), record(2), record(3))
	sub.mu.Unlock()

	sub.fanout.Pub(event{payload: []byte("x")})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestDispatchDeliversPayloadToEveryCallback(t *testing.T) {
	sub := newTestSubscription()
	go dispatch("messages", sub)

	var mu sync.Mutex
	var received []string
	cb := func(_ string, payload []byte) {
		mu.Lock()
		received = append(received, string(payload))
		mu.Unlock()
	}
	sub.mu.Lock()
	sub.cbs = append(sub.cbs, cb, cb)
	sub.mu.Unlock()

	sub.fanout.Pub(event{payload: []byte("hello")})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"hello", "hello"}, received)
}

func TestCloseSubscriptionStopsDispatch(t *testing.T) {
	sub := newTestSubscription()
	done := make(chan struct{})
	go func() {
		dispatch("messages", sub)
		close(done)
	}()

	closeSubscription(sub)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch goroutine did not exit after closeSubscription")
	}
}

func TestUnsubscribeRemovesTopicBookkeeping(t *testing.T) {
	m := &Multiplexer{subs: make(map[string]*subscription), stop: make(chan struct{})}
	sub := newTestSubscription()
	go dispatch("messages", sub)
	m.subs["messages"] = sub

	// Removing the map entry and closing the subscription is the part of
	// Unsubscribe that doesn't require a live broker; brokerUnsubscribe
	// itself is exercised only against a real MQTT session.
	m.mu.Lock()
	delete(m.subs, "messages")
	m.mu.Unlock()
	closeSubscription(sub)

	require.NotContains(t, m.subs, "messages")
}
