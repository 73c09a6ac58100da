// Package subscribe is the MQTT subscription multiplexer (spec §4.7):
// one broker session shared by every caller-registered topic callback,
// a dedicated per-topic dispatcher so callback execution never stalls
// the MQTT reader, and reconnect-with-backoff that re-issues every
// active SUBSCRIBE. The broker-decoupling handoff is adapted from the
// teacher's pkg/topic.Topic[T]/Sub[T] pub-sub primitive: each topic
// gets a single Sub, and the one goroutine reading it runs every
// callback registered on that topic synchronously, in the order they
// were registered, so a single event's callbacks never race each
// other across goroutines.
package subscribe

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/tangle-go/client/internal/nodepool"
	"github.com/tangle-go/client/pkg/tangleerr"
	"github.com/tangle-go/client/pkg/topic"
)

// Callback receives the raw payload bytes of a broker message on its
// topic; the multiplexer does not decode them. The multiplexer invokes
// it on its dispatcher pool, never on the MQTT reader goroutine.
type Callback func(topic string, payload []byte)

var templatedTopics = []*regexp.Regexp{
	regexp.MustCompile(`^messages/[0-9a-fA-F]{64}/metadata$`),
	regexp.MustCompile(`^outputs/[0-9a-zA-Z]+$`),
	regexp.MustCompile(`^addresses/[0-9a-zA-Z]+/outputs$`),
	regexp.MustCompile(`^messages/indexation/.+$`),
}

var literalTopics = map[string]bool{
	"milestones/latest":   true,
	"milestones/solid":    true,
	"messages":            true,
	"messages/referenced": true,
}

// ValidateTopic checks topic against the grammar spec §4.7 names.
func ValidateTopic(topic string) error {
	if literalTopics[topic] {
		return nil
	}
	for _, re := range templatedTopics {
		if re.MatchString(topic) {
			return nil
		}
	}
	return tangleerr.New(tangleerr.KindInvalidTopic, "topic %q does not match any recognized grammar", topic)
}

// event is what one broker message becomes once it reaches a topic's
// fan-out; callbacks run off a Sub[event].C read loop, never on the
// MQTT reader goroutine, which is the worker-pool dispatch spec §4.7
// requires.
type event struct {
	payload []byte
}

// subscription is one MQTT topic's local fan-out: a single Sub backing
// a single dispatcher goroutine, which runs every callback registered
// for this topic synchronously and in registration order for each
// incoming event.
type subscription struct {
	fanout *topic.Topic[event]
	sub    *topic.Sub[event]

	mu  sync.Mutex
	cbs []Callback
}

// Multiplexer owns one MQTT session and every active topic subscription.
type Multiplexer struct {
	pool       *nodepool.Pool
	maxBackoff time.Duration

	mu   sync.Mutex
	subs map[string]*subscription

	client mqtt.Client
	stop   chan struct{}
}

// New builds a Multiplexer and connects to one currently-synced node
// from pool. This is the first point subscriptions genuinely need a
// live broker, so it activates the pool's MQTT-reachability admission
// check (spec §4.4 check 5) before selecting a node to dial.
func New(ctx context.Context, pool *nodepool.Pool) (*Multiplexer, error) {
	pool.ActivateSubscriptions(ctx)
	m := &Multiplexer{
		pool:       pool,
		maxBackoff: 30 * time.Second,
		subs:       make(map[string]*subscription),
		stop:       make(chan struct{}),
	}
	if err := m.connect(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// connect selects a synced node, opens an MQTT session to its host, and
// re-issues SUBSCRIBE for every active topic. Backoff between attempts
// lives in onConnectionLost.
func (m *Multiplexer) connect(ctx context.Context) error {
	node, _, err := m.pool.Select()
	if err != nil {
		return err
	}
	port := node.MqttPort
	if port == 0 {
		port = 1883
	}
	host := node.URL
	if u, err := url.Parse(node.URL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", host, port)).
		SetClientID(uuid.NewString()).
		SetAutoReconnect(false).
		SetConnectionLostHandler(m.onConnectionLost)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return tangleerr.New(tangleerr.KindBrokerUnreachable, "mqtt connect timed out against %s", node.URL)
	}
	if err := token.Error(); err != nil {
		return tangleerr.Wrap(tangleerr.KindBrokerUnreachable, err, "mqtt connect failed against %s", node.URL)
	}
	m.mu.Lock()
	m.client = client
	topicNames := make([]string, 0, len(m.subs))
	for topicName := range m.subs {
		topicNames = append(topicNames, topicName)
	}
	m.mu.Unlock()
	for _, topicName := range topicNames {
		if err := m.brokerSubscribe(topicName); err != nil {
			return err
		}
	}
	return nil
}

// onConnectionLost reconnects with exponential backoff capped at 30s;
// on repeated failure it re-selects a node via the pool before trying
// again (spec §4.7).
func (m *Multiplexer) onConnectionLost(_ mqtt.Client, err error) {
	backoff := time.Second
	for {
		select {
		case <-m.stop:
			return
		case <-time.After(backoff):
		}
		if reconnectErr := m.connect(context.Background()); reconnectErr == nil {
			return
		}
		if backoff < m.maxBackoff {
			backoff *= 2
			if backoff > m.maxBackoff {
				backoff = m.maxBackoff
			}
		}
	}
}

func (m *Multiplexer) brokerSubscribe(topicName string) error {
	token := m.client.Subscribe(topicName, 1, func(_ mqtt.Client, msg mqtt.Message) {
		m.onMessage(topicName, msg.Payload())
	})
	token.Wait()
	return token.Error()
}

func (m *Multiplexer) brokerUnsubscribe(topicName string) error {
	token := m.client.Unsubscribe(topicName)
	token.Wait()
	return token.Error()
}

// onMessage publishes payload to topicName's dispatcher, which runs
// every registered callback for it in order, never on this MQTT reader.
func (m *Multiplexer) onMessage(topicName string, payload []byte) {
	m.mu.Lock()
	sub, ok := m.subs[topicName]
	m.mu.Unlock()
	if !ok {
		return
	}
	sub.fanout.Pub(event{payload: payload})
}

// Subscribe validates topic, registers callback on its topic's shared
// dispatcher, and issues a broker SUBSCRIBE only for the first
// subscriber on that topic.
func (m *Multiplexer) Subscribe(topicName string, cb Callback) error {
	if err := ValidateTopic(topicName); err != nil {
		return err
	}
	m.mu.Lock()
	sub, exists := m.subs[topicName]
	if !exists {
		sub = &subscription{fanout: topic.NewTopic[event]()}
		sub.sub = sub.fanout.Sub()
		m.subs[topicName] = sub
		go dispatch(topicName, sub)
	}
	sub.mu.Lock()
	sub.cbs = append(sub.cbs, cb)
	sub.mu.Unlock()
	needsSubscribe := !exists
	m.mu.Unlock()

	if needsSubscribe {
		return m.brokerSubscribe(topicName)
	}
	return nil
}

// dispatch is the one goroutine that ever runs callbacks for topicName:
// for each event it runs every currently-registered callback in the
// order Subscribe added them, so concurrent subscribers never race for
// delivery order on a single event.
func dispatch(topicName string, sub *subscription) {
	for ev := range sub.sub.C {
		sub.mu.Lock()
		cbs := append([]Callback(nil), sub.cbs...)
		sub.mu.Unlock()
		for _, cb := range cbs {
			cb(topicName, ev.payload)
		}
	}
}

// closeSubscription closes sub's Sub. A Sub.Close only completes once a
// Pub issued after its close request notices that request, so Close
// runs on its own goroutine and unblocking Pubs go out until it returns.
func closeSubscription(sub *subscription) {
	done := make(chan struct{})
	go func() {
		sub.sub.Close()
		close(done)
	}()
	for {
		sub.fanout.Pub(event{})
		select {
		case <-done:
			return
		case <-time.After(time.Millisecond):
		}
	}
}

// Unsubscribe closes every registered Sub for topic (all topics if
// topic is empty), issuing a broker UNSUBSCRIBE as each topic's last
// subscriber leaves.
func (m *Multiplexer) Unsubscribe(topicName string) error {
	m.mu.Lock()
	if topicName == "" {
		removed := make(map[string]*subscription, len(m.subs))
		for t, sub := range m.subs {
			removed[t] = sub
		}
		m.subs = make(map[string]*subscription)
		m.mu.Unlock()
		var firstErr error
		for t, sub := range removed {
			closeSubscription(sub)
			if err := m.brokerUnsubscribe(t); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	sub, ok := m.subs[topicName]
	delete(m.subs, topicName)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	closeSubscription(sub)
	return m.brokerUnsubscribe(topicName)
}

// Close disconnects the broker session and closes every active Sub.
func (m *Multiplexer) Close() {
	close(m.stop)
	m.mu.Lock()
	client := m.client
	subs := m.subs
	m.subs = make(map[string]*subscription)
	m.mu.Unlock()
	for _, sub := range subs {
		closeSubscription(sub)
	}
	if client != nil {
		client.Disconnect(250)
	}
}
