package bus

import (
	"context"
	"sync"

	"github.com/owulveryck/symbion-kernel/internal/kernelerrors"
)

// FakeClient is an in-memory Client used by every other package's tests —
// the registry, supervisor, bridge, and httpapi packages never dial a real
// broker in tests. Published messages are recorded and looped back onto
// Incoming, whether or not a subscribed filter matches them, so
// handler-level tests can observe their own publishes.
type FakeClient struct {
	mu         sync.Mutex
	filters    []string
	published  []Message
	incoming   chan Message
	bufferCap  int
	reconnects uint64
	closed     bool
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		incoming:  make(chan Message, sendBufferCapacity),
		bufferCap: sendBufferCapacity,
	}
}

func (f *FakeClient) Publish(_ context.Context, topic string, _ byte, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return kernelerrors.BusUnavailable("fake bus closed", nil)
	}
	msg := Message{Topic: topic, Payload: payload}
	f.published = append(f.published, msg)
	select {
	case f.incoming <- msg:
	default:
		return kernelerrors.BusUnavailable("fake bus send buffer full", nil)
	}
	return nil
}

func (f *FakeClient) Subscribe(topicFilter string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, topicFilter)
	return nil
}

func (f *FakeClient) Incoming() <-chan Message {
	return f.incoming
}

func (f *FakeClient) Reconnects() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconnects
}

// SimulateReconnect lets a test assert that reconnect-dependent behavior
// (health snapshot counters) observes the bump.
func (f *FakeClient) SimulateReconnect() {
	f.mu.Lock()
	f.reconnects++
	f.mu.Unlock()
}

func (f *FakeClient) Close(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.incoming)
	}
	return nil
}

// Published returns every message handed to Publish so far, in call order.
func (f *FakeClient) Published() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.published))
	copy(out, f.published)
	return out
}

// Deliver injects a message as if it arrived from the broker, regardless of
// subscriptions — tests drive registry/bridge handlers directly this way.
func (f *FakeClient) Deliver(msg Message) {
	f.incoming <- msg
}
