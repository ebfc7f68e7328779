// Package bus maintains the kernel's single long-lived connection to the
// pub/sub broker: the bus client from SPEC_FULL.md §4.1. Every other
// component — the agent registry, the plugin supervisor's health topic,
// the request/response bridge, the health-snapshot publisher — shares one
// Client handle for the life of the process.
package bus

import "context"

// Message is one (topic, payload) pair delivered in broker order.
type Message struct {
	Topic   string
	Payload []byte
}

// Client is the bus client's narrow interface. Implementations own exactly
// one broker session; publish and subscribe are safe for concurrent use by
// every holder without external locking (spec.md §5, "bus client handle").
type Client interface {
	// Publish enqueues payload for delivery on topic at the given QoS.
	// It is non-blocking: a full internal send buffer returns a
	// BusUnavailable-kind error ("backpressure") rather than blocking the
	// caller.
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error

	// Subscribe registers topicFilter for delivery through Incoming. It
	// is durable for the life of the session: a reconnect re-subscribes
	// to every filter registered so far.
	Subscribe(topicFilter string) error

	// Incoming returns the channel of delivered messages, in per-topic
	// broker order. The channel is closed when Close is called.
	Incoming() <-chan Message

	// Reconnects returns the number of times the client has successfully
	// re-established its broker session since process start, observed by
	// the health snapshot.
	Reconnects() uint64

	// Close tears down the broker session and stops the reconnect loop.
	Close(ctx context.Context) error
}
