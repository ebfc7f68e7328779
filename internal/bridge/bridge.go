// Package bridge turns a synchronous caller into a publish/await-reply
// exchange against a plugin that listens on a command topic and responds
// on a paired response topic (spec.md §4.5), generalizing the teacher's
// single-purpose notes bridge to any plugin namespace.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/owulveryck/symbion-kernel/internal/bus"
	"github.com/owulveryck/symbion-kernel/internal/kernelerrors"
	"github.com/owulveryck/symbion-kernel/internal/observability"
)

// Response is the plugin-side reply shape from spec.md §6:
// `{type: success|error, request_id, action, data|error}`.
type Response struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Bridge owns the pending-request map described in spec.md §5(c): a
// short-hold mutex guards insert/remove only, never the awaited reply.
type Bridge struct {
	busClient bus.Client

	mu      sync.Mutex
	pending map[string]chan Response

	maxPending int
	timeout    time.Duration

	logger  *slog.Logger
	metrics *observability.MetricsManager
}

// New builds a Bridge. maxPending of 0 means unbounded (spec.md §4.5's
// "bounded only by memory" default; a configurable cap is optional).
func New(busClient bus.Client, timeout time.Duration, maxPending int, logger *slog.Logger, metrics *observability.MetricsManager) *Bridge {
	return &Bridge{
		busClient:  busClient,
		pending:    make(map[string]chan Response),
		maxPending: maxPending,
		timeout:    timeout,
		logger:     logger,
		metrics:    metrics,
	}
}

// SendCommand inserts a reply slot for requestID, publishes payload to
// topic, and awaits the slot with the bridge's fixed timeout. Callers are
// responsible for embedding requestID inside payload themselves — the
// bridge only correlates, it does not construct commands (spec.md §4.5).
//
// Only two of the three removal paths spec.md §4.5 allows are
// implemented: reply delivery and timeout. Caller cancellation through
// ctx is deliberately not wired to the reply wait — an HTTP client
// disconnecting must not cut short a command already in flight to a
// plugin (spec.md §5's cancellation-tolerance note); ctx only bounds the
// publish call itself.
func (b *Bridge) SendCommand(ctx context.Context, topic, requestID string, payload []byte) (Response, error) {
	ch := make(chan Response, 1)

	b.mu.Lock()
	if b.maxPending > 0 && len(b.pending) >= b.maxPending {
		b.mu.Unlock()
		return Response{}, kernelerrors.BusyContention("bridge pending request map at capacity")
	}
	b.pending[requestID] = ch
	pendingCount := len(b.pending)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.PendingRequestsGauge.Set(float64(pendingCount))
	}

	if err := b.busClient.Publish(ctx, topic, 1, payload); err != nil {
		b.remove(requestID)
		return Response{}, kernelerrors.BusUnavailable("publishing bridge command", err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		b.remove(requestID)
		return Response{}, kernelerrors.Timeout(fmt.Sprintf("no response for request %s within %s", requestID, b.timeout))
	}
}

// DeliverResponse is called by the bus listener for a plugin's response
// topic. It removes the pending entry before fulfilling it, so a slot is
// never fulfilled twice (spec.md §4.5's at-most-once guarantee). A
// response for an id with no pending entry — unknown, already timed out,
// or already delivered — is logged and discarded.
func (b *Bridge) DeliverResponse(resp Response) {
	b.mu.Lock()
	ch, ok := b.pending[resp.RequestID]
	if ok {
		delete(b.pending, resp.RequestID)
	}
	pendingCount := len(b.pending)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.PendingRequestsGauge.Set(float64(pendingCount))
	}

	if !ok {
		b.logger.Warn("bridge response for unknown or already-resolved request", "request_id", resp.RequestID, "action", resp.Action)
		return
	}

	select {
	case ch <- resp:
	default:
		// Caller's slot already timed out; the channel is buffered size 1
		// so this never blocks, and the send lands as a no-op.
	}
}

func (b *Bridge) remove(requestID string) {
	b.mu.Lock()
	delete(b.pending, requestID)
	pendingCount := len(b.pending)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.PendingRequestsGauge.Set(float64(pendingCount))
	}
}

// Pending reports the current pending-request count, for health
// snapshots (spec.md §4.6).
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
