package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owulveryck/symbion-kernel/internal/bus"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendCommandReceivesReply(t *testing.T) {
	fake := bus.NewFakeClient()
	b := New(fake, time.Second, 0, silentLogger(), nil)

	go func() {
		// Simulate the plugin answering almost immediately.
		time.Sleep(5 * time.Millisecond)
		b.DeliverResponse(Response{Type: "success", RequestID: "req-1", Action: "list", Data: json.RawMessage(`{"ok":true}`)})
	}()

	resp, err := b.SendCommand(context.Background(), "symbion/notes/command@v1", "req-1", []byte(`{"action":"list","request_id":"req-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Type)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Zero(t, b.Pending())
}

func TestSendCommandTimesOutAndCleansUp(t *testing.T) {
	fake := bus.NewFakeClient()
	b := New(fake, 20*time.Millisecond, 0, silentLogger(), nil)

	_, err := b.SendCommand(context.Background(), "symbion/notes/command@v1", "req-timeout", []byte(`{}`))
	require.Error(t, err)
	assert.Zero(t, b.Pending())
}

func TestDeliverResponseForUnknownRequestIsDiscarded(t *testing.T) {
	fake := bus.NewFakeClient()
	b := New(fake, time.Second, 0, silentLogger(), nil)

	b.DeliverResponse(Response{Type: "success", RequestID: "ghost"})
	assert.Zero(t, b.Pending())
}

func TestSendCommandRespectsMaxPending(t *testing.T) {
	fake := bus.NewFakeClient()
	b := New(fake, time.Second, 1, silentLogger(), nil)

	b.mu.Lock()
	b.pending["already-in-flight"] = make(chan Response, 1)
	b.mu.Unlock()

	_, err := b.SendCommand(context.Background(), "symbion/notes/command@v1", "req-2", []byte(`{}`))
	require.Error(t, err)
}

func TestDeliverResponseDoesNotFulfillTwice(t *testing.T) {
	fake := bus.NewFakeClient()
	b := New(fake, time.Second, 0, silentLogger(), nil)

	go func() {
		time.Sleep(5 * time.Millisecond)
		b.DeliverResponse(Response{Type: "success", RequestID: "req-3"})
		// Second delivery for the same id must be a no-op, not a panic or
		// double-fulfillment.
		b.DeliverResponse(Response{Type: "success", RequestID: "req-3"})
	}()

	_, err := b.SendCommand(context.Background(), "t", "req-3", []byte(`{}`))
	require.NoError(t, err)
}
