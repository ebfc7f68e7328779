package health

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owulveryck/symbion-kernel/internal/agentregistry"
	"github.com/owulveryck/symbion-kernel/internal/bridge"
	"github.com/owulveryck/symbion-kernel/internal/bus"
	"github.com/owulveryck/symbion-kernel/internal/contracts"
	"github.com/owulveryck/symbion-kernel/internal/supervisor"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTracker(t *testing.T) (*Tracker, bus.Client) {
	t.Helper()
	fake := bus.NewFakeClient()
	catalog, err := contracts.LoadFromDir(t.TempDir(), silentLogger())
	require.NoError(t, err)
	registry := agentregistry.New(filepath.Join(t.TempDir(), "agents.json"), silentLogger(), nil)
	sup := supervisor.NewManager(t.TempDir(), "localhost", "1883", silentLogger(), nil)
	_, err = sup.Discover()
	require.NoError(t, err)
	br := bridge.New(fake, 5*time.Second, 0, silentLogger(), nil)

	return NewTracker(fake, catalog, registry, sup, br, silentLogger()), fake
}

func TestSnapshotReflectsEmptyState(t *testing.T) {
	tracker, _ := newTestTracker(t)
	snap := tracker.Snapshot()

	assert.Equal(t, 0, snap.ContractsLoaded)
	assert.Equal(t, 0, snap.AgentsTracked)
	assert.Equal(t, 0, snap.PluginsTotal)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, int64(0))
}

func TestRecordMessageAffectsRate(t *testing.T) {
	tracker, _ := newTestTracker(t)
	for i := 0; i < 5; i++ {
		tracker.RecordMessage()
	}
	snap := tracker.Snapshot()
	assert.EqualValues(t, 5, snap.BusMessagesTotal)
	assert.EqualValues(t, 5, snap.BusMessagesPerMin)
}

func TestPublishSendsToHealthTopic(t *testing.T) {
	tracker, fake := newTestTracker(t)
	require.NoError(t, tracker.Publish(context.Background(), "symbion"))

	fc := fake.(*bus.FakeClient)
	published := fc.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "symbion/kernel/health@v1", published[0].Topic)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		tracker.Run(ctx, "symbion", 10*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
