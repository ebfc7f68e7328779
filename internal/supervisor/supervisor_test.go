package supervisor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeSleeperManifest drops an executable shell script that sleeps
// (a stand-in plugin binary) plus its manifest JSON into dir.
func writeSleeperManifest(t *testing.T, dir, name string, dependsOn []string, priority int32) {
	t.Helper()
	scriptName := name + ".sh"
	script := "#!/bin/sh\nexec sleep 30\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, scriptName), []byte(script), 0o755))

	manifest := Manifest{
		Name:                   name,
		Version:                "1.0.0",
		Binary:                 "./" + scriptName,
		Contracts:              []string{},
		AutoStart:              true,
		RestartOnFailure:       true,
		StartupTimeoutSeconds:  5,
		ShutdownTimeoutSeconds: 2,
		DependsOn:              dependsOn,
		StartPriority:          priority,
	}
	content, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), content, 0o644))
}

// writeFailingManifest drops a manifest whose binary exits immediately
// with a non-zero status, to exercise the circuit breaker.
func writeFailingManifest(t *testing.T, dir, name string) {
	t.Helper()
	scriptName := name + ".sh"
	script := "#!/bin/sh\nexit 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, scriptName), []byte(script), 0o755))

	manifest := Manifest{
		Name:                   name,
		Version:                "1.0.0",
		Binary:                 "./" + scriptName,
		Contracts:              []string{},
		RestartOnFailure:       true,
		StartupTimeoutSeconds:  5,
		ShutdownTimeoutSeconds: 2,
		StartPriority:          100,
	}
	content, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), content, 0o644))
}

func TestDiscoverSkipsInvalidManifestButLoadsRest(t *testing.T) {
	dir := t.TempDir()
	writeSleeperManifest(t, dir, "good", nil, 10)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("not json"), 0o644))

	m := NewManager(dir, "localhost", "1883", silentLogger(), nil)
	discovered, err := m.Discover()
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, discovered)
}

func TestDiscoverRejectsCyclicDependencies(t *testing.T) {
	dir := t.TempDir()
	writeSleeperManifest(t, dir, "a", []string{"b"}, 1)
	writeSleeperManifest(t, dir, "b", []string{"a"}, 1)

	m := NewManager(dir, "localhost", "1883", silentLogger(), nil)
	_, err := m.Discover()
	require.Error(t, err)
}

func TestAutoStartRespectsDependencyOrder(t *testing.T) {
	dir := t.TempDir()
	writeSleeperManifest(t, dir, "base", nil, 1)
	writeSleeperManifest(t, dir, "dependent", []string{"base"}, 2)

	m := NewManager(dir, "localhost", "1883", silentLogger(), nil)
	_, err := m.Discover()
	require.NoError(t, err)

	started, err := m.AutoStart()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"base", "dependent"}, started)

	infos := m.List()
	for _, info := range infos {
		assert.Equal(t, StatusRunning, info.Status)
	}

	m.ShutdownAll()
	for _, info := range m.List() {
		assert.Equal(t, StatusStopped, info.Status)
	}
}

func TestStartStopSinglePlugin(t *testing.T) {
	dir := t.TempDir()
	writeSleeperManifest(t, dir, "solo", nil, 1)

	m := NewManager(dir, "localhost", "1883", silentLogger(), nil)
	_, err := m.Discover()
	require.NoError(t, err)

	require.NoError(t, m.TryStartPlugin("solo"))
	infos := m.List()
	require.Len(t, infos, 1)
	assert.Equal(t, StatusRunning, infos[0].Status)
	assert.NotNil(t, infos[0].UptimeSeconds)

	require.NoError(t, m.TryStopPlugin("solo"))
	infos = m.List()
	assert.Equal(t, StatusStopped, infos[0].Status)
}

func TestStartUnknownPluginReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, "localhost", "1883", silentLogger(), nil)
	_, err := m.Discover()
	require.NoError(t, err)

	err = m.TryStartPlugin("ghost")
	require.Error(t, err)
}

func TestHealthCheckAllMarksFailedAndTracksCircuit(t *testing.T) {
	dir := t.TempDir()
	writeFailingManifest(t, dir, "flaky")

	m := NewManager(dir, "localhost", "1883", silentLogger(), nil)
	_, err := m.Discover()
	require.NoError(t, err)
	require.NoError(t, m.TryStartPlugin("flaky"))

	// Give the script time to exit.
	time.Sleep(50 * time.Millisecond)

	m.HealthCheckAll()
	debug, ok := m.DebugInfo("flaky")
	require.True(t, ok)
	assert.Equal(t, uint32(1), debug.RestartCount)
}

// TestHealthCheckAllRestartCooldownUsesActualAttemptTime guards against a
// regression where updateCircuitState stamped lastRestartAttempt on every
// failed health tick, rather than only at an actual restart attempt. That
// bug made the cooldown's elapsed time always ~0, so a plugin stuck in
// CircuitDegraded could never progress restart_count past the threshold
// that put it there (spec.md's Degraded tier requires >=60s between
// attempts, not between health-check observations).
func TestHealthCheckAllRestartCooldownUsesActualAttemptTime(t *testing.T) {
	dir := t.TempDir()
	writeFailingManifest(t, dir, "flaky")

	m := NewManager(dir, "localhost", "1883", silentLogger(), nil)
	_, err := m.Discover()
	require.NoError(t, err)

	m.mu.Lock()
	in := m.instances["flaky"]
	in.status = StatusFailed
	in.handle = nil
	in.restartCount = 3
	in.circuitState = CircuitDegraded
	recent := time.Now().UTC()
	in.lastRestartAttempt = &recent
	m.mu.Unlock()

	// A tick immediately after the last attempt must not be allowed to
	// restart: the 60s degraded cooldown has not elapsed.
	m.HealthCheckAll()
	debug, ok := m.DebugInfo("flaky")
	require.True(t, ok)
	assert.Equal(t, uint32(3), debug.RestartCount, "restart must stay gated inside the cooldown window")

	// Back-date the last attempt past the cooldown. If updateCircuitState
	// still re-stamped lastRestartAttempt on every failed tick, this would
	// be overwritten to "now" before canRestart ever saw it, and
	// restart_count would stay frozen at 3 forever.
	m.mu.Lock()
	longAgo := time.Now().UTC().Add(-2 * degradedCooldown)
	in.lastRestartAttempt = &longAgo
	in.status = StatusFailed
	in.handle = nil
	m.mu.Unlock()

	m.HealthCheckAll()
	debug, ok = m.DebugInfo("flaky")
	require.True(t, ok)
	assert.Equal(t, uint32(4), debug.RestartCount, "restart_count must progress once the cooldown has elapsed")
}

func TestResetCircuitClearsSafeMode(t *testing.T) {
	dir := t.TempDir()
	writeFailingManifest(t, dir, "flaky")

	m := NewManager(dir, "localhost", "1883", silentLogger(), nil)
	_, err := m.Discover()
	require.NoError(t, err)

	m.mu.Lock()
	in := m.instances["flaky"]
	in.status = StatusSafeMode
	in.circuitState = CircuitOpen
	in.restartCount = 10
	m.mu.Unlock()

	require.NoError(t, m.ResetCircuit("flaky"))
	debug, _ := m.DebugInfo("flaky")
	assert.Equal(t, StatusStopped, debug.Status)
	assert.Equal(t, CircuitNormal, debug.CircuitState)
	assert.Equal(t, uint32(0), debug.RestartCount)
}

func TestRunHealthMonitorStopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, "localhost", "1883", silentLogger(), nil)
	_, err := m.Discover()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunHealthMonitor(ctx, 10*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunHealthMonitor did not stop after context cancellation")
	}
}
