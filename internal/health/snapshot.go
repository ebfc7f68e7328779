// Package health assembles the kernel-wide health snapshot and publishes
// it on a fixed cadence (spec.md §4.6), generalizing the teacher's
// single-purpose mqtt/hosts HealthTracker into one that also reports on
// the contract catalog, agent registry, and plugin supervisor.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/owulveryck/symbion-kernel/internal/agentregistry"
	"github.com/owulveryck/symbion-kernel/internal/bridge"
	"github.com/owulveryck/symbion-kernel/internal/bus"
	"github.com/owulveryck/symbion-kernel/internal/contracts"
	"github.com/owulveryck/symbion-kernel/internal/supervisor"
)

// Snapshot is the record published on PFX/kernel/health@v1 and served by
// GET /system/health (spec.md §4.6).
type Snapshot struct {
	UptimeSeconds      int64   `json:"uptime_seconds"`
	ContractsLoaded    int     `json:"contracts_loaded"`
	AgentsTracked      int     `json:"agents_tracked"`
	PluginsTotal       int     `json:"plugins_total"`
	PluginsRunning     int     `json:"plugins_running"`
	PluginsFailed      int     `json:"plugins_failed"`
	MemoryUsageMB      float64 `json:"memory_usage_mb,omitempty"`
	MemoryKnown        bool    `json:"-"`
	BusStatus          string  `json:"bus_status"`
	BusReconnects      uint64  `json:"bus_reconnects"`
	BusMessagesPerMin  int64   `json:"bus_messages_last_60s"`
	BusMessagesTotal   int64   `json:"bus_messages_total"`
	PendingBridgeSlots int     `json:"pending_bridge_requests"`
	Timestamp          string  `json:"timestamp"`
}

// messageCounter tracks bus traffic for the rolling 60-second rate and
// lifetime total the snapshot reports (spec.md §4.6 "bus message rate").
type messageCounter struct {
	mu      sync.Mutex
	total   int64
	window  []time.Time
	busConn bus.Client
}

func newMessageCounter(busConn bus.Client) *messageCounter {
	return &messageCounter{busConn: busConn}
}

func (c *messageCounter) record() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	c.window = append(c.window, now)
	cutoff := now.Add(-60 * time.Second)
	i := 0
	for i < len(c.window) && c.window[i].Before(cutoff) {
		i++
	}
	c.window = c.window[i:]
}

func (c *messageCounter) snapshot() (total, lastMinute int64) {
	cutoff := time.Now().Add(-60 * time.Second)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ts := range c.window {
		if !ts.Before(cutoff) {
			lastMinute++
		}
	}
	return c.total, lastMinute
}

// Tracker owns the kernel's start time and message-rate bookkeeping and
// knows how to assemble a Snapshot from the other components.
type Tracker struct {
	startTime time.Time
	counter   *messageCounter

	busConn    bus.Client
	catalog    *contracts.Catalog
	registry   *agentregistry.Registry
	supervisor *supervisor.Manager
	bridge     *bridge.Bridge

	logger *slog.Logger
}

func NewTracker(busConn bus.Client, catalog *contracts.Catalog, registry *agentregistry.Registry, sup *supervisor.Manager, br *bridge.Bridge, logger *slog.Logger) *Tracker {
	return &Tracker{
		startTime:  time.Now(),
		counter:    newMessageCounter(busConn),
		busConn:    busConn,
		catalog:    catalog,
		registry:   registry,
		supervisor: sup,
		bridge:     br,
		logger:     logger,
	}
}

// RecordMessage should be called by the bus listener for every inbound
// message, so the snapshot's rate figures reflect real traffic.
func (t *Tracker) RecordMessage() {
	t.counter.record()
}

// Snapshot assembles the current health record.
func (t *Tracker) Snapshot() Snapshot {
	total, lastMinute := t.counter.snapshot()

	pluginsTotal, pluginsRunning, pluginsFailed := 0, 0, 0
	for _, info := range t.supervisor.List() {
		pluginsTotal++
		switch info.Status {
		case supervisor.StatusRunning:
			pluginsRunning++
		case supervisor.StatusFailed, supervisor.StatusSafeMode:
			pluginsFailed++
		}
	}

	memMB, memKnown := residentMemoryMB()

	busStatus := "connected"
	reconnects := t.busConn.Reconnects()
	if reconnects > 0 {
		busStatus = "reconnected"
	}

	return Snapshot{
		UptimeSeconds:      int64(time.Since(t.startTime).Seconds()),
		ContractsLoaded:    len(t.catalog.List()),
		AgentsTracked:      len(t.registry.List()),
		PluginsTotal:       pluginsTotal,
		PluginsRunning:     pluginsRunning,
		PluginsFailed:      pluginsFailed,
		MemoryUsageMB:      memMB,
		MemoryKnown:        memKnown,
		BusStatus:          busStatus,
		BusReconnects:      reconnects,
		BusMessagesPerMin:  lastMinute,
		BusMessagesTotal:   total,
		PendingBridgeSlots: t.bridge.Pending(),
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
	}
}

// Publish marshals and publishes one snapshot to the health topic.
func (t *Tracker) Publish(ctx context.Context, topicPrefix string) error {
	snap := t.Snapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling health snapshot: %w", err)
	}
	topic := fmt.Sprintf("%s/kernel/health@v1", topicPrefix)
	if err := t.busConn.Publish(ctx, topic, 0, payload); err != nil {
		t.logger.Warn("failed to publish health snapshot", "error", err)
		return err
	}
	t.logger.Info("published kernel health", "uptime_seconds", snap.UptimeSeconds, "agents_tracked", snap.AgentsTracked)
	return nil
}

// Run publishes a snapshot every interval until ctx is cancelled
// (spec.md §4.6's fixed 30s cadence).
func (t *Tracker) Run(ctx context.Context, topicPrefix string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = t.Publish(ctx, topicPrefix)
		}
	}
}
