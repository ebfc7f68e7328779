// Package supervisor owns plugin subprocess lifecycle: discovery,
// dependency-ordered startup, liveness probing, circuit-breaker gated
// restart, rollback, and shutdown (spec.md §4.4).
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/owulveryck/symbion-kernel/internal/kernelerrors"
	"github.com/owulveryck/symbion-kernel/internal/observability"
)

// Manager is the single owner of every plugin instance. All state lives
// behind one mutex; HTTP handlers and other external callers use TryLock
// via the exported Try* methods (and ResetCircuit/ForceRollback) and
// surface BusyContention on contention rather than blocking (spec.md §5).
type Manager struct {
	mu         sync.Mutex
	instances  map[string]*instance
	pluginsDir string
	globalEnv  map[string]string

	logger  *slog.Logger
	metrics *observability.MetricsManager
}

func NewManager(pluginsDir, busBroker, busPort string, logger *slog.Logger, metrics *observability.MetricsManager) *Manager {
	return &Manager{
		instances:  make(map[string]*instance),
		pluginsDir: pluginsDir,
		globalEnv: map[string]string{
			"SYMBION_MQTT_HOST": busBroker,
			"SYMBION_MQTT_PORT": busPort,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// Discover scans the plugins directory, loads every manifest, and
// validates the whole dependency graph is acyclic before anything is
// started (spec.md §9's DAG-check redesign). A single bad manifest is
// skipped with a warning, not fatal.
func (m *Manager) Discover() ([]string, error) {
	manifests, skipped, err := discoverManifests(m.pluginsDir)
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		m.logger.Warn("skipping invalid plugin manifest", "detail", s)
	}

	dependsOn := make(map[string][]string, len(manifests))
	for name, manifest := range manifests {
		dependsOn[name] = manifest.DependsOn
	}
	if err := checkAcyclic(dependsOn); err != nil {
		return nil, kernelerrors.PluginStartFailure("plugin discovery", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var discovered []string
	for name, manifest := range manifests {
		m.instances[name] = newInstance(manifest, m.logger)
		discovered = append(discovered, name)
	}
	sort.Strings(discovered)
	m.logger.Info("plugins discovered", "count", len(discovered))
	return discovered, nil
}

// TryStartPlugin starts one plugin by name if the manager's mutex is free.
func (m *Manager) TryStartPlugin(name string) error {
	if !m.mu.TryLock() {
		return kernelerrors.BusyContention("plugin manager busy")
	}
	defer m.mu.Unlock()
	return m.startPluginLocked(name)
}

func (m *Manager) startPluginLocked(name string) error {
	in, ok := m.instances[name]
	if !ok {
		return kernelerrors.NotFound(fmt.Sprintf("plugin %s", name))
	}
	return in.start(m.globalEnv)
}

// TryStopPlugin stops one plugin by name if the manager's mutex is free.
func (m *Manager) TryStopPlugin(name string) error {
	if !m.mu.TryLock() {
		return kernelerrors.BusyContention("plugin manager busy")
	}
	defer m.mu.Unlock()
	return m.stopPluginLocked(name)
}

func (m *Manager) stopPluginLocked(name string) error {
	in, ok := m.instances[name]
	if !ok {
		return kernelerrors.NotFound(fmt.Sprintf("plugin %s", name))
	}
	return in.stop()
}

// TryRestartPlugin stops then restarts a plugin, incrementing its
// restart counter regardless of which half fails.
func (m *Manager) TryRestartPlugin(name string) error {
	if !m.mu.TryLock() {
		return kernelerrors.BusyContention("plugin manager busy")
	}
	defer m.mu.Unlock()
	return m.restartPluginLocked(name)
}

func (m *Manager) restartPluginLocked(name string) error {
	in, ok := m.instances[name]
	if !ok {
		return kernelerrors.NotFound(fmt.Sprintf("plugin %s", name))
	}
	if err := in.stop(); err != nil {
		m.logger.Warn("stop failed during restart", "plugin", name, "error", err)
	}
	time.Sleep(100 * time.Millisecond)
	in.recordRestartAttempt()
	return in.start(m.globalEnv)
}

// AutoStart starts every auto_start-flagged plugin in dependency order.
// A spawn failure during the batch is logged and marks that plugin
// Failed, but does not abort the rest of the batch (spec.md §4.4).
func (m *Manager) AutoStart() ([]string, error) {
	if !m.mu.TryLock() {
		return nil, kernelerrors.BusyContention("plugin manager busy")
	}
	defer m.mu.Unlock()

	var names []string
	for name, in := range m.instances {
		if in.manifest.AutoStart {
			names = append(names, name)
		}
	}
	return m.startOrderedLocked(names)
}

// startOrderedLocked implements spec.md §4.4's "Dependency-ordered
// startup": repeatedly select plugins whose dependencies are all
// Running, breaking ties by start_priority; a full pass with no progress
// fails the remaining batch and reports the unresolved set.
func (m *Manager) startOrderedLocked(names []string) ([]string, error) {
	manifests := make(map[string]Manifest, len(m.instances))
	for name, in := range m.instances {
		manifests[name] = in.manifest
	}

	var started []string
	remaining := append([]string(nil), names...)

	for len(remaining) > 0 {
		remaining = orderByPriority(remaining, manifests)
		progress := false
		next := remaining[:0]

		for _, name := range remaining {
			if m.canStartLocked(name) {
				if err := m.startPluginLocked(name); err != nil {
					m.logger.Warn("failed to start plugin", "plugin", name, "error", err)
					if in, ok := m.instances[name]; ok {
						in.status = StatusFailed
						in.failureReason = err.Error()
					}
				} else {
					started = append(started, name)
				}
				progress = true
				continue
			}
			if in, ok := m.instances[name]; ok {
				in.status = StatusWaitingDependencies
			}
			next = append(next, name)
		}
		remaining = next

		if !progress {
			return started, kernelerrors.PluginStartFailure("starting plugins", fmt.Errorf("circular or missing dependencies: %v", remaining))
		}
	}

	return started, nil
}

func (m *Manager) canStartLocked(name string) bool {
	in, ok := m.instances[name]
	if !ok {
		return false
	}
	for _, dep := range in.manifest.DependsOn {
		depInstance, ok := m.instances[dep]
		if !ok {
			m.logger.Warn("plugin depends on unknown plugin", "plugin", name, "depends_on", dep)
			return false
		}
		if depInstance.status != StatusRunning {
			return false
		}
	}
	return true
}

// ShutdownAll stops every Running or Starting plugin, ordered so no
// plugin is stopped while a still-active plugin names it as a
// dependency; cycles are force-stopped after the ordering makes no more
// progress (spec.md §4.4).
func (m *Manager) ShutdownAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var active []string
	for name, in := range m.instances {
		if in.status == StatusRunning || in.status == StatusStarting {
			active = append(active, name)
		}
	}

	m.logger.Info("shutting down all plugins", "count", len(active))
	stopped := m.stopOrderedLocked(active)
	m.logger.Info("shutdown complete", "stopped", len(stopped))
}

func (m *Manager) stopOrderedLocked(names []string) []string {
	var stopped []string
	remaining := append([]string(nil), names...)

	for len(remaining) > 0 {
		progress := false
		next := remaining[:0]

		for _, name := range remaining {
			if m.canStopLocked(name, remaining) {
				if err := m.stopPluginLocked(name); err != nil {
					m.logger.Warn("failed to stop plugin", "plugin", name, "error", err)
				} else {
					stopped = append(stopped, name)
				}
				progress = true
				continue
			}
			next = append(next, name)
		}
		remaining = next

		if !progress {
			m.logger.Warn("forcing stop of remaining plugins due to dependency cycle", "plugins", remaining)
			for _, name := range remaining {
				if err := m.stopPluginLocked(name); err != nil {
					m.logger.Warn("force stop failed", "plugin", name, "error", err)
					continue
				}
				stopped = append(stopped, name)
			}
			break
		}
	}

	return stopped
}

func (m *Manager) canStopLocked(name string, remaining []string) bool {
	for _, other := range remaining {
		if other == name {
			continue
		}
		in, ok := m.instances[other]
		if !ok {
			continue
		}
		for _, dep := range in.manifest.DependsOn {
			if dep == name {
				return false
			}
		}
	}
	return true
}

// HealthCheckAll is the liveness probe loop's single tick: poll every
// plugin, gate restarts and rollbacks through the circuit breaker, and
// schedule the chosen recoveries (spec.md §4.4 "Liveness probing").
func (m *Manager) HealthCheckAll() {
	if !m.mu.TryLock() {
		return
	}
	defer m.mu.Unlock()

	var toRestart, toRollback []string

	for name, in := range m.instances {
		// Only running children are probed, and only failed plugins are
		// candidates for restart; stopped, killed, waiting or safe-mode
		// plugins are left alone.
		if in.status != StatusRunning && in.status != StatusFailed {
			continue
		}
		if in.checkHealth() {
			continue
		}
		in.updateCircuitState()

		if !in.manifest.RestartOnFailure {
			m.logger.Info("plugin failed, restart disabled", "plugin", name)
			continue
		}
		if !in.canRestart() {
			m.logger.Info("plugin failed, circuit breaker prevents restart", "plugin", name)
			continue
		}

		switch in.circuitState {
		case CircuitNormal:
			toRestart = append(toRestart, name)
		case CircuitDegraded:
			if in.restartCount >= 3 && in.lastWorkingManifest != nil {
				toRollback = append(toRollback, name)
			} else {
				toRestart = append(toRestart, name)
			}
		case CircuitOpen:
			m.logger.Warn("plugin in safe mode, manual intervention required", "plugin", name)
		}
	}

	for _, name := range toRollback {
		in := m.instances[name]
		if err := in.attemptRollback(m.globalEnv); err != nil {
			in.status = StatusSafeMode
			in.circuitState = CircuitOpen
			if m.metrics != nil {
				m.metrics.PluginCircuitOpenTotal.WithLabelValues(name).Inc()
			}
		}
	}

	for _, name := range toRestart {
		if err := m.restartPluginLocked(name); err != nil {
			m.logger.Warn("restart failed", "plugin", name, "error", err)
		}
		if m.metrics != nil {
			m.metrics.PluginRestartsTotal.WithLabelValues(name).Inc()
		}
	}
}

// RunHealthMonitor ticks HealthCheckAll at the configured interval until
// ctx is cancelled (spec.md §4.4: every 30 seconds by default).
func (m *Manager) RunHealthMonitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.HealthCheckAll()
		}
	}
}

// MarkActivity records bus traffic for a plugin, used to populate
// last-activity in debug snapshots.
func (m *Manager) MarkActivity(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in, ok := m.instances[name]; ok {
		in.markActivity()
	}
}

// ResetCircuit clears a plugin's breaker state for manual recovery after
// SafeMode (spec.md §4.4 "SafeMode | operator resets breaker | Stopped").
func (m *Manager) ResetCircuit(name string) error {
	if !m.mu.TryLock() {
		return kernelerrors.BusyContention("plugin manager busy")
	}
	defer m.mu.Unlock()

	in, ok := m.instances[name]
	if !ok {
		return kernelerrors.NotFound(fmt.Sprintf("plugin %s", name))
	}
	in.circuitState = CircuitNormal
	in.restartCount = 0
	in.lastRestartAttempt = nil
	if in.status == StatusSafeMode {
		in.status = StatusStopped
	}
	m.logger.Info("circuit breaker reset", "plugin", name)
	return nil
}

// ForceRollback stops a running plugin if needed, resets its breaker, and
// attempts a rollback regardless of circuit state.
func (m *Manager) ForceRollback(name string) error {
	if !m.mu.TryLock() {
		return kernelerrors.BusyContention("plugin manager busy")
	}
	defer m.mu.Unlock()

	in, ok := m.instances[name]
	if !ok {
		return kernelerrors.NotFound(fmt.Sprintf("plugin %s", name))
	}
	if in.status == StatusRunning {
		_ = in.stop()
	}
	in.circuitState = CircuitNormal
	in.restartCount = 0
	return in.attemptRollback(m.globalEnv)
}

// Info is the public view of one plugin for the operator HTTP surface
// (spec.md §4.4 "Manual controls").
type Info struct {
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	Status        Status   `json:"status"`
	UptimeSeconds *int64   `json:"uptime_seconds,omitempty"`
	RestartCount  uint32   `json:"restart_count"`
	Contracts     []string `json:"contracts"`
}

// DebugInfo is the richer per-plugin view for diagnostics.
type DebugInfo struct {
	Name                  string       `json:"name"`
	Status                Status       `json:"status"`
	CircuitState          CircuitState `json:"circuit_state"`
	RestartCount          uint32       `json:"restart_count"`
	UptimeSeconds         *int64       `json:"uptime_seconds,omitempty"`
	LastActivityAgoSeconds *int64      `json:"last_activity_ago_seconds,omitempty"`
	HasRollbackAvailable  bool         `json:"has_rollback_available"`
	ManifestVersion       string       `json:"manifest_version"`
	RollbackVersion       *string      `json:"rollback_version,omitempty"`
}

func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.instances))
	for _, in := range m.instances {
		info := Info{
			Name:         in.manifest.Name,
			Version:      in.manifest.Version,
			Status:       in.status,
			RestartCount: in.restartCount,
			Contracts:    in.manifest.Contracts,
		}
		if in.startedAt != nil {
			uptime := int64(time.Since(*in.startedAt).Seconds())
			info.UptimeSeconds = &uptime
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Manager) DebugInfo(name string) (DebugInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.instances[name]
	if !ok {
		return DebugInfo{}, false
	}

	info := DebugInfo{
		Name:                 in.manifest.Name,
		Status:               in.status,
		CircuitState:         in.circuitState,
		RestartCount:         in.restartCount,
		HasRollbackAvailable: in.lastWorkingManifest != nil,
		ManifestVersion:      in.manifest.Version,
	}
	if in.startedAt != nil {
		uptime := int64(time.Since(*in.startedAt).Seconds())
		info.UptimeSeconds = &uptime
	}
	if in.lastActivity != nil {
		ago := int64(time.Since(*in.lastActivity).Seconds())
		info.LastActivityAgoSeconds = &ago
	}
	if in.lastWorkingManifest != nil {
		v := in.lastWorkingManifest.Version
		info.RollbackVersion = &v
	}
	return info, true
}

// Shutdown stops every active plugin. Callers should invoke this exactly
// once during kernel teardown.
func (m *Manager) Shutdown(_ context.Context) {
	m.ShutdownAll()
}
