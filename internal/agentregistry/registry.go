package agentregistry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/owulveryck/symbion-kernel/internal/observability"
)

// Registry holds every known agent in memory plus a durable JSON snapshot
// on disk. The map is protected by a read/write lock (readers: HTTP
// handlers and the sweeper's scan phase; writer: the message handler and
// the sweeper's commit phase, spec.md §5); file writes are serialized by a
// separate mutex so registration and sweeper saves never interleave.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent

	fileMu   sync.Mutex
	dataFile string

	logger  *slog.Logger
	metrics *observability.MetricsManager
}

// New constructs an empty registry backed by dataFile. Call Load to recover
// a prior snapshot before serving traffic.
func New(dataFile string, logger *slog.Logger, metrics *observability.MetricsManager) *Registry {
	return &Registry{
		agents:   make(map[string]Agent),
		dataFile: dataFile,
		logger:   logger,
		metrics:  metrics,
	}
}

// Load recovers the agent map from the snapshot file. A missing file is a
// normal cold start, not an error.
func (r *Registry) Load() error {
	content, err := os.ReadFile(r.dataFile)
	if os.IsNotExist(err) {
		r.logger.Info("no existing agent snapshot, starting fresh", "path", r.dataFile)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading agent snapshot %s: %w", r.dataFile, err)
	}

	var agents map[string]Agent
	if err := json.Unmarshal(content, &agents); err != nil {
		return fmt.Errorf("parsing agent snapshot %s: %w", r.dataFile, err)
	}

	r.mu.Lock()
	r.agents = agents
	r.mu.Unlock()

	r.logger.Info("loaded agent snapshot", "count", len(agents), "path", r.dataFile)
	r.setGaugeLocked()
	return nil
}

// save rewrites the snapshot file whole. Callers must not hold r.mu while
// calling this — it takes its own read lock to copy the map.
func (r *Registry) save() error {
	r.mu.RLock()
	snapshot := make(map[string]Agent, len(r.agents))
	for k, v := range r.agents {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	content, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling agent snapshot: %w", err)
	}

	r.fileMu.Lock()
	defer r.fileMu.Unlock()

	if dir := filepath.Dir(r.dataFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating data dir %s: %w", dir, err)
		}
	}
	tmp := r.dataFile + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("writing agent snapshot: %w", err)
	}
	return os.Rename(tmp, r.dataFile)
}

// HandleRegistration creates or fully replaces the agent record, preserving
// the original registration time if one already existed (spec.md §4.3),
// then writes the snapshot through.
func (r *Registry) HandleRegistration(msg RegistrationMessage) error {
	now := time.Now().UTC()

	r.mu.Lock()
	registrationTime := now
	if existing, ok := r.agents[msg.AgentID]; ok {
		registrationTime = existing.RegistrationTime
	}

	agent := Agent{
		AgentID:      msg.AgentID,
		Hostname:     msg.Hostname,
		OS:           msg.OS,
		Architecture: msg.Architecture,
		Capabilities: msg.Capabilities,
		Network:      msg.Network,
		Version:      msg.Version,
		Status: AgentStatus{
			Status:        "online",
			LastHeartbeat: &now,
		},
		LastSeen:         now,
		RegistrationTime: registrationTime,
	}
	r.agents[msg.AgentID] = agent
	r.mu.Unlock()
	r.setGaugeLocked()

	r.logger.Info("agent registered", "agent_id", msg.AgentID, "hostname", msg.Hostname)

	if err := r.save(); err != nil {
		r.logger.Error("failed to save agent snapshot after registration", "agent_id", msg.AgentID, "error", err)
		return err
	}
	return nil
}

// HandleHeartbeat refreshes status and telemetry for a known agent.
// Unknown agent ids are logged and ignored — registration is the only
// ingress that can allocate an id (spec.md §4.3). Heartbeats never force a
// disk write.
func (r *Registry) HandleHeartbeat(msg HeartbeatMessage) {
	now := time.Now().UTC()

	r.mu.Lock()
	agent, ok := r.agents[msg.AgentID]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("heartbeat from unknown agent", "agent_id", msg.AgentID)
		return
	}

	agent.Status.Status = msg.Status
	agent.Status.LastHeartbeat = &now
	agent.Status.System = &msg.System
	agent.Status.Processes = msg.Processes
	agent.Status.Services = msg.Services
	agent.LastSeen = now
	r.agents[msg.AgentID] = agent
	r.mu.Unlock()
}

// List returns a copy of every known agent, keyed by agent id.
func (r *Registry) List() map[string]Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Agent, len(r.agents))
	for k, v := range r.agents {
		out[k] = v
	}
	return out
}

// Get returns one agent by id.
func (r *Registry) Get(agentID string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[agentID]
	return agent, ok
}

// SweepStale demotes every online agent whose last-seen exceeds
// staleThreshold to offline, then persists the snapshot if anything
// changed (spec.md §4.3's stale sweeper).
func (r *Registry) SweepStale(staleThreshold time.Duration) {
	now := time.Now().UTC()
	mutated := false

	r.mu.Lock()
	for id, agent := range r.agents {
		if agent.Status.Status == "online" && now.Sub(agent.LastSeen) >= staleThreshold {
			agent.Status.Status = "offline"
			r.agents[id] = agent
			mutated = true
			r.logger.Info("agent demoted to offline", "agent_id", id, "last_seen", agent.LastSeen)
		}
	}
	r.mu.Unlock()

	if mutated {
		if err := r.save(); err != nil {
			r.logger.Error("failed to save agent snapshot after stale sweep", "error", err)
		}
	}
}

// EvictStale removes agent records whose last-seen exceeds
// evictionThreshold entirely — the coarser second tier of the sweeper
// (spec.md §3, "evicted after a long absence").
func (r *Registry) EvictStale(evictionThreshold time.Duration) {
	now := time.Now().UTC()
	removed := 0

	r.mu.Lock()
	for id, agent := range r.agents {
		if now.Sub(agent.LastSeen) >= evictionThreshold {
			delete(r.agents, id)
			removed++
			r.logger.Info("agent evicted", "agent_id", id, "last_seen", agent.LastSeen)
		}
	}
	r.mu.Unlock()
	r.setGaugeLocked()

	if removed > 0 {
		if err := r.save(); err != nil {
			r.logger.Error("failed to save agent snapshot after eviction", "error", err)
		}
	}
}

func (r *Registry) setGaugeLocked() {
	if r.metrics == nil {
		return
	}
	r.mu.RLock()
	count := len(r.agents)
	r.mu.RUnlock()
	r.metrics.AgentsTrackedGauge.Set(float64(count))
}
