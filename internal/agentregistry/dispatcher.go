package agentregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/owulveryck/symbion-kernel/internal/bus"
	"github.com/owulveryck/symbion-kernel/internal/kernelerrors"
	"github.com/owulveryck/symbion-kernel/internal/observability"
)

// Dispatcher publishes outbound agent commands. It is fire-and-forget: no
// reply slot is kept for the command id, and the agent's eventual response
// is only logged by the bus listener, not correlated back to the caller.
type Dispatcher struct {
	bus      bus.Client
	registry *Registry
	prefix   string
	logger   *slog.Logger
	metrics  *observability.MetricsManager
}

func NewDispatcher(busClient bus.Client, registry *Registry, topicPrefix string, logger *slog.Logger, metrics *observability.MetricsManager) *Dispatcher {
	return &Dispatcher{bus: busClient, registry: registry, prefix: topicPrefix, logger: logger, metrics: metrics}
}

// SendCommand builds and publishes an AgentCommand with a fresh command id.
// Dispatch to an unknown agent still publishes — rejection is deferred to
// the agent side (spec.md §9 Open Question 3's decision, recorded in
// DESIGN.md) — but it is logged at warning level.
func (d *Dispatcher) SendCommand(ctx context.Context, agentID, commandType string, parameters json.RawMessage, timeoutSeconds *uint32) (string, error) {
	if _, ok := d.registry.Get(agentID); !ok {
		d.logger.Warn("dispatching command to unknown agent", "agent_id", agentID, "command_type", commandType)
	}

	// The run_command allow-list is enforced by the agent, not here; the
	// kernel only rejects a missing or empty command parameter.
	if commandType == "run_command" {
		var p struct {
			Command string `json:"command"`
		}
		if len(parameters) > 0 {
			if err := json.Unmarshal(parameters, &p); err != nil {
				return "", kernelerrors.InvalidPayload("parsing run_command parameters", err)
			}
		}
		if p.Command == "" {
			return "", kernelerrors.InvalidPayload("run_command requires a non-empty command parameter", nil)
		}
	}

	commandID := uuid.NewString()
	cmd := AgentCommand{
		CommandID:      commandID,
		AgentID:        agentID,
		CommandType:    commandType,
		Parameters:     parameters,
		TimeoutSeconds: timeoutSeconds,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return "", kernelerrors.InvalidPayload("marshaling agent command", err)
	}

	topic := fmt.Sprintf("%s/agents/command@v1/%s", d.prefix, agentID)
	if err := d.bus.Publish(ctx, topic, 1, payload); err != nil {
		return "", kernelerrors.BusUnavailable("publishing agent command", err)
	}

	if d.metrics != nil {
		d.metrics.CommandsDispatchedTotal.WithLabelValues(commandType).Inc()
	}
	d.logger.Info("dispatched agent command", "agent_id", agentID, "command_id", commandID, "command_type", commandType)
	return commandID, nil
}
