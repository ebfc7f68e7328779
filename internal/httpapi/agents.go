package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/owulveryck/symbion-kernel/internal/appctx"
	"github.com/owulveryck/symbion-kernel/internal/kernelerrors"
	"github.com/owulveryck/symbion-kernel/internal/wol"
)

func handleListAgents(app *appctx.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, app.Registry.List())
	}
}

func handleGetAgent(app *appctx.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		agent, ok := app.Registry.Get(id)
		if !ok {
			writeError(w, kernelerrors.NotFound("agent "+id))
			return
		}
		writeJSON(w, http.StatusOK, agent)
	}
}

// commandRequestBody is the optional JSON body for POST
// /agents/{id}/command; shutdown/reboot/hibernate take no body.
type commandRequestBody struct {
	CommandType    string          `json:"command_type"`
	Parameters     json.RawMessage `json:"parameters,omitempty"`
	TimeoutSeconds *uint32         `json:"timeout_seconds,omitempty"`
}

// handleAgentCommand dispatches a command to an agent. fixedType is
// non-empty for the shutdown/reboot/hibernate shortcut routes; the
// generic /command route reads the type from the request body instead
// (spec.md §6's "POST /agents/{id}/{shutdown|reboot|hibernate|...|command}").
func handleAgentCommand(app *appctx.Context, fixedType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		commandType := fixedType
		var params json.RawMessage
		var timeout *uint32

		if commandType == "" {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, kernelerrors.InvalidPayload("reading command body", err))
				return
			}
			if len(body) > 0 {
				var parsed commandRequestBody
				if err := json.Unmarshal(body, &parsed); err != nil {
					writeError(w, kernelerrors.InvalidPayload("parsing command body", err))
					return
				}
				commandType = parsed.CommandType
				params = parsed.Parameters
				timeout = parsed.TimeoutSeconds
			}
			if commandType == "" {
				writeError(w, kernelerrors.InvalidPayload("command_type is required", nil))
				return
			}
		}

		commandID, err := app.Dispatcher.SendCommand(r.Context(), id, commandType, params, timeout)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"command_id": commandID})
	}
}

func handleKillProcess(app *appctx.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		pidStr := chi.URLParam(r, "pid")
		if _, err := strconv.Atoi(pidStr); err != nil {
			writeError(w, kernelerrors.InvalidPayload("pid must be an integer", err))
			return
		}

		params, err := json.Marshal(map[string]string{"pid": pidStr})
		if err != nil {
			writeError(w, kernelerrors.InvalidPayload("encoding kill_process parameters", err))
			return
		}

		commandID, err := app.Dispatcher.SendCommand(r.Context(), id, "kill_process", params, nil)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"command_id": commandID})
	}
}

// handleAgentProcesses and handleAgentMetrics serve the agent's latest
// cached heartbeat snapshot rather than round-tripping a fresh command,
// per spec.md §6's "latest cached or request-fresh via command" —
// cached is the cheap, always-available default.
func handleAgentProcesses(app *appctx.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		agent, ok := app.Registry.Get(id)
		if !ok {
			writeError(w, kernelerrors.NotFound("agent "+id))
			return
		}
		writeJSON(w, http.StatusOK, agent.Status.Processes)
	}
}

func handleAgentMetrics(app *appctx.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		agent, ok := app.Registry.Get(id)
		if !ok {
			writeError(w, kernelerrors.NotFound("agent "+id))
			return
		}
		writeJSON(w, http.StatusOK, agent.Status.System)
	}
}

// handleWakeAgent sends a Wake-on-LAN magic packet for a host configured
// in the kernel's hosts table (spec.md §6's supplemented "/agents/{id}/wake"
// route, grounded on the original's standalone /wake handler in http.rs).
func handleWakeAgent(app *appctx.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		host, ok := app.Config.Hosts[id]
		if !ok {
			writeError(w, kernelerrors.NotFound("host "+id))
			return
		}
		if err := wol.WakeHost(host.MAC, host.Hint); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "wake_sent"})
	}
}
