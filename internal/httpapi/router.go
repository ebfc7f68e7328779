// Package httpapi is the operator HTTP surface (spec.md §4.7): one chi
// router exposing the registry, supervisor, and contract catalog, gated
// by a shared-secret header on every route but the liveness probe.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/owulveryck/symbion-kernel/internal/appctx"
)

// NewRouter builds the full operator HTTP surface.
func NewRouter(app *appctx.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(app))
	r.Use(middleware.Recoverer)

	r.Get("/health", healthLiveness)

	r.Group(func(r chi.Router) {
		r.Use(requireAPIKey(app))

		r.Get("/system/health", handleSystemHealth(app))
		r.Handle("/metrics", promhttp.Handler())

		r.Get("/agents", handleListAgents(app))
		r.Get("/agents/{id}", handleGetAgent(app))
		r.Post("/agents/{id}/shutdown", handleAgentCommand(app, "shutdown"))
		r.Post("/agents/{id}/reboot", handleAgentCommand(app, "reboot"))
		r.Post("/agents/{id}/hibernate", handleAgentCommand(app, "hibernate"))
		r.Post("/agents/{id}/command", handleAgentCommand(app, ""))
		r.Post("/agents/{id}/processes/{pid}/kill", handleKillProcess(app))
		r.Get("/agents/{id}/processes", handleAgentProcesses(app))
		r.Get("/agents/{id}/metrics", handleAgentMetrics(app))
		r.Post("/agents/{id}/wake", handleWakeAgent(app))

		r.Get("/plugins", handleListPlugins(app))
		r.Get("/plugins/{name}", handlePluginDebug(app))
		r.Post("/plugins/{name}/start", handlePluginStart(app))
		r.Post("/plugins/{name}/stop", handlePluginStop(app))
		r.Post("/plugins/{name}/restart", handlePluginRestart(app))
		r.Post("/plugins/{name}/reset-circuit", handlePluginResetCircuit(app))
		r.Post("/plugins/{name}/rollback", handlePluginForceRollback(app))

		r.Get("/contracts", handleListContracts(app))
		r.Get("/contracts/{name}", handleGetContract(app))
	})

	return r
}

func healthLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
