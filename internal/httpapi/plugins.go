package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/owulveryck/symbion-kernel/internal/appctx"
	"github.com/owulveryck/symbion-kernel/internal/kernelerrors"
)

func handleListPlugins(app *appctx.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, app.Supervisor.List())
	}
}

func handlePluginDebug(app *appctx.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		info, ok := app.Supervisor.DebugInfo(name)
		if !ok {
			writeError(w, kernelerrors.NotFound("plugin "+name))
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func handlePluginStart(app *appctx.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := app.Supervisor.TryStartPlugin(name); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "starting"})
	}
}

func handlePluginStop(app *appctx.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := app.Supervisor.TryStopPlugin(name); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
	}
}

func handlePluginRestart(app *appctx.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := app.Supervisor.TryRestartPlugin(name); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "restarting"})
	}
}

func handlePluginResetCircuit(app *appctx.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := app.Supervisor.ResetCircuit(name); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "circuit_reset"})
	}
}

func handlePluginForceRollback(app *appctx.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := app.Supervisor.ForceRollback(name); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "rolled_back"})
	}
}
