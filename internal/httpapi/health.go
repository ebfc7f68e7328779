package httpapi

import (
	"net/http"

	"github.com/owulveryck/symbion-kernel/internal/appctx"
)

func handleSystemHealth(app *appctx.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, app.Health.Snapshot())
	}
}
