package httpapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/owulveryck/symbion-kernel/internal/appctx"
	"github.com/owulveryck/symbion-kernel/internal/kernelerrors"
)

// requireAPIKey enforces spec.md §4.7/§6: every non-health route needs
// header x-api-key matching the configured secret, and an empty secret
// denies all access rather than opening the gate (fail-closed).
func requireAPIKey(app *appctx.Context) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := app.Config.APIKey
			if secret == "" {
				writeError(w, kernelerrors.Unauthorized())
				return
			}
			got := r.Header.Get("x-api-key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				writeError(w, kernelerrors.Unauthorized())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger records method, path, status, and latency through the
// kernel's structured logger, matching the density of logging the
// teacher applies to its own HTTP surfaces.
func requestLogger(app *appctx.Context) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			app.Logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
