package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/owulveryck/symbion-kernel/internal/kernelerrors"
)

// writeError maps a kernelerrors.Error to its HTTP status per spec.md
// §7's propagation policy — this is the only place in the kernel that
// translates an error kind into transport framing.
func writeError(w http.ResponseWriter, err error) {
	var kerr *kernelerrors.Error
	if !errors.As(err, &kerr) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	status := http.StatusInternalServerError
	message := kerr.Message
	switch kerr.Kind {
	case kernelerrors.KindBusUnavailable:
		status = http.StatusServiceUnavailable
	case kernelerrors.KindTimeout:
		status = http.StatusGatewayTimeout
	case kernelerrors.KindNotFound:
		status = http.StatusNotFound
	case kernelerrors.KindBusyContention:
		status = http.StatusServiceUnavailable
	case kernelerrors.KindInvalidPayload:
		status = http.StatusBadRequest
	case kernelerrors.KindPluginStartFailure:
		status = http.StatusInternalServerError
	case kernelerrors.KindUnauthorized:
		status = http.StatusUnauthorized
		message = "unauthorized"
	}

	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
