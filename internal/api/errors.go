package api

import (
	"errors"
	"net/http"

	"github.com/device-services/dsc/internal/provider"
)

// WriteNormalizedError maps a normalized location error to its HTTP status
// and writes the error envelope.
func WriteNormalizedError(w http.ResponseWriter, err error) {
	status, code, message := classifyError(err)
	WriteError(w, status, code, message, nil)
}

// classifyError maps normalized error codes to HTTP semantics: a denied
// permission is the caller's problem (403), an unavailable position is a
// temporary service condition (503), and an acquisition timeout is a
// gateway-style timeout (504).
func classifyError(err error) (int, string, string) {
	switch {
	case errors.Is(err, provider.ErrPermissionDenied):
		return http.StatusForbidden, "PERMISSION_DENIED", "Location permission denied"
	case errors.Is(err, provider.ErrPositionUnavailable):
		return http.StatusServiceUnavailable, "POSITION_UNAVAILABLE", "Position unavailable"
	case errors.Is(err, provider.ErrTimeout):
		return http.StatusGatewayTimeout, "TIMEOUT", "Position acquisition timed out"
	default:
		return http.StatusInternalServerError, "INTERNAL", "Internal server error"
	}
}
