package ingress

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/greentic-ai/greentic-messaging/internal/core"
)

// statusByCode maps failure classifications onto HTTP statuses at the
// handler edge.
var statusByCode = map[core.ErrorCode]int{
	core.ErrorCodeValidation:     http.StatusBadRequest,
	core.ErrorCodeAuthentication: http.StatusUnauthorized,
	core.ErrorCodeRateLimited:    http.StatusTooManyRequests,
	core.ErrorCodeDuplicate:      http.StatusAccepted,
	core.ErrorCodeUnsupported:    http.StatusNotFound,
	core.ErrorCodeBus:            http.StatusInternalServerError,
	core.ErrorCodeTransient:      http.StatusInternalServerError,
	core.ErrorCodeInternal:       http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeAccepted(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok":         true,
		"request_id": RequestIDFrom(r.Context()),
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	var domainErr *core.DomainError
	if errors.As(err, &domainErr) {
		if s, ok := statusByCode[domainErr.Code]; ok {
			status = s
		}
		message = domainErr.Message
	}
	writeJSON(w, status, map[string]string{"error": message})
}
