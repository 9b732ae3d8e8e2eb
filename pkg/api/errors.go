package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/harun/vigil/pkg/notification"
	"github.com/harun/vigil/pkg/scheduler"
	"github.com/harun/vigil/pkg/tool"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// errBadRequest marks malformed request bodies and parameters
var errBadRequest = errors.New("bad request")

// statusFor maps a domain error onto an HTTP status and a stable code
func statusFor(err error) (int, string) {
	var persistErr *notification.PersistenceError
	var cfgErr *tool.ConfigurationError

	switch {
	case errors.Is(err, notification.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, tool.ErrToolNotFound):
		return http.StatusNotFound, "tool_not_found"
	case errors.Is(err, notification.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, tool.ErrDuplicateTool):
		return http.StatusConflict, "duplicate_tool"
	case errors.As(err, &persistErr), errors.Is(err, notification.ErrPersistence):
		return http.StatusServiceUnavailable, "persistence_failed"
	case errors.As(err, &cfgErr), errors.Is(err, tool.ErrConfiguration):
		return http.StatusBadRequest, "invalid_configuration"
	case errors.Is(err, notification.ErrInvalidAction):
		return http.StatusBadRequest, "invalid_action"
	case errors.Is(err, notification.ErrEventInPast):
		return http.StatusBadRequest, "event_in_past"
	case errors.Is(err, notification.ErrInvalidSchedule):
		return http.StatusBadRequest, "invalid_schedule"
	case errors.Is(err, scheduler.ErrNotActive):
		return http.StatusBadRequest, "not_active"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
