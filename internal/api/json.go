package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"fieldsched/internal/planner"
	"fieldsched/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// errorStatus maps engine and store errors to an HTTP status and title.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, planner.ErrInvalidRequest):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, store.ErrAlreadyScheduled):
		return http.StatusConflict, "Already scheduled"
	case errors.Is(err, planner.ErrTechnicianInactive):
		return http.StatusUnprocessableEntity, "Technician inactive"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Request cancelled"
	}
	return http.StatusInternalServerError, "Internal error"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, title := errorStatus(err)
	if status >= 500 {
		s.Log.Sugar().Errorw("request failed", "path", r.URL.Path, "error", err)
	}
	writeProblem(w, status, title, err.Error(), r.URL.Path)
}
