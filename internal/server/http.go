package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/timegate/internal/api"
	"github.com/alfredjeanlab/timegate/internal/model"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *GateServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/actions/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /v1/login", s.handleLogin)
	mux.HandleFunc("GET /v1/motd", s.handleMOTD)
	mux.HandleFunc("POST /v1/presence/join", s.handleJoin)
	mux.HandleFunc("POST /v1/presence/quit", s.handleQuit)
	mux.HandleFunc("GET /v1/presence", s.handleRoster)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("PUT /v1/override", s.handleSetOverride)
	mux.HandleFunc("POST /v1/reload", s.handleReload)
	mux.HandleFunc("GET /v1/rules", s.handleRules)
	mux.HandleFunc("GET /v1/events", s.handleListEvents)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *GateServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

// handleStatus handles GET /v1/status.
func (s *GateServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

// handleSetOverride handles PUT /v1/override.
func (s *GateServer) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	var in api.OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if in.Mode == "" {
		writeError(w, http.StatusBadRequest, "mode is required")
		return
	}
	mode, err := model.ParseOverrideMode(string(in.Mode))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.SetOverride(r.Context(), mode, in.Actor, in.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReload handles POST /v1/reload. An empty body is allowed.
func (s *GateServer) handleReload(w http.ResponseWriter, r *http.Request) {
	var in api.ReloadRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	resp, err := s.Reload(r.Context(), in.Actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRules handles GET /v1/rules.
func (s *GateServer) handleRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Rules())
}

// handleListEvents handles GET /v1/events.
// Query: topic (exact, or prefix ending in "."), actor, since (RFC 3339 or a
// duration such as "1h" meaning that long ago), limit.
func (s *GateServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.EventFilter{
		Topic: q.Get("topic"),
		Actor: q.Get("actor"),
	}
	if v := q.Get("since"); v != "" {
		since, err := parseSince(v, s.opts.Now())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Since = since
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	evts, err := s.ListEvents(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.EventsResponse{Events: evts})
}

func parseSince(v string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return time.Time{}, inputError("since must be RFC 3339 or a positive duration")
	}
	return now.Add(-d), nil
}

// writeServiceError maps errors from GateServer methods onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var ie inputError
	switch {
	case errors.As(err, &ie):
		writeError(w, http.StatusBadRequest, ie.Error())
	case isConfigError(err):
		writeJSON(w, http.StatusUnprocessableEntity, api.ErrorResponse{
			Error:   err.Error(),
			Details: configDetails(err),
		})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: strings.TrimSpace(message)})
}
