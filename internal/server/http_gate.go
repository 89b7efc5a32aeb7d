package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/alfredjeanlab/timegate/internal/api"
	"github.com/alfredjeanlab/timegate/internal/model"
)

// handleEvaluate handles POST /v1/actions/evaluate.
// Malformed actor or action values are not rejected; they evaluate to deny.
func (s *GateServer) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var in api.EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	d := s.OnActionAttempt(r.Context(), model.ActionAttempt{
		ActorID:     in.ActorID,
		Action:      in.Action,
		Timestamp:   in.Timestamp,
		Permissions: in.Permissions,
	})
	writeJSON(w, http.StatusOK, d)
}

// handleLogin handles POST /v1/login.
func (s *GateServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	writeJSON(w, http.StatusOK, s.OnLogin(r.Context(), in))
}

// handleMOTD handles GET /v1/motd.
func (s *GateServer) handleMOTD(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.OnPing())
}

// handleJoin handles POST /v1/presence/join.
func (s *GateServer) handleJoin(w http.ResponseWriter, r *http.Request) {
	in, ok := decodePresence(w, r)
	if !ok {
		return
	}
	changed := s.OnJoin(in.ActorID, in.Permissions)
	writeJSON(w, http.StatusOK, api.PresenceResponse{ActorID: in.ActorID, Changed: changed, Online: s.Presence.Count()})
}

// handleQuit handles POST /v1/presence/quit.
func (s *GateServer) handleQuit(w http.ResponseWriter, r *http.Request) {
	in, ok := decodePresence(w, r)
	if !ok {
		return
	}
	changed := s.OnQuit(in.ActorID)
	writeJSON(w, http.StatusOK, api.PresenceResponse{ActorID: in.ActorID, Changed: changed, Online: s.Presence.Count()})
}

func decodePresence(w http.ResponseWriter, r *http.Request) (api.PresenceRequest, bool) {
	var in api.PresenceRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return in, false
	}
	in.ActorID = strings.TrimSpace(in.ActorID)
	if in.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return in, false
	}
	return in, true
}

// handleRoster handles GET /v1/presence.
// Returns the online actors, most recently seen first.
func (s *GateServer) handleRoster(w http.ResponseWriter, _ *http.Request) {
	entries := s.Presence.Roster()
	writeJSON(w, http.StatusOK, api.Roster{Actors: entries, Count: len(entries)})
}
