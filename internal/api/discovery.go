package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-dirigera/internal/discovery"
)

// DiscoveryStatus is returned by GET /discovery.
type DiscoveryStatus struct {
	discovery.Stats
	KnownDevices []string `json:"known_devices"`
}

// DiscoverRequest is the body of POST /discovery/{id}.
type DiscoverRequest struct {
	DeviceType string `json:"device_type"`
}

// DiscoverResponse reports the outcome of a manual discovery.
type DiscoverResponse struct {
	DeviceID   string `json:"device_id"`
	Discovered bool   `json:"discovered"`
	Known      bool   `json:"known"`
}

func (s *Server) handleDiscoveryStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DiscoveryStatus{
		Stats:        s.coord.Stats(),
		KnownDevices: s.coord.KnownDevices(),
	})
}

// handleListAttempts lists recorded attempts, newest first.
func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	if s.attempts == nil {
		writeServiceUnavailable(w, "attempt recording is disabled")
		return
	}

	q := r.URL.Query()
	filter := discovery.AttemptFilter{
		DeviceID: q.Get("device_id"),
		Outcome:  discovery.Outcome(q.Get("outcome")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	attempts, err := s.attempts.ListAttempts(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing discovery attempts", "error", err)
		writeInternalError(w, "failed to list discovery attempts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attempts": attempts,
		"count":    len(attempts),
	})
}

// discoverHandler triggers discovery for one id. The attempt runs under
// ctx rather than the request, so a client disconnect does not abort it.
func (s *Server) discoverHandler(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req DiscoverRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		if req.DeviceType == "" {
			writeBadRequest(w, "device_type is required")
			return
		}
		if s.coord.IsKnownDevice(id) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "device already known")
			return
		}
		if s.coord.IsPending(id) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "discovery already in progress")
			return
		}

		ok := s.coord.DiscoverDevice(ctx, id, req.DeviceType)
		writeJSON(w, http.StatusOK, DiscoverResponse{
			DeviceID:   id,
			Discovered: ok,
			Known:      s.coord.IsKnownDevice(id),
		})
	}
}
