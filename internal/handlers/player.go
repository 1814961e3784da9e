package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/kaa08/KTB-Hackathon-11/internal/player"
	"github.com/kaa08/KTB-Hackathon-11/internal/session"
)

type PlayerHandler struct {
	sessions *session.Manager
}

func NewPlayerHandler(sessions *session.Manager) *PlayerHandler {
	return &PlayerHandler{sessions: sessions}
}

type playerState struct {
	Segment *player.Segment `json:"segment"`
	Loop    bool            `json:"loop"`
	Ready   bool            `json:"ready"`
}

func (h *PlayerHandler) SelectSegment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Step int `json:"step"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Step < 1 {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "A step number is required", r))
		return
	}

	s := currentSession(h.sessions, r)
	seg, ready, err := s.PlayStep(req.Step)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, playerState{Segment: &seg, Loop: s.Looper.Enabled(), Ready: ready})
}

func (h *PlayerHandler) SetLoop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "enabled is required", r))
		return
	}

	s := currentSession(h.sessions, r)
	s.Looper.SetEnabled(*req.Enabled)

	writeJSON(w, http.StatusOK, playerState{Segment: s.Looper.Segment(), Loop: s.Looper.Enabled(), Ready: s.Player.Ready()})
}
