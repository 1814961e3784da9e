package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kaa08/KTB-Hackathon-11/internal/middleware"
	"github.com/kaa08/KTB-Hackathon-11/internal/models"
	"github.com/kaa08/KTB-Hackathon-11/internal/services"
	"github.com/kaa08/KTB-Hackathon-11/internal/session"
)

type AuthHandler struct {
	sessions *session.Manager
}

func NewAuthHandler(sessions *session.Manager) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

type loginRequest struct {
	models.LoginRequest
	ReturnTo string `json:"return_to"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	s := currentSession(h.sessions, r)
	result, err := s.Auth.Login(r.Context(), req.LoginRequest, req.ReturnTo)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var form models.SignupForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	s := currentSession(h.sessions, r)
	resp, err := s.Auth.Signup(r.Context(), form)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Signed up. Please log in.",
		"user":    resp,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	s := currentSession(h.sessions, r)
	if err := s.Auth.Logout(r.Context()); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	s := currentSession(h.sessions, r)
	user, err := s.Auth.Me(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Shared helpers

func currentSession(m *session.Manager, r *http.Request) *session.Session {
	s := m.GetOrCreate(r.Context(), middleware.GetSessionID(r.Context()))
	s.EnsureRestored(r.Context())
	return s
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation   *services.ValidationError
		conflict     *services.ConflictError
		notFound     *services.NotFoundError
		unauthorized *services.UnauthorizedError
		upstream     *services.UpstreamError
	)

	switch {
	case errors.Is(err, services.ErrNoVideoID):
		writeJSON(w, http.StatusUnprocessableEntity, errorResp("NO_VIDEO_ID", "Could not find a video id in the link", r))
	case errors.Is(err, services.ErrNoResult):
		writeJSON(w, http.StatusConflict, errorResp("NO_RESULT", "No completed analysis yet", r))
	case errors.Is(err, services.ErrNoSession):
		writeJSON(w, http.StatusConflict, errorResp("NO_SESSION", "Start a cooking session first", r))
	case errors.Is(err, services.ErrSessionFinished):
		writeJSON(w, http.StatusConflict, errorResp("SESSION_FINISHED", "The cooking session is already finished", r))
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validation.Fields, r))
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", conflict.Message, r))
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFound.Message, r))
	case errors.As(err, &unauthorized):
		resp := errorResp("UNAUTHORIZED", unauthorized.Message, r)
		resp.Error.ReturnTo = unauthorized.ReturnTo
		writeJSON(w, http.StatusUnauthorized, resp)
	case errors.As(err, &upstream):
		writeJSON(w, http.StatusBadGateway, errorResp("UPSTREAM_ERROR", "The recipe service returned an error", r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
