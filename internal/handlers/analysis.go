package handlers

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kaa08/KTB-Hackathon-11/internal/models"
	"github.com/kaa08/KTB-Hackathon-11/internal/services"
	"github.com/kaa08/KTB-Hackathon-11/internal/session"
)

type AnalysisHandler struct {
	sessions *session.Manager
	youtube  *services.YouTubeService
}

func NewAnalysisHandler(sessions *session.Manager, youtube *services.YouTubeService) *AnalysisHandler {
	return &AnalysisHandler{sessions: sessions, youtube: youtube}
}

func (h *AnalysisHandler) ParseLink(w http.ResponseWriter, r *http.Request) {
	link, err := services.ParseLink(r.URL.Query().Get("url"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"video_id": link.VideoID,
		"platform": link.Platform,
	})
}

func (h *AnalysisHandler) Preview(w http.ResponseWriter, r *http.Request) {
	preview, err := h.youtube.Preview(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (h *AnalysisHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	s := currentSession(h.sessions, r)
	if err := s.Analyzer.Start(r.Context(), req.URL); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, s.Analyzer.State())
}

func (h *AnalysisHandler) State(w http.ResponseWriter, r *http.Request) {
	s := currentSession(h.sessions, r)
	writeJSON(w, http.StatusOK, s.Analyzer.State())
}

func (h *AnalysisHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	s := currentSession(h.sessions, r)
	rendered, err := s.Render()
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rendered)
}

func (h *AnalysisHandler) Frame(w http.ResponseWriter, r *http.Request) {
	step, err := strconv.Atoi(chi.URLParam(r, "step"))
	if err != nil || step < 1 {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid step number", r))
		return
	}

	s := currentSession(h.sessions, r)
	data, contentType, err := s.Frame(r.Context(), step)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}

func (h *AnalysisHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = services.FormatMarkdown
	}

	s := currentSession(h.sessions, r)
	file, err := s.ExportCurrent(r.Context(), format)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.Write(file.Data)
}

func (h *AnalysisHandler) SaveRecipe(w http.ResponseWriter, r *http.Request) {
	s := currentSession(h.sessions, r)
	resp, err := s.SaveRecipe(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *AnalysisHandler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	s := currentSession(h.sessions, r)
	recipes, err := s.ListRecipes(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if recipes == nil {
		recipes = []models.SavedRecipe{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"recipes": recipes})
}
