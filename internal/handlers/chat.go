package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kaa08/KTB-Hackathon-11/internal/models"
	"github.com/kaa08/KTB-Hackathon-11/internal/services"
	"github.com/kaa08/KTB-Hackathon-11/internal/session"
)

// Photos are capped at 10MB by the chat session; leave room for the form.
const maxChatUpload = 11 << 20

type ChatHandler struct {
	sessions *session.Manager
}

func NewChatHandler(sessions *session.Manager) *ChatHandler {
	return &ChatHandler{sessions: sessions}
}

func (h *ChatHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipe *models.Recipe `json:"recipe"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	s := currentSession(h.sessions, r)
	if err := s.StartChat(r.Context(), req.Recipe); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session": s.Chat.Snapshot(),
		"history": s.Chat.History(),
	})
}

func (h *ChatHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	s := currentSession(h.sessions, r)
	writeJSON(w, http.StatusOK, s.Chat.Snapshot())
}

// SendMessage accepts either a multipart form (message + image file) or
// JSON with an optional base64 image or data URL.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	s := currentSession(h.sessions, r)
	if s.Chat.Snapshot().SessionID == "" {
		handleServiceError(w, r, services.ErrNoSession)
		return
	}

	text, ok := readChatInput(w, r, s)
	if !ok {
		return
	}

	// A failed round trip still yields a fallback reply to show.
	reply, err := s.Chat.SendMessage(r.Context(), text)
	if reply == nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reply":   reply,
		"session": s.Chat.Snapshot(),
	})
}

// readChatInput reads the message text and stages any attached image. It
// writes the error response itself and reports false on failure.
func readChatInput(w http.ResponseWriter, r *http.Request, s *session.Session) (string, bool) {
	var text string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxChatUpload)
		if err := r.ParseMultipartForm(maxChatUpload); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid form data or image too large", r))
			return "", false
		}
		text = r.FormValue("message")

		file, header, err := r.FormFile("image")
		if err == nil {
			defer file.Close()
			data, err := io.ReadAll(file)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Failed to read image", r))
				return "", false
			}
			if err := s.Chat.AttachImage(data, header.Header.Get("Content-Type")); err != nil {
				handleServiceError(w, r, err)
				return "", false
			}
		}
	} else {
		var req struct {
			Message     string `json:"message"`
			ImageBase64 string `json:"image_base64"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
			return "", false
		}
		text = req.Message
		if req.ImageBase64 != "" {
			if err := s.Chat.AttachImageBase64(req.ImageBase64); err != nil {
				handleServiceError(w, r, err)
				return "", false
			}
		}
	}
	return text, true
}

func (h *ChatHandler) CompleteStep(w http.ResponseWriter, r *http.Request) {
	s := currentSession(h.sessions, r)
	result, err := s.Chat.CompleteStep(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":  result,
		"session": s.Chat.Snapshot(),
	})
}

func (h *ChatHandler) SelectStep(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid step number", r))
		return
	}

	s := currentSession(h.sessions, r)
	if err := s.Chat.SelectStep(n); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Chat.Snapshot())
}

// History serves the windowed log. visible resizes the window; anchor and
// offset describe the message the client had on top and are echoed back
// while that message is still shown.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fields := map[string]string{}
	visible := queryInt(q.Get("visible"), "visible", fields)
	offset := queryInt(q.Get("offset"), "offset", fields)
	if visible < 0 {
		fields["visible"] = "must not be negative"
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Invalid history query", fields, r))
		return
	}

	s := currentSession(h.sessions, r)
	writeJSON(w, http.StatusOK, s.Chat.HistoryAt(visible, q.Get("anchor"), offset))
}

func queryInt(raw, name string, fields map[string]string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		fields[name] = "must be an integer"
	}
	return n
}

// StageImage attaches a photo to the next message without sending it.
func (h *ChatHandler) StageImage(w http.ResponseWriter, r *http.Request) {
	s := currentSession(h.sessions, r)
	if s.Chat.Snapshot().SessionID == "" {
		handleServiceError(w, r, services.ErrNoSession)
		return
	}
	if _, ok := readChatInput(w, r, s); !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Chat.Snapshot())
}

// ClearImage drops the staged photo before it is sent.
func (h *ChatHandler) ClearImage(w http.ResponseWriter, r *http.Request) {
	s := currentSession(h.sessions, r)
	s.Chat.ClearImage()
	writeJSON(w, http.StatusOK, s.Chat.Snapshot())
}

// LoadOlder grows the history window backward. offset is how far the first
// visible message sits from the top of the viewport.
func (h *ChatHandler) LoadOlder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Offset int `json:"offset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	s := currentSession(h.sessions, r)
	writeJSON(w, http.StatusOK, s.Chat.LoadOlder(req.Offset))
}
