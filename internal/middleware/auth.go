package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	SessionIDKey contextKey = "session_id"

	SessionCookie = "recipe_session"
	SessionHeader = "X-Session-ID"
)

// Sessions attaches a client session id to every request. The id comes from
// the session cookie, the X-Session-ID header or a ?session= query value,
// in that order. Requests without a valid id get a fresh one and a cookie.
type Sessions struct {
	TTL    time.Duration
	Secure bool
}

func NewSessions(ttl time.Duration, secure bool) *Sessions {
	return &Sessions{TTL: ttl, Secure: secure}
}

func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionFromRequest(r)
		if !ok {
			id = uuid.NewString()
		}

		// Refresh the cookie so idle sessions expire from the last visit.
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    id,
			Path:     "/",
			MaxAge:   int(s.TTL.Seconds()),
			HttpOnly: true,
			Secure:   s.Secure,
			SameSite: http.SameSiteLaxMode,
		})

		ctx := context.WithValue(r.Context(), SessionIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromRequest(r *http.Request) (string, bool) {
	candidates := []string{r.Header.Get(SessionHeader), r.URL.Query().Get("session")}
	if c, err := r.Cookie(SessionCookie); err == nil {
		candidates = append([]string{c.Value}, candidates...)
	}
	for _, v := range candidates {
		if _, err := uuid.Parse(v); err == nil {
			return v, true
		}
	}
	return "", false
}

// GetSessionID extracts the session id from request context
func GetSessionID(ctx context.Context) string {
	id, _ := ctx.Value(SessionIDKey).(string)
	return id
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}
