package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kaa08/KTB-Hackathon-11/internal/handlers"
	"github.com/kaa08/KTB-Hackathon-11/internal/middleware"
	"github.com/kaa08/KTB-Hackathon-11/internal/websocket"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	Analysis *handlers.AnalysisHandler
	Player   *handlers.PlayerHandler
	Chat     *handlers.ChatHandler
}

func New(
	h Handlers,
	sessions *middleware.Sessions,
	authLimiter *middleware.RateLimiter,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(sessions.Middleware)
		r.Use(middleware.AccessLog)

		// ──── Link Routes ────
		r.Get("/link", h.Analysis.ParseLink)
		r.Get("/preview", h.Analysis.Preview)

		// ──── Analysis Routes ────
		r.Route("/analysis", func(r chi.Router) {
			r.Post("/", h.Analysis.Start)
			r.Get("/", h.Analysis.State)
			r.Get("/timeline", h.Analysis.Timeline)
			r.Get("/frames/{step}", h.Analysis.Frame)
			r.With(chimiddleware.Timeout(2*time.Minute)).Get("/export", h.Analysis.Export)
			r.Post("/recipe", h.Analysis.SaveRecipe)
		})

		r.Get("/recipes", h.Analysis.ListRecipes)

		// ──── Player Routes ────
		r.Route("/player", func(r chi.Router) {
			r.Post("/segment", h.Player.SelectSegment)
			r.Put("/loop", h.Player.SetLoop)
		})

		// ──── Chat Routes ────
		r.Route("/chat", func(r chi.Router) {
			r.Post("/session", h.Chat.StartSession)
			r.Get("/session", h.Chat.Snapshot)
			r.Post("/message", h.Chat.SendMessage)
			r.Put("/image", h.Chat.StageImage)
			r.Delete("/image", h.Chat.ClearImage)
			r.Post("/complete-step", h.Chat.CompleteStep)
			r.Post("/select-step/{n}", h.Chat.SelectStep)
			r.Get("/history", h.Chat.History)
			r.Post("/history/older", h.Chat.LoadOlder)
		})

		// ──── Auth Routes ────
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter.Middleware).Post("/login", h.Auth.Login)
			r.With(authLimiter.Middleware).Post("/signup", h.Auth.Signup)
			r.Post("/logout", h.Auth.Logout)
			r.Get("/me", h.Auth.Me)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
