package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kaa08/KTB-Hackathon-11/internal/config"
	"github.com/kaa08/KTB-Hackathon-11/internal/database"
	"github.com/kaa08/KTB-Hackathon-11/internal/handlers"
	"github.com/kaa08/KTB-Hackathon-11/internal/middleware"
	"github.com/kaa08/KTB-Hackathon-11/internal/repository"
	"github.com/kaa08/KTB-Hackathon-11/internal/router"
	"github.com/kaa08/KTB-Hackathon-11/internal/services"
	"github.com/kaa08/KTB-Hackathon-11/internal/session"
	"github.com/kaa08/KTB-Hackathon-11/internal/websocket"
)

func main() {
	log.Println("🚀 Starting recipe companion server...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	apiBase := cfg.MustAPIBase()
	log.Printf("✓ Environment variables loaded (API: %s)", apiBase)

	// ──── Step 2: Initialize State Store ────
	var (
		store        repository.Store
		redisClients *database.RedisClients
	)
	if cfg.RedisURL != "" {
		var err error
		redisClients, err = database.NewRedisClients(cfg.RedisURL)
		if err != nil {
			log.Fatalf("✗ Redis connection failed: %v", err)
		}
		defer redisClients.Close()
		store = repository.NewRedisStore(redisClients.State)
		log.Println("✓ Redis connected")
	} else {
		fileStore, err := repository.NewFileStore(cfg.StateDir)
		if err != nil {
			log.Fatalf("✗ State directory unavailable: %v", err)
		}
		store = fileStore
		log.Printf("✓ File state store at %s", cfg.StateDir)
	}

	// ──── Step 3: Start WebSocket Hub ────
	wsHub := websocket.NewHub(nil)
	if redisClients != nil {
		wsHub = websocket.NewHub(redisClients.PubSub)
	}
	log.Println("✓ WebSocket hub started")

	// ──── Step 4: Initialize Sessions ────
	sessions := session.NewManager(cfg, store, wsHub)
	wsHub.OnClientMessage(sessions.HandleClientMessage)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go sessions.Run(ctx, 10*time.Minute)
	log.Println("✓ Session manager started")

	// ──── Step 5: Initialize Handlers ────
	youtubeService := services.NewYouTubeService()
	h := router.Handlers{
		Auth:     handlers.NewAuthHandler(sessions),
		Analysis: handlers.NewAnalysisHandler(sessions, youtubeService),
		Player:   handlers.NewPlayerHandler(sessions),
		Chat:     handlers.NewChatHandler(sessions),
	}

	// Auth rate limiter (10 req/min per client)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	defer authLimiter.Stop()

	// ──── Step 6: Start HTTP Server ────
	r := router.New(
		h,
		middleware.NewSessions(cfg.SessionCacheTTL, cfg.Env == "production"),
		authLimiter,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Analysis start and exports wait on the backend.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		stop()
		sessions.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("✓ Recipe companion ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
