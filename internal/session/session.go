package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kaa08/KTB-Hackathon-11/internal/config"
	"github.com/kaa08/KTB-Hackathon-11/internal/models"
	"github.com/kaa08/KTB-Hackathon-11/internal/player"
	"github.com/kaa08/KTB-Hackathon-11/internal/repository"
	"github.com/kaa08/KTB-Hackathon-11/internal/services"
	"github.com/kaa08/KTB-Hackathon-11/internal/sse"
)

const msgPlayerLoading = "The video player is still loading"

// Publisher pushes a message to every page attached to a session.
type Publisher interface {
	Publish(sessionID string, msg models.WSMessage)
}

// Session is everything one browser works with: its login, the current
// analysis, the cooking chat and the embedded player it drives.
type Session struct {
	ID string

	Backend  *services.BackendClient
	Auth     *services.AuthService
	Analyzer *services.Analyzer
	Chat     *services.ChatSession
	Export   *services.ExportService
	Player   *player.RemotePlayer
	Looper   *player.Looper
	Toaster  *services.Toaster

	restoreOnce sync.Once

	mu       sync.Mutex
	lastSeen time.Time
}

func newSession(ctx context.Context, id string, cfg *config.Config, store repository.Store, pub Publisher) *Session {
	repo := repository.NewStateRepo(store, id, cfg.SessionCacheTTL)
	backend := services.NewBackendClient(cfg.APIBaseURL, cfg.HTTPTimeout)

	auth := services.NewAuthService(backend, repo)
	backend.SetIdentity(auth)
	if err := auth.Load(ctx); err != nil {
		log.Printf("Session %s: failed to load login: %v", id, err)
	}

	toaster := services.NewToaster(cfg.ToastDuration, func(t *models.Toast) {
		pub.Publish(id, models.WSMessage{Type: models.WSTypeToast, Payload: t})
	})

	channel := sse.NewClient(cfg.APIBaseURL, backend.DecorateHeaders)
	analyzer := services.NewAnalyzer(backend, channel, repo, toaster)
	analyzer.OnChange(func(st services.AnalysisState) {
		pub.Publish(id, models.WSMessage{Type: models.WSTypeState, Payload: st})
	})

	chat := services.NewChatSession(backend, cfg.ChatPageSize, func(snap services.ChatSnapshot) {
		pub.Publish(id, models.WSMessage{Type: models.WSTypeChat, Payload: snap})
	})

	remote := player.NewRemotePlayer(func(c player.Command) error {
		pub.Publish(id, models.WSMessage{Type: models.WSTypePlayerCommand, Payload: c})
		return nil
	})

	return &Session{
		ID:       id,
		Backend:  backend,
		Auth:     auth,
		Analyzer: analyzer,
		Chat:     chat,
		Export:   services.NewExportService(backend),
		Player:   remote,
		Looper:   player.NewLooper(remote, cfg.LoopInterval),
		Toaster:  toaster,
		lastSeen: time.Now(),
	}
}

// EnsureRestored restores the cached analysis the first time the session
// is used.
func (s *Session) EnsureRestored(ctx context.Context) {
	s.restoreOnce.Do(func() {
		if _, err := s.Analyzer.Restore(ctx); err != nil {
			log.Printf("Session %s: restore failed: %v", s.ID, err)
		}
	})
}

// Result returns the completed analysis.
func (s *Session) Result() (*models.AnalysisResult, services.AnalysisState, error) {
	st := s.Analyzer.State()
	if st.Phase != services.PhaseCompleted || st.Result == nil {
		return nil, st, services.ErrNoResult
	}
	return st.Result, st, nil
}

func (s *Session) Render() (*services.RenderedRecipe, error) {
	res, st, err := s.Result()
	if err != nil {
		return nil, err
	}
	r := services.RenderResult(res, st.JobID, st.VideoID, s.Backend.FrameURL)
	return &r, nil
}

// PlayStep arms the looper with the step's segment and drives the player
// there, toasting where playback resumed. A player that has not loaded yet
// is reported with a toast and ready=false rather than an error.
func (s *Session) PlayStep(stepNumber int) (player.Segment, bool, error) {
	res, _, err := s.Result()
	if err != nil {
		return player.Segment{}, false, err
	}
	step, ok := res.Recipe.StepByNumber(stepNumber)
	if !ok {
		return player.Segment{}, false, &services.NotFoundError{Message: "Step not found"}
	}

	seg, err := player.PlayStep(s.Player, s.Looper, step)
	if errors.Is(err, player.ErrNotReady) {
		s.Toaster.Notify(msgPlayerLoading)
		return seg, false, nil
	}
	if err != nil {
		return seg, false, err
	}
	s.Toaster.Notify(playToast(seg, stepNumber, s.Looper.Enabled()))
	return seg, true, nil
}

func playToast(seg player.Segment, stepNumber int, looping bool) string {
	if looping {
		return fmt.Sprintf("loop ON: %s~%s · step %d", services.FormatTime(seg.Start), services.FormatTime(seg.End), stepNumber)
	}
	return fmt.Sprintf("resume: %s · step %d", services.FormatTime(seg.Start), stepNumber)
}

func (s *Session) SaveRecipe(ctx context.Context) (*models.SaveRecipeResponse, error) {
	if err := s.Auth.RequireLogin(); err != nil {
		return nil, err
	}
	res, _, err := s.Result()
	if err != nil {
		return nil, err
	}
	return s.Backend.SaveRecipe(ctx, res.Recipe)
}

func (s *Session) ListRecipes(ctx context.Context) ([]models.SavedRecipe, error) {
	if err := s.Auth.RequireLogin(); err != nil {
		return nil, err
	}
	return s.Backend.ListRecipes(ctx)
}

// ExportCurrent downloads the current result in the given format.
func (s *Session) ExportCurrent(ctx context.Context, format string) (*services.ExportFile, error) {
	res, st, err := s.Result()
	if err != nil {
		return nil, err
	}
	return s.Export.Export(ctx, st.JobID, res.Recipe.Title, format)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) Close() {
	s.Analyzer.Close()
	s.Looper.Close()
	s.Toaster.Stop()
}

// Frame fetches the frame image captured for a step.
func (s *Session) Frame(ctx context.Context, stepNumber int) ([]byte, string, error) {
	res, st, err := s.Result()
	if err != nil {
		return nil, "", err
	}
	f, ok := res.FramesByStep()[stepNumber]
	if !ok || f.FrameFilename == "" {
		return nil, "", &services.NotFoundError{Message: "No frame for this step"}
	}
	return s.Backend.FetchFrame(ctx, st.JobID, f.FrameFilename)
}

// StartChat opens a cooking session for recipe, or for the analysed recipe
// when recipe is nil.
func (s *Session) StartChat(ctx context.Context, recipe *models.Recipe) error {
	if recipe == nil {
		res, _, err := s.Result()
		if err != nil {
			return err
		}
		recipe = &res.Recipe
	}
	return s.Chat.StartSession(ctx, *recipe)
}
