package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaa08/KTB-Hackathon-11/internal/config"
	"github.com/kaa08/KTB-Hackathon-11/internal/models"
	"github.com/kaa08/KTB-Hackathon-11/internal/repository"
)

type Manager struct {
	cfg   *config.Config
	store repository.Store
	pub   Publisher
	now   func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(cfg *config.Config, store repository.Store, pub Publisher) *Manager {
	return &Manager{
		cfg:      cfg,
		store:    store,
		pub:      pub,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the live session for id, building it when needed.
// Ids that are not uuids are replaced with a fresh one.
func (m *Manager) GetOrCreate(ctx context.Context, id string) *Session {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		s = newSession(ctx, id, m.cfg, m.store, m.pub)
		m.sessions[id] = s
	}
	m.mu.Unlock()

	if !ok {
		log.Printf("Session: created %s", id)
	}
	s.touch(m.now())
	return s
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

type playerTimePayload struct {
	Position float64 `json:"position"`
}

// HandleClientMessage applies a message sent by a page over the websocket.
// A page may connect before its first API call, so the session is created
// on demand.
func (m *Manager) HandleClientMessage(sessionID string, msgType string, payload json.RawMessage) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return
	}
	s := m.GetOrCreate(context.Background(), sessionID)

	switch msgType {
	case models.WSTypePlayerReady:
		s.Player.MarkReady()
	case models.WSTypePlayerTime:
		var p playerTimePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("Session %s: bad player_time payload: %v", sessionID, err)
			return
		}
		s.Player.UpdateTime(p.Position)
	}
}

// Sweep closes sessions idle for longer than the cache TTL. Their persisted
// state outlives them and is restored if the browser comes back.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.cfg.SessionCacheTTL)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	return len(stale)
}

// Run sweeps idle sessions every interval until ctx ends.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				log.Printf("Session: closed %d idle sessions", n)
			}
		}
	}
}

func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
