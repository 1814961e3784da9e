package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/kaa08/KTB-Hackathon-11/internal/models"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func sampleCache() models.CachedAnalysis {
	ts := 12.5
	return models.CachedAnalysis{
		URL:     "https://youtu.be/abc123XYZ_-",
		VideoID: "abc123XYZ_-",
		JobID:   "job-42",
		SavedAt: 1760000000000,
		Result: models.AnalysisResult{
			Recipe: models.Recipe{
				Title: "Tofu stew",
				Steps: []models.Step{{StepNumber: 1, Instruction: "Slice onions", Timestamp: &ts}},
			},
			Frames: []models.Frame{{StepNumber: 1, Timestamp: 12.5, FrameFilename: "step_1.jpg"}},
		},
	}
}

func TestStateRepo_AnalysisRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	repo := NewStateRepo(store, "session-1", 24*time.Hour)

	if c, err := repo.LoadAnalysis(ctx); err != nil || c != nil {
		t.Fatalf("Expected empty cache, got %+v, %v", c, err)
	}

	if err := repo.SaveAnalysis(ctx, sampleCache()); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	if store.ttls["analysis_cache_v1:session-1"] != 24*time.Hour {
		t.Errorf("Expected session TTL on analysis key, got %v", store.ttls["analysis_cache_v1:session-1"])
	}

	c, err := repo.LoadAnalysis(ctx)
	if err != nil || c == nil {
		t.Fatalf("LoadAnalysis: %+v, %v", c, err)
	}
	if c.JobID != "job-42" || c.Result.Recipe.Title != "Tofu stew" || *c.Result.Recipe.Steps[0].Timestamp != 12.5 {
		t.Errorf("Unexpected restored cache: %+v", c)
	}

	if err := repo.ClearAnalysis(ctx); err != nil {
		t.Fatalf("ClearAnalysis: %v", err)
	}
	if c, _ := repo.LoadAnalysis(ctx); c != nil {
		t.Errorf("Expected cache to be cleared, got %+v", c)
	}
}

func TestStateRepo_CorruptAnalysisIsDiscarded(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"jobId":`},
		{"null document", `null`},
		{"missing job id", `{"url":"https://youtu.be/x"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := newMemStore()
			store.data["analysis_cache_v1:s"] = []byte(tc.raw)

			repo := NewStateRepo(store, "s", time.Hour)
			c, err := repo.LoadAnalysis(ctx)
			if err != nil || c != nil {
				t.Fatalf("Expected silent discard, got %+v, %v", c, err)
			}
			if _, ok := store.data["analysis_cache_v1:s"]; ok {
				t.Error("Expected corrupt record to be deleted")
			}
		})
	}
}

func TestStateRepo_AuthIsPersistentAndScoped(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	a := NewStateRepo(store, "a", time.Hour)
	b := NewStateRepo(store, "b", time.Hour)

	if err := a.SaveAuth(ctx, models.AuthState{Email: "cook@example.com", Token: "tok"}); err != nil {
		t.Fatalf("SaveAuth: %v", err)
	}
	if store.ttls["auth:a"] != 0 {
		t.Errorf("Expected auth record without TTL, got %v", store.ttls["auth:a"])
	}

	got, _ := a.LoadAuth(ctx)
	if got == nil || got.Email != "cook@example.com" || got.Token != "tok" {
		t.Errorf("Unexpected auth state: %+v", got)
	}
	if other, _ := b.LoadAuth(ctx); other != nil {
		t.Errorf("Expected scopes to be isolated, got %+v", other)
	}

	a.ClearAuth(ctx)
	if got, _ := a.LoadAuth(ctx); got != nil {
		t.Errorf("Expected auth cleared, got %+v", got)
	}
}

func TestStateRepo_FileStoreCorruptEnvelope(t *testing.T) {
	ctx := context.Background()
	store, _ := NewFileStore(t.TempDir())
	repo := NewStateRepo(store, "s", time.Hour)

	store.Set(ctx, "auth:s", []byte("ok"), 0)
	// Overwrite the envelope itself with garbage.
	writeRaw(t, store.path("auth:s"), "garbage")

	if got, err := repo.LoadAuth(ctx); err != nil || got != nil {
		t.Fatalf("Expected discard of corrupt envelope, got %+v, %v", got, err)
	}
	if _, err := store.Get(ctx, "auth:s"); err != ErrNotFound {
		t.Errorf("Expected record removed, got %v", err)
	}
}

func writeRaw(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}
