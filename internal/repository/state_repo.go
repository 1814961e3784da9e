package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kaa08/KTB-Hackathon-11/internal/models"
)

const (
	analysisKeyPrefix = "analysis_cache_v1:"
	authKeyPrefix     = "auth:"
)

// StateRepo is the typed persisted-state service for one client scope.
// The analysis snapshot is session-scoped and expires after analysisTTL;
// the auth record persists until cleared. Records that fail to decode are
// deleted, logged, and reported as absent.
type StateRepo struct {
	store       Store
	scope       string
	analysisTTL time.Duration
}

func NewStateRepo(store Store, scope string, analysisTTL time.Duration) *StateRepo {
	return &StateRepo{store: store, scope: scope, analysisTTL: analysisTTL}
}

func (r *StateRepo) analysisKey() string { return analysisKeyPrefix + r.scope }
func (r *StateRepo) authKey() string     { return authKeyPrefix + r.scope }

func (r *StateRepo) LoadAnalysis(ctx context.Context) (*models.CachedAnalysis, error) {
	var c models.CachedAnalysis
	ok, err := r.load(ctx, r.analysisKey(), &c)
	if err != nil || !ok {
		return nil, err
	}
	if c.JobID == "" {
		r.discard(ctx, r.analysisKey(), errors.New("missing job id"))
		return nil, nil
	}
	return &c, nil
}

func (r *StateRepo) SaveAnalysis(ctx context.Context, c models.CachedAnalysis) error {
	return r.save(ctx, r.analysisKey(), c, r.analysisTTL)
}

func (r *StateRepo) ClearAnalysis(ctx context.Context) error {
	return r.store.Del(ctx, r.analysisKey())
}

func (r *StateRepo) LoadAuth(ctx context.Context) (*models.AuthState, error) {
	var s models.AuthState
	ok, err := r.load(ctx, r.authKey(), &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

func (r *StateRepo) SaveAuth(ctx context.Context, s models.AuthState) error {
	return r.save(ctx, r.authKey(), s, 0)
}

func (r *StateRepo) ClearAuth(ctx context.Context) error {
	return r.store.Del(ctx, r.authKey())
}

func (r *StateRepo) load(ctx context.Context, key string, dst interface{}) (bool, error) {
	data, err := r.store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return false, nil
	case errors.Is(err, ErrCorrupt):
		r.discard(ctx, key, err)
		return false, nil
	case err != nil:
		return false, err
	}

	if err := json.Unmarshal(data, dst); err != nil {
		r.discard(ctx, key, err)
		return false, nil
	}
	return true, nil
}

func (r *StateRepo) save(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return r.store.Set(ctx, key, data, ttl)
}

func (r *StateRepo) discard(ctx context.Context, key string, cause error) {
	log.Printf("State: discarding unreadable %s: %v", key, cause)
	if err := r.store.Del(ctx, key); err != nil {
		log.Printf("State: failed to delete %s: %v", key, err)
	}
}
