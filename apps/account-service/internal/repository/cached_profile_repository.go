package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nat-prohmpiriya/fipe-garage/pkg/logger"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/usersession"
	"go.uber.org/zap"
)

const invalidateTimeout = 3 * time.Second

// Cache stores serialized profiles. *redis.Cache satisfies it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedProfileRepository is a read-through cache over another ProfileStore.
// Missing profiles are not cached. Cache failures fall back to the store.
type CachedProfileRepository struct {
	next  usersession.ProfileStore
	cache Cache
	ttl   time.Duration
	log   *logger.Logger
	wg    sync.WaitGroup
}

// NewCachedProfileRepository creates a new CachedProfileRepository
func NewCachedProfileRepository(next usersession.ProfileStore, cache Cache, ttl time.Duration, log *logger.Logger) *CachedProfileRepository {
	if log == nil {
		log = logger.Get()
	}
	return &CachedProfileRepository{next: next, cache: cache, ttl: ttl, log: log}
}

// GetProfileByID implements usersession.ProfileStore
func (r *CachedProfileRepository) GetProfileByID(ctx context.Context, id string) (*usersession.Profile, error) {
	data, ok, err := r.cache.Get(ctx, id)
	if err != nil {
		r.log.Warn("Profile cache read failed", zap.String("user_id", id), zap.Error(err))
	} else if ok {
		var p usersession.Profile
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
	}

	profile, err := r.next.GetProfileByID(ctx, id)
	if err != nil || profile == nil {
		return profile, err
	}

	if data, err := json.Marshal(profile); err == nil {
		if err := r.cache.Set(ctx, id, data, r.ttl); err != nil {
			r.log.Warn("Profile cache write failed", zap.String("user_id", id), zap.Error(err))
		}
	}
	return profile, nil
}

// Invalidate drops the cached profile of userID
func (r *CachedProfileRepository) Invalidate(ctx context.Context, userID string) error {
	return r.cache.Delete(ctx, userID)
}

// HandleEvent invalidates on profile updates and sign-outs. The delete runs
// in its own goroutine so the event dispatcher is never held up by Redis.
func (r *CachedProfileRepository) HandleEvent(ev usersession.AuthEvent) {
	if ev.UserID == "" {
		return
	}
	if ev.Type != usersession.EventUserUpdated && ev.Type != usersession.EventSignedOut {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
		defer cancel()
		if err := r.Invalidate(ctx, ev.UserID); err != nil {
			r.log.Warn("Profile cache invalidation failed", zap.String("user_id", ev.UserID), zap.Error(err))
		}
	}()
}

// Close waits for pending invalidations
func (r *CachedProfileRepository) Close() {
	r.wg.Wait()
}
