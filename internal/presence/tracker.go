// Package presence tracks whether users are currently reachable.
package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/devshad-01/social-task-sub000/internal/logging"
	"github.com/devshad-01/social-task-sub000/internal/model"
	"github.com/devshad-01/social-task-sub000/internal/store"
)

// Store is the subset of store.Store the tracker needs.
type Store interface {
	UpsertPresence(ctx context.Context, p *model.UserPresence) error
	GetPresence(ctx context.Context, userID string) (*model.UserPresence, error)
}

// Tracker records heartbeats and answers online checks. Rows are cached
// briefly; freshness is always evaluated against the current time so a cached
// row still goes stale on schedule.
type Tracker struct {
	store     Store
	cache     *cache.Cache
	freshness time.Duration
	now       func() time.Time
	log       zerolog.Logger

	mu       sync.Mutex
	onOnline func(userID string)
}

// NewTracker creates a tracker with the given freshness window.
func NewTracker(s Store, freshness, cacheTTL time.Duration) *Tracker {
	return &Tracker{
		store:     s,
		cache:     cache.New(cacheTTL, 2*cacheTTL),
		freshness: freshness,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logging.With("presence"),
	}
}

// OnOnline registers fn to run when a user goes from offline to online.
// fn must not block.
func (t *Tracker) OnOnline(fn func(userID string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOnline = fn
}

// SetPresence records a heartbeat for userID.
func (t *Tracker) SetPresence(ctx context.Context, userID string, online bool) error {
	t.mu.Lock()
	wasOnline := t.isOnline(ctx, userID)

	now := t.now()
	p := model.UserPresence{
		UserID:     userID,
		IsOnline:   online,
		LastSeenAt: now,
		UpdatedAt:  now,
	}
	if err := t.store.UpsertPresence(ctx, &p); err != nil {
		t.cache.Delete(userID)
		t.mu.Unlock()
		t.log.Error().Err(err).Str("user_id", userID).Msg("failed to record presence")
		return err
	}
	t.cache.SetDefault(userID, p)
	hook := t.onOnline
	t.mu.Unlock()

	if online && !wasOnline && hook != nil {
		t.log.Debug().Str("user_id", userID).Msg("user came online")
		hook(userID)
	}
	return nil
}

// IsOnline reports whether userID has a fresh online heartbeat. Storage
// errors are logged and answered with false.
func (t *Tracker) IsOnline(ctx context.Context, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isOnline(ctx, userID)
}

func (t *Tracker) isOnline(ctx context.Context, userID string) bool {
	if v, ok := t.cache.Get(userID); ok {
		return v.(model.UserPresence).OnlineAt(t.now(), t.freshness)
	}

	p, err := t.store.GetPresence(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			t.log.Warn().Err(err).Str("user_id", userID).Msg("presence lookup failed, assuming offline")
		}
		return false
	}
	t.cache.SetDefault(userID, *p)
	return p.OnlineAt(t.now(), t.freshness)
}
