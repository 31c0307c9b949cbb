package notification

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/devshad-01/social-task-sub000/internal/logging"
)

// Scheduler drives the engine: a drain pass every interval, a user-scoped
// pass for every kick and a cleanup pass every cleanup interval. It
// implements suture.Service.
type Scheduler struct {
	engine          *Engine
	interval        time.Duration
	cleanupInterval time.Duration
	log             zerolog.Logger
}

// NewScheduler creates a scheduler for e.
func NewScheduler(e *Engine, interval, cleanupInterval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 24 * time.Hour
	}
	return &Scheduler{
		engine:          e,
		interval:        interval,
		cleanupInterval: cleanupInterval,
		log:             logging.With("scheduler"),
	}
}

// Serve runs until ctx is cancelled. Passes started by the scheduler wait for
// the drain guard instead of being skipped, so a kick that arrives during an
// interval pass still runs afterwards.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.log.Info().Dur("interval", s.interval).Dur("cleanup_interval", s.cleanupInterval).Msg("scheduler started")

	s.run(ctx, "")

	drainTicker := time.NewTicker(s.interval)
	defer drainTicker.Stop()
	cleanupTicker := time.NewTicker(s.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler shutting down")
			return ctx.Err()
		case <-drainTicker.C:
			s.run(ctx, "")
		case userID := <-s.engine.kicks:
			s.run(ctx, userID)
		case <-cleanupTicker.C:
			if _, err := s.engine.Cleanup(ctx); err != nil && ctx.Err() == nil {
				s.log.Error().Err(err).Msg("cleanup failed")
			}
		}
	}
}

func (s *Scheduler) run(ctx context.Context, userID string) {
	_, err := s.engine.drain(ctx, userID, true)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error().Err(err).Str("user_id", userID).Msg("drain pass failed")
	}
}

// String names the service in supervisor logs.
func (s *Scheduler) String() string {
	return "notification-scheduler"
}
