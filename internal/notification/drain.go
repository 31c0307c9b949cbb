package notification

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devshad-01/social-task-sub000/internal/metrics"
	"github.com/devshad-01/social-task-sub000/internal/model"
	"github.com/devshad-01/social-task-sub000/internal/push"
	"github.com/devshad-01/social-task-sub000/internal/store"
)

// DrainReport summarises one drain pass.
type DrainReport struct {
	Selected  int           `json:"selected"`
	Delivered int           `json:"delivered"`
	Failed    int           `json:"failed"`
	Deferred  int           `json:"deferred"`
	Dropped   int           `json:"dropped"`
	Pruned    int           `json:"pruned"`
	Duration  time.Duration `json:"duration"`
}

type outcome int

const (
	outcomeDelivered outcome = iota
	outcomeFailed
	outcomeDeferred
	outcomeDropped
)

// Drain runs one pass over every user's ready entries. It returns
// ErrDrainInProgress instead of waiting when another pass holds the guard.
func (e *Engine) Drain(ctx context.Context) (DrainReport, error) {
	return e.drain(ctx, "", false)
}

// DrainUser runs one pass over a single user's backlog under the same guard
// as Drain.
func (e *Engine) DrainUser(ctx context.Context, userID string) (DrainReport, error) {
	return e.drain(ctx, userID, false)
}

// drain acquires the guard, either failing fast or waiting for ctx, and
// releases it once every outcome of the pass has been recorded.
func (e *Engine) drain(ctx context.Context, userID string, wait bool) (DrainReport, error) {
	if wait {
		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			return DrainReport{}, ctx.Err()
		}
	} else {
		select {
		case e.sem <- struct{}{}:
		default:
			metrics.DrainsSkipped.Inc()
			return DrainReport{}, ErrDrainInProgress
		}
	}
	defer func() { <-e.sem }()

	scope := "all"
	if userID != "" {
		scope = "user"
	}
	start := time.Now()
	report, err := e.pass(ctx, userID)
	report.Duration = time.Since(start)
	metrics.DrainDuration.WithLabelValues(scope).Observe(report.Duration.Seconds())

	ev := e.log.Info()
	if report.Selected == 0 {
		ev = e.log.Debug()
	}
	ev.Str("scope", scope).
		Str("user_id", userID).
		Int("selected", report.Selected).
		Int("delivered", report.Delivered).
		Int("failed", report.Failed).
		Int("deferred", report.Deferred).
		Int("dropped", report.Dropped).
		Int("pruned", report.Pruned).
		Dur("duration", report.Duration).
		Msg("drain pass finished")
	return report, err
}

func (e *Engine) pass(ctx context.Context, userID string) (DrainReport, error) {
	now := e.now()

	rows, err := e.store.SelectReady(ctx, store.ReadyQuery{
		Now:        now,
		MaxRetries: e.opts.MaxRetries,
		UserID:     userID,
		Limit:      e.opts.BatchSize,
		Subscribed: true,
	})
	if err != nil {
		e.log.Error().Err(err).Msg("selecting ready notifications")
		return DrainReport{}, err
	}

	items := make([]item, 0, len(rows)+8)
	for _, r := range rows {
		items = append(items, fromRow(r))
	}
	items = append(items, e.mem.ready(now, userID)...)
	sortItems(items)

	report := DrainReport{Selected: len(items)}
	subs := make(map[string][]model.PushSubscription)

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		targets, ok := subs[it.userID]
		if !ok {
			targets, err = e.store.ListSubscriptions(ctx, it.userID)
			if err != nil {
				e.log.Error().Err(err).Str("user_id", it.userID).Msg("listing subscriptions")
				report.Deferred++
				continue
			}
			subs[it.userID] = targets
		}

		e.begin(it)
		res, live := e.deliver(ctx, it, targets)
		e.end(it.id)

		report.Pruned += len(targets) - len(live)
		subs[it.userID] = live

		switch res {
		case outcomeDelivered:
			report.Delivered++
		case outcomeFailed:
			report.Failed++
		case outcomeDeferred:
			report.Deferred++
		case outcomeDropped:
			report.Dropped++
		}
	}
	return report, nil
}

// sortItems orders by priority desc, then creation time asc. IDs break the
// remaining ties so a selection is deterministic.
func sortItems(items []item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if !a.createdAt.Equal(b.createdAt) {
			return a.createdAt.Before(b.createdAt)
		}
		return a.id < b.id
	})
}

func (e *Engine) begin(it item) {
	e.mu.Lock()
	e.processing[it.id] = it.priority
	e.mu.Unlock()
}

func (e *Engine) end(id string) {
	e.mu.Lock()
	delete(e.processing, id)
	e.mu.Unlock()
}

// deliver sends it to every target concurrently and records the result.
// It returns the outcome and the targets that are still live.
func (e *Engine) deliver(ctx context.Context, it item, targets []model.PushSubscription) (outcome, []model.PushSubscription) {
	if len(targets) == 0 {
		return e.settleNoTargets(it), targets
	}

	now := e.now()
	payload, err := push.NewPayload(it.id, it.category, it.title, it.message, it.actionURL, it.data, it.priority, it.createdAt).Marshal()
	if err != nil {
		e.log.Error().Err(err).Str("id", it.id).Msg("encoding payload")
		return e.settleFailure(ctx, it, err.Error()), targets
	}
	msg := push.Message{Payload: payload, TTL: it.expiresAt.Sub(now), Priority: it.priority}

	outcomes := make([]push.Outcome, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)
	for i, sub := range targets {
		i, sub := i, sub
		g.Go(func() error {
			outcomes[i] = e.transport.Send(gctx, push.Target{
				Endpoint: sub.Endpoint,
				P256DH:   sub.P256DH,
				Auth:     sub.Auth,
			}, msg)
			return nil
		})
	}
	_ = g.Wait()

	var (
		sent      int
		lastCause string
		live      = make([]model.PushSubscription, 0, len(targets))
	)
	for i, out := range outcomes {
		switch out.Result {
		case push.ResultSent:
			sent++
			live = append(live, targets[i])
		case push.ResultGone:
			e.prune(ctx, targets[i])
		default:
			live = append(live, targets[i])
			if out.Err != nil {
				lastCause = out.Err.Error()
			} else {
				lastCause = "transient push failure"
			}
		}
	}

	switch {
	case sent > 0:
		return e.settleDelivered(ctx, it), live
	case lastCause != "":
		return e.settleFailure(ctx, it, lastCause), live
	default:
		// Every endpoint was gone: nothing was attempted against the entry.
		return e.settleNoTargets(it), live
	}
}

func (e *Engine) prune(ctx context.Context, sub model.PushSubscription) {
	if err := e.store.PruneSubscription(ctx, sub.Endpoint); err != nil {
		e.log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("pruning gone subscription")
		return
	}
	metrics.SubscriptionsPruned.Inc()
	e.log.Info().Str("user_id", sub.UserID).Str("endpoint", sub.Endpoint).Msg("pruned gone subscription")
}

// settleNoTargets leaves a persistent entry queued for a later pass and drops
// an ephemeral one.
func (e *Engine) settleNoTargets(it item) outcome {
	if it.persisted || it.class == ClassPersistent {
		return outcomeDeferred
	}
	e.mem.drop(it.id)
	metrics.NotificationsDropped.WithLabelValues(string(it.class), "no_subscriptions").Inc()
	e.log.Debug().Str("id", it.id).Str("user_id", it.userID).Msg("dropped ephemeral notification without subscriptions")
	return outcomeDropped
}

func (e *Engine) settleDelivered(ctx context.Context, it item) outcome {
	if it.persisted {
		if err := e.store.MarkDelivered(ctx, it.id, e.now()); err != nil {
			e.log.Error().Err(err).Str("id", it.id).Msg("marking notification delivered")
			return outcomeDeferred
		}
	} else {
		e.mem.markSent(it.id)
	}
	metrics.NotificationsDelivered.WithLabelValues(string(it.class)).Inc()
	return outcomeDelivered
}

func (e *Engine) settleFailure(ctx context.Context, it item, cause string) outcome {
	if it.persisted {
		if err := e.store.RecordFailure(ctx, it.id, e.now(), cause); err != nil {
			e.log.Error().Err(err).Str("id", it.id).Msg("recording delivery failure")
			return outcomeDeferred
		}
		return outcomeFailed
	}
	if e.mem.recordFailure(it.id, cause, e.opts.MaxRetries) {
		metrics.NotificationsDropped.WithLabelValues(string(it.class), "retries_exhausted").Inc()
		e.log.Warn().Str("id", it.id).Str("cause", cause).Msg("notification exhausted its retries")
	}
	return outcomeFailed
}

// inFlight copies the processing map.
func (e *Engine) inFlight() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int, len(e.processing))
	for id, p := range e.processing {
		out[id] = p
	}
	return out
}
