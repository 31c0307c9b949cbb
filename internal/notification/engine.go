// Package notification implements the delivery engine: it classifies
// notifications, keeps the delivery queue and drains it through the push
// transport.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/devshad-01/social-task-sub000/config"
	"github.com/devshad-01/social-task-sub000/internal/logging"
	"github.com/devshad-01/social-task-sub000/internal/metrics"
	"github.com/devshad-01/social-task-sub000/internal/model"
	"github.com/devshad-01/social-task-sub000/internal/push"
	"github.com/devshad-01/social-task-sub000/internal/store"
)

var (
	ErrInvalidRequest  = errors.New("invalid notification request")
	ErrInvalidClass    = errors.New("invalid notification class")
	ErrUnknownUser     = errors.New("unknown user")
	ErrUnknownCategory = errors.New("unknown notification category")
	ErrDrainInProgress = errors.New("a drain pass is already running")
)

// Transport delivers one payload to one subscription.
type Transport interface {
	Send(ctx context.Context, target push.Target, msg push.Message) push.Outcome
}

// Presence answers whether a user is reachable right now.
type Presence interface {
	IsOnline(ctx context.Context, userID string) bool
}

// Options tunes the engine. Zero values take the service defaults.
type Options struct {
	MaxRetries         int
	BatchSize          int
	Parallelism        int
	EphemeralTTL       time.Duration
	PersistentTTL      time.Duration
	StorePolicy        string
	DeliveredRetention time.Duration
}

// OptionsFromConfig maps the queue section of the config.
func OptionsFromConfig(q config.QueueConfig) Options {
	return Options{
		MaxRetries:         q.MaxRetries,
		BatchSize:          q.BatchSize,
		Parallelism:        q.Parallelism,
		EphemeralTTL:       q.EphemeralTTL,
		PersistentTTL:      q.PersistentTTL,
		StorePolicy:        q.StorePolicy,
		DeliveredRetention: q.DeliveredRetention,
	}
}

func (o *Options) applyDefaults() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 8
	}
	if o.EphemeralTTL <= 0 {
		o.EphemeralTTL = 10 * time.Minute
	}
	if o.PersistentTTL <= 0 {
		o.PersistentTTL = 72 * time.Hour
	}
	if o.StorePolicy == "" {
		o.StorePolicy = config.StorePolicyAlways
	}
	if o.DeliveredRetention <= 0 {
		o.DeliveredRetention = 7 * 24 * time.Hour
	}
}

// Request is what producers submit.
type Request struct {
	UserID    string
	Title     string
	Message   string
	ActionURL string
	Category  string
	Data      map[string]any
	// Priority defaults to PriorityMedium.
	Priority int
	Class    Class
	// TTL defaults to the class TTL.
	TTL time.Duration
	// SendAt defers the first delivery attempt.
	SendAt time.Time
}

// item is the engine's view of a queue entry regardless of where it lives.
type item struct {
	id          string
	userID      string
	category    string
	title       string
	message     string
	actionURL   string
	data        map[string]any
	priority    int
	class       Class
	persisted   bool
	createdAt   time.Time
	scheduledAt time.Time
	expiresAt   time.Time
}

// Engine is the notification queue and delivery engine.
type Engine struct {
	store     store.Store
	transport Transport
	presence  Presence
	opts      Options
	mem       *memQueue
	now       func() time.Time
	log       zerolog.Logger

	// sem is the drain guard: holding its single slot means a pass is
	// running. Acquire before selecting entries, release after the last
	// delivery outcome is recorded.
	sem   chan struct{}
	kicks chan string

	mu         sync.Mutex
	processing map[string]int // id -> priority
}

// NewEngine wires an engine. presence may be nil when the store policy is
// "always".
func NewEngine(s store.Store, t Transport, p Presence, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{
		store:      s,
		transport:  t,
		presence:   p,
		opts:       opts,
		mem:        newMemQueue(),
		now:        func() time.Time { return time.Now().UTC() },
		log:        logging.With("engine"),
		sem:        make(chan struct{}, 1),
		kicks:      make(chan string, 64),
		processing: make(map[string]int),
	}
}

// Enqueue validates r and queues it for delivery. Persistent notifications
// are written to the offline store before Enqueue returns; delivery itself
// happens in a later drain pass and never fails the call.
func (e *Engine) Enqueue(ctx context.Context, r Request) (string, error) {
	if err := e.validate(ctx, &r); err != nil {
		return "", err
	}

	now := e.now()
	scheduled := now
	if r.SendAt.After(now) {
		scheduled = r.SendAt.UTC()
	}
	it := item{
		id:          uuid.NewString(),
		userID:      r.UserID,
		category:    r.Category,
		title:       r.Title,
		message:     r.Message,
		actionURL:   r.ActionURL,
		data:        r.Data,
		priority:    r.Priority,
		class:       r.Class,
		createdAt:   now,
		scheduledAt: scheduled,
		expiresAt:   scheduled.Add(r.TTL),
	}

	if r.Class == ClassPersistent && e.shouldStore(ctx, r.UserID) {
		row, err := toRow(it)
		if err != nil {
			return "", err
		}
		if err := e.store.CreateNotification(ctx, row); err != nil {
			return "", err
		}
		it.persisted = true
	} else {
		e.mem.add(it, now)
	}

	metrics.NotificationsEnqueued.WithLabelValues(string(r.Class)).Inc()
	e.log.Debug().
		Str("id", it.id).
		Str("user_id", it.userID).
		Str("class", string(it.class)).
		Bool("persisted", it.persisted).
		Int("priority", it.priority).
		Msg("notification enqueued")
	return it.id, nil
}

func (e *Engine) validate(ctx context.Context, r *Request) error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.Title = strings.TrimSpace(r.Title)
	if r.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	if r.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	if !r.Class.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidClass, r.Class)
	}
	if r.Priority == 0 {
		r.Priority = PriorityMedium
	}
	if r.Priority < PriorityLow || r.Priority > PriorityUrgent {
		return fmt.Errorf("%w: priority must be between %d and %d", ErrInvalidRequest, PriorityLow, PriorityUrgent)
	}
	if r.TTL < 0 {
		return fmt.Errorf("%w: ttl must not be negative", ErrInvalidRequest)
	}
	if r.TTL == 0 {
		if r.Class == ClassEphemeral {
			r.TTL = e.opts.EphemeralTTL
		} else {
			r.TTL = e.opts.PersistentTTL
		}
	}
	if r.Category == "" {
		r.Category = string(r.Class)
	}

	ok, err := e.store.UserExists(ctx, r.UserID)
	if err != nil {
		return fmt.Errorf("checking recipient: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUser, r.UserID)
	}
	return nil
}

// shouldStore applies the store policy for persistent notifications.
func (e *Engine) shouldStore(ctx context.Context, userID string) bool {
	if e.opts.StorePolicy != config.StorePolicyOfflineOnly || e.presence == nil {
		return true
	}
	return !e.presence.IsOnline(ctx, userID)
}

func toRow(it item) (*model.OfflineNotification, error) {
	var data datatypes.JSON
	if len(it.data) > 0 {
		raw, err := json.Marshal(it.data)
		if err != nil {
			return nil, fmt.Errorf("%w: data is not serializable: %v", ErrInvalidRequest, err)
		}
		data = datatypes.JSON(raw)
	}
	return &model.OfflineNotification{
		ID:          it.id,
		UserID:      it.userID,
		Category:    it.category,
		Title:       it.title,
		Message:     it.message,
		ActionURL:   it.actionURL,
		Data:        data,
		Priority:    it.priority,
		CreatedAt:   it.createdAt,
		ScheduledAt: it.scheduledAt,
		ExpiresAt:   it.expiresAt,
	}, nil
}

func fromRow(n model.OfflineNotification) item {
	var data map[string]any
	if len(n.Data) > 0 {
		_ = json.Unmarshal(n.Data, &data)
	}
	return item{
		id:          n.ID,
		userID:      n.UserID,
		category:    n.Category,
		title:       n.Title,
		message:     n.Message,
		actionURL:   n.ActionURL,
		data:        data,
		priority:    n.Priority,
		class:       ClassPersistent,
		persisted:   true,
		createdAt:   n.CreatedAt,
		scheduledAt: n.ScheduledAt,
		expiresAt:   n.ExpiresAt,
	}
}

// Kick asks the scheduler to drain userID's backlog soon. It never blocks;
// when the kick buffer is full the next interval pass covers the user.
func (e *Engine) Kick(userID string) {
	select {
	case e.kicks <- userID:
	default:
		e.log.Debug().Str("user_id", userID).Msg("kick buffer full, deferring to next interval")
	}
}

// ListForUser returns the caller's notification center.
func (e *Engine) ListForUser(ctx context.Context, userID string, limit int) ([]model.OfflineNotification, error) {
	return e.store.ListForUser(ctx, userID, e.now(), limit)
}
