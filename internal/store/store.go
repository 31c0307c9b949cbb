package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/devshad-01/social-task-sub000/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ReadyQuery selects notifications that are due for a delivery attempt.
type ReadyQuery struct {
	Now        time.Time
	MaxRetries int
	UserID     string // empty selects every user
	Limit      int
	// Subscribed skips rows whose user has no push subscription, so they
	// cannot fill the batch ahead of deliverable rows.
	Subscribed bool
}

// QueueCounts aggregates the persistent queue for the admin surface.
type QueueCounts struct {
	QueuedByPriority map[int]int64
	Delivered        int64
	Failed           int64
	AverageRetries   float64
}

// Queued sums QueuedByPriority.
func (c QueueCounts) Queued() int64 {
	var total int64
	for _, n := range c.QueuedByPriority {
		total += n
	}
	return total
}

// Store defines the interface for all database operations of the pipeline.
type Store interface {
	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	RemoveSubscription(ctx context.Context, userID, endpoint string) (bool, error)
	ListSubscriptions(ctx context.Context, userID string) ([]model.PushSubscription, error)
	PruneSubscription(ctx context.Context, endpoint string) error

	UpsertPresence(ctx context.Context, p *model.UserPresence) error
	GetPresence(ctx context.Context, userID string) (*model.UserPresence, error)

	CreateNotification(ctx context.Context, n *model.OfflineNotification) error
	SelectReady(ctx context.Context, q ReadyQuery) ([]model.OfflineNotification, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id string, at time.Time, cause string) error
	ListForUser(ctx context.Context, userID string, now time.Time, limit int) ([]model.OfflineNotification, error)
	QueueCounts(ctx context.Context, now time.Time, maxRetries int) (QueueCounts, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteDeliveredBefore(ctx context.Context, cutoff time.Time) (int64, error)

	UserExists(ctx context.Context, userID string) (bool, error)
	OverdueTasks(ctx context.Context, now time.Time) ([]model.Task, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// UserExists reports whether the account collection knows userID.
func (s *gormStore) UserExists(ctx context.Context, userID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// OverdueTasks returns open tasks whose due date has passed, oldest first.
func (s *gormStore) OverdueTasks(ctx context.Context, now time.Time) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.WithContext(ctx).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Where("assignee_id <> ''").
		Where("status NOT IN ?", []string{model.TaskStatusCompleted, model.TaskStatusCancelled}).
		Order("due_date ASC").
		Find(&tasks).Error
	return tasks, err
}
