package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/devshad-01/social-task-sub000/internal/model"
)

// CreateNotification inserts a persistent notification.
func (s *gormStore) CreateNotification(ctx context.Context, n *model.OfflineNotification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create offline notification: %w", err)
	}
	return nil
}

// pending restricts a query to undelivered rows that have not expired and
// still have retries left.
func pending(tx *gorm.DB, now time.Time, maxRetries int) *gorm.DB {
	return tx.Where("is_delivered = ? AND expires_at > ? AND retry_count <= ?", false, now, maxRetries)
}

// SelectReady returns the rows due for delivery ordered by priority (high
// first) and then creation time (oldest first).
func (s *gormStore) SelectReady(ctx context.Context, q ReadyQuery) ([]model.OfflineNotification, error) {
	tx := pending(s.db.WithContext(ctx).Model(&model.OfflineNotification{}), q.Now, q.MaxRetries).
		Where("scheduled_at <= ?", q.Now)
	if q.UserID != "" {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.Subscribed {
		tx = tx.Where("EXISTS (SELECT 1 FROM push_subscriptions ps WHERE ps.user_id = offline_notifications.user_id)")
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []model.OfflineNotification
	err := tx.Order("priority DESC").Order("created_at ASC").Order("id ASC").Find(&rows).Error
	return rows, err
}

// MarkDelivered flags the notification as delivered. A row that is already
// delivered keeps its original DeliveredAt.
func (s *gormStore) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&model.OfflineNotification{}).
		Where("id = ? AND is_delivered = ?", id, false).
		Updates(map[string]any{"is_delivered": true, "delivered_at": at}).Error
}

// RecordFailure bumps the retry counter after a transient delivery failure.
func (s *gormStore) RecordFailure(ctx context.Context, id string, at time.Time, cause string) error {
	return s.db.WithContext(ctx).
		Model(&model.OfflineNotification{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_retry_at": at,
			"last_error":    cause,
		}).Error
}

// ListForUser returns the caller's notification center: unexpired rows,
// newest first.
func (s *gormStore) ListForUser(ctx context.Context, userID string, now time.Time, limit int) ([]model.OfflineNotification, error) {
	tx := s.db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("created_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var rows []model.OfflineNotification
	err := tx.Find(&rows).Error
	return rows, err
}

// QueueCounts aggregates queue state for the admin statistics endpoint.
func (s *gormStore) QueueCounts(ctx context.Context, now time.Time, maxRetries int) (QueueCounts, error) {
	counts := QueueCounts{QueuedByPriority: make(map[int]int64)}
	db := s.db.WithContext(ctx)

	type priorityRow struct {
		Priority int
		Count    int64
	}
	var rows []priorityRow
	if err := pending(db.Model(&model.OfflineNotification{}), now, maxRetries).
		Select("priority, COUNT(*) AS count").
		Group("priority").
		Scan(&rows).Error; err != nil {
		return counts, fmt.Errorf("count queued: %w", err)
	}
	for _, r := range rows {
		counts.QueuedByPriority[r.Priority] = r.Count
	}

	if err := db.Model(&model.OfflineNotification{}).
		Where("is_delivered = ?", true).
		Count(&counts.Delivered).Error; err != nil {
		return counts, fmt.Errorf("count delivered: %w", err)
	}

	if err := db.Model(&model.OfflineNotification{}).
		Where("is_delivered = ? AND retry_count > ?", false, maxRetries).
		Count(&counts.Failed).Error; err != nil {
		return counts, fmt.Errorf("count failed: %w", err)
	}

	var avg float64
	if err := db.Model(&model.OfflineNotification{}).
		Select("COALESCE(AVG(retry_count), 0)").
		Row().Scan(&avg); err != nil {
		return counts, fmt.Errorf("average retries: %w", err)
	}
	counts.AverageRetries = avg

	return counts, nil
}

// DeleteExpired removes every row past its expiry, delivered or not.
func (s *gormStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&model.OfflineNotification{})
	return res.RowsAffected, res.Error
}

// DeleteDeliveredBefore removes delivered rows older than cutoff.
func (s *gormStore) DeleteDeliveredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("is_delivered = ? AND delivered_at < ?", true, cutoff).
		Delete(&model.OfflineNotification{})
	return res.RowsAffected, res.Error
}
