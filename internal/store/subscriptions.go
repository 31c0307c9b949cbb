package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/devshad-01/social-task-sub000/internal/model"
)

// UpsertSubscription stores sub keyed by endpoint. An existing row for the
// same endpoint is reassigned to sub.UserID and gets the new keys. On return
// sub reflects the stored row.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	now := time.Now().UTC()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.CreatedAt = now
	sub.UpdatedAt = now

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth", "updated_at"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}

	var stored model.PushSubscription
	if err := s.db.WithContext(ctx).First(&stored, "endpoint = ?", sub.Endpoint).Error; err != nil {
		return fmt.Errorf("reload subscription: %w", err)
	}
	*sub = stored
	return nil
}

// RemoveSubscription deletes the endpoint only when userID owns it. The
// boolean reports whether a row was removed.
func (s *gormStore) RemoveSubscription(ctx context.Context, userID, endpoint string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Delete(&model.PushSubscription{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListSubscriptions returns every subscription owned by userID.
func (s *gormStore) ListSubscriptions(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&subs).Error
	return subs, err
}

// PruneSubscription drops an endpoint the push service reported as gone.
func (s *gormStore) PruneSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Where("endpoint = ?", endpoint).Delete(&model.PushSubscription{}).Error
}
