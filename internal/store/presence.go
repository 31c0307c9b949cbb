package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/devshad-01/social-task-sub000/internal/model"
)

// UpsertPresence writes the presence row for p.UserID.
func (s *gormStore) UpsertPresence(ctx context.Context, p *model.UserPresence) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_online", "last_seen_at", "updated_at"}),
	}).Create(p).Error
}

// GetPresence loads the presence row, or ErrNotFound.
func (s *gormStore) GetPresence(ctx context.Context, userID string) (*model.UserPresence, error) {
	var p model.UserPresence
	if err := s.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
