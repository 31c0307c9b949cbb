package model

import "time"

// UserPresence is the last reported online state of a user. The stored flag
// alone is not authoritative; readers must also check LastSeenAt freshness.
type UserPresence struct {
	UserID     string    `gorm:"primaryKey;size:64"`
	IsOnline   bool      `gorm:"not null"`
	LastSeenAt time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// OnlineAt reports whether the row counts as online at now.
func (p UserPresence) OnlineAt(now time.Time, freshness time.Duration) bool {
	return p.IsOnline && now.Sub(p.LastSeenAt) <= freshness
}
