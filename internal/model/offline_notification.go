package model

import (
	"time"

	"gorm.io/datatypes"
)

// OfflineNotification is a persistent-class notification. It backs both the
// in-app notification center and the push delivery queue.
type OfflineNotification struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	UserID      string         `gorm:"size:64;not null;index:idx_offline_user_created,priority:1;index:idx_offline_user_delivered,priority:1" json:"userId"`
	Category    string         `gorm:"size:64" json:"category"`
	Title       string         `gorm:"size:256;not null" json:"title"`
	Message     string         `gorm:"type:text" json:"message"`
	ActionURL   string         `gorm:"size:1024" json:"actionUrl,omitempty"`
	Data        datatypes.JSON `json:"data,omitempty"`
	Priority    int            `gorm:"not null;default:2;index" json:"priority"`
	IsDelivered bool           `gorm:"not null;default:false;index:idx_offline_user_delivered,priority:2" json:"isDelivered"`
	CreatedAt   time.Time      `gorm:"not null;index:idx_offline_user_created,priority:2" json:"createdAt"`
	ScheduledAt time.Time      `gorm:"not null" json:"scheduledAt"`
	ExpiresAt   time.Time      `gorm:"not null;index" json:"expiresAt"`
	RetryCount  int            `gorm:"not null;default:0" json:"retryCount"`
	LastRetryAt *time.Time     `json:"lastRetryAt,omitempty"`
	LastError   string         `gorm:"type:text" json:"lastError,omitempty"`
	DeliveredAt *time.Time     `json:"deliveredAt,omitempty"`
}

