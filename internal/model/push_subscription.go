package model

import "time"

// PushSubscription holds one browser/device push registration. Endpoint is
// unique: re-subscribing the same endpoint updates the row in place.
type PushSubscription struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"index;size:64;not null" json:"userId"`
	Endpoint  string    `gorm:"uniqueIndex;size:1024;not null" json:"endpoint"`
	P256DH    string    `gorm:"column:p256dh;not null" json:"p256dh"`
	Auth      string    `gorm:"not null" json:"auth"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}
