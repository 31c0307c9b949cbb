package model

import "time"

// User mirrors the account collection owned by the identity service. The
// pipeline only reads it to validate recipients.
type User struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Email     string    `gorm:"size:256"`
	Role      string    `gorm:"size:32"`
	CreatedAt time.Time
}

// Task mirrors the task collection; producers read it to build reminders.
type Task struct {
	ID         string `gorm:"primaryKey;size:64"`
	Title      string `gorm:"size:256;not null"`
	AssigneeID string `gorm:"size:64;index"`
	Status     string `gorm:"size:32;index"`
	DueDate    *time.Time
	CreatedAt  time.Time
}

// Task statuses that no longer need reminders.
const (
	TaskStatusCompleted = "completed"
	TaskStatusCancelled = "cancelled"
)
