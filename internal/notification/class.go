package notification

import (
	"fmt"
	"strings"
)

// Class decides the durability of a notification.
type Class string

const (
	// ClassEphemeral is push-only with a short TTL and is never stored.
	ClassEphemeral Class = "ephemeral"
	// ClassPersistent is stored for the notification center and pushed.
	ClassPersistent Class = "persistent"
)

// Valid reports whether c is one of the known classes.
func (c Class) Valid() bool {
	return c == ClassEphemeral || c == ClassPersistent
}

// ParseClass converts a producer-supplied string into a Class.
func ParseClass(s string) (Class, error) {
	c := Class(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidClass, s)
	}
	return c, nil
}

// Priorities, higher is more urgent.
const (
	PriorityLow    = 1
	PriorityMedium = 2
	PriorityHigh   = 3
	PriorityUrgent = 4
)
