package push

import (
	"encoding/json"
	"time"
)

// Payload is the JSON document the service worker receives. The worker shows
// Title/Body, opens ActionURL on click and falls back to a route built from
// Data["taskId"] when ActionURL is empty.
type Payload struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Body      string         `json:"body"`
	ActionURL string         `json:"actionUrl,omitempty"`
	Data      map[string]any `json:"data"`
	Priority  int            `json:"priority"`
	Timestamp int64          `json:"timestamp"`
}

// NewPayload builds the wire payload. data is copied and always carries a
// "type" key.
func NewPayload(id, category, title, message, actionURL string, data map[string]any, priority int, createdAt time.Time) Payload {
	d := make(map[string]any, len(data)+1)
	for k, v := range data {
		d[k] = v
	}
	if _, ok := d["type"]; !ok {
		d["type"] = category
	}
	return Payload{
		ID:        id,
		Title:     title,
		Message:   message,
		Body:      message,
		ActionURL: actionURL,
		Data:      d,
		Priority:  priority,
		Timestamp: createdAt.UnixMilli(),
	}
}

// Marshal encodes the payload.
func (p Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}
