package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type NotificationType string

const (
	TypeSuccess NotificationType = "SUCCESS"
	TypeWarning NotificationType = "WARNING"
	TypeError   NotificationType = "ERROR"
	TypeInfo    NotificationType = "INFO"
)

// ID is an opaque notification identifier. Servers emit either a JSON string
// or a JSON number for it; both decode to the same value.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return fmt.Errorf("notification id must not be empty")
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("notification id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

type Notification struct {
	ID            ID               `json:"id"`
	Title         string           `json:"title"`
	Message       string           `json:"message"`
	Type          NotificationType `json:"type"`
	Read          bool             `json:"read"`
	CreatedAt     time.Time        `json:"createdAt"`
	ActionURL     string           `json:"actionUrl,omitempty"`
	RelatedEntity string           `json:"relatedEntity,omitempty"`
}

// Age renders a coarse relative timestamp for list display.
func (n Notification) Age(now time.Time) string {
	d := now.Sub(n.CreatedAt)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
