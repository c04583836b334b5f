// Package wire defines the message envelope spoken on the live channel.
//
// Every frame, in either direction, is a single JSON object. Server pushes
// carry an explicit Kind discriminator so the consumer never has to guess
// whether a batch is a history replay or an incremental delta; older servers
// that omit the discriminator fall back to a batch-size classification.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/notify-hub/internal/model"
)

// Kind discriminates server push frames.
type Kind string

const (
	KindReplay Kind = "replay"
	KindDelta  Kind = "delta"
	KindUnread Kind = "unread"
	KindAck    Kind = "ack"
)

// Topics the client subscribes to after connecting.
const (
	TopicUserNotifications = "user.notifications"
	TopicUserUnread        = "user.unread"
	TopicUserResponses     = "user.responses"
	TopicBroadcast         = "broadcast"
)

// Client-to-server operations.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpReplay      = "replay"
	OpMarkRead    = "read"
	OpMarkAllRead = "readAll"
)

// DefaultReplayThreshold is the fallback cutover between delta and replay for
// push frames that carry no Kind. Small batches merge, anything larger is
// treated as a full history replay.
const DefaultReplayThreshold = 5

// Push is a server-to-client frame.
type Push struct {
	Kind    Kind            `json:"kind,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Command is a client-to-server frame.
type Command struct {
	Op             string   `json:"op"`
	Topic          string   `json:"topic,omitempty"`
	NotificationID model.ID `json:"notificationId,omitempty"`
}

// Notifications decodes the payload of a notification push. The payload may
// be a single record or an array of records; both normalize to a slice.
func (p Push) Notifications() ([]model.Notification, error) {
	raw := bytes.TrimSpace(p.Payload)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var batch []model.Notification
		if err := json.Unmarshal(raw, &batch); err != nil {
			return nil, fmt.Errorf("decode notification batch: %w", err)
		}
		return batch, nil
	}
	var one model.Notification
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return []model.Notification{one}, nil
}

// UnreadCount decodes the payload of an unread-count push. ok is false when
// the payload is absent or null; such frames must not be forwarded.
func (p Push) UnreadCount() (count int, ok bool) {
	raw := bytes.TrimSpace(p.Payload)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	if err := json.Unmarshal(raw, &count); err != nil {
		return 0, false
	}
	return count, true
}

// Classify resolves the effective kind of a notification push carrying n
// records. An explicit kind always wins; frames without one are classified by
// batch size against threshold (<= 0 selects DefaultReplayThreshold).
func Classify(kind Kind, n, threshold int) Kind {
	if kind == KindReplay || kind == KindDelta {
		return kind
	}
	if threshold <= 0 {
		threshold = DefaultReplayThreshold
	}
	if n > threshold {
		return KindReplay
	}
	return KindDelta
}
