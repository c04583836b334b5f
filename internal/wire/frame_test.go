package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-hub/internal/model"
)

func TestNotificationsSingleRecordNormalizesToSlice(t *testing.T) {
	push := Push{
		Topic:   TopicUserNotifications,
		Payload: json.RawMessage(`{"id":"n1","title":"Offer approved","message":"PO-17 approved","type":"SUCCESS","read":false,"createdAt":"2026-08-30T10:00:00Z"}`),
	}

	batch, err := push.Notifications()
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, model.ID("n1"), batch[0].ID)
	assert.Equal(t, model.TypeSuccess, batch[0].Type)
}

func TestNotificationsArrayPayload(t *testing.T) {
	push := Push{
		Kind:    KindReplay,
		Payload: json.RawMessage(`[{"id":1,"title":"a","message":"m","type":"INFO","read":true,"createdAt":"2026-08-30T10:00:00Z"},{"id":2,"title":"b","message":"m","type":"ERROR","read":false,"createdAt":"2026-08-30T11:00:00Z"}]`),
	}

	batch, err := push.Notifications()
	require.NoError(t, err)
	require.Len(t, batch, 2)
	// Numeric ids decode to the same opaque value as strings.
	assert.Equal(t, model.ID("1"), batch[0].ID)
	assert.Equal(t, model.ID("2"), batch[1].ID)
	assert.Equal(t, time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC), batch[1].CreatedAt)
}

func TestNotificationsEmptyPayload(t *testing.T) {
	for _, payload := range []string{"", "null"} {
		batch, err := Push{Payload: json.RawMessage(payload)}.Notifications()
		require.NoError(t, err)
		assert.Empty(t, batch)
	}
}

func TestNotificationsMalformedPayload(t *testing.T) {
	_, err := Push{Payload: json.RawMessage(`{"id":`)}.Notifications()
	assert.Error(t, err)
}

func TestUnreadCountGuardsEmptyFrames(t *testing.T) {
	count, ok := Push{Kind: KindUnread, Payload: json.RawMessage(`7`)}.UnreadCount()
	assert.True(t, ok)
	assert.Equal(t, 7, count)

	_, ok = Push{Kind: KindUnread}.UnreadCount()
	assert.False(t, ok)

	_, ok = Push{Kind: KindUnread, Payload: json.RawMessage(`null`)}.UnreadCount()
	assert.False(t, ok)

	_, ok = Push{Kind: KindUnread, Payload: json.RawMessage(`"oops"`)}.UnreadCount()
	assert.False(t, ok)
}

func TestClassifyExplicitKindWins(t *testing.T) {
	// An explicit kind overrides the batch-size fallback in both directions.
	assert.Equal(t, KindReplay, Classify(KindReplay, 1, 0))
	assert.Equal(t, KindDelta, Classify(KindDelta, 100, 0))
}

func TestClassifyFallbackByBatchSize(t *testing.T) {
	assert.Equal(t, KindDelta, Classify("", 5, 0))
	assert.Equal(t, KindReplay, Classify("", 6, 0))
	assert.Equal(t, KindDelta, Classify("", 0, 0))

	// Custom threshold replaces the default cutover.
	assert.Equal(t, KindDelta, Classify("", 6, 10))
	assert.Equal(t, KindReplay, Classify("", 11, 10))
}

func TestCommandMarshal(t *testing.T) {
	raw, err := json.Marshal(Command{Op: OpMarkRead, NotificationID: "n9"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"read","notificationId":"n9"}`, string(raw))

	raw, err = json.Marshal(Command{Op: OpMarkAllRead})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"readAll"}`, string(raw))
}
