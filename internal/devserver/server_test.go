package devserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-hub/internal/api"
	"github.com/jwalitptl/notify-hub/internal/feedback"
	"github.com/jwalitptl/notify-hub/internal/live"
	"github.com/jwalitptl/notify-hub/internal/model"
	"github.com/jwalitptl/notify-hub/internal/store"
	"github.com/jwalitptl/notify-hub/internal/wire"
	"github.com/jwalitptl/notify-hub/pkg/logger"
	"github.com/jwalitptl/notify-hub/pkg/metrics"
)

type integration struct {
	server *Server
	http   *httptest.Server
	token  string
}

func newIntegration(t *testing.T, userID string) *integration {
	t.Helper()
	cfg := &Config{
		JWTSecret:    "test-secret",
		TokenTTL:     time.Hour,
		CommandRate:  100,
		CommandBurst: 100,
	}
	server := NewServer(cfg, logger.Nop())
	httpSrv := httptest.NewServer(server.Handler())
	t.Cleanup(httpSrv.Close)

	token, err := IssueToken(cfg.JWTSecret, userID, cfg.TokenTTL)
	require.NoError(t, err)

	return &integration{server: server, http: httpSrv, token: token}
}

func (it *integration) wsURL() string {
	return "ws" + strings.TrimPrefix(it.http.URL, "http") + "/api/v1/ws"
}

func (it *integration) apiClient(t *testing.T) *api.Client {
	t.Helper()
	return api.NewClient(it.http.URL, it.token, logger.Nop())
}

func TestRESTRequiresAuth(t *testing.T) {
	it := newIntegration(t, "alice")

	resp, err := http.Get(it.http.URL + "/api/v1/notifications")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A valid token passes.
	_, err = it.apiClient(t).List(context.Background())
	assert.NoError(t, err)
}

func TestRESTRoundTrip(t *testing.T) {
	it := newIntegration(t, "alice")
	client := it.apiClient(t)
	ctx := context.Background()

	stored := it.server.Inject("alice", model.Notification{
		Title:   "Offer approved",
		Message: "PO-17 was approved",
		Type:    model.TypeSuccess,
	})

	list, err := client.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, stored.ID, list[0].ID)
	assert.False(t, list[0].Read)

	require.NoError(t, client.MarkRead(ctx, stored.ID))
	list, err = client.List(ctx)
	require.NoError(t, err)
	assert.True(t, list[0].Read)

	require.NoError(t, client.Delete(ctx, stored.ID))
	list, err = client.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	// Deleting again is a 404.
	assert.Error(t, client.Delete(ctx, stored.ID))
}

func TestCreateNotificationValidation(t *testing.T) {
	it := newIntegration(t, "alice")

	req, _ := http.NewRequest(http.MethodPost, it.http.URL+"/api/v1/notifications",
		strings.NewReader(`{"message":"missing title"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+it.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWSRequiresAuth(t *testing.T) {
	it := newIntegration(t, "alice")

	client := live.NewClient(live.Config{URL: it.wsURL()},
		logger.Nop(), metrics.NewMetrics("test", prometheus.NewRegistry()))
	err := client.Connect(context.Background(), "")
	assert.Error(t, err)
}

// waitSessionReady blocks until the user's live session has processed its
// whole subscription bootstrap. The client reports "connected" as soon as the
// frames are written, which can be ahead of the server handling them.
func waitSessionReady(t *testing.T, it *integration, userID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, sess := range it.server.hub.snapshot() {
			// The broadcast topic is the last subscribe frame sent.
			if sess.userID == userID && sess.subscribed(wire.TopicBroadcast) {
				return true
			}
		}
		return false
	}, 3*time.Second, 5*time.Millisecond)
}

func newFeed(t *testing.T, it *integration) (*store.Store, *feedback.Recorder) {
	t.Helper()
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	liveClient := live.NewClient(live.Config{
		URL:            it.wsURL(),
		ReconnectDelay: 20 * time.Millisecond,
	}, logger.Nop(), m)

	toasts := &feedback.Recorder{}
	feed := store.New(it.apiClient(t), liveClient, toasts, feedback.AutoConfirm(true),
		logger.Nop(), m, store.Config{PageSize: 20})
	t.Cleanup(feed.Close)
	return feed, toasts
}

func TestFeedReceivesLivePushes(t *testing.T) {
	it := newIntegration(t, "alice")
	feed, toasts := newFeed(t, it)
	ctx := context.Background()

	require.NoError(t, feed.Load(ctx))
	feed.StartLive(ctx, it.token)
	require.Eventually(t, feed.LiveConnected, 3*time.Second, 10*time.Millisecond)
	waitSessionReady(t, it, "alice")

	it.server.Inject("alice", model.Notification{
		Title:   "Vacancy closed",
		Message: "Backend engineer position filled",
	})

	require.Eventually(t, func() bool {
		return feed.View().Total == 1
	}, 3*time.Second, 10*time.Millisecond)

	view := feed.View()
	assert.Equal(t, "Vacancy closed", view.Items[0].Title)
	assert.Equal(t, 1, view.Unread)

	require.Eventually(t, func() bool {
		for _, toast := range toasts.Toasts() {
			if toast.Message == "New: Vacancy closed" {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)

	// The server's unread-count push made it through as well.
	require.Eventually(t, func() bool {
		return feed.ServerUnread() == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestFeedAdoptsReplayOnConnect(t *testing.T) {
	it := newIntegration(t, "alice")
	it.server.Inject("alice", model.Notification{Title: "first", Message: "m"})
	it.server.Inject("alice", model.Notification{Title: "second", Message: "m"})

	feed, _ := newFeed(t, it)
	ctx := context.Background()

	// Skip the bulk fetch entirely; the replay alone must establish the
	// baseline, carrying its explicit kind even for a small batch.
	feed.StartLive(ctx, it.token)

	require.Eventually(t, func() bool {
		return feed.View().Total == 2
	}, 3*time.Second, 10*time.Millisecond)
}

func TestLiveMarkReadRoundTrip(t *testing.T) {
	it := newIntegration(t, "alice")
	stored := it.server.Inject("alice", model.Notification{Title: "t", Message: "m"})

	feed, _ := newFeed(t, it)
	ctx := context.Background()

	require.NoError(t, feed.Load(ctx))
	feed.StartLive(ctx, it.token)
	require.Eventually(t, feed.LiveConnected, 3*time.Second, 10*time.Millisecond)

	// Mirrors over the live channel since it is connected.
	feed.ToggleRead(ctx, stored.ID)

	require.Eventually(t, func() bool {
		list, err := it.apiClient(t).List(ctx)
		return err == nil && len(list) == 1 && list[0].Read
	}, 3*time.Second, 10*time.Millisecond)

	// The read-state change pushes a fresh unread count of zero; observe it
	// via a later positive count after a new injection.
	it.server.Inject("alice", model.Notification{Title: "t2", Message: "m"})
	require.Eventually(t, func() bool {
		return feed.ServerUnread() == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestBroadcastReachesAllUsers(t *testing.T) {
	it := newIntegration(t, "alice")
	bobToken, err := IssueToken("test-secret", "bob", time.Hour)
	require.NoError(t, err)

	m := metrics.NewMetrics("bob", prometheus.NewRegistry())
	bobLive := live.NewClient(live.Config{URL: it.wsURL()}, logger.Nop(), m)
	bobToasts := &feedback.Recorder{}
	bobFeed := store.New(api.NewClient(it.http.URL, bobToken, logger.Nop()), bobLive,
		bobToasts, feedback.AutoConfirm(true), logger.Nop(), m, store.Config{PageSize: 20})
	t.Cleanup(bobFeed.Close)

	bobFeed.StartLive(context.Background(), bobToken)
	require.Eventually(t, bobFeed.LiveConnected, 3*time.Second, 10*time.Millisecond)
	waitSessionReady(t, it, "bob")

	// Alice posts a broadcast over HTTP; bob's live session receives it.
	req, _ := http.NewRequest(http.MethodPost, it.http.URL+"/api/v1/notifications",
		strings.NewReader(`{"title":"Maintenance window","message":"Sunday 02:00 UTC","type":"WARNING","broadcast":true}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+it.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.Eventually(t, func() bool {
		view := bobFeed.View()
		return view.Total == 1 && view.Items[0].Title == "Maintenance window"
	}, 3*time.Second, 10*time.Millisecond)
}
