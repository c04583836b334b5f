// Package store owns the in-memory notification list for a session. It
// reconciles two independent delivery paths, the one-shot bulk fetch and the
// live channel, into one deduplicated list sorted by creation time, and
// executes user commands with optimistic local mutation.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jwalitptl/notify-hub/internal/feedback"
	"github.com/jwalitptl/notify-hub/internal/model"
	"github.com/jwalitptl/notify-hub/internal/wire"
	"github.com/jwalitptl/notify-hub/pkg/logger"
	"github.com/jwalitptl/notify-hub/pkg/metrics"
)

// API is the one-shot request/response surface the store depends on.
type API interface {
	List(ctx context.Context) ([]model.Notification, error)
	MarkRead(ctx context.Context, id model.ID) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id model.ID) error
}

// Live is the push surface. Registration happens before Connect so no frame
// is lost between subscription and handler wiring.
type Live interface {
	Connect(ctx context.Context, token string) error
	Disconnect()
	OnNotification(fn func(kind wire.Kind, batch []model.Notification))
	OnUnread(fn func(count int))
	OnStatus(fn func(connected bool))
	MarkRead(id model.ID) error
	MarkAllRead() error
}

type Config struct {
	PageSize int
	// ReplayThreshold is the fallback batch-size cutover for push frames
	// without an explicit kind; zero selects wire.DefaultReplayThreshold.
	ReplayThreshold int
}

const defaultPageSize = 10

type Store struct {
	api     API
	live    Live
	toasts  feedback.Toaster
	confirm feedback.Confirmer
	logger  *logger.Logger
	metrics *metrics.Metrics
	cfg     Config

	mu            sync.Mutex
	items         []model.Notification
	serverUnread  int
	liveConnected bool
	filter        Filter
	search        string
	page          int

	liveOnce sync.Once
}

func New(api API, live Live, toasts feedback.Toaster, confirm feedback.Confirmer,
	log *logger.Logger, m *metrics.Metrics, cfg Config) *Store {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	return &Store{
		api:     api,
		live:    live,
		toasts:  toasts,
		confirm: confirm,
		logger:  log,
		metrics: m,
		cfg:     cfg,
		filter:  FilterAll,
		page:    1,
	}
}

// Load issues the one-shot bulk fetch and adopts the result as the
// authoritative baseline. On failure the list is emptied and an error toast
// raised; the caller proceeds to StartLive regardless.
func (s *Store) Load(ctx context.Context) error {
	list, err := s.api.List(ctx)
	if err != nil {
		s.mu.Lock()
		s.items = nil
		s.mu.Unlock()
		s.metrics.ListSize.Set(0)
		s.logger.Error(err, "bulk notification fetch failed")
		s.toasts.Toast(feedback.LevelError, "Failed to load notifications")
		return err
	}

	sortByCreatedDesc(list)
	s.mu.Lock()
	s.items = list
	size := len(list)
	s.mu.Unlock()
	s.metrics.ListSize.Set(float64(size))
	s.logger.Debug("notification baseline loaded", "count", size)
	return nil
}

// StartLive wires the push callbacks and connects the live channel. Guarded
// so repeated calls within a session run the initialization exactly once; a
// failed connect is surfaced as a warning toast and left to the transport's
// own reconnect policy, never retried here.
func (s *Store) StartLive(ctx context.Context, token string) {
	s.liveOnce.Do(func() {
		s.live.OnNotification(s.applyBatch)
		s.live.OnUnread(s.setServerUnread)
		s.live.OnStatus(s.setLiveStatus)
		if err := s.live.Connect(ctx, token); err != nil {
			s.logger.Warn("live channel connect failed", "error", err)
			s.toasts.Toast(feedback.LevelWarning, "Live notifications unavailable")
		}
	})
}

// Close tears the live channel down. In-flight one-shot requests are not
// cancelled; their results are discarded by the owning context.
func (s *Store) Close() {
	s.live.Disconnect()
}

// applyBatch is the single merge point for everything the push channel
// delivers, replay batches and incremental deltas alike.
func (s *Store) applyBatch(kind wire.Kind, batch []model.Notification) {
	kind = wire.Classify(kind, len(batch), s.cfg.ReplayThreshold)

	s.mu.Lock()
	var fresh []model.Notification
	if kind == wire.KindReplay {
		// Replay replaces the baseline wholesale. The batch itself may carry
		// duplicate ids (a server-side race between history and a fresh push);
		// keep the first occurrence so the list invariant of one record per id
		// holds no matter what arrives.
		replaced := make([]model.Notification, 0, len(batch))
		seen := make(map[model.ID]struct{}, len(batch))
		for _, n := range batch {
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
			replaced = append(replaced, n)
		}
		sortByCreatedDesc(replaced)
		s.items = replaced
	} else {
		// Delta: keep only ids we do not already hold. A duplicate push never
		// updates in place; the last bulk load or local optimistic write
		// stays authoritative for that id.
		seen := make(map[model.ID]struct{}, len(s.items))
		for _, n := range s.items {
			seen[n.ID] = struct{}{}
		}
		for _, n := range batch {
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
			fresh = append(fresh, n)
		}
		if len(fresh) > 0 {
			s.items = append(fresh, s.items...)
			sortByCreatedDesc(s.items)
		}
	}
	size := len(s.items)
	s.mu.Unlock()

	s.metrics.MergesApplied.WithLabelValues(string(kind)).Inc()
	s.metrics.ListSize.Set(float64(size))

	switch {
	case kind == wire.KindReplay:
		s.logger.Debug("replay adopted", "count", size)
	case len(fresh) == 1:
		s.toasts.Toast(feedback.LevelInfo, "New: "+fresh[0].Title)
	case len(fresh) > 1:
		s.toasts.Toast(feedback.LevelInfo, fmt.Sprintf("%d new notifications", len(fresh)))
	}
}

func (s *Store) setServerUnread(count int) {
	s.mu.Lock()
	s.serverUnread = count
	s.mu.Unlock()
}

func (s *Store) setLiveStatus(connected bool) {
	s.mu.Lock()
	s.liveConnected = connected
	s.mu.Unlock()
	s.logger.Debug("live channel status", "connected", connected)
}

// LiveConnected reports the last status delivered by the live channel.
func (s *Store) LiveConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveConnected
}

// ServerUnread reports the unread count last pushed by the server, which may
// trail the locally derived one.
func (s *Store) ServerUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverUnread
}

// ToggleRead flips the read flag locally first, then mirrors the change to
// the server: live channel when connected, one-shot otherwise. A failed
// mirror keeps the optimistic flip; last local write wins until the next
// bulk load.
func (s *Store) ToggleRead(ctx context.Context, id model.ID) {
	s.mu.Lock()
	idx := indexOf(s.items, id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.items[idx].Read = !s.items[idx].Read
	nowRead := s.items[idx].Read
	connected := s.liveConnected
	s.mu.Unlock()

	if !nowRead {
		// The server has no mark-unread command on either path; the flip back
		// to unread is local-only until the next bulk load.
		return
	}

	var err error
	path := "http"
	if connected {
		path = "live"
		err = s.live.MarkRead(id)
	} else {
		err = s.api.MarkRead(ctx, id)
	}
	if err != nil {
		s.metrics.CommandsFailed.WithLabelValues("mark_read").Inc()
		s.logger.Error(err, "mark-read mirror failed", "id", string(id))
		s.toasts.Toast(feedback.LevelError, "Failed to update notification")
		return
	}
	s.metrics.CommandsSent.WithLabelValues("mark_read", path).Inc()
}

// Delete asks for confirmation, then removes the notification server-side
// before touching local state. Unlike ToggleRead there is no optimism here:
// on failure the record stays.
func (s *Store) Delete(ctx context.Context, id model.ID) {
	if !s.confirm.Confirm("Delete this notification?") {
		return
	}

	if err := s.api.Delete(ctx, id); err != nil {
		s.metrics.CommandsFailed.WithLabelValues("delete").Inc()
		s.logger.Error(err, "delete failed", "id", string(id))
		s.toasts.Toast(feedback.LevelError, "Failed to delete notification")
		return
	}
	s.metrics.CommandsSent.WithLabelValues("delete", "http").Inc()

	s.mu.Lock()
	s.items = removeID(s.items, id)
	size := len(s.items)
	s.mu.Unlock()
	s.metrics.ListSize.Set(float64(size))
}

// MarkAllRead issues one mark-all command and optimistically flags every
// record in the store as read. The success toast counts only the unread
// records within the active filter, while the command and the optimistic
// write cover everything; that asymmetry mirrors the server-side scope of
// the bulk command.
func (s *Store) MarkAllRead(ctx context.Context) {
	s.mu.Lock()
	scoped := 0
	for _, n := range filterItems(s.items, s.filter, s.search) {
		if !n.Read {
			scoped++
		}
	}
	if scoped == 0 {
		s.mu.Unlock()
		s.toasts.Toast(feedback.LevelInfo, "No unread notifications")
		return
	}
	for i := range s.items {
		s.items[i].Read = true
	}
	connected := s.liveConnected
	s.mu.Unlock()

	var err error
	path := "http"
	if connected {
		path = "live"
		err = s.live.MarkAllRead()
	} else {
		err = s.api.MarkAllRead(ctx)
	}
	if err != nil {
		// Optimistic all-read is retained; no rollback.
		s.metrics.CommandsFailed.WithLabelValues("mark_all_read").Inc()
		s.logger.Error(err, "mark-all-read mirror failed")
		s.toasts.Toast(feedback.LevelError, "Failed to mark notifications as read")
		return
	}
	s.metrics.CommandsSent.WithLabelValues("mark_all_read", path).Inc()
	s.toasts.Toast(feedback.LevelSuccess,
		fmt.Sprintf("Marked %d unread notifications as read", scoped))
}

// ClearAll asks for confirmation, then deletes the currently filtered
// records one by one. The first failure aborts the remainder: records
// already deleted stay removed, the rest stay put, and the toast does not
// report partial progress.
func (s *Store) ClearAll(ctx context.Context) {
	if !s.confirm.Confirm("Delete all notifications in this view?") {
		return
	}

	s.mu.Lock()
	scoped := filterItems(s.items, s.filter, s.search)
	targets := make([]model.ID, 0, len(scoped))
	for _, n := range scoped {
		targets = append(targets, n.ID)
	}
	s.mu.Unlock()

	cleared := 0
	for _, id := range targets {
		if err := s.api.Delete(ctx, id); err != nil {
			s.metrics.CommandsFailed.WithLabelValues("clear_all").Inc()
			s.logger.Error(err, "clear-all aborted", "id", string(id), "cleared", cleared)
			s.toasts.Toast(feedback.LevelError, "Failed to clear notifications")
			return
		}
		s.mu.Lock()
		s.items = removeID(s.items, id)
		size := len(s.items)
		s.mu.Unlock()
		s.metrics.ListSize.Set(float64(size))
		cleared++
	}
	s.metrics.CommandsSent.WithLabelValues("clear_all", "http").Inc()
	if cleared > 0 {
		s.toasts.Toast(feedback.LevelSuccess, fmt.Sprintf("Cleared %d notifications", cleared))
	}
}

func indexOf(items []model.Notification, id model.ID) int {
	for i, n := range items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func removeID(items []model.Notification, id model.ID) []model.Notification {
	out := items[:0]
	for _, n := range items {
		if n.ID != id {
			out = append(out, n)
		}
	}
	return out
}

func sortByCreatedDesc(items []model.Notification) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
