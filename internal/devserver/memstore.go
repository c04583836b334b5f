package devserver

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-hub/internal/model"
)

// memStore holds per-user notification lists. The dev server is deliberately
// memory-only so tests run without external infrastructure.
type memStore struct {
	mu    sync.Mutex
	byUID map[string][]model.Notification
}

func newMemStore() *memStore {
	return &memStore{byUID: make(map[string][]model.Notification)}
}

// Add stores a notification for userID, assigning an id and timestamp when
// absent, and returns the stored record.
func (m *memStore) Add(userID string, n model.Notification) model.Notification {
	if n.ID == "" {
		n.ID = model.ID(uuid.NewString())
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.Type == "" {
		n.Type = model.TypeInfo
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byUID[userID] = append(m.byUID[userID], n)
	return n
}

// List returns the user's notifications, newest first.
func (m *memStore) List(userID string) []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.byUID[userID]
	out := make([]model.Notification, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *memStore) MarkRead(userID string, id model.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.byUID[userID]
	for i := range list {
		if list[i].ID == id {
			list[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead flags everything read and returns the number of records that
// changed.
func (m *memStore) MarkAllRead(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := 0
	list := m.byUID[userID]
	for i := range list {
		if !list[i].Read {
			list[i].Read = true
			changed++
		}
	}
	return changed
}

func (m *memStore) Delete(userID string, id model.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.byUID[userID]
	for i := range list {
		if list[i].ID == id {
			m.byUID[userID] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

func (m *memStore) Unread(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.byUID[userID] {
		if !n.Read {
			count++
		}
	}
	return count
}
