package store

import (
	"strings"

	"github.com/jwalitptl/notify-hub/internal/model"
)

// Filter selects notifications by read state. Exactly one is active.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterUnread Filter = "unread"
	FilterRead   Filter = "read"
)

// View is the derived, render-ready slice of store state. It is recomputed
// on demand, never stored.
type View struct {
	Items      []model.Notification
	Filter     Filter
	Search     string
	Page       int
	PageSize   int
	TotalPages int
	// Filtered is the size of the filtered set before pagination.
	Filtered int
	// Total and Unread cover the whole list, ignoring the active filter.
	Total  int
	Unread int
}

// SetFilter activates a read-state filter and resets pagination.
func (s *Store) SetFilter(f Filter) {
	switch f {
	case FilterAll, FilterUnread, FilterRead:
	default:
		f = FilterAll
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filter == f {
		return
	}
	s.filter = f
	s.page = 1
}

// SetSearch sets the substring filter and resets pagination.
func (s *Store) SetSearch(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.search == term {
		return
	}
	s.search = term
	s.page = 1
}

// SetPage moves to the given page, clamped to the valid range for the
// current filtered set.
func (s *Store) SetPage(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := totalPages(len(filterItems(s.items, s.filter, s.search)), s.cfg.PageSize)
	if page < 1 {
		page = 1
	}
	if page > total {
		page = total
	}
	s.page = page
}

// View computes the current filtered, searched and paginated slice.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := filterItems(s.items, s.filter, s.search)
	pages := totalPages(len(filtered), s.cfg.PageSize)

	page := s.page
	if page > pages {
		page = pages
	}
	start := (page - 1) * s.cfg.PageSize
	end := start + s.cfg.PageSize
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}

	pageItems := make([]model.Notification, end-start)
	copy(pageItems, filtered[start:end])

	unread := 0
	for _, n := range s.items {
		if !n.Read {
			unread++
		}
	}

	return View{
		Items:      pageItems,
		Filter:     s.filter,
		Search:     s.search,
		Page:       page,
		PageSize:   s.cfg.PageSize,
		TotalPages: pages,
		Filtered:   len(filtered),
		Total:      len(s.items),
		Unread:     unread,
	}
}

// filterItems applies the read-state filter, then the case-insensitive
// substring match against title or message. Callers hold s.mu.
func filterItems(items []model.Notification, f Filter, search string) []model.Notification {
	term := strings.ToLower(strings.TrimSpace(search))
	var out []model.Notification
	for _, n := range items {
		switch f {
		case FilterUnread:
			if n.Read {
				continue
			}
		case FilterRead:
			if !n.Read {
				continue
			}
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(n.Title), term) &&
			!strings.Contains(strings.ToLower(n.Message), term) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func totalPages(n, pageSize int) int {
	if n == 0 {
		return 1
	}
	return (n + pageSize - 1) / pageSize
}
