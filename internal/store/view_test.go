package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-hub/internal/model"
	"github.com/jwalitptl/notify-hub/internal/wire"
)

func seedView(t *testing.T, f *fixture, count int) {
	t.Helper()
	batch := make([]model.Notification, count)
	for i := range batch {
		batch[i] = notif(fmt.Sprintf("n%02d", i), i%2 == 0, t0.Add(time.Duration(i)*time.Minute))
	}
	f.store.applyBatch(wire.KindReplay, batch)
}

func TestViewFilterByReadState(t *testing.T) {
	f := newFixture(t, Config{PageSize: 100})
	seedView(t, f, 6) // even indexes read, odd unread

	view := f.store.View()
	assert.Equal(t, 6, view.Filtered)
	assert.Equal(t, 3, view.Unread)

	f.store.SetFilter(FilterUnread)
	view = f.store.View()
	assert.Equal(t, 3, view.Filtered)
	for _, n := range view.Items {
		assert.False(t, n.Read)
	}

	f.store.SetFilter(FilterRead)
	view = f.store.View()
	assert.Equal(t, 3, view.Filtered)
	for _, n := range view.Items {
		assert.True(t, n.Read)
	}
}

func TestViewSearchMatchesTitleOrMessage(t *testing.T) {
	f := newFixture(t, Config{PageSize: 100})
	f.store.applyBatch(wire.KindReplay, []model.Notification{
		{ID: "a", Title: "Purchase order approved", Message: "PO-17", CreatedAt: t0.Add(2 * time.Minute)},
		{ID: "b", Title: "Vacancy closed", Message: "the ORDER was cancelled", CreatedAt: t0.Add(time.Minute)},
		{ID: "c", Title: "Warehouse sync", Message: "stock updated", CreatedAt: t0},
	})

	f.store.SetSearch("order")
	view := f.store.View()
	// Case-insensitive, matching either field.
	assert.Equal(t, []string{"a", "b"}, ids(view.Items))

	f.store.SetSearch("  ")
	view = f.store.View()
	assert.Equal(t, 3, view.Filtered)
}

func TestViewPagination(t *testing.T) {
	f := newFixture(t, Config{PageSize: 2})
	seedView(t, f, 5)

	view := f.store.View()
	assert.Equal(t, 1, view.Page)
	assert.Equal(t, 3, view.TotalPages)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "n04", string(view.Items[0].ID)) // newest first

	f.store.SetPage(3)
	view = f.store.View()
	require.Len(t, view.Items, 1)
	assert.Equal(t, "n00", string(view.Items[0].ID))

	// Out-of-range pages clamp.
	f.store.SetPage(99)
	assert.Equal(t, 3, f.store.View().Page)
	f.store.SetPage(-1)
	assert.Equal(t, 1, f.store.View().Page)
}

func TestFilterAndSearchResetPagination(t *testing.T) {
	f := newFixture(t, Config{PageSize: 2})
	seedView(t, f, 6)

	f.store.SetPage(3)
	require.Equal(t, 3, f.store.View().Page)

	f.store.SetFilter(FilterUnread)
	assert.Equal(t, 1, f.store.View().Page)

	f.store.SetPage(2)
	require.Equal(t, 2, f.store.View().Page)

	f.store.SetSearch("n0")
	assert.Equal(t, 1, f.store.View().Page)

	// Re-applying the same filter or term does not reset.
	f.store.SetPage(2)
	f.store.SetFilter(FilterUnread)
	f.store.SetSearch("n0")
	assert.Equal(t, 2, f.store.View().Page)
}

func TestViewEmptyList(t *testing.T) {
	f := newFixture(t, Config{PageSize: 10})
	view := f.store.View()
	assert.Empty(t, view.Items)
	assert.Equal(t, 1, view.Page)
	assert.Equal(t, 1, view.TotalPages)
	assert.Equal(t, 0, view.Total)
}

func TestViewUnknownFilterFallsBackToAll(t *testing.T) {
	f := newFixture(t, Config{PageSize: 10})
	seedView(t, f, 2)

	f.store.SetFilter(Filter("bogus"))
	assert.Equal(t, FilterAll, f.store.View().Filter)
	assert.Equal(t, 2, f.store.View().Filtered)
}
