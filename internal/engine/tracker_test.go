package engine

import (
	"testing"
	"time"

	"github.com/lotas/overtabbed/internal/types"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestBackfillStampsUnseenTabs(t *testing.T) {
	tr := NewAccessTracker()
	tr.now = fixedNow

	tabs := []*types.Tab{
		{ID: 1, Active: true},
		{ID: 2},
	}
	tr.Backfill(tabs)

	got, ok := tr.Get(1)
	if !ok || !got.Equal(fixedNow()) {
		t.Errorf("active tab stamped %v, want now", got)
	}
	got, ok = tr.Get(2)
	if !ok || !got.Equal(fixedNow().Add(-time.Minute)) {
		t.Errorf("inactive tab stamped %v, want now-1m", got)
	}
}

func TestBackfillDoesNotOverwriteTrackedTabs(t *testing.T) {
	tr := NewAccessTracker()
	tr.now = fixedNow

	tr.Activated(1)
	earlier, _ := tr.Get(1)

	tr.now = func() time.Time { return fixedNow().Add(time.Hour) }
	tr.Backfill([]*types.Tab{{ID: 1}})

	got, _ := tr.Get(1)
	if !got.Equal(earlier) {
		t.Errorf("backfill overwrote tracked timestamp: %v", got)
	}
}

func TestActivatedAndRemoved(t *testing.T) {
	tr := NewAccessTracker()
	tr.now = fixedNow

	tr.Activated(7)
	if _, ok := tr.Get(7); !ok {
		t.Fatal("tab 7 should be tracked after activation")
	}

	tr.Removed(7)
	if _, ok := tr.Get(7); ok {
		t.Fatal("tab 7 should be forgotten after removal")
	}
}

func TestAttach(t *testing.T) {
	tr := NewAccessTracker()
	tr.now = fixedNow
	tr.Activated(1)

	tabs := []*types.Tab{
		{ID: 1, LastActive: fixedNow().Add(-time.Hour)}, // stale wire value
		{ID: 2, LastActive: fixedNow().Add(-time.Hour)}, // untracked
	}
	tr.Attach(tabs)

	if !tabs[0].LastActive.Equal(fixedNow()) {
		t.Errorf("tracked tab LastActive = %v, want now", tabs[0].LastActive)
	}
	if !tabs[1].LastActive.IsZero() {
		t.Errorf("untracked tab LastActive = %v, want zero", tabs[1].LastActive)
	}
}
