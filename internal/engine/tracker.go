package engine

import (
	"sync"
	"time"

	"github.com/lotas/overtabbed/internal/types"
)

// backfillGrace is how far in the past a pre-existing inactive tab is stamped
// when first observed, so it is immediately eligible for age-based rules
// instead of counting as just activated.
const backfillGrace = time.Minute

// AccessTracker remembers when each tab last became the active tab in its
// window. The browser does not expose this natively, so it is the only state
// the engine keeps across cycles. Safe for concurrent use: the bridge's event
// pump writes while evaluation cycles read.
type AccessTracker struct {
	mu    sync.Mutex
	times map[int]time.Time
	now   func() time.Time
}

func NewAccessTracker() *AccessTracker {
	return &AccessTracker{
		times: make(map[int]time.Time),
		now:   time.Now,
	}
}

// Activated records that a tab just became active.
func (t *AccessTracker) Activated(tabID int) {
	t.mu.Lock()
	t.times[tabID] = t.now()
	t.mu.Unlock()
}

// Removed forgets a closed tab.
func (t *AccessTracker) Removed(tabID int) {
	t.mu.Lock()
	delete(t.times, tabID)
	t.mu.Unlock()
}

// Backfill stamps any tab not seen before: the currently active tab gets now,
// everything else gets now minus the grace period. Already-tracked tabs are
// untouched.
func (t *AccessTracker) Backfill(tabs []*types.Tab) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for _, tab := range tabs {
		if tab.ID == 0 {
			continue
		}
		if _, ok := t.times[tab.ID]; ok {
			continue
		}
		if tab.Active {
			t.times[tab.ID] = now
		} else {
			t.times[tab.ID] = now.Add(-backfillGrace)
		}
	}
}

// Get returns the tracked timestamp for a tab, or false if never observed.
// Callers treat an untracked tab as activated just now.
func (t *AccessTracker) Get(tabID int) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.times[tabID]
	return ts, ok
}

// Attach stamps each tab snapshot with its tracked last-active time.
// Untracked tabs get a zero LastActive, which age conditions treat as "now".
func (t *AccessTracker) Attach(tabs []*types.Tab) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tab := range tabs {
		if ts, ok := t.times[tab.ID]; ok {
			tab.LastActive = ts
		} else {
			tab.LastActive = time.Time{}
		}
	}
}
