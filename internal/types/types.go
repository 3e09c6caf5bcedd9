package types

import "time"

// NoGroup is the sentinel group ID for tabs that belong to no group
// (mirrors chrome.tabGroups.TAB_GROUP_ID_NONE).
const NoGroup = -1

// Tab is a read-only snapshot of a single browser tab, rebuilt fresh
// each evaluation cycle from the extension bridge.
type Tab struct {
	ID          int
	WindowID    int
	GroupID     int // NoGroup if ungrouped
	Index       int // position within its window
	URL         string
	Title       string
	Favicon     string
	Pinned      bool
	Active      bool
	Muted       bool
	Highlighted bool
	Incognito   bool
	Discarded   bool

	// LastActive is when the tab last became the active tab in its window.
	// Populated by the access tracker in live mode, or from the session
	// file in offline preview. Zero means "never observed" and is treated
	// as "just now" by age conditions.
	LastActive time.Time
}

// TabGroup represents a browser tab group.
type TabGroup struct {
	ID        int
	WindowID  int
	Title     string
	Color     string
	Collapsed bool
}

// Stats holds aggregate numbers about the current tab population.
type Stats struct {
	TotalTabs    int
	TotalWindows int
	TotalGroups  int
	PinnedTabs   int
}

// Collect computes Stats over a tab population.
func Collect(tabs []*Tab) Stats {
	var s Stats
	windows := make(map[int]struct{})
	groups := make(map[int]struct{})
	for _, t := range tabs {
		s.TotalTabs++
		windows[t.WindowID] = struct{}{}
		if t.GroupID != NoGroup {
			groups[t.GroupID] = struct{}{}
		}
		if t.Pinned {
			s.PinnedTabs++
		}
	}
	s.TotalWindows = len(windows)
	s.TotalGroups = len(groups)
	return s
}
