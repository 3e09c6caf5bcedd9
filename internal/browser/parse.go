package browser

import (
	"encoding/json"
	"time"

	"github.com/lotas/overtabbed/internal/types"
)

// wireTab is the extension's JSON representation of a chrome.tabs.Tab,
// flattened to the fields the engine cares about.
type wireTab struct {
	ID           int    `json:"id"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	WindowID     int    `json:"windowId"`
	GroupID      int    `json:"groupId"`
	Index        int    `json:"index"`
	FavIconURL   string `json:"favIconUrl"`
	Pinned       bool   `json:"pinned"`
	Active       bool   `json:"active"`
	Muted        bool   `json:"muted"`
	Highlighted  bool   `json:"highlighted"`
	Incognito    bool   `json:"incognito"`
	Discarded    bool   `json:"discarded"`
	LastAccessed int64  `json:"lastAccessed"`
}

type wireGroup struct {
	ID        int    `json:"id"`
	WindowID  int    `json:"windowId"`
	Title     string `json:"title"`
	Color     string `json:"color"`
	Collapsed bool   `json:"collapsed"`
}

// parseTabs converts a raw JSON tab array into Tab snapshots. The wire
// groupId uses -1 for ungrouped, same as types.NoGroup.
func parseTabs(raw json.RawMessage) ([]*types.Tab, error) {
	var wire []wireTab
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	tabs := make([]*types.Tab, 0, len(wire))
	for _, wt := range wire {
		tabs = append(tabs, tabFromWire(wt))
	}
	return tabs, nil
}

func tabFromWire(wt wireTab) *types.Tab {
	tab := &types.Tab{
		ID:          wt.ID,
		URL:         wt.URL,
		Title:       wt.Title,
		WindowID:    wt.WindowID,
		GroupID:     wt.GroupID,
		Index:       wt.Index,
		Favicon:     wt.FavIconURL,
		Pinned:      wt.Pinned,
		Active:      wt.Active,
		Muted:       wt.Muted,
		Highlighted: wt.Highlighted,
		Incognito:   wt.Incognito,
		Discarded:   wt.Discarded,
	}
	if wt.GroupID == 0 {
		// Some browsers omit groupId entirely for ungrouped tabs.
		tab.GroupID = types.NoGroup
	}
	if wt.LastAccessed > 0 {
		tab.LastActive = time.UnixMilli(wt.LastAccessed)
	}
	return tab
}

func parseGroups(raw json.RawMessage) ([]*types.TabGroup, error) {
	var wire []wireGroup
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	groups := make([]*types.TabGroup, 0, len(wire))
	for _, wg := range wire {
		groups = append(groups, &types.TabGroup{
			ID:        wg.ID,
			WindowID:  wg.WindowID,
			Title:     wg.Title,
			Color:     wg.Color,
			Collapsed: wg.Collapsed,
		})
	}
	return groups, nil
}
