// Package browser exposes the live browser to the engine: a Client interface
// for enumerating and mutating tabs, and a stream of tab-activity events.
// The one real implementation is Bridge, a WebSocket server the companion
// extension connects to.
package browser

import (
	"context"

	"github.com/lotas/overtabbed/internal/types"
)

// Client is the tab/window/group collaborator consumed by the engine. Every
// mutator can fail per call; the engine must not assume success.
type Client interface {
	ListTabs(ctx context.Context) ([]*types.Tab, error)
	ListGroups(ctx context.Context, windowID int) ([]*types.TabGroup, error)

	CloseTab(ctx context.Context, tabID int) error
	SetPinned(ctx context.Context, tabID int, pinned bool) error
	SetMuted(ctx context.Context, tabID int, muted bool) error
	SetHighlighted(ctx context.Context, tabID int, highlighted bool) error
	DiscardTab(ctx context.Context, tabID int) error

	// GroupTabs adds tabs to an existing group.
	GroupTabs(ctx context.Context, groupID int, tabIDs []int) error
	// CreateGroup creates a new group in a window containing the given tabs
	// and returns the new group's ID.
	CreateGroup(ctx context.Context, windowID int, tabIDs []int) (int, error)
	// UpdateGroup renames and/or recolors a group. Empty fields are left as-is.
	UpdateGroup(ctx context.Context, groupID int, title, color string) error
}

// EventKind discriminates tab-activity events.
type EventKind int

const (
	EventActivated EventKind = iota
	EventRemoved
)

// Event is a tab-activity notification from the browser, consumed by the
// engine's access tracker.
type Event struct {
	Kind  EventKind
	TabID int
}
