package engine

import (
	"context"
	"fmt"

	"github.com/lotas/overtabbed/internal/applog"
	"github.com/lotas/overtabbed/internal/browser"
	"github.com/lotas/overtabbed/internal/rules"
	"github.com/lotas/overtabbed/internal/types"
)

// executor applies a rule's actions to qualifying tabs through the browser
// client. Failures are isolated per tab and per action: one rejected call is
// logged and the loop moves on.
type executor struct {
	browser browser.Client
}

// execute applies each action matcher in order to every tab. Returns how many
// tab-action pairs were attempted and how many failed.
func (e *executor) execute(ctx context.Context, matchers []rules.ActionMatcher, tabs []*types.Tab) (attempted, failed int) {
	for _, m := range matchers {
		for _, tab := range tabs {
			if tab.ID == 0 {
				continue
			}
			attempted++
			if err := e.executeAction(ctx, m, tab); err != nil {
				failed++
				applog.Error("action.failed", err, "action", m.Type, "tab", tab.ID)
			}
		}
	}
	return attempted, failed
}

func (e *executor) executeAction(ctx context.Context, m rules.ActionMatcher, tab *types.Tab) error {
	switch m.Type {
	case rules.ActionClose:
		return e.browser.CloseTab(ctx, tab.ID)
	case rules.ActionPin:
		return e.browser.SetPinned(ctx, tab.ID, true)
	case rules.ActionUnpin:
		return e.browser.SetPinned(ctx, tab.ID, false)
	case rules.ActionDiscard:
		// Discarding the active tab is refused by the browser; skip it.
		if tab.Active {
			return nil
		}
		return e.browser.DiscardTab(ctx, tab.ID)
	case rules.ActionMute:
		// Ensure muted, never toggle: repeated cycles must not oscillate.
		return e.browser.SetMuted(ctx, tab.ID, true)
	case rules.ActionHighlight:
		return e.browser.SetHighlighted(ctx, tab.ID, true)
	case rules.ActionMoveToGroup:
		var name, color string
		if m.Params != nil {
			name = m.Params.GroupName
			color = m.Params.GroupColor
		}
		return e.moveToGroup(ctx, tab, name, color)
	default:
		return nil
	}
}

// moveToGroup adds the tab to the group with the exact requested title in the
// tab's window, creating (and then naming/coloring) the group if it does not
// exist yet. Same-named groups in other windows are distinct.
func (e *executor) moveToGroup(ctx context.Context, tab *types.Tab, name, color string) error {
	groups, err := e.browser.ListGroups(ctx, tab.WindowID)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	for _, g := range groups {
		if g.Title == name {
			return e.browser.GroupTabs(ctx, g.ID, []int{tab.ID})
		}
	}

	groupID, err := e.browser.CreateGroup(ctx, tab.WindowID, []int{tab.ID})
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	if name == "" && color == "" {
		return nil
	}
	return e.browser.UpdateGroup(ctx, groupID, name, color)
}
