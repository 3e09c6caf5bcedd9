package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/lotas/overtabbed/internal/rules"
	"github.com/lotas/overtabbed/internal/types"
)

// fakeBrowser records every mutator call and lets tests inject failures and
// pre-existing groups.
type fakeBrowser struct {
	mu sync.Mutex

	tabs   []*types.Tab
	groups []*types.TabGroup

	listTabsErr error
	failClose   map[int]error
	nextGroupID int
	listCalls   int

	closed      []int
	pinned      map[int]bool
	muted       map[int]bool
	highlighted map[int]bool
	discarded   []int
	grouped     map[int][]int // groupID -> tabIDs added
	created     []int         // created group IDs
	renamed     map[int]string
}

func newFakeBrowser(tabs ...*types.Tab) *fakeBrowser {
	return &fakeBrowser{
		tabs:        tabs,
		failClose:   make(map[int]error),
		nextGroupID: 100,
		pinned:      make(map[int]bool),
		muted:       make(map[int]bool),
		highlighted: make(map[int]bool),
		grouped:     make(map[int][]int),
		renamed:     make(map[int]string),
	}
}

func (f *fakeBrowser) ListTabs(ctx context.Context) ([]*types.Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listTabsErr != nil {
		return nil, f.listTabsErr
	}
	return f.tabs, nil
}

func (f *fakeBrowser) ListGroups(ctx context.Context, windowID int) ([]*types.TabGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.TabGroup
	for _, g := range f.groups {
		if g.WindowID == windowID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeBrowser) CloseTab(ctx context.Context, tabID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failClose[tabID]; err != nil {
		return err
	}
	f.closed = append(f.closed, tabID)
	return nil
}

func (f *fakeBrowser) SetPinned(ctx context.Context, tabID int, pinned bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned[tabID] = pinned
	return nil
}

func (f *fakeBrowser) SetMuted(ctx context.Context, tabID int, muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted[tabID] = muted
	return nil
}

func (f *fakeBrowser) SetHighlighted(ctx context.Context, tabID int, highlighted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.highlighted[tabID] = highlighted
	return nil
}

func (f *fakeBrowser) DiscardTab(ctx context.Context, tabID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = append(f.discarded, tabID)
	return nil
}

func (f *fakeBrowser) GroupTabs(ctx context.Context, groupID int, tabIDs []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grouped[groupID] = append(f.grouped[groupID], tabIDs...)
	return nil
}

func (f *fakeBrowser) CreateGroup(ctx context.Context, windowID int, tabIDs []int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextGroupID
	f.nextGroupID++
	f.created = append(f.created, id)
	f.groups = append(f.groups, &types.TabGroup{ID: id, WindowID: windowID})
	f.grouped[id] = append(f.grouped[id], tabIDs...)
	return id, nil
}

func (f *fakeBrowser) UpdateGroup(ctx context.Context, groupID int, title, color string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renamed[groupID] = title
	for _, g := range f.groups {
		if g.ID == groupID {
			g.Title = title
			g.Color = color
		}
	}
	return nil
}

func TestExecuteCloseFailureIsolation(t *testing.T) {
	fb := newFakeBrowser()
	fb.failClose[2] = errors.New("no tab with id: 2")
	exec := executor{browser: fb}

	tabs := []*types.Tab{{ID: 1}, {ID: 2}, {ID: 3}}
	attempted, failed := exec.execute(context.Background(), []rules.ActionMatcher{{Type: rules.ActionClose}}, tabs)

	if attempted != 3 || failed != 1 {
		t.Errorf("attempted=%d failed=%d, want 3/1", attempted, failed)
	}
	if len(fb.closed) != 2 {
		t.Errorf("closed %v, want tabs 1 and 3", fb.closed)
	}
}

func TestExecuteSkipsTabWithoutID(t *testing.T) {
	fb := newFakeBrowser()
	exec := executor{browser: fb}

	tabs := []*types.Tab{{ID: 0}, {ID: 5}}
	attempted, _ := exec.execute(context.Background(), []rules.ActionMatcher{{Type: rules.ActionClose}}, tabs)

	if attempted != 1 {
		t.Errorf("attempted=%d, want 1", attempted)
	}
	if len(fb.closed) != 1 || fb.closed[0] != 5 {
		t.Errorf("closed %v, want [5]", fb.closed)
	}
}

func TestDiscardSkipsActiveTab(t *testing.T) {
	fb := newFakeBrowser()
	exec := executor{browser: fb}

	tabs := []*types.Tab{{ID: 1, Active: true}, {ID: 2}}
	attempted, failed := exec.execute(context.Background(), []rules.ActionMatcher{{Type: rules.ActionDiscard}}, tabs)

	if failed != 0 {
		t.Errorf("failed=%d, want 0", failed)
	}
	_ = attempted
	if len(fb.discarded) != 1 || fb.discarded[0] != 2 {
		t.Errorf("discarded %v, want [2]", fb.discarded)
	}
}

func TestMuteEnsuresMutedNotToggle(t *testing.T) {
	fb := newFakeBrowser()
	exec := executor{browser: fb}
	m := []rules.ActionMatcher{{Type: rules.ActionMute}}
	tabs := []*types.Tab{{ID: 1, Muted: true}}

	// Two consecutive cycles on an already-muted tab must leave it muted.
	exec.execute(context.Background(), m, tabs)
	exec.execute(context.Background(), m, tabs)

	if !fb.muted[1] {
		t.Error("tab 1 should still be muted after repeated cycles")
	}
}

func TestMoveToGroupCreatesThenReuses(t *testing.T) {
	fb := newFakeBrowser()
	exec := executor{browser: fb}

	tabs := []*types.Tab{
		{ID: 1, WindowID: 10, GroupID: types.NoGroup},
		{ID: 2, WindowID: 10, GroupID: types.NoGroup},
	}
	m := []rules.ActionMatcher{{
		Type:   rules.ActionMoveToGroup,
		Params: &rules.ActionParams{GroupName: "work", GroupColor: "blue"},
	}}

	_, failed := exec.execute(context.Background(), m, tabs)
	if failed != 0 {
		t.Fatalf("failed=%d", failed)
	}

	if len(fb.created) != 1 {
		t.Fatalf("created %d groups, want exactly 1", len(fb.created))
	}
	groupID := fb.created[0]
	if fb.renamed[groupID] != "work" {
		t.Errorf("group renamed to %q, want work", fb.renamed[groupID])
	}
	got := fb.grouped[groupID]
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("group %d contains %v, want [1 2]", groupID, got)
	}
}

func TestMoveToGroupMatchesExactTitleInSameWindow(t *testing.T) {
	fb := newFakeBrowser()
	// Same-named group in a different window must not be reused.
	fb.groups = []*types.TabGroup{
		{ID: 50, WindowID: 99, Title: "work"},
	}
	exec := executor{browser: fb}

	tabs := []*types.Tab{{ID: 1, WindowID: 10, GroupID: types.NoGroup}}
	m := []rules.ActionMatcher{{
		Type:   rules.ActionMoveToGroup,
		Params: &rules.ActionParams{GroupName: "work"},
	}}
	exec.execute(context.Background(), m, tabs)

	if len(fb.created) != 1 {
		t.Fatalf("created %d groups, want 1 (other window's group must not match)", len(fb.created))
	}
	if len(fb.grouped[50]) != 0 {
		t.Errorf("tab added to group in wrong window: %v", fb.grouped[50])
	}
}

func TestUnknownActionIsNoOp(t *testing.T) {
	fb := newFakeBrowser()
	exec := executor{browser: fb}

	tabs := []*types.Tab{{ID: 1}}
	_, failed := exec.execute(context.Background(), []rules.ActionMatcher{{Type: rules.ActionUnspecified}}, tabs)

	if failed != 0 {
		t.Errorf("failed=%d, want 0", failed)
	}
	if len(fb.closed) != 0 || len(fb.discarded) != 0 {
		t.Error("unknown action must not mutate anything")
	}
}
