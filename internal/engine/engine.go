// Package engine runs the evaluation loop: every interval it fetches the
// stored rules and the live tab population, matches each enabled rule's
// subject, checks its condition per tab, and applies its actions to the
// qualifying tabs. Nothing inside a cycle may crash the loop; failures are
// logged and contained.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lotas/overtabbed/internal/applog"
	"github.com/lotas/overtabbed/internal/browser"
	"github.com/lotas/overtabbed/internal/rules"
	"github.com/lotas/overtabbed/internal/types"
)

// DefaultInterval is the evaluation cadence. The timer fires at this fixed
// period regardless of how long a cycle takes; overlapping firings are
// skipped by the in-flight guard rather than queued.
const DefaultInterval = 60 * time.Second

// RuleSource supplies the persisted rules, read fresh each cycle.
type RuleSource interface {
	ListRules(ctx context.Context) ([]*rules.Rule, error)
}

// RuleMatch reports one rule that selected at least one qualifying tab.
type RuleMatch struct {
	RuleID string
	Name   string
	Tabs   int
}

// CycleResult summarizes one evaluation cycle for logging and the monitor UI.
type CycleResult struct {
	Start            time.Time
	Duration         time.Duration
	TabCount         int
	RulesEvaluated   int
	Matches          []RuleMatch
	ActionsAttempted int
	ActionsFailed    int
	Err              error // cycle abandoned (rules or tabs could not be fetched)
	Skipped          bool  // previous cycle still in flight
}

// Engine owns the access tracker, the evaluation timer, and the executor.
// Construct one per process with New; Start/Stop control the loop.
type Engine struct {
	browser  browser.Client
	source   RuleSource
	tracker  *AccessTracker
	exec     executor
	interval time.Duration
	now      func() time.Time
	onCycle  func(CycleResult)

	mu      sync.Mutex
	cancel  context.CancelFunc // non-nil while running
	inCycle atomic.Bool
}

func New(b browser.Client, src RuleSource) *Engine {
	return &Engine{
		browser:  b,
		source:   src,
		tracker:  NewAccessTracker(),
		exec:     executor{browser: b},
		interval: DefaultInterval,
		now:      time.Now,
	}
}

// SetInterval overrides the evaluation cadence. Must be called before Start.
func (e *Engine) SetInterval(d time.Duration) {
	if d > 0 {
		e.interval = d
	}
}

// SetOnCycle registers a listener receiving every cycle's result, including
// skipped and abandoned ones. Must be called before Start.
func (e *Engine) SetOnCycle(fn func(CycleResult)) {
	e.onCycle = fn
}

// Tracker exposes the access tracker, e.g. for wiring event sources in tests.
func (e *Engine) Tracker() *AccessTracker {
	return e.tracker
}

// Start begins tab-access tracking and the evaluation loop: one immediate
// cycle, then one per interval. Starting a running engine is a no-op.
// events is the bridge's tab-activity stream.
func (e *Engine) Start(ctx context.Context, events <-chan browser.Event) {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	applog.Info("engine.start", "interval", e.interval)

	go e.pumpEvents(runCtx, events)
	go e.loop(runCtx)
}

// Stop cancels future timer firings. An in-flight cycle runs to completion.
// Stopping a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
		applog.Info("engine.stop")
	}
}

// Running reports whether the evaluation loop is armed.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

// pumpEvents feeds tab-activity notifications into the tracker. Updates are
// cheap map writes and never block the bridge.
func (e *Engine) pumpEvents(ctx context.Context, events <-chan browser.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case browser.EventActivated:
				e.tracker.Activated(ev.TabID)
			case browser.EventRemoved:
				e.tracker.Removed(ev.TabID)
			}
		}
	}
}

func (e *Engine) loop(ctx context.Context) {
	e.RunNow(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunNow(ctx)
		}
	}
}

// RunNow executes exactly one evaluation cycle, shared by the timer, the
// extension's runRules message, and POST /run. If a cycle is already in
// flight the call is skipped; evaluation is periodic, so nothing is lost.
// It never panics or returns an error to the caller.
func (e *Engine) RunNow(ctx context.Context) CycleResult {
	if !e.inCycle.CompareAndSwap(false, true) {
		applog.Info("cycle.skipped")
		res := CycleResult{Start: e.now(), Skipped: true}
		e.report(res)
		return res
	}
	defer e.inCycle.Store(false)

	res := e.runCycle(ctx)
	e.report(res)
	return res
}

func (e *Engine) report(res CycleResult) {
	if res.Err != nil {
		applog.Error("cycle.failed", res.Err)
	} else if !res.Skipped {
		applog.Info("cycle.done",
			"tabs", res.TabCount,
			"rules", res.RulesEvaluated,
			"matched", len(res.Matches),
			"actions", res.ActionsAttempted,
			"failed", res.ActionsFailed,
			"took", res.Duration)
	}
	if e.onCycle != nil {
		e.onCycle(res)
	}
}

// runCycle is one fetch-rules, fetch-tabs, match/evaluate/execute pass.
// A storage or tab fetch failure abandons the whole cycle; a per-tab action
// failure is contained inside the executor.
func (e *Engine) runCycle(ctx context.Context) CycleResult {
	res := CycleResult{Start: e.now()}
	defer func() {
		res.Duration = e.now().Sub(res.Start)
	}()

	all, err := e.source.ListRules(ctx)
	if err != nil {
		res.Err = err
		return res
	}

	var enabled []*rules.Rule
	for _, r := range all {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	if len(enabled) == 0 {
		return res
	}

	tabs, err := e.browser.ListTabs(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	res.TabCount = len(tabs)

	e.tracker.Backfill(tabs)
	e.tracker.Attach(tabs)

	// Rules apply independently, in storage order. A tab closed by an earlier
	// rule may still be seen by a later one in the same cycle; the resulting
	// browser call fails per-tab and is absorbed by the executor.
	for _, rule := range enabled {
		res.RulesEvaluated++
		e.evaluateRule(ctx, rule, tabs, &res)
	}
	return res
}

func (e *Engine) evaluateRule(ctx context.Context, rule *rules.Rule, tabs []*types.Tab, res *CycleResult) {
	if rule.Inert() {
		return
	}

	candidates := rules.FilterSubjects(rule.Subject, tabs)
	if len(candidates) == 0 {
		return
	}

	now := e.now()
	var qualifying []*types.Tab
	for _, tab := range candidates {
		if rules.EvaluateCondition(rule.Condition, tab, tabs, now) {
			qualifying = append(qualifying, tab)
		}
	}
	if len(qualifying) == 0 {
		return
	}

	applog.Info("rule.matched", "rule", rule.Name, "tabs", len(qualifying))
	res.Matches = append(res.Matches, RuleMatch{RuleID: rule.ID, Name: rule.Name, Tabs: len(qualifying)})

	attempted, failed := e.exec.execute(ctx, rule.Action.Matchers, qualifying)
	res.ActionsAttempted += attempted
	res.ActionsFailed += failed
}
