package rules

import (
	"time"

	"github.com/lotas/overtabbed/internal/types"
)

// EvaluateCondition reports whether the condition holds for a tab at the
// given instant. allTabs is the full population of open tabs, needed by the
// global condition types (tab count, duplicate detection). An empty matcher
// list is trivially true.
func EvaluateCondition(c *Condition, tab *types.Tab, allTabs []*types.Tab, now time.Time) bool {
	if len(c.Matchers) == 0 {
		return true
	}

	join := c.Join
	if join == JoinUnspecified {
		join = JoinAnd
	}

	for _, m := range c.Matchers {
		ok := evalMatcher(m, tab, allTabs, now)
		if join == JoinAnd && !ok {
			return false
		}
		if join == JoinOr && ok {
			return true
		}
	}
	return join == JoinAnd
}

func evalMatcher(m ConditionMatcher, tab *types.Tab, allTabs []*types.Tab, now time.Time) bool {
	switch m.Type {
	case CondTabAge:
		return compareAge(tab, m, now)
	case CondTabInactive:
		// An active tab cannot be inactive, whatever the threshold.
		if tab.Active {
			return false
		}
		return compareAge(tab, m, now)
	case CondTabCount:
		return Compare(int64(len(allTabs)), m.Operator, m.Value)
	case CondTabDuplicate:
		return IsDuplicate(tab, allTabs)
	default:
		return false
	}
}

// compareAge checks the time since the tab last became active against the
// matcher's threshold. A tab never observed by the access tracker has a zero
// LastActive and is treated as activated just now (age 0), so it cannot
// satisfy a ">" threshold.
func compareAge(tab *types.Tab, m ConditionMatcher, now time.Time) bool {
	var age time.Duration
	if !tab.LastActive.IsZero() {
		age = now.Sub(tab.LastActive)
	}
	threshold := m.Unit.Duration(m.Value)
	return Compare(age.Milliseconds(), m.Operator, threshold.Milliseconds())
}

// IsDuplicate reports whether more than one tab in the population shares this
// tab's URL (itself included). A tab with no URL is never a duplicate.
func IsDuplicate(tab *types.Tab, allTabs []*types.Tab) bool {
	if tab.URL == "" {
		return false
	}
	n := 0
	for _, t := range allTabs {
		if t.URL == tab.URL {
			n++
			if n > 1 {
				return true
			}
		}
	}
	return false
}

// Compare applies a numeric operator. Unknown operators are false.
func Compare(actual int64, op NumericOp, expected int64) bool {
	switch op {
	case CmpGreater:
		return actual > expected
	case CmpLess:
		return actual < expected
	case CmpEquals:
		return actual == expected
	case CmpGreaterOrEqual:
		return actual >= expected
	case CmpLessOrEqual:
		return actual <= expected
	default:
		return false
	}
}
