package rules

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/lotas/overtabbed/internal/applog"
	"github.com/lotas/overtabbed/internal/types"
)

// FilterSubjects returns the tabs selected by the subject, preserving input
// order. An empty matcher list selects every tab.
func FilterSubjects(s *Subject, tabs []*types.Tab) []*types.Tab {
	if s.Type != SubjectTabs {
		return nil
	}
	if len(s.Matchers) == 0 {
		return tabs
	}

	var out []*types.Tab
	for _, tab := range tabs {
		if MatchesSubject(s, tab) {
			out = append(out, tab)
		}
	}
	return out
}

// MatchesSubject reports whether a single tab is selected by the subject.
func MatchesSubject(s *Subject, tab *types.Tab) bool {
	if s.Type != SubjectTabs {
		return false
	}
	if len(s.Matchers) == 0 {
		return true
	}

	join := s.Join
	if join == JoinUnspecified {
		join = JoinAnd
	}

	for _, m := range s.Matchers {
		ok := MatchValue(fieldValue(tab, m.Field), m.Operator, m.Value)
		if join == JoinAnd && !ok {
			return false
		}
		if join == JoinOr && ok {
			return true
		}
	}
	return join == JoinAnd
}

// fieldValue extracts the matched attribute from a tab. A missing URL or one
// that fails to parse yields an empty domain rather than an error.
func fieldValue(tab *types.Tab, f Field) string {
	switch f {
	case FieldURL:
		return tab.URL
	case FieldTitle:
		return tab.Title
	case FieldDomain:
		return Domain(tab.URL)
	default:
		return ""
	}
}

// Domain returns the hostname of a URL, or "" if it cannot be parsed.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// MatchValue applies a string operator case-insensitively. A regex pattern
// that fails to compile never matches.
func MatchValue(value string, op StringOp, pattern string) bool {
	lv := strings.ToLower(value)
	lp := strings.ToLower(pattern)

	switch op {
	case OpContains:
		return strings.Contains(lv, lp)
	case OpEquals:
		return lv == lp
	case OpStartsWith:
		return strings.HasPrefix(lv, lp)
	case OpEndsWith:
		return strings.HasSuffix(lv, lp)
	case OpRegex:
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			applog.Warn("rule.regex", "pattern", pattern)
			return false
		}
		return re.MatchString(value)
	default:
		return false
	}
}
