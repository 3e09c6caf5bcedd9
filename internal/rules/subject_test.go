package rules

import (
	"testing"

	"github.com/lotas/overtabbed/internal/types"
)

func TestFilterSubjectsEmptyMatchersReturnsAll(t *testing.T) {
	tabs := []*types.Tab{
		{ID: 1, URL: "https://example.com"},
		{ID: 2, URL: "https://other.com"},
		{ID: 3},
	}
	s := &Subject{Type: SubjectTabs}

	got := FilterSubjects(s, tabs)
	if len(got) != len(tabs) {
		t.Fatalf("got %d tabs, want %d", len(got), len(tabs))
	}
	for i := range tabs {
		if got[i] != tabs[i] {
			t.Errorf("tab %d: order not preserved", i)
		}
	}
}

func TestFilterSubjectsUnknownTypeMatchesNothing(t *testing.T) {
	tabs := []*types.Tab{{ID: 1, URL: "https://example.com"}}
	s := &Subject{Type: SubjectUnspecified}

	if got := FilterSubjects(s, tabs); len(got) != 0 {
		t.Errorf("got %d tabs, want 0", len(got))
	}
}

func TestMatchValueCaseInsensitive(t *testing.T) {
	if !MatchValue("HELLO", OpContains, "hell") {
		t.Error("HELLO should contain hell")
	}
	if !MatchValue("hello", OpContains, "HELL") {
		t.Error("hello should contain HELL")
	}
	if !MatchValue("YouTube - Home", OpEquals, "youtube - home") {
		t.Error("equals should ignore case")
	}
}

func TestMatchValueOperators(t *testing.T) {
	tests := []struct {
		value   string
		op      StringOp
		pattern string
		want    bool
	}{
		{"https://youtube.com/watch", OpContains, "youtube.com", true},
		{"https://youtube.com/watch", OpContains, "vimeo", false},
		{"https://example.com", OpStartsWith, "https://", true},
		{"https://example.com", OpStartsWith, "http://e", false},
		{"report.pdf", OpEndsWith, ".pdf", true},
		{"report.pdf", OpEndsWith, ".doc", false},
		{"docs.google.com", OpEquals, "docs.google.com", true},
		{"docs.google.com", OpEquals, "docs.google", false},
		{"https://news.ycombinator.com/item?id=1", OpRegex, `item\?id=\d+`, true},
		{"https://news.ycombinator.com/", OpRegex, `item\?id=\d+`, false},
		{"anything", OpUnspecified, "anything", false},
	}

	for _, tt := range tests {
		got := MatchValue(tt.value, tt.op, tt.pattern)
		if got != tt.want {
			t.Errorf("MatchValue(%q, %v, %q) = %v, want %v", tt.value, tt.op, tt.pattern, got, tt.want)
		}
	}
}

func TestMatchValueInvalidRegexNeverMatches(t *testing.T) {
	if MatchValue("anything", OpRegex, "[invalid") {
		t.Error("invalid pattern must not match")
	}
}

func TestMatchValueRegexCaseInsensitive(t *testing.T) {
	if !MatchValue("GitHub.COM/Pull", OpRegex, "github\\.com") {
		t.Error("regex should be compiled case-insensitively")
	}
}

func TestSubjectDomainField(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://mail.google.com/mail/u/0", "mail.google.com"},
		{"http://localhost:8080/x", "localhost"},
		{"", ""},
		{"::notaurl::", ""},
	}
	for _, tt := range tests {
		if got := Domain(tt.url); got != tt.want {
			t.Errorf("Domain(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestSubjectJoinOperators(t *testing.T) {
	tab := &types.Tab{URL: "https://youtube.com/watch", Title: "Cat video"}

	and := &Subject{
		Type: SubjectTabs,
		Join: JoinAnd,
		Matchers: []SubjectMatcher{
			{Field: FieldURL, Operator: OpContains, Value: "youtube"},
			{Field: FieldTitle, Operator: OpContains, Value: "dog"},
		},
	}
	if MatchesSubject(and, tab) {
		t.Error("AND join: one failing matcher must fail the subject")
	}

	or := &Subject{
		Type: SubjectTabs,
		Join: JoinOr,
		Matchers: []SubjectMatcher{
			{Field: FieldURL, Operator: OpContains, Value: "youtube"},
			{Field: FieldTitle, Operator: OpContains, Value: "dog"},
		},
	}
	if !MatchesSubject(or, tab) {
		t.Error("OR join: one passing matcher must pass the subject")
	}
}

func TestSubjectSingleMatcherJoinsAgree(t *testing.T) {
	tabs := []*types.Tab{
		{URL: "https://youtube.com"},
		{URL: "https://example.com"},
	}
	m := []SubjectMatcher{{Field: FieldURL, Operator: OpContains, Value: "youtube"}}

	for _, tab := range tabs {
		and := MatchesSubject(&Subject{Type: SubjectTabs, Join: JoinAnd, Matchers: m}, tab)
		or := MatchesSubject(&Subject{Type: SubjectTabs, Join: JoinOr, Matchers: m}, tab)
		if and != or {
			t.Errorf("single matcher: AND (%v) and OR (%v) must agree for %q", and, or, tab.URL)
		}
	}
}

func TestSubjectDefaultJoinIsAnd(t *testing.T) {
	tab := &types.Tab{URL: "https://youtube.com", Title: "Cat video"}
	s := &Subject{
		Type: SubjectTabs,
		Matchers: []SubjectMatcher{
			{Field: FieldURL, Operator: OpContains, Value: "youtube"},
			{Field: FieldTitle, Operator: OpContains, Value: "dog"},
		},
	}
	if MatchesSubject(s, tab) {
		t.Error("unset join must behave as AND")
	}
}
