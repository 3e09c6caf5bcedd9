// Package rules defines the declarative automation rule model and the pure
// evaluation predicates over tab snapshots: subject matching (which tabs a
// rule is concerned with) and condition checking (whether the rule should
// fire for a tab). Side effects live in internal/engine.
package rules

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"
)

// SubjectType discriminates what kind of entities a subject selects.
// Only tabs exist today; the zero value is reserved and matches nothing.
type SubjectType int

const (
	SubjectUnspecified SubjectType = iota
	SubjectTabs
)

// Field selects which tab attribute a subject matcher inspects.
type Field int

const (
	FieldUnspecified Field = iota
	FieldURL
	FieldTitle
	FieldDomain
)

// StringOp is the string comparison applied by a subject matcher.
type StringOp int

const (
	OpUnspecified StringOp = iota
	OpContains
	OpEquals
	OpStartsWith
	OpEndsWith
	OpRegex
)

// ConditionType discriminates condition matchers.
type ConditionType int

const (
	CondUnspecified ConditionType = iota
	CondTabAge
	CondTabInactive
	CondTabCount
	CondTabDuplicate
)

// NumericOp is the comparison applied by a condition matcher.
type NumericOp int

const (
	CmpUnspecified NumericOp = iota
	CmpGreater
	CmpLess
	CmpEquals
	CmpGreaterOrEqual
	CmpLessOrEqual
)

// TimeUnit scales the numeric value of age-based conditions.
type TimeUnit int

const (
	UnitUnspecified TimeUnit = iota
	UnitMinutes
	UnitHours
	UnitDays
)

// ActionType discriminates rule actions.
type ActionType int

const (
	ActionUnspecified ActionType = iota
	ActionClose
	ActionMoveToGroup
	ActionPin
	ActionUnpin
	ActionDiscard
	ActionMute
	ActionHighlight
)

// JoinOperator combines the per-matcher booleans of a subject or condition.
// The zero value is treated as JoinAnd.
type JoinOperator int

const (
	JoinUnspecified JoinOperator = iota
	JoinAnd
	JoinOr
)

// SubjectMatcher compares one tab field against a pattern.
type SubjectMatcher struct {
	Field    Field    `json:"field"`
	Operator StringOp `json:"operator"`
	Value    string   `json:"value"`
}

// Subject selects the tabs a rule is concerned with. An empty matcher list
// selects every tab.
type Subject struct {
	Type     SubjectType      `json:"type"`
	Matchers []SubjectMatcher `json:"matchers"`
	Join     JoinOperator     `json:"join,omitempty"`
}

// ConditionMatcher is one numeric check against a tab or the tab population.
// Unit is only meaningful for the two age-based condition types.
type ConditionMatcher struct {
	Type     ConditionType `json:"type"`
	Operator NumericOp     `json:"operator"`
	Value    int64         `json:"value"`
	Unit     TimeUnit      `json:"unit,omitempty"`
}

// Condition decides whether a rule fires for a subject-matched tab.
// An empty matcher list is trivially true.
type Condition struct {
	Matchers []ConditionMatcher `json:"matchers"`
	Join     JoinOperator       `json:"join,omitempty"`
}

// ActionParams carries optional action parameters; only move_to_group
// uses any.
type ActionParams struct {
	GroupName  string `json:"groupName,omitempty"`
	GroupColor string `json:"groupColor,omitempty"`
}

// ActionMatcher is one mutation to apply to qualifying tabs.
type ActionMatcher struct {
	Type   ActionType    `json:"type"`
	Params *ActionParams `json:"params,omitempty"`
}

// Action lists the mutations applied to qualifying tabs. Join is accepted on
// the wire for symmetry but ignored: actions are always all applied.
type Action struct {
	Matchers []ActionMatcher `json:"matchers"`
	Join     JoinOperator    `json:"join,omitempty"`
}

// Rule is one user-defined automation rule. Subject, Condition, and Action
// are all required for the rule to do anything; a rule missing any of them
// is inert and skipped without error.
type Rule struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Enabled   bool       `json:"enabled"`
	Subject   *Subject   `json:"subject,omitempty"`
	Condition *Condition `json:"condition,omitempty"`
	Action    *Action    `json:"action,omitempty"`
	CreatedAt int64      `json:"createdAt,omitempty"` // epoch milliseconds
	UpdatedAt int64      `json:"updatedAt,omitempty"`
}

// Inert reports whether the rule is missing any of its three parts and must
// be skipped by the engine.
func (r *Rule) Inert() bool {
	return r.Subject == nil || r.Condition == nil || r.Action == nil
}

// NewID generates a rule identifier: rule_<unix ms>_<random suffix>.
func NewID() string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffix := make([]byte, 7)
	for i := range suffix {
		suffix[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return fmt.Sprintf("rule_%d_%s", time.Now().UnixMilli(), suffix)
}

// Duration converts a value in this unit to a time.Duration. Unknown units
// yield zero, which age conditions then compare against directly.
func (u TimeUnit) Duration(value int64) time.Duration {
	switch u {
	case UnitMinutes:
		return time.Duration(value) * time.Minute
	case UnitHours:
		return time.Duration(value) * time.Hour
	case UnitDays:
		return time.Duration(value) * 24 * time.Hour
	default:
		return 0
	}
}

// Enum tokens used in JSON. Unknown tokens decode to the unspecified variant,
// which evaluates to false (matchers) or no-op (actions) rather than erroring.
var (
	subjectTypeNames = map[SubjectType]string{
		SubjectTabs: "tabs",
	}
	fieldNames = map[Field]string{
		FieldURL:    "url",
		FieldTitle:  "title",
		FieldDomain: "domain",
	}
	stringOpNames = map[StringOp]string{
		OpContains:   "contains",
		OpEquals:     "equals",
		OpStartsWith: "starts_with",
		OpEndsWith:   "ends_with",
		OpRegex:      "regex",
	}
	conditionTypeNames = map[ConditionType]string{
		CondTabAge:       "tab_age",
		CondTabInactive:  "tab_inactive_duration",
		CondTabCount:     "tab_count_exceeds",
		CondTabDuplicate: "tab_duplicate",
	}
	numericOpNames = map[NumericOp]string{
		CmpGreater:        ">",
		CmpLess:           "<",
		CmpEquals:         "=",
		CmpGreaterOrEqual: ">=",
		CmpLessOrEqual:    "<=",
	}
	timeUnitNames = map[TimeUnit]string{
		UnitMinutes: "minutes",
		UnitHours:   "hours",
		UnitDays:    "days",
	}
	actionTypeNames = map[ActionType]string{
		ActionClose:       "close",
		ActionMoveToGroup: "move_to_group",
		ActionPin:         "pin",
		ActionUnpin:       "unpin",
		ActionDiscard:     "discard",
		ActionMute:        "mute",
		ActionHighlight:   "highlight",
	}
	joinNames = map[JoinOperator]string{
		JoinAnd: "and",
		JoinOr:  "or",
	}
)

func marshalEnum[E comparable](names map[E]string, v E) ([]byte, error) {
	if s, ok := names[v]; ok {
		return json.Marshal(s)
	}
	return json.Marshal("")
}

func unmarshalEnum[E comparable](names map[E]string, data []byte, v *E) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for k, name := range names {
		if name == s {
			*v = k
			return nil
		}
	}
	var zero E
	*v = zero
	return nil
}

func (v SubjectType) String() string { return subjectTypeNames[v] }
func (v Field) String() string       { return fieldNames[v] }
func (v StringOp) String() string    { return stringOpNames[v] }

func (v ConditionType) String() string { return conditionTypeNames[v] }
func (v NumericOp) String() string     { return numericOpNames[v] }
func (v TimeUnit) String() string      { return timeUnitNames[v] }

func (v ActionType) String() string   { return actionTypeNames[v] }
func (v JoinOperator) String() string { return joinNames[v] }

func (v SubjectType) MarshalJSON() ([]byte, error) { return marshalEnum(subjectTypeNames, v) }
func (v *SubjectType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(subjectTypeNames, b, v)
}

func (v Field) MarshalJSON() ([]byte, error)  { return marshalEnum(fieldNames, v) }
func (v *Field) UnmarshalJSON(b []byte) error { return unmarshalEnum(fieldNames, b, v) }

func (v StringOp) MarshalJSON() ([]byte, error)  { return marshalEnum(stringOpNames, v) }
func (v *StringOp) UnmarshalJSON(b []byte) error { return unmarshalEnum(stringOpNames, b, v) }

func (v ConditionType) MarshalJSON() ([]byte, error) { return marshalEnum(conditionTypeNames, v) }
func (v *ConditionType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(conditionTypeNames, b, v)
}

func (v NumericOp) MarshalJSON() ([]byte, error)  { return marshalEnum(numericOpNames, v) }
func (v *NumericOp) UnmarshalJSON(b []byte) error { return unmarshalEnum(numericOpNames, b, v) }

func (v TimeUnit) MarshalJSON() ([]byte, error)  { return marshalEnum(timeUnitNames, v) }
func (v *TimeUnit) UnmarshalJSON(b []byte) error { return unmarshalEnum(timeUnitNames, b, v) }

func (v ActionType) MarshalJSON() ([]byte, error)  { return marshalEnum(actionTypeNames, v) }
func (v *ActionType) UnmarshalJSON(b []byte) error { return unmarshalEnum(actionTypeNames, b, v) }

func (v JoinOperator) MarshalJSON() ([]byte, error)  { return marshalEnum(joinNames, v) }
func (v *JoinOperator) UnmarshalJSON(b []byte) error { return unmarshalEnum(joinNames, b, v) }
