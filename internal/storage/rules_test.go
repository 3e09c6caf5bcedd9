package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lotas/overtabbed/internal/rules"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func sampleRule() *rules.Rule {
	return &rules.Rule{
		Name:    "close stale youtube",
		Enabled: true,
		Subject: &rules.Subject{
			Type: rules.SubjectTabs,
			Matchers: []rules.SubjectMatcher{
				{Field: rules.FieldURL, Operator: rules.OpContains, Value: "youtube.com"},
			},
		},
		Condition: &rules.Condition{
			Matchers: []rules.ConditionMatcher{
				{Type: rules.CondTabInactive, Operator: rules.CmpGreater, Value: 30, Unit: rules.UnitMinutes},
			},
		},
		Action: &rules.Action{
			Matchers: []rules.ActionMatcher{{Type: rules.ActionClose}},
		},
	}
}

func TestSaveAndListRules(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	r := sampleRule()
	if err := s.SaveRule(ctx, r); err != nil {
		t.Fatalf("SaveRule: %v", err)
	}
	if r.ID == "" || r.CreatedAt == 0 || r.UpdatedAt == 0 {
		t.Fatalf("SaveRule did not fill in ID/timestamps: %+v", r)
	}

	got, err := s.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rules, want 1", len(got))
	}
	back := got[0]
	if back.Name != r.Name || !back.Enabled {
		t.Errorf("rule fields lost: %+v", back)
	}
	if back.Subject.Matchers[0].Value != "youtube.com" {
		t.Errorf("subject lost: %+v", back.Subject)
	}
	if back.Condition.Matchers[0].Unit != rules.UnitMinutes {
		t.Errorf("condition lost: %+v", back.Condition)
	}
	if back.Action.Matchers[0].Type != rules.ActionClose {
		t.Errorf("action lost: %+v", back.Action)
	}
}

func TestSaveRuleUpsertBumpsUpdatedAt(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	r := sampleRule()
	if err := s.SaveRule(ctx, r); err != nil {
		t.Fatalf("SaveRule: %v", err)
	}
	created := r.CreatedAt
	firstUpdate := r.UpdatedAt

	time.Sleep(5 * time.Millisecond)
	r.Name = "renamed"
	if err := s.SaveRule(ctx, r); err != nil {
		t.Fatalf("SaveRule update: %v", err)
	}

	back, err := s.GetRule(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if back.Name != "renamed" {
		t.Errorf("name = %q", back.Name)
	}
	if back.CreatedAt != created {
		t.Errorf("created_at changed on update: %d -> %d", created, back.CreatedAt)
	}
	if back.UpdatedAt < firstUpdate {
		t.Errorf("updated_at went backwards: %d -> %d", firstUpdate, back.UpdatedAt)
	}
}

func TestInertRuleRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	r := &rules.Rule{Name: "half-built", Enabled: true}
	if err := s.SaveRule(ctx, r); err != nil {
		t.Fatalf("SaveRule: %v", err)
	}

	back, err := s.GetRule(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if !back.Inert() {
		t.Errorf("rule without parts must come back inert: %+v", back)
	}
}

func TestSetRuleEnabled(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	r := sampleRule()
	if err := s.SaveRule(ctx, r); err != nil {
		t.Fatalf("SaveRule: %v", err)
	}

	if err := s.SetRuleEnabled(ctx, r.ID, false); err != nil {
		t.Fatalf("SetRuleEnabled: %v", err)
	}
	back, _ := s.GetRule(ctx, r.ID)
	if back.Enabled {
		t.Error("rule should be disabled")
	}
	if back.Name != r.Name {
		t.Error("SetRuleEnabled must not touch other fields")
	}

	if err := s.SetRuleEnabled(ctx, "rule_missing", true); err == nil {
		t.Error("enabling an unknown rule should error")
	}
}

func TestDeleteRule(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	r := sampleRule()
	if err := s.SaveRule(ctx, r); err != nil {
		t.Fatalf("SaveRule: %v", err)
	}
	if err := s.DeleteRule(ctx, r.ID); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}

	got, _ := s.ListRules(ctx)
	if len(got) != 0 {
		t.Errorf("got %d rules after delete, want 0", len(got))
	}

	if err := s.DeleteRule(ctx, "rule_missing"); err != nil {
		t.Errorf("deleting unknown rule should not error: %v", err)
	}
}

func TestListRulesPreservesCreationOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		r := sampleRule()
		r.Name = name
		if err := s.SaveRule(ctx, r); err != nil {
			t.Fatalf("SaveRule %s: %v", name, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	got, err := s.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d rules", len(got))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i].Name != want {
			t.Errorf("rule %d = %q, want %q", i, got[i].Name, want)
		}
	}
}
