package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lotas/overtabbed/internal/rules"
)

// Store provides rule persistence over an open database. It satisfies the
// engine's RuleSource.
type Store struct {
	DB *sql.DB
}

// NewStore wraps an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// ListRules returns all rules ordered by creation time, oldest first. The
// engine applies them in this order.
func (s *Store) ListRules(ctx context.Context) ([]*rules.Rule, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, enabled, subject, condition, action, created_at, updated_at
		 FROM rules ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*rules.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// GetRule returns one rule by ID, or sql.ErrNoRows.
func (s *Store) GetRule(ctx context.Context, id string) (*rules.Rule, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, name, enabled, subject, condition, action, created_at, updated_at
		 FROM rules WHERE id = ?`, id)
	return scanRule(row)
}

// SaveRule inserts or updates a rule. A missing ID or CreatedAt is filled in;
// UpdatedAt is always bumped.
func (s *Store) SaveRule(ctx context.Context, r *rules.Rule) error {
	now := time.Now().UnixMilli()
	if r.ID == "" {
		r.ID = rules.NewID()
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	subject, err := marshalPart(r.Subject)
	if err != nil {
		return fmt.Errorf("encode subject: %w", err)
	}
	condition, err := marshalPart(r.Condition)
	if err != nil {
		return fmt.Errorf("encode condition: %w", err)
	}
	action, err := marshalPart(r.Action)
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}

	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO rules (id, name, enabled, subject, condition, action, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   enabled = excluded.enabled,
		   subject = excluded.subject,
		   condition = excluded.condition,
		   action = excluded.action,
		   updated_at = excluded.updated_at`,
		r.ID, r.Name, r.Enabled, subject, condition, action, r.CreatedAt, r.UpdatedAt)
	return err
}

// DeleteRule removes a rule. Deleting an unknown ID is not an error.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	return err
}

// SetRuleEnabled flips only the enabled flag and bumps updated_at.
func (s *Store) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE rules SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("rule %s not found", id)
	}
	return nil
}

// marshalPart encodes an optional rule part; a nil part stays NULL so the
// rule round-trips as inert.
func marshalPart[T any](p *T) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*rules.Rule, error) {
	var r rules.Rule
	var subject, condition, action sql.NullString
	if err := row.Scan(&r.ID, &r.Name, &r.Enabled, &subject, &condition, &action, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if subject.Valid {
		var s rules.Subject
		if err := json.Unmarshal([]byte(subject.String), &s); err != nil {
			return nil, fmt.Errorf("decode subject of %s: %w", r.ID, err)
		}
		r.Subject = &s
	}
	if condition.Valid {
		var c rules.Condition
		if err := json.Unmarshal([]byte(condition.String), &c); err != nil {
			return nil, fmt.Errorf("decode condition of %s: %w", r.ID, err)
		}
		r.Condition = &c
	}
	if action.Valid {
		var a rules.Action
		if err := json.Unmarshal([]byte(action.String), &a); err != nil {
			return nil, fmt.Errorf("decode action of %s: %w", r.ID, err)
		}
		r.Action = &a
	}
	return &r, nil
}
