package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/alecycle/internal/ir"
)

// Definition kinds.
const (
	KindEventCycle = "event_cycle"
	KindPortCycle  = "port_cycle"
)

// Definition is a stored cycle definition.
type Definition struct {
	Kind     string
	Name     string
	Spec     json.RawMessage
	SpecHash string
}

// Decode unmarshals the stored spec into v.
func (d Definition) Decode(v any) error {
	if err := json.Unmarshal(d.Spec, v); err != nil {
		return fmt.Errorf("decode %s %q: %w", d.Kind, d.Name, err)
	}
	return nil
}

// SaveDefinition stores spec under (kind, name), replacing an existing
// definition of the same name. Its subscriptions are kept.
func (s *Store) SaveDefinition(ctx context.Context, kind, name string, spec any) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("save definition: %w", err)
	}
	hash, err := ir.SpecHash(spec)
	if err != nil {
		return fmt.Errorf("save definition: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO definitions (kind, name, spec, spec_hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, name) DO UPDATE SET
			spec = excluded.spec,
			spec_hash = excluded.spec_hash
	`, kind, name, string(data), hash)
	if err != nil {
		return fmt.Errorf("save definition: %w", err)
	}
	return nil
}

// DeleteDefinition removes a definition and its subscriptions.
// Deleting an unknown definition is not an error.
func (s *Store) DeleteDefinition(ctx context.Context, kind, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM definitions WHERE kind = ? AND name = ?`, kind, name)
	if err != nil {
		return fmt.Errorf("delete definition: %w", err)
	}
	return nil
}

// Definition returns one stored definition.
func (s *Store) Definition(ctx context.Context, kind, name string) (Definition, error) {
	d := Definition{Kind: kind, Name: name}
	var spec string
	err := s.db.QueryRowContext(ctx, `
		SELECT spec, spec_hash FROM definitions WHERE kind = ? AND name = ?
	`, kind, name).Scan(&spec, &d.SpecHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Definition{}, &ir.Error{Code: ir.ErrCodeNoSuchName, Message: "no stored " + kind, Name: name}
	}
	if err != nil {
		return Definition{}, fmt.Errorf("read definition: %w", err)
	}
	d.Spec = json.RawMessage(spec)
	return d, nil
}

// Definitions lists the stored definitions of kind, ordered by name.
func (s *Store) Definitions(ctx context.Context, kind string) ([]Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, spec, spec_hash FROM definitions
		WHERE kind = ?
		ORDER BY name COLLATE BINARY ASC
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var out []Definition
	for rows.Next() {
		d := Definition{Kind: kind}
		var spec string
		if err := rows.Scan(&d.Name, &spec, &d.SpecHash); err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		d.Spec = json.RawMessage(spec)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	return out, nil
}

// SaveSubscription stores a subscription. The definition must exist.
// Saving an existing subscription is a no-op.
func (s *Store) SaveSubscription(ctx context.Context, kind, name, uri string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (kind, name, uri)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`, kind, name, uri)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes a subscription.
func (s *Store) DeleteSubscription(ctx context.Context, kind, name, uri string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM subscriptions WHERE kind = ? AND name = ? AND uri = ?
	`, kind, name, uri)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// Subscriptions lists the subscriber URIs of a definition, ordered.
func (s *Store) Subscriptions(ctx context.Context, kind, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uri FROM subscriptions
		WHERE kind = ? AND name = ?
		ORDER BY uri COLLATE BINARY ASC
	`, kind, name)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, uri)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return out, nil
}
