package database

import (
	"context"
	"fmt"
	"time"
)

// NameValue is one row of the name_values table. Rows are loaded into the
// global name table at startup and referenced from scripts as <key>.
type NameValue struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// UpsertNameValue inserts or replaces the value stored under key.
func (db *DB) UpsertNameValue(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO name_values (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting name value %q: %w", key, err)
	}
	return nil
}

// DeleteNameValue removes key. Deleting a missing key is not an error.
func (db *DB) DeleteNameValue(ctx context.Context, key string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM name_values WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting name value %q: %w", key, err)
	}
	return nil
}

// ListNameValues returns every row ordered by key.
func (db *DB) ListNameValues(ctx context.Context) ([]NameValue, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value, updated_at FROM name_values ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("querying name values: %w", err)
	}
	defer rows.Close()

	var out []NameValue
	for rows.Next() {
		var nv NameValue
		var updatedAt string
		if err := rows.Scan(&nv.Key, &nv.Value, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning name value: %w", err)
		}
		nv.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled
		out = append(out, nv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating name values: %w", err)
	}
	return out, nil
}
