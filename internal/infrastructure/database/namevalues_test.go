package database

import (
	"context"
	"errors"
	"testing"
)

// openMigratedDB opens a test database with the name_values table.
func openMigratedDB(t *testing.T) *DB {
	t.Helper()
	useTestMigrations(t)
	db := openTestDB(t)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestNameValues_UpsertAndList(t *testing.T) {
	db := openMigratedDB(t)
	ctx := context.Background()

	for _, kv := range [][2]string{{"cargo_id", "CARG-1"}, {"api_host", "x.example.com"}, {"cargo_id", "CARG-21556"}} {
		if err := db.UpsertNameValue(ctx, kv[0], kv[1]); err != nil {
			t.Fatalf("UpsertNameValue(%s) error = %v", kv[0], err)
		}
	}

	got, err := db.ListNameValues(ctx)
	if err != nil {
		t.Fatalf("ListNameValues() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %+v, want 2", got)
	}
	if got[0].Key != "api_host" || got[1].Key != "cargo_id" {
		t.Errorf("not ordered by key: %+v", got)
	}
	if got[1].Value != "CARG-21556" {
		t.Errorf("cargo_id = %q, want overwritten value", got[1].Value)
	}
	if got[1].UpdatedAt.IsZero() {
		t.Error("UpdatedAt not parsed")
	}
}

func TestNameValues_Delete(t *testing.T) {
	db := openMigratedDB(t)
	ctx := context.Background()

	if err := db.UpsertNameValue(ctx, "token", "t"); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteNameValue(ctx, "token"); err != nil {
		t.Fatalf("DeleteNameValue() error = %v", err)
	}
	if err := db.DeleteNameValue(ctx, "token"); err != nil {
		t.Errorf("deleting a missing key: %v", err)
	}

	got, err := db.ListNameValues(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("rows = %+v, want none", got)
	}
}

func TestNameValues_EmptyKey(t *testing.T) {
	db := openMigratedDB(t)
	if err := db.UpsertNameValue(context.Background(), "", "v"); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("error = %v, want ErrEmptyKey", err)
	}
}
