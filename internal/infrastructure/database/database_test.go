package database

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// openTestDB opens a fresh database in a temp dir.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return db
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		rel     string
		wantErr error
	}{
		{name: "file in existing dir", rel: "deskpilot.db"},
		{name: "nested dirs are created", rel: filepath.Join("a", "b", "deskpilot.db")},
		{name: "empty path", rel: "", wantErr: ErrNoPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.rel != "" {
				path = filepath.Join(t.TempDir(), tt.rel)
			}

			db, err := Open(Config{Path: path, BusyTimeout: 1})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Open() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer db.Close() //nolint:errcheck // Test cleanup

			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("database file missing: %v", err)
			}
			if perm := info.Mode().Perm(); perm != filePermissions {
				t.Errorf("file mode = %o, want %o", perm, filePermissions)
			}
			if db.Path() != path {
				t.Errorf("Path() = %q, want %q", db.Path(), path)
			}
		})
	}
}

func TestConfigDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want map[string]string
	}{
		{
			name: "rollback journal",
			cfg:  Config{Path: "/tmp/d.db", BusyTimeout: 5},
			want: map[string]string{"_busy_timeout": "5000", "_foreign_keys": "on", "_journal_mode": ""},
		},
		{
			name: "wal",
			cfg:  Config{Path: "/tmp/d.db", WALMode: true, BusyTimeout: 2},
			want: map[string]string{"_busy_timeout": "2000", "_journal_mode": "WAL", "_synchronous": "NORMAL"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := tt.cfg.dsn()
			file, rawQuery, ok := strings.Cut(dsn, "?")
			if !ok || file != "file:"+tt.cfg.Path {
				t.Fatalf("dsn() = %q", dsn)
			}
			q, err := url.ParseQuery(rawQuery)
			if err != nil {
				t.Fatalf("parsing query: %v", err)
			}
			for k, want := range tt.want {
				if got := q.Get(k); got != want {
					t.Errorf("%s = %q, want %q", k, got, want)
				}
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	db.Close() //nolint:errcheck // Checking behaviour after close
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after Close should fail")
	}
}

func TestClose_Zero(t *testing.T) {
	var nilDB *DB
	if err := nilDB.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
	if err := (&DB{}).Close(); err != nil {
		t.Errorf("zero Close() error = %v", err)
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, `CREATE TABLE t (v TEXT)`); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO t VALUES ('x')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("inTx() error = %v, want boom", err)
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM t`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("rows after rollback = %d, want 0", n)
	}
}
