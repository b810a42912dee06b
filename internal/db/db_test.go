package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "storyloom.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = database.Close() }) //nolint:errcheck // test cleanup
	return database
}

func TestOpenCreatesNestedFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "storyloom", "storyloom.db")

	database, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = database.Close() }() //nolint:errcheck // test cleanup

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file missing: %v", err)
	}
}

func TestOpenMigratesSchema(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	for _, table := range []string{"sessions", "analytics_daily", "sanitization_runs", "character_usage", "session_leases"} {
		var name string
		err := database.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}

	version, err := database.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != 3 {
		t.Errorf("SchemaVersion() = %d, want 3", version)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "storyloom.db")
	ctx := context.Background()

	first, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := first.ExecContext(ctx,
		`INSERT INTO sessions (id, type, status, document, created_at, updated_at) VALUES ('keep', 'story', 'active', '{}', 1, 1)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() { _ = second.Close() }() //nolint:errcheck // test cleanup

	var count int
	if err := second.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("sessions after reopen = %d, want 1", count)
	}
}

func TestOpenPragmas(t *testing.T) {
	database := openTestDB(t)

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"busy_timeout", "5000"},
		{"synchronous", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.pragma, func(t *testing.T) {
			var got string
			if err := database.QueryRowContext(context.Background(), "PRAGMA "+tt.pragma).Scan(&got); err != nil {
				t.Fatalf("reading %s: %v", tt.pragma, err)
			}
			if got != tt.want {
				t.Errorf("%s = %q, want %q", tt.pragma, got, tt.want)
			}
		})
	}
}

func TestWithTx(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	bump := func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO character_usage (name, sessions) VALUES ('Nova', 1)
			 ON CONFLICT(name) DO UPDATE SET sessions = sessions + 1`)
		return err
	}
	usage := func() int {
		var n int
		err := database.QueryRowContext(ctx, "SELECT sessions FROM character_usage WHERE name = 'Nova'").Scan(&n)
		if errors.Is(err, sql.ErrNoRows) {
			return 0
		}
		if err != nil {
			t.Fatal(err)
		}
		return n
	}

	if err := WithTx(ctx, database.Conn(), bump); err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
	if got := usage(); got != 1 {
		t.Fatalf("usage after commit = %d, want 1", got)
	}

	errBoom := errors.New("boom")
	err := WithTx(ctx, database.Conn(), func(tx *sql.Tx) error {
		if err := bump(tx); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}
	if got := usage(); got != 1 {
		t.Errorf("usage after rollback = %d, want 1", got)
	}
}

func TestWithImmediateTx(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	// Writers serialize at BEGIN, so no increment is lost.
	const writers = 8
	errs := make(chan error, writers)
	for range writers {
		go func() {
			errs <- WithImmediateTx(ctx, database.Conn(), func(tx *sql.Tx) error {
				var n int
				err := tx.QueryRowContext(ctx, "SELECT sessions FROM character_usage WHERE name = 'Orion'").Scan(&n)
				if err != nil && !errors.Is(err, sql.ErrNoRows) {
					return err
				}
				_, err = tx.ExecContext(ctx,
					`INSERT INTO character_usage (name, sessions) VALUES ('Orion', ?)
					 ON CONFLICT(name) DO UPDATE SET sessions = excluded.sessions`, n+1)
				return err
			})
		}()
	}
	for range writers {
		if err := <-errs; err != nil {
			t.Fatalf("WithImmediateTx() error = %v", err)
		}
	}

	var got int
	if err := database.QueryRowContext(ctx, "SELECT sessions FROM character_usage WHERE name = 'Orion'").Scan(&got); err != nil {
		t.Fatal(err)
	}
	if got != writers {
		t.Errorf("sessions = %d, want %d", got, writers)
	}
}

func TestClose(t *testing.T) {
	database, err := Open(filepath.Join(t.TempDir(), "storyloom.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := database.Conn().PingContext(context.Background()); err == nil {
		t.Error("ping after Close should fail")
	}
}
