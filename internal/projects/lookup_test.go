package projects

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteLookup(t *testing.T) {
	db := newTestDB(t)
	lookup, err := NewSQLiteLookup(db)
	if err != nil {
		t.Fatalf("NewSQLiteLookup: %v", err)
	}
	ctx := context.Background()

	if _, err := db.Exec(`INSERT INTO projects (id, name) VALUES ('p1', 'First')`); err != nil {
		t.Fatalf("seeding project: %v", err)
	}

	ok, err := lookup.Exists(ctx, "p1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("Exists(p1) = false, want true")
	}

	ok, err = lookup.Exists(ctx, "ghost")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("Exists(ghost) = true, want false")
	}
}

func TestSQLiteLookupCreatesTable(t *testing.T) {
	db := newTestDB(t)
	if _, err := NewSQLiteLookup(db); err != nil {
		t.Fatalf("NewSQLiteLookup: %v", err)
	}
	// A second construction over the same database is a no-op.
	if _, err := NewSQLiteLookup(db); err != nil {
		t.Fatalf("NewSQLiteLookup again: %v", err)
	}
}

func TestMemoryLookup(t *testing.T) {
	lookup := NewMemoryLookup("p1")
	ctx := context.Background()

	ok, _ := lookup.Exists(ctx, "p1")
	if !ok {
		t.Error("Exists(p1) = false, want true")
	}
	ok, _ = lookup.Exists(ctx, "p2")
	if ok {
		t.Error("Exists(p2) = true, want false")
	}

	lookup.Add("p2")
	ok, _ = lookup.Exists(ctx, "p2")
	if !ok {
		t.Error("Exists(p2) after Add = false, want true")
	}
}

func TestStaticLookup(t *testing.T) {
	var lookup StaticLookup
	ctx := context.Background()

	ok, _ := lookup.Exists(ctx, "anything")
	if !ok {
		t.Error("Exists(anything) = false, want true")
	}
	ok, _ = lookup.Exists(ctx, "")
	if ok {
		t.Error("Exists(\"\") = true, want false")
	}
}
