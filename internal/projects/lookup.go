// Package projects resolves project ownership for asset operations. The
// project catalog is owned by a separate service; this package only checks
// that a project id exists before assets are attached to it.
package projects

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Lookup reports whether a project exists.
type Lookup interface {
	Exists(ctx context.Context, projectID string) (bool, error)
}

// SQLiteLookup reads the projects table maintained by the project service.
// Assets never write to it; the table is created if absent so a fresh
// development database works out of the box.
type SQLiteLookup struct {
	db *sql.DB
}

func NewSQLiteLookup(db *sql.DB) (*SQLiteLookup, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("ensuring projects table: %w", err)
	}
	return &SQLiteLookup{db: db}, nil
}

func (l *SQLiteLookup) Exists(ctx context.Context, projectID string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx, "SELECT 1 FROM projects WHERE id = ?", projectID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up project: %w", err)
	}
	return true, nil
}

// MemoryLookup is a set-backed Lookup for tests and the memory wiring.
type MemoryLookup struct {
	mu  sync.RWMutex
	ids map[string]bool

	// ExistsErr, when set, is returned by Exists.
	ExistsErr error
}

func NewMemoryLookup(ids ...string) *MemoryLookup {
	l := &MemoryLookup{ids: make(map[string]bool, len(ids))}
	for _, id := range ids {
		l.ids[id] = true
	}
	return l
}

func (l *MemoryLookup) Add(projectID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids[projectID] = true
}

func (l *MemoryLookup) Exists(ctx context.Context, projectID string) (bool, error) {
	if l.ExistsErr != nil {
		return false, l.ExistsErr
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ids[projectID], nil
}

// StaticLookup accepts every non-empty project id. Used with remote
// metadata engines where no local project catalog is reachable.
type StaticLookup struct{}

func (StaticLookup) Exists(ctx context.Context, projectID string) (bool, error) {
	return projectID != "", nil
}
