package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/galleryd/galleryd/internal/uid"
)

// SQLiteStore implements the Store interface using SQLite as the backing
// database. It provides durable, ACID-compliant metadata storage suitable
// for single-node deployments and is the default engine.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore with the given DSN and
// initializes the database schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing SQLite database: %w", err)
	}
	return s, nil
}

// initDB applies PRAGMAs and creates the required tables and indexes.
// This is safe to call multiple times (idempotent via IF NOT EXISTS).
func (s *SQLiteStore) initDB() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS assets (
			id            TEXT PRIMARY KEY,
			project_id    TEXT NOT NULL,
			file_name     TEXT NOT NULL,
			file_path     TEXT NOT NULL UNIQUE,
			file_size     INTEGER NOT NULL,
			mime_type     TEXT NOT NULL,
			display_order INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_assets_project_order
			ON assets(project_id, display_order);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (1, ?)`,
		time.Now().UTC().Format(TimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting schema version: %w", err)
	}

	return nil
}

// Close closes the underlying SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks connectivity to the database.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying handle for collaborators sharing the database
// file (the project lookup and the meta tool).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Insert creates a new asset record, assigning id and timestamps.
func (s *SQLiteStore) Insert(ctx context.Context, a *Asset) (*Asset, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	stored := *a
	stored.ID = uid.New()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (id, project_id, file_name, file_path, file_size, mime_type, display_order, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID,
		stored.ProjectID,
		stored.FileName,
		stored.FilePath,
		stored.FileSize,
		stored.MimeType,
		stored.DisplayOrder,
		now.Format(TimeFormat),
		now.Format(TimeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting asset for project %q: %w", stored.ProjectID, err)
	}
	return &stored, nil
}

// Get retrieves an asset by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Asset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, file_name, file_path, file_size, mime_type, display_order, created_at, updated_at
		 FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting asset %q: %w", id, err)
	}
	return a, nil
}

// Delete removes an asset record by id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting asset %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting asset %q: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByProject returns the project's assets in display order.
func (s *SQLiteStore) GetByProject(ctx context.Context, projectID string) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, file_name, file_path, file_size, mime_type, display_order, created_at, updated_at
		 FROM assets WHERE project_id = ?
		 ORDER BY display_order, created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing assets for project %q: %w", projectID, err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset row: %w", err)
		}
		assets = append(assets, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating asset rows: %w", err)
	}
	return assets, nil
}

// MaxDisplayOrder returns the highest display order in the project, or -1.
func (s *SQLiteStore) MaxDisplayOrder(ctx context.Context, projectID string) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(display_order) FROM assets WHERE project_id = ?`, projectID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("querying max display order for project %q: %w", projectID, err)
	}
	if !max.Valid {
		return -1, nil
	}
	return int(max.Int64), nil
}

// BatchUpdateOrder applies the given display orders in one transaction.
// Any id that does not name an asset of the project rolls back the whole
// batch with ErrNotFound.
func (s *SQLiteStore) BatchUpdateOrder(ctx context.Context, projectID string, orders map[string]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning order update transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(TimeFormat)
	for id, order := range orders {
		res, err := tx.ExecContext(ctx,
			`UPDATE assets SET display_order = ?, updated_at = ? WHERE id = ? AND project_id = ?`,
			order, now, id, projectID)
		if err != nil {
			return fmt.Errorf("updating order for asset %q: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("updating order for asset %q: %w", id, err)
		}
		if n == 0 {
			return ErrNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing order update: %w", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanAsset.
type scanner interface {
	Scan(dest ...any) error
}

// scanAsset reads one asset row in column order.
func scanAsset(sc scanner) (*Asset, error) {
	var a Asset
	var createdAt, updatedAt string
	if err := sc.Scan(&a.ID, &a.ProjectID, &a.FileName, &a.FilePath, &a.FileSize, &a.MimeType, &a.DisplayOrder, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.CreatedAt, err = time.Parse(TimeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	if a.UpdatedAt, err = time.Parse(TimeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at %q: %w", updatedAt, err)
	}
	return &a, nil
}
