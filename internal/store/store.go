// Package store persists civic records in a SQL database. SQLite is the
// default backend; MySQL is supported for shared installations. The search
// subsystem mirrors this store's records table into a full-text index.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/civreg/civreg/internal/config"
)

const timeFormat = "2006-01-02T15:04:05Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
  id TEXT NOT NULL UNIQUE,
  title TEXT NOT NULL,
  summary TEXT,
  body TEXT,
  category TEXT NOT NULL DEFAULT 'general',
  created TEXT NOT NULL,
  updated TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_category ON records(category);
CREATE INDEX IF NOT EXISTS idx_records_updated ON records(updated);
`

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS records (
  rowid BIGINT PRIMARY KEY AUTO_INCREMENT,
  id VARCHAR(64) NOT NULL UNIQUE,
  title TEXT NOT NULL,
  summary TEXT,
  body MEDIUMTEXT,
  category VARCHAR(64) NOT NULL DEFAULT 'general',
  created VARCHAR(32) NOT NULL,
  updated VARCHAR(32) NOT NULL
)
`

// Record is one civic record: a permit, ordinance, filing, or similar
// document tracked by the registry.
type Record struct {
	ID       string
	Title    string
	Summary  string
	Body     string
	Category string
	Created  time.Time
	Updated  time.Time
}

// Store wraps a SQL database holding the records table.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database selected by the configuration and
// initializes the records schema.
func Open(cfg *config.Config) (*Store, error) {
	switch cfg.Storage.Database.Driver {
	case "", config.DriverSQLite:
		return OpenSQLite(cfg.DatabasePath())
	case config.DriverMySQL:
		return OpenMySQL(cfg.MySQLDSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Storage.Database.Driver)
	}
}

// OpenSQLite opens or creates a SQLite records database at the given path.
func OpenSQLite(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening records database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing records schema: %w", err)
	}
	return &Store{db: db, driver: config.DriverSQLite}, nil
}

// OpenMySQL connects to a MySQL records database with the given DSN.
func OpenMySQL(dsn string) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening records database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to records database: %w", err)
	}
	if _, err := db.Exec(mysqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing records schema: %w", err)
	}
	return &Store{db: db, driver: config.DriverMySQL}, nil
}

// DB returns the underlying database handle for direct queries. The search
// subsystem uses this to manage its index tables.
func (s *Store) DB() *sql.DB { return s.db }

// Driver returns the active driver name ("sqlite" or "mysql").
func (s *Store) Driver() string { return s.driver }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Insert adds a record. Created/Updated default to now when zero.
func (s *Store) Insert(ctx context.Context, r Record) error {
	now := time.Now().UTC()
	if r.Created.IsZero() {
		r.Created = now
	}
	if r.Updated.IsZero() {
		r.Updated = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, title, summary, body, category, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, r.Summary, r.Body, r.Category,
		r.Created.UTC().Format(timeFormat), r.Updated.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting record %s: %w", r.ID, err)
	}
	return nil
}

// Update rewrites a record's content fields and bumps its updated stamp.
func (s *Store) Update(ctx context.Context, r Record) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET title = ?, summary = ?, body = ?, category = ?, updated = ? WHERE id = ?`,
		r.Title, r.Summary, r.Body, r.Category,
		time.Now().UTC().Format(timeFormat), r.ID,
	)
	if err != nil {
		return fmt.Errorf("updating record %s: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("updating record %s: not found", r.ID)
	}
	return nil
}

// Delete removes a record by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	return nil
}

// Get fetches a single record by id.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	var r Record
	var created, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, summary, body, category, created, updated FROM records WHERE id = ?`, id,
	).Scan(&r.ID, &r.Title, &r.Summary, &r.Body, &r.Category, &created, &updated)
	if err != nil {
		return Record{}, fmt.Errorf("fetching record %s: %w", id, err)
	}
	r.Created, _ = time.Parse(timeFormat, created)
	r.Updated, _ = time.Parse(timeFormat, updated)
	return r, nil
}

// Count returns the number of records in the base table.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}
