// Package search maintains the full-text index over the records table: an
// external-content SQLite FTS5 mirror kept in sync by three triggers. It
// provides drift detection between the base table and the mirror, and a
// safe rebuild that drops and recreates the whole apparatus.
package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/civreg/civreg/internal/cache"
)

// FTSTable is the name of the full-text virtual table mirroring records.
const FTSTable = "records_fts"

// Trigger names keeping the mirror in sync with the base table.
const (
	insertTrigger = "records_fts_ai"
	updateTrigger = "records_fts_au"
	deleteTrigger = "records_fts_ad"
)

// createTableSQL binds the virtual table to the base records table by
// rowid. Searchable text columns are indexed; identifier and metadata
// columns ride along unindexed so result rows are self-describing.
const createTableSQL = `
CREATE VIRTUAL TABLE ` + FTSTable + ` USING fts5(
  title, summary, body,
  id UNINDEXED, category UNINDEXED,
  content='records', content_rowid='rowid'
)`

// FTS5 requires an explicit delete-then-insert for updates: the 'delete'
// command removes the old row image from the index, then the new image is
// inserted. An in-place UPDATE of an external-content table corrupts it.
const (
	createInsertTriggerSQL = `
CREATE TRIGGER ` + insertTrigger + ` AFTER INSERT ON records BEGIN
  INSERT INTO ` + FTSTable + `(rowid, title, summary, body, id, category)
  VALUES (new.rowid, new.title, new.summary, new.body, new.id, new.category);
END`

	createUpdateTriggerSQL = `
CREATE TRIGGER ` + updateTrigger + ` AFTER UPDATE ON records BEGIN
  INSERT INTO ` + FTSTable + `(` + FTSTable + `, rowid, title, summary, body, id, category)
  VALUES ('delete', old.rowid, old.title, old.summary, old.body, old.id, old.category);
  INSERT INTO ` + FTSTable + `(rowid, title, summary, body, id, category)
  VALUES (new.rowid, new.title, new.summary, new.body, new.id, new.category);
END`

	createDeleteTriggerSQL = `
CREATE TRIGGER ` + deleteTrigger + ` AFTER DELETE ON records BEGIN
  INSERT INTO ` + FTSTable + `(` + FTSTable + `, rowid, title, summary, body, id, category)
  VALUES ('delete', old.rowid, old.title, old.summary, old.body, old.id, old.category);
END`

	backfillSQL = `
INSERT INTO ` + FTSTable + `(rowid, title, summary, body, id, category)
SELECT rowid, title, summary, body, id, category FROM records`
)

// Index manages the full-text mirror over a records database. A bounded
// query cache fronts the search path; its counters feed the cache checker.
type Index struct {
	db    *sql.DB
	cache *cache.Cache
}

// NewIndex creates an Index over the given database with a query cache of
// the given capacity.
func NewIndex(db *sql.DB, cacheCapacity int) *Index {
	return &Index{db: db, cache: cache.New(cacheCapacity)}
}

// Stats exposes the query cache counters. This is the explicit
// CacheStatsProvider surface the cache checker consumes — callers never
// reach into the cache itself.
func (ix *Index) Stats() cache.Stats { return ix.cache.Stats() }

// Exists reports whether the full-text virtual table is present.
func (ix *Index) Exists(ctx context.Context) (bool, error) {
	var name string
	err := ix.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, FTSTable,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probing %s: %w", FTSTable, err)
	}
	return true, nil
}

// Counts returns the row counts of the base table and the full-text
// mirror. The mirror count comes from the index's own bookkeeping, so a
// desynchronized index reports a diverging number — that divergence is
// the drift signal.
func (ix *Index) Counts(ctx context.Context) (base, fts int64, err error) {
	if err := ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&base); err != nil {
		return 0, 0, fmt.Errorf("counting records: %w", err)
	}
	if err := ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+FTSTable).Scan(&fts); err != nil {
		return 0, 0, fmt.Errorf("counting %s: %w", FTSTable, err)
	}
	return base, fts, nil
}

// Drift returns the absolute difference between base and mirror row
// counts. Zero means the index is consistent.
func (ix *Index) Drift(ctx context.Context) (int64, error) {
	base, fts, err := ix.Counts(ctx)
	if err != nil {
		return 0, err
	}
	d := base - fts
	if d < 0 {
		d = -d
	}
	return d, nil
}

// Rebuild drops and recreates the full-text mirror from scratch:
//
//  1. drop the three sync triggers and the virtual table (tolerating
//     absence — a half-built index is rebuilt the same way),
//  2. recreate the virtual table,
//  3. recreate the insert trigger,
//  4. recreate the update trigger,
//  5. recreate the delete trigger,
//  6. backfill every existing base row in one pass.
//
// The triggers must not exist while the table is recreated, so the drops
// come first and the trigger re-creation follows the table. A failure
// between table creation and backfill leaves the index incomplete until
// the next rebuild; callers re-run the drift check afterwards to confirm
// convergence.
func (ix *Index) Rebuild(ctx context.Context) error {
	drops := []string{
		`DROP TRIGGER IF EXISTS ` + insertTrigger,
		`DROP TRIGGER IF EXISTS ` + updateTrigger,
		`DROP TRIGGER IF EXISTS ` + deleteTrigger,
		`DROP TABLE IF EXISTS ` + FTSTable,
	}
	for _, stmt := range drops {
		if _, err := ix.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("dropping old index objects: %w", err)
		}
	}

	steps := []struct {
		what string
		sql  string
	}{
		{"creating virtual table", createTableSQL},
		{"creating insert trigger", createInsertTriggerSQL},
		{"creating update trigger", createUpdateTriggerSQL},
		{"creating delete trigger", createDeleteTriggerSQL},
		{"backfilling index", backfillSQL},
	}
	for _, step := range steps {
		if _, err := ix.db.ExecContext(ctx, step.sql); err != nil {
			return fmt.Errorf("%s: %w", step.what, err)
		}
	}

	// Cached results may reference the old index contents.
	ix.cache.Invalidate()
	return nil
}

// Search runs a full-text query and returns matching record ids, best
// match first. Results are served from the query cache when present.
func (ix *Index) Search(ctx context.Context, query string) ([]string, error) {
	key := "q:" + query
	if v, ok := ix.cache.Get(key); ok {
		if len(v) == 0 {
			return nil, nil
		}
		return strings.Split(string(v), "\x00"), nil
	}

	rows, err := ix.db.QueryContext(ctx,
		`SELECT id FROM `+FTSTable+` WHERE `+FTSTable+` MATCH ? ORDER BY rank LIMIT 50`,
		matchExpr(query),
	)
	if err != nil {
		ix.cache.RecordError()
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			ix.cache.RecordError()
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		ix.cache.RecordError()
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}

	ix.cache.Put(key, []byte(strings.Join(ids, "\x00")))
	return ids, nil
}

// Suggest returns up to five record titles whose indexed text matches the
// given prefix. Used for type-ahead and by the suggestion probes.
func (ix *Index) Suggest(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, nil
	}
	rows, err := ix.db.QueryContext(ctx,
		`SELECT DISTINCT title FROM `+FTSTable+` WHERE `+FTSTable+` MATCH ? ORDER BY rank LIMIT 5`,
		matchExpr(prefix)+"*",
	)
	if err != nil {
		return nil, fmt.Errorf("suggesting for %q: %w", prefix, err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning suggestion: %w", err)
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// matchExpr quotes user text for an FTS5 MATCH expression so that
// operators and punctuation in queries are treated literally.
func matchExpr(q string) string {
	return `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
}
