package search

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/civreg/civreg/internal/store"
)

// openIndexedStore creates a temp sqlite store with a built index. Skips
// the test when the linked sqlite lacks the FTS5 module (it is a compile
// option of the driver).
func openIndexedStore(t *testing.T) (*store.Store, *Index) {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ix := NewIndex(s.DB(), 64)
	if err := ix.Rebuild(context.Background()); err != nil {
		if strings.Contains(err.Error(), "fts5") {
			t.Skipf("sqlite built without fts5: %v", err)
		}
		t.Fatalf("Rebuild: %v", err)
	}
	return s, ix
}

func seedRecords(t *testing.T, s *store.Store, n int) {
	t.Helper()
	ctx := context.Background()
	titles := []string{
		"Building permit application",
		"Zoning ordinance amendment",
		"Business license renewal",
		"Demolition permit review",
		"Noise ordinance complaint",
	}
	for i := 0; i < n; i++ {
		r := store.Record{
			ID:       recID(i),
			Title:    titles[i%len(titles)],
			Summary:  "Filed with the registrar",
			Body:     "Full text of the filing.",
			Category: "permit",
		}
		if err := s.Insert(ctx, r); err != nil {
			t.Fatalf("Insert %s: %v", r.ID, err)
		}
	}
}

func recID(i int) string {
	return "rec-" + string(rune('a'+i/26)) + string(rune('a'+i%26))
}

func TestIndex_ExistsAfterRebuild(t *testing.T) {
	_, ix := openIndexedStore(t)
	ok, err := ix.Exists(context.Background())
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("index should exist after rebuild")
	}
}

func TestIndex_TriggersKeepMirrorInSync(t *testing.T) {
	s, ix := openIndexedStore(t)
	ctx := context.Background()
	seedRecords(t, s, 3)

	d, err := ix.Drift(ctx)
	if err != nil {
		t.Fatalf("Drift: %v", err)
	}
	if d != 0 {
		t.Fatalf("drift after inserts = %d, want 0", d)
	}

	// Update must delete-then-insert in the mirror, leaving counts equal.
	r, _ := s.Get(ctx, recID(0))
	r.Title = "Amended building permit application"
	if err := s.Update(ctx, r); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if d, _ = ix.Drift(ctx); d != 0 {
		t.Errorf("drift after update = %d, want 0", d)
	}

	// The updated text must be searchable, the old phrasing gone.
	ids, err := ix.Search(ctx, "amended")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 1 || ids[0] != recID(0) {
		t.Errorf("Search(amended) = %v", ids)
	}

	if err := s.Delete(ctx, recID(1)); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if d, _ = ix.Drift(ctx); d != 0 {
		t.Errorf("drift after delete = %d, want 0", d)
	}
}

func TestIndex_RebuildConverges(t *testing.T) {
	s, ix := openIndexedStore(t)
	ctx := context.Background()
	seedRecords(t, s, 10)

	// Re-running the rebuild on a populated table converges to zero drift.
	if err := ix.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	base, fts, err := ix.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if base != 10 || fts != 10 {
		t.Errorf("counts = %d/%d, want 10/10", base, fts)
	}
}

func TestIndex_RebuildIsIdempotent(t *testing.T) {
	s, ix := openIndexedStore(t)
	ctx := context.Background()
	seedRecords(t, s, 2)
	for i := 0; i < 3; i++ {
		if err := ix.Rebuild(ctx); err != nil {
			t.Fatalf("Rebuild #%d: %v", i+1, err)
		}
	}
	if d, err := ix.Drift(ctx); err != nil || d != 0 {
		t.Errorf("drift = %d, err = %v", d, err)
	}
}

func TestIndex_SearchCachesResults(t *testing.T) {
	s, ix := openIndexedStore(t)
	ctx := context.Background()
	seedRecords(t, s, 5)
	if err := ix.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	if _, err := ix.Search(ctx, "permit"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	first, err := ix.Search(ctx, "permit")
	if err != nil {
		t.Fatalf("Search (cached): %v", err)
	}
	stats := ix.Stats()
	if stats.Hits == 0 {
		t.Errorf("expected cache hit, stats = %+v", stats)
	}
	if len(first) == 0 {
		t.Error("expected permit matches")
	}
}

func TestIndex_SearchQuotesOperators(t *testing.T) {
	s, ix := openIndexedStore(t)
	ctx := context.Background()
	seedRecords(t, s, 2)
	if err := ix.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	// Raw operators would be a syntax error without quoting.
	if _, err := ix.Search(ctx, `permit AND NOT "weird`); err != nil {
		t.Errorf("Search with operators: %v", err)
	}
}

func TestIndex_Suggest(t *testing.T) {
	s, ix := openIndexedStore(t)
	ctx := context.Background()
	seedRecords(t, s, 5)
	if err := ix.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	titles, err := ix.Suggest(ctx, "zon")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(titles) == 0 || !strings.Contains(titles[0], "Zoning") {
		t.Errorf("Suggest(zon) = %v", titles)
	}

	if titles, err := ix.Suggest(ctx, "  "); err != nil || titles != nil {
		t.Errorf("blank prefix = %v, %v", titles, err)
	}
}

func TestIndex_ExistsFalseOnBareStore(t *testing.T) {
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()
	ix := NewIndex(s.DB(), 8)
	ok, err := ix.Exists(context.Background())
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("index should not exist before rebuild")
	}
}
