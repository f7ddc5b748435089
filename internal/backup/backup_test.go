package backup

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

// seedDataDir builds a data directory shaped like a real workspace, with
// the backup output directory nested inside it.
func seedDataDir(t *testing.T) (dataDir, outDir string) {
	t.Helper()
	dataDir = t.TempDir()
	outDir = filepath.Join(dataDir, "backups")
	files := map[string]string{
		"civreg.toml":                "[workspace]\nname = \"test\"\n",
		"records/2024/permit-001.md": "# Permit 001\n",
		"config/exports.toml":        "[exports]\n",
		".civreg/registry.db":        "sqlite payload",
		".civreg/registry.db-wal":    "wal",
		"exports/2024-permits.csv":   "id,title\n",
	}
	for rel, body := range files {
		p := filepath.Join(dataDir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dataDir, outDir
}

// archiveNames lists the entry names inside a (possibly gzipped) tar.
func archiveNames(t *testing.T, path string, compressed bool) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var r io.Reader = f
	if compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			t.Fatal(err)
		}
		defer gz.Close()
		r = gz
	}
	tr := tar.NewReader(r)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, hdr.Name)
	}
	return names
}

func TestManagerCreate_ArchivesDataDir(t *testing.T) {
	dataDir, outDir := seedDataDir(t)
	m := NewManager(dataDir, outDir)
	m.now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }

	res, err := m.Create(context.Background(), Options{IncludeStorage: true, Compress: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.ID != "20260314T092653Z" {
		t.Errorf("ID = %q, want timestamp id", res.ID)
	}
	if res.Files != 6 {
		t.Errorf("Files = %d, want 6", res.Files)
	}
	if res.Bytes == 0 {
		t.Error("Bytes = 0, want payload size")
	}

	names := archiveNames(t, res.Path, true)
	want := map[string]bool{
		"civreg.toml":                true,
		"records/2024/permit-001.md": true,
		".civreg/registry.db":        true,
	}
	got := map[string]bool{}
	for _, n := range names {
		got[n] = true
	}
	for n := range want {
		if !got[n] {
			t.Errorf("archive missing %q (have %v)", n, names)
		}
	}
}

func TestManagerCreate_SkipsStorageWhenExcluded(t *testing.T) {
	dataDir, outDir := seedDataDir(t)
	m := NewManager(dataDir, outDir)

	res, err := m.Create(context.Background(), Options{IncludeStorage: false})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, n := range archiveNames(t, res.Path, false) {
		if filepath.Ext(n) == ".db" || filepath.Ext(n) == ".db-wal" {
			t.Errorf("archive contains storage file %q", n)
		}
	}
}

func TestManagerCreate_SkipsOwnOutputDir(t *testing.T) {
	dataDir, outDir := seedDataDir(t)
	m := NewManager(dataDir, outDir)

	// A previous backup sits in the nested output directory; it must not
	// be swallowed into the next archive.
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "civreg-old.tar"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := m.Create(context.Background(), Options{IncludeStorage: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, n := range archiveNames(t, res.Path, false) {
		if filepath.Dir(n) == "backups" {
			t.Errorf("archive contains backup output file %q", n)
		}
	}
}

func TestManagerCreate_NoGitBundleOutsideRepo(t *testing.T) {
	dataDir, outDir := seedDataDir(t)
	m := NewManager(dataDir, outDir)

	res, err := m.Create(context.Background(), Options{IncludeStorage: true, IncludeGitBundle: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.BundlePath != "" {
		t.Errorf("BundlePath = %q, want empty for non-repository", res.BundlePath)
	}
}

func TestManagerCreate_CanceledContext(t *testing.T) {
	dataDir, outDir := seedDataDir(t)
	m := NewManager(dataDir, outDir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Create(ctx, Options{IncludeStorage: true}); err == nil {
		t.Fatal("Create with canceled context succeeded, want error")
	}
}
