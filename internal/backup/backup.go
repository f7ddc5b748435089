// Package backup snapshots a civreg data directory before destructive
// remediations. Each backup is a timestamped tar archive (optionally
// gzip-compressed) plus an optional git bundle of the data directory's
// history. The timestamp doubles as the backup id recorded on fix results
// for rollback bookkeeping.
package backup

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/gzip"
)

// idFormat names backups sortably by creation time.
const idFormat = "20060102T150405Z"

// Options control what a backup includes.
type Options struct {
	// IncludeStorage includes the records database files. When false,
	// *.db files are skipped and only configuration and exports are
	// archived.
	IncludeStorage bool
	// IncludeGitBundle additionally writes a git bundle of the data
	// directory's history, when it is a git repository.
	IncludeGitBundle bool
	// Compress gzips the archive.
	Compress bool
}

// Result describes a completed backup.
type Result struct {
	// ID is the backup identifier, consumed as FixResult.BackupID.
	ID string
	// Path is the archive location.
	Path string
	// BundlePath is the git bundle location, empty when not requested
	// or the data directory is not a repository.
	BundlePath string
	// Files is the number of files archived.
	Files int
	// Bytes is the total uncompressed payload size.
	Bytes int64
}

// Creator is the contract the auto-fix engine consumes. The search
// checker requests a backup through this interface before rebuilding the
// index; implementations must complete (or fail) before returning.
type Creator interface {
	Create(ctx context.Context, opts Options) (*Result, error)
}

// Manager implements [Creator] with local tar archives under an output
// directory. Concurrent backups of the same output directory are
// serialized with a file lock.
type Manager struct {
	dataDir string
	outDir  string
	now     func() time.Time // test seam
}

// NewManager creates a Manager archiving dataDir into outDir.
func NewManager(dataDir, outDir string) *Manager {
	return &Manager{dataDir: dataDir, outDir: outDir, now: time.Now}
}

// Create writes a new backup archive and returns its descriptor. A backup
// already in progress for the same output directory fails immediately
// rather than queueing — the caller decides whether to proceed without
// rollback capability.
func (m *Manager) Create(ctx context.Context, opts Options) (*Result, error) {
	if err := os.MkdirAll(m.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	lock := flock.New(filepath.Join(m.outDir, ".backup.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring backup lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another backup is in progress")
	}
	defer lock.Unlock() //nolint:errcheck // best-effort unlock

	id := m.now().UTC().Format(idFormat)
	name := "civreg-" + id + ".tar"
	if opts.Compress {
		name += ".gz"
	}
	path := filepath.Join(m.outDir, name)

	res := &Result{ID: id, Path: path}
	if err := m.writeArchive(ctx, path, opts, res); err != nil {
		os.Remove(path)
		return nil, err
	}

	if opts.IncludeGitBundle {
		bundle, err := m.writeGitBundle(ctx, id)
		if err != nil {
			os.Remove(path)
			return nil, err
		}
		res.BundlePath = bundle
	}

	return res, nil
}

// writeArchive tars the data directory into path, skipping the backup
// output directory itself and, unless IncludeStorage, database files.
func (m *Manager) writeArchive(ctx context.Context, path string, opts Options, res *Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close() //nolint:errcheck // error surfaced via explicit Close below

	var w io.Writer = f
	var gz *gzip.Writer
	if opts.Compress {
		gz = gzip.NewWriter(f)
		w = gz
	}
	tw := tar.NewWriter(w)

	outAbs, _ := filepath.Abs(m.outDir)
	err = filepath.WalkDir(m.dataDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		abs, _ := filepath.Abs(p)
		if abs == outAbs {
			// The backup directory commonly lives inside the data
			// directory; archiving it would recurse into ourselves.
			return filepath.SkipDir
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !opts.IncludeStorage && isStorageFile(p) {
			return nil
		}
		return m.addFile(tw, p, res)
	})
	if err != nil {
		return fmt.Errorf("archiving %q: %w", m.dataDir, err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("finalizing compression: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	return nil
}

// addFile writes one file into the tar stream with a path relative to the
// data directory.
func (m *Manager) addFile(tw *tar.Writer, p string, res *Result) error {
	rel, err := filepath.Rel(m.dataDir, p)
	if err != nil {
		return err
	}
	info, err := os.Stat(p)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // read-only
	n, err := io.Copy(tw, f)
	if err != nil {
		return err
	}
	res.Files++
	res.Bytes += n
	return nil
}

// writeGitBundle bundles the data directory's git history. A data
// directory that is not a repository is not an error — the bundle is
// simply skipped.
func (m *Manager) writeGitBundle(ctx context.Context, id string) (string, error) {
	if _, err := os.Stat(filepath.Join(m.dataDir, ".git")); err != nil {
		return "", nil
	}
	bundle := filepath.Join(m.outDir, "civreg-"+id+".bundle")
	cmd := exec.CommandContext(ctx, "git", "-C", m.dataDir, "bundle", "create", bundle, "--all")
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git bundle: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return bundle, nil
}

// isStorageFile reports whether p is a records database artifact.
func isStorageFile(p string) bool {
	switch filepath.Ext(p) {
	case ".db", ".db-wal", ".db-shm":
		return true
	}
	return false
}

var _ Creator = (*Manager)(nil)
