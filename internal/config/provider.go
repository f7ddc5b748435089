package config

import (
	"path/filepath"
	"sync"

	"github.com/civreg/civreg/internal/fsys"
)

// Provider supplies configuration to subsystems that need it. It is an
// explicit dependency passed into constructors — there is no process-wide
// configuration singleton. The host application owns the provider's
// lifecycle.
type Provider interface {
	// Config returns the current configuration, loading it on first use.
	Config() (*Config, error)
	// Path returns the root configuration file path.
	Path() string
	// ManagedFiles lists every configuration file the platform owns.
	ManagedFiles() []string
	// Reload discards any cached configuration and re-reads from disk.
	Reload() error
}

// FileProvider is the standard [Provider]: it reads the root civreg.toml
// from a data directory and caches the parsed result until Reload.
type FileProvider struct {
	fs      fsys.FS
	dataDir string

	mu  sync.Mutex
	cfg *Config
	err error
}

// NewFileProvider creates a provider rooted at dataDir. Loading is lazy;
// construction never touches the filesystem.
func NewFileProvider(fs fsys.FS, dataDir string) *FileProvider {
	return &FileProvider{fs: fs, dataDir: dataDir}
}

// Config returns the cached configuration, loading it on first call.
// A load failure is cached too, so repeated callers see the same error
// until Reload.
func (p *FileProvider) Config() (*Config, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg == nil && p.err == nil {
		p.cfg, p.err = Load(p.fs, p.Path())
	}
	return p.cfg, p.err
}

// Path returns the root configuration file path.
func (p *FileProvider) Path() string {
	return filepath.Join(p.dataDir, FileName)
}

// ManagedFiles lists the root file plus conf.d fragments.
func (p *FileProvider) ManagedFiles() []string {
	return ManagedFiles(p.fs, p.dataDir)
}

// Reload drops the cache and re-reads the root file.
func (p *FileProvider) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg, p.err = Load(p.fs, p.Path())
	return p.err
}

var _ Provider = (*FileProvider)(nil)
