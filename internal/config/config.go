// Package config handles loading and parsing civreg.toml configuration files.
package config

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/civreg/civreg/internal/fsys"
)

// FileName is the root configuration file name, expected at the top of the
// data directory.
const FileName = "civreg.toml"

// Drivers supported by the records store.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config is the top-level configuration for a civreg installation.
type Config struct {
	Workspace   Workspace   `toml:"workspace" json:"workspace"`
	Storage     Storage     `toml:"storage" json:"storage"`
	Search      Search      `toml:"search,omitempty" json:"search,omitempty"`
	Cache       Cache       `toml:"cache,omitempty" json:"cache,omitempty"`
	Diagnostics Diagnostics `toml:"diagnostics,omitempty" json:"diagnostics,omitempty"`
}

// Workspace holds installation-level metadata.
type Workspace struct {
	Name string `toml:"name" json:"name"`
}

// Storage configures the data directory and the records database.
type Storage struct {
	DataDir  string   `toml:"data_dir" json:"data_dir"`
	Database Database `toml:"database" json:"database"`
}

// Database selects and configures the records store backend.
type Database struct {
	Driver string `toml:"driver" json:"driver"` // "sqlite" (default) or "mysql"

	// SQLite: database file path, relative to data_dir unless absolute.
	Path string `toml:"path,omitempty" json:"path,omitempty"`

	// MySQL connection parameters. DSN wins when set; otherwise one is
	// assembled from host/port/user/password/name.
	DSN      string `toml:"dsn,omitempty" json:"dsn,omitempty"`
	Host     string `toml:"host,omitempty" json:"host,omitempty"`
	Port     int    `toml:"port,omitempty" json:"port,omitempty"`
	User     string `toml:"user,omitempty" json:"user,omitempty"`
	Password string `toml:"password,omitempty" json:"password,omitempty"`
	Name     string `toml:"name,omitempty" json:"name,omitempty"`
}

// Search configures the full-text index probes used by diagnostics.
type Search struct {
	// ProbeQueries are run by the query-performance sub-check.
	ProbeQueries []string `toml:"probe_queries,omitempty" json:"probe_queries,omitempty"`
	// SuggestProbes are prefixes run by the suggestion sub-check.
	SuggestProbes []string `toml:"suggest_probes,omitempty" json:"suggest_probes,omitempty"`
}

// Cache configures the query cache and its diagnostic thresholds.
type Cache struct {
	Capacity    int     `toml:"capacity,omitempty" json:"capacity,omitempty"`
	MinHitRate  float64 `toml:"min_hit_rate,omitempty" json:"min_hit_rate,omitempty"`
	MaxErrors   uint64  `toml:"max_errors,omitempty" json:"max_errors,omitempty"`
	MaxMemoryMB int64   `toml:"max_memory_mb,omitempty" json:"max_memory_mb,omitempty"`
}

// Diagnostics holds engine-level tuning.
type Diagnostics struct {
	// SubCheckTimeoutMS bounds each individual sub-check. Zero means the
	// built-in default (10s).
	SubCheckTimeoutMS int `toml:"subcheck_timeout_ms,omitempty" json:"subcheck_timeout_ms,omitempty"`
}

// Default returns the configuration written by "civreg init".
func Default(name, dataDir string) Config {
	return Config{
		Workspace: Workspace{Name: name},
		Storage: Storage{
			DataDir: dataDir,
			Database: Database{
				Driver: DriverSQLite,
				Path:   "registry.db",
			},
		},
		Search: Search{
			ProbeQueries:  []string{"permit", "ordinance", "zoning"},
			SuggestProbes: []string{"per", "ord"},
		},
		Cache: Cache{
			Capacity:   1024,
			MinHitRate: 0.5,
			MaxErrors:  10,
		},
	}
}

// Marshal encodes a Config to TOML bytes.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads and parses a civreg.toml file at the given path using the
// provided filesystem. All file I/O goes through fs for testability.
func Load(fs fsys.FS, path string) (*Config, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes TOML data into a Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// DatabasePath resolves the sqlite database file path against the data
// directory. Absolute paths are returned unchanged.
func (c *Config) DatabasePath() string {
	p := c.Storage.Database.Path
	if p == "" {
		p = "registry.db"
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Storage.DataDir, p)
}

// MySQLDSN returns the configured DSN, assembling one from the individual
// connection fields when the dsn key is empty.
func (c *Config) MySQLDSN() string {
	db := c.Storage.Database
	if db.DSN != "" {
		return db.DSN
	}
	host := db.Host
	if host == "" {
		host = "localhost"
	}
	port := db.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", db.User, db.Password, host, port, db.Name)
}
