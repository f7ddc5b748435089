package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/civreg/civreg/internal/fsys"
)

// ValidateRequired checks the fields the platform cannot run without:
// the data directory and the database driver plus its credentials.
// The first missing field is returned as an error.
func ValidateRequired(cfg *Config) error {
	if cfg.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	db := cfg.Storage.Database
	if db.Driver == "" {
		return fmt.Errorf("storage.database.driver is required")
	}
	if db.Driver == DriverMySQL && db.DSN == "" && (db.User == "" || db.Name == "") {
		return fmt.Errorf("storage.database: mysql requires dsn or user+name")
	}
	return nil
}

// ValidateEnums checks enumerated fields and returns one message per
// invalid value. These are advisory: an unknown driver is reported but
// does not stop the rest of validation.
func ValidateEnums(cfg *Config) []string {
	var warnings []string
	switch cfg.Storage.Database.Driver {
	case "", DriverSQLite, DriverMySQL:
	default:
		warnings = append(warnings, fmt.Sprintf(
			"storage.database.driver %q is not one of %s, %s",
			cfg.Storage.Database.Driver, DriverSQLite, DriverMySQL))
	}
	if r := cfg.Cache.MinHitRate; r < 0 || r > 1 {
		warnings = append(warnings, fmt.Sprintf("cache.min_hit_rate %v is outside [0, 1]", r))
	}
	return warnings
}

// ValidateFile parses a single managed configuration file and runs the
// required-field validation against it. Used by the per-file sub-check.
func ValidateFile(fs fsys.FS, path string) error {
	cfg, err := Load(fs, path)
	if err != nil {
		return err
	}
	// Fragment files under conf.d carry overrides and may omit required
	// fields; only the root file must be complete.
	if filepath.Base(path) == FileName {
		return ValidateRequired(cfg)
	}
	return nil
}

// ManagedFiles enumerates every configuration file the platform owns: the
// root civreg.toml plus any *.toml fragments under <dataDir>/config. The
// root file is always first. Missing conf directories are not an error —
// they simply contribute no fragments.
func ManagedFiles(fs fsys.FS, dataDir string) []string {
	files := []string{filepath.Join(dataDir, FileName)}
	confDir := filepath.Join(dataDir, "config")
	entries, err := fs.ReadDir(confDir)
	if err != nil {
		return files
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		files = append(files, filepath.Join(confDir, e.Name()))
	}
	return files
}
