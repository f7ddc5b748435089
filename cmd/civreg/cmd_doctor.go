package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/civreg/civreg/internal/backup"
	"github.com/civreg/civreg/internal/config"
	"github.com/civreg/civreg/internal/diag"
	"github.com/civreg/civreg/internal/fsys"
	"github.com/civreg/civreg/internal/search"
	"github.com/civreg/civreg/internal/store"
	"github.com/civreg/civreg/internal/sysinfo"
	"github.com/civreg/civreg/internal/telemetry"
)

func newDoctorCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		fix      bool
		verbose  bool
		noBackup bool
		format   string
		only     []string
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check workspace health",
		Long: `Run diagnostic health checks on the civreg workspace.

Checks configuration validity, data directory layout and disk space,
search-index consistency, query cache health, and host resources. Use
--fix to attempt automatic repairs; destructive repairs take a backup
first unless --no-backup is given.`,
		Example: `  civreg doctor
  civreg doctor --fix
  civreg doctor --only search-index,cache --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := doctorOptions{
				fix:      fix,
				verbose:  verbose,
				noBackup: noBackup,
				format:   format,
				only:     only,
			}
			if doDoctor(cmd.Context(), opts, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "attempt to fix issues automatically")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show extra diagnostic details")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "skip the pre-fix backup before destructive repairs")
	cmd.Flags().StringVar(&format, "format", "pretty", "output format: pretty, json, or toon")
	cmd.Flags().StringSliceVar(&only, "only", nil,
		"run only the named checkers (configuration, filesystem, search-index, cache, system)")
	return cmd
}

type doctorOptions struct {
	fix      bool
	verbose  bool
	noBackup bool
	format   string
	only     []string
}

// doDoctor runs diagnostics and optionally auto-fixes, printing the
// report in the requested format.
func doDoctor(ctx context.Context, opts doctorOptions, stdout, stderr io.Writer) int {
	if opts.format != "pretty" && opts.format != "json" && opts.format != "toon" {
		fmt.Fprintf(stderr, "civreg doctor: unknown format %q\n", opts.format) //nolint:errcheck // best-effort stderr
		return 1
	}

	dataDir, err := resolveDataDir()
	if err != nil {
		fmt.Fprintf(stderr, "civreg doctor: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	shutdown, err := telemetry.Init(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "civreg doctor: telemetry: %v\n", err) //nolint:errcheck // best-effort stderr
	} else {
		defer shutdown(context.Background()) //nolint:errcheck // best-effort flush
	}

	o, cleanup, err := buildOrchestrator(dataDir, opts.only, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "civreg doctor: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	defer cleanup()

	report := o.Run(ctx)

	if opts.fix && report.HasFixableIssues() {
		if opts.format == "pretty" {
			diag.PrintReport(stdout, report, opts.verbose)
			fmt.Fprintln(stdout, "\n--- fixes ---") //nolint:errcheck // best-effort output
		}
		results := o.Fix(ctx, report.FixableIssues(), diag.FixOptions{Backup: !opts.noBackup})
		if opts.format == "pretty" {
			diag.PrintFixResults(stdout, results)
			fmt.Fprintln(stdout, "\nre-running diagnostics to verify fixes") //nolint:errcheck // best-effort output
		}
		report = o.Run(ctx)
	}

	switch opts.format {
	case "json":
		if err := printJSONReport(stdout, report); err != nil {
			fmt.Fprintf(stderr, "civreg doctor: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
	case "toon":
		if err := printToonReport(stdout, report); err != nil {
			fmt.Fprintf(stderr, "civreg doctor: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
	default:
		diag.PrintReport(stdout, report, opts.verbose)
	}

	if report.OverallStatus == diag.StatusError {
		return 1
	}
	return 0
}

// buildOrchestrator wires the checkers for a data directory. Checkers
// that need a live database are skipped (with a notice) when the store
// cannot be opened, so configuration and filesystem diagnostics still
// run against a broken workspace.
func buildOrchestrator(dataDir string, only []string, stderr io.Writer) (*diag.Orchestrator, func(), error) {
	fs := fsys.OSFS{}
	probe := sysinfo.OSProbe{}
	provider := config.NewFileProvider(fs, dataDir)

	cfg, cfgErr := provider.Config()
	subTimeout := diag.DefaultSubCheckTimeout
	if cfgErr == nil && cfg.Diagnostics.SubCheckTimeoutMS > 0 {
		subTimeout = time.Duration(cfg.Diagnostics.SubCheckTimeoutMS) * time.Millisecond
	}

	selected := func(name string) bool {
		if len(only) == 0 {
			return true
		}
		for _, n := range only {
			if n == name {
				return true
			}
		}
		return false
	}

	o := &diag.Orchestrator{}
	cleanup := func() {}

	if selected(diag.ComponentConfig) {
		o.Register(diag.NewConfigChecker(provider, fs, subTimeout))
	}
	if selected(diag.ComponentFilesystem) {
		o.Register(diag.NewFilesystemChecker(fs, probe, dataDir, subTimeout))
	}

	wantSearch := selected(diag.ComponentSearch)
	wantCache := selected(diag.ComponentCache)
	switch {
	case !wantSearch && !wantCache, cfgErr != nil:
	case !searchCapable(cfg):
		// The search index and its query cache live in sqlite FTS5
		// tables; other drivers have nothing for these checkers to
		// inspect or rebuild.
		fmt.Fprintf(stderr, "civreg doctor: skipping search and cache checks: %s driver has no local search index\n", cfg.Storage.Database.Driver) //nolint:errcheck // best-effort stderr
	default:
		st, err := store.Open(cfg)
		if err != nil {
			fmt.Fprintf(stderr, "civreg doctor: skipping database checks: %v\n", err) //nolint:errcheck // best-effort stderr
		} else {
			cleanup = func() {
				st.Close() //nolint:errcheck // best-effort close
			}
			ix := search.NewIndex(st.DB(), cfg.Cache.Capacity)
			if wantSearch {
				backups := backup.NewManager(dataDir, filepath.Join(dataDir, "backups"))
				o.Register(diag.NewSearchChecker(ix, backups,
					cfg.Search.ProbeQueries, cfg.Search.SuggestProbes, subTimeout))
			}
			if wantCache {
				o.Register(diag.NewCacheChecker(ix, diag.CacheOptions{
					MinHitRate:     cfg.Cache.MinHitRate,
					MaxErrors:      cfg.Cache.MaxErrors,
					MaxMemoryBytes: cfg.Cache.MaxMemoryMB << 20,
				}))
			}
		}
	}

	if selected(diag.ComponentSystem) {
		o.Register(diag.NewSystemChecker(probe, subTimeout))
	}
	return o, cleanup, nil
}

// searchCapable reports whether the configured database driver carries
// the sqlite FTS5 search index.
func searchCapable(cfg *config.Config) bool {
	d := cfg.Storage.Database.Driver
	return d == "" || d == config.DriverSQLite
}
