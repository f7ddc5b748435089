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
	"github.com/civreg/civreg/internal/fsys"
	"github.com/civreg/civreg/internal/search"
	"github.com/civreg/civreg/internal/store"
	"github.com/civreg/civreg/internal/telemetry"
)

func newRebuildCmd(stdout, stderr io.Writer) *cobra.Command {
	var noBackup bool
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the full-text search index",
		Long: `Drop and repopulate the full-text search index from the record store.

A backup of the data directory is taken first unless --no-backup is
given. After the rebuild the index is verified against the base table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if doRebuild(cmd.Context(), noBackup, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "skip the pre-rebuild backup")
	return cmd
}

func doRebuild(ctx context.Context, noBackup bool, stdout, stderr io.Writer) int {
	dataDir, err := resolveDataDir()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err) //nolint:errcheck // best-effort
		return 1
	}

	shutdown, err := telemetry.Init(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: telemetry disabled: %v\n", err) //nolint:errcheck // best-effort
	} else {
		defer shutdown(context.Background()) //nolint:errcheck // best-effort
	}

	provider := config.NewFileProvider(fsys.OSFS{}, dataDir)
	cfg, err := provider.Config()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err) //nolint:errcheck // best-effort
		return 1
	}

	if !searchCapable(cfg) {
		fmt.Fprintf(stderr, "Error: the search index lives in sqlite FTS5 tables; the %s driver has no index to rebuild\n",
			cfg.Storage.Database.Driver) //nolint:errcheck // best-effort
		return 1
	}

	if !noBackup {
		mgr := backup.NewManager(dataDir, filepath.Join(dataDir, "backups"))
		res, err := mgr.Create(ctx, backup.Options{IncludeStorage: true, Compress: true})
		telemetry.RecordBackup(ctx, backupID(res), backupFiles(res), err)
		if err != nil {
			fmt.Fprintf(stderr, "Warning: backup failed: %v (continuing)\n", err) //nolint:errcheck // best-effort
		} else {
			fmt.Fprintf(stdout, "backup %s written to %s\n", res.ID, res.Path) //nolint:errcheck // best-effort
		}
	}

	st, err := store.Open(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err) //nolint:errcheck // best-effort
		return 1
	}
	defer st.Close() //nolint:errcheck // best-effort

	ix := search.NewIndex(st.DB(), cfg.Cache.Capacity)
	start := time.Now()
	rebuildErr := ix.Rebuild(ctx)
	base, fts, countErr := ix.Counts(ctx)
	telemetry.RecordRebuild(ctx, fts, float64(time.Since(start).Milliseconds()), rebuildErr)
	if rebuildErr != nil {
		fmt.Fprintf(stderr, "Error: rebuild failed: %v\n", rebuildErr) //nolint:errcheck // best-effort
		return 1
	}
	if countErr != nil {
		fmt.Fprintf(stderr, "Warning: rebuild finished but verification failed: %v\n", countErr) //nolint:errcheck // best-effort
		return 0
	}
	if base != fts {
		fmt.Fprintf(stderr, "Error: index still out of sync after rebuild: %d records, %d indexed\n", base, fts) //nolint:errcheck // best-effort
		return 1
	}
	fmt.Fprintf(stdout, "index rebuilt: %d rows in %s\n", fts, time.Since(start).Round(time.Millisecond)) //nolint:errcheck // best-effort
	return 0
}

func backupID(res *backup.Result) string {
	if res == nil {
		return ""
	}
	return res.ID
}

func backupFiles(res *backup.Result) int {
	if res == nil {
		return 0
	}
	return res.Files
}
