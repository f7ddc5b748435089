package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/civreg/civreg/internal/config"
	"github.com/civreg/civreg/internal/fsys"
	"github.com/civreg/civreg/internal/search"
	"github.com/civreg/civreg/internal/store"
)

func newInitCmd(stdout, stderr io.Writer) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a new civreg data directory",
		Long: `Initialize a civreg workspace: the directory layout, a default
civreg.toml, the records database, and the full-text search index.
Defaults to the current directory.`,
		Example: `  civreg init
  civreg init /srv/townhall --name townhall`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if doInit(cmd.Context(), dir, name, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "workspace name (default: directory basename)")
	return cmd
}

// workspaceDirs is the layout created under a fresh data directory.
var workspaceDirs = []string{"records", "config", "exports", "backups", ".civreg"}

// doInit creates the workspace at dir.
func doInit(ctx context.Context, dir, name string, stdout, stderr io.Writer) int {
	dataDir, err := filepath.Abs(dir)
	if err != nil {
		fmt.Fprintf(stderr, "civreg init: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if name == "" {
		name = filepath.Base(dataDir)
	}

	fs := fsys.OSFS{}
	for _, d := range workspaceDirs {
		if err := fs.MkdirAll(filepath.Join(dataDir, d), 0o755); err != nil {
			fmt.Fprintf(stderr, "civreg init: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
	}

	cfgPath := filepath.Join(dataDir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Fprintf(stderr, "civreg init: %s already exists\n", cfgPath) //nolint:errcheck // best-effort stderr
		return 1
	}
	cfg := config.Default(name, dataDir)
	data, err := cfg.Marshal()
	if err != nil {
		fmt.Fprintf(stderr, "civreg init: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if err := fs.WriteFile(cfgPath, data, 0o644); err != nil {
		fmt.Fprintf(stderr, "civreg init: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	st, err := store.Open(&cfg)
	if err != nil {
		fmt.Fprintf(stderr, "civreg init: opening database: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	defer st.Close() //nolint:errcheck // best-effort close

	ix := search.NewIndex(st.DB(), cfg.Cache.Capacity)
	if err := ix.Rebuild(ctx); err != nil {
		fmt.Fprintf(stderr, "civreg init: building search index: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	fmt.Fprintf(stdout, "initialized civreg workspace %q in %s\n", name, dataDir) //nolint:errcheck // best-effort stdout
	return 0
}
