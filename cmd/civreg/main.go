// civreg is the civic-records platform CLI: workspace setup, health
// diagnostics with auto-remediation, and search-index maintenance.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/civreg/civreg/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errExit is a sentinel error returned by cobra RunE functions to signal
// non-zero exit. The command has already written its own error to stderr.
var errExit = errors.New("exit")

// dataFlag holds the value of the --data persistent flag.
// Empty means "discover from cwd."
var dataFlag string

// run executes the civreg CLI with the given args, writing output to
// stdout and errors to stderr. Returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

// newRootCmd creates the root cobra command with all subcommands.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "civreg",
		Short:         "civreg — civic-records platform administration",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			fmt.Fprintf(stderr, "civreg: unknown command %q\n", args[0]) //nolint:errcheck // best-effort stderr
			return errExit
		},
	}
	root.PersistentFlags().StringVar(&dataFlag, "data", "",
		"path to the data directory (default: walk up from cwd)")
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		newInitCmd(stdout, stderr),
		newDoctorCmd(stdout, stderr),
		newRebuildCmd(stdout, stderr),
		newConfigCmd(stdout, stderr),
		newVersionCmd(stdout),
	)
	root.AddCommand(newGenDocCmd(stdout, stderr, root))
	return root
}

// findDataDir walks dir upward looking for a directory containing
// civreg.toml. Returns the data directory path or an error.
func findDataDir(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if fi, err := os.Stat(filepath.Join(dir, config.FileName)); err == nil && !fi.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a civreg data directory (no %s found)", config.FileName)
		}
		dir = parent
	}
}

// resolveDataDir returns the data directory path. If --data was
// provided, it verifies civreg.toml exists there. Otherwise falls back
// to os.Getwd() → findDataDir().
func resolveDataDir() (string, error) {
	if dataFlag != "" {
		p, err := filepath.Abs(dataFlag)
		if err != nil {
			return "", err
		}
		if fi, err := os.Stat(filepath.Join(p, config.FileName)); err != nil || fi.IsDir() {
			return "", fmt.Errorf("not a civreg data directory: %s (no %s found)", p, config.FileName)
		}
		return p, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return findDataDir(cwd)
}
