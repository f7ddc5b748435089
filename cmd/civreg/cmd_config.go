package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/civreg/civreg/internal/config"
	"github.com/civreg/civreg/internal/fsys"
)

func newConfigCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	cmd.AddCommand(newConfigValidateCmd(stdout, stderr))
	cmd.AddCommand(newConfigSchemaCmd(stdout, stderr))
	return cmd
}

func newConfigValidateCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the root config and managed fragments",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doConfigValidate(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

func doConfigValidate(stdout, stderr io.Writer) int {
	dataDir, err := resolveDataDir()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err) //nolint:errcheck // best-effort
		return 1
	}

	osfs := fsys.OSFS{}
	provider := config.NewFileProvider(osfs, dataDir)
	cfg, err := provider.Config()
	if err != nil {
		fmt.Fprintf(stderr, "✗ %s: %v\n", provider.Path(), err) //nolint:errcheck // best-effort
		return 1
	}
	fmt.Fprintf(stdout, "✓ %s\n", provider.Path()) //nolint:errcheck // best-effort

	failed := 0
	if err := config.ValidateRequired(cfg); err != nil {
		fmt.Fprintf(stderr, "✗ required fields: %v\n", err) //nolint:errcheck // best-effort
		failed++
	}
	for _, warn := range config.ValidateEnums(cfg) {
		fmt.Fprintf(stdout, "⚠ %s\n", warn) //nolint:errcheck // best-effort
	}
	for _, path := range provider.ManagedFiles() {
		if err := config.ValidateFile(osfs, path); err != nil {
			fmt.Fprintf(stderr, "✗ %s: %v\n", path, err) //nolint:errcheck // best-effort
			failed++
			continue
		}
		fmt.Fprintf(stdout, "✓ %s\n", path) //nolint:errcheck // best-effort
	}
	if failed > 0 {
		fmt.Fprintf(stderr, "%d file(s) failed validation\n", failed) //nolint:errcheck // best-effort
		return 1
	}
	return 0
}

func newConfigSchemaCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the config file JSON schema",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			out, err := config.SchemaJSON()
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err) //nolint:errcheck // best-effort
				return errExit
			}
			fmt.Fprintf(stdout, "%s\n", out) //nolint:errcheck // best-effort
			return nil
		},
	}
}
