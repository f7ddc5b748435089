package docgen

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RenderCLIMarkdown writes a CLI reference by walking a cobra command tree.
// Hidden commands are skipped. Output: H2 heading per command, synopsis,
// examples, flag table, and a global-flags section from the root.
func RenderCLIMarkdown(w io.Writer, root *cobra.Command) error {
	if _, err := io.WriteString(w, "# CLI Reference\n\n"); err != nil {
		return err
	}
	if _, err := io.WriteString(w, regenNote); err != nil {
		return err
	}
	if err := renderGlobalFlags(w, root); err != nil {
		return err
	}
	return walkCommands(w, root)
}

// WriteCLIMarkdown writes the CLI reference to a file using atomic write.
func WriteCLIMarkdown(path string, root *cobra.Command) error {
	return writeAtomic(path, func(w io.Writer) error { return RenderCLIMarkdown(w, root) })
}

func walkCommands(w io.Writer, cmd *cobra.Command) error {
	if err := renderCommand(w, cmd); err != nil {
		return err
	}
	for _, child := range cmd.Commands() {
		if child.Hidden {
			continue
		}
		if err := walkCommands(w, child); err != nil {
			return err
		}
	}
	return nil
}

// renderCommand renders a single command section.
func renderCommand(w io.Writer, cmd *cobra.Command) error {
	if _, err := fmt.Fprintf(w, "## %s\n\n", cmd.CommandPath()); err != nil {
		return err
	}

	desc := cmd.Long
	if desc == "" {
		desc = cmd.Short
	}
	if desc != "" {
		if _, err := fmt.Fprintf(w, "%s\n\n", strings.TrimSpace(desc)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "```\n%s\n```\n\n", cmd.UseLine()); err != nil {
		return err
	}
	if cmd.Example != "" {
		if _, err := fmt.Fprintf(w, "**Example:**\n\n```\n%s\n```\n\n", strings.TrimSpace(cmd.Example)); err != nil {
			return err
		}
	}
	if err := renderFlagsTable(w, cmd.LocalNonPersistentFlags()); err != nil {
		return err
	}
	return renderSubcommandsTable(w, cmd)
}

// renderGlobalFlags renders the persistent flags of the root command.
func renderGlobalFlags(w io.Writer, root *cobra.Command) error {
	flags := collectFlags(root.PersistentFlags())
	if len(flags) == 0 {
		return nil
	}
	if _, err := io.WriteString(w, "## Global Flags\n\n"); err != nil {
		return err
	}
	return writeFlagTable(w, flags)
}

// flagInfo holds rendered flag metadata.
type flagInfo struct {
	Name    string
	Type    string
	Default string
	Desc    string
}

func collectFlags(fs *pflag.FlagSet) []flagInfo {
	var flags []flagInfo
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		flags = append(flags, newFlagInfo(f))
	})
	return flags
}

func newFlagInfo(f *pflag.Flag) flagInfo {
	name := "`--" + f.Name + "`"
	if f.Shorthand != "" {
		name = "`-" + f.Shorthand + "`, `--" + f.Name + "`"
	}
	defVal := ""
	if !isZeroDefault(f.DefValue, f.Value.Type()) {
		defVal = "`" + f.DefValue + "`"
	}
	return flagInfo{
		Name:    name,
		Type:    f.Value.Type(),
		Default: defVal,
		Desc:    strings.ReplaceAll(f.Usage, "|", "\\|"),
	}
}

// isZeroDefault reports whether the default value is the zero value for
// its flag type: zero defaults are omitted from tables.
func isZeroDefault(val, typ string) bool {
	switch typ {
	case "bool":
		return val == "false"
	case "int", "int32", "int64", "uint", "uint32", "uint64", "float32", "float64":
		return val == "0"
	case "stringSlice", "stringArray":
		return val == "[]"
	default:
		return val == ""
	}
}

func renderFlagsTable(w io.Writer, fs *pflag.FlagSet) error {
	flags := collectFlags(fs)
	if len(flags) == 0 {
		return nil
	}
	return writeFlagTable(w, flags)
}

func writeFlagTable(w io.Writer, flags []flagInfo) error {
	if _, err := io.WriteString(w, "| Flag | Type | Default | Description |\n|------|------|---------|-------------|\n"); err != nil {
		return err
	}
	for _, f := range flags {
		if _, err := fmt.Fprintf(w, "| %s | %s | %s | %s |\n", f.Name, f.Type, f.Default, f.Desc); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

// renderSubcommandsTable lists non-hidden child commands with their
// one-line summaries.
func renderSubcommandsTable(w io.Writer, cmd *cobra.Command) error {
	var children []*cobra.Command
	for _, c := range cmd.Commands() {
		if !c.Hidden {
			children = append(children, c)
		}
	}
	if len(children) == 0 {
		return nil
	}
	if _, err := io.WriteString(w, "| Subcommand | Description |\n|------------|-------------|\n"); err != nil {
		return err
	}
	for _, c := range children {
		if _, err := fmt.Fprintf(w, "| [%s](#%s) | %s |\n", c.Name(), anchor(c.CommandPath()), c.Short); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

// anchor converts a command path to a GitHub-style heading anchor.
func anchor(path string) string {
	return strings.ReplaceAll(strings.ToLower(path), " ", "-")
}
