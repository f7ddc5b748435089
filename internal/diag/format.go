package diag

import (
	"fmt"
	"io"
	"sort"
)

// statusIcon maps a status to its terminal glyph.
func statusIcon(s Status) string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarning:
		return "⚠"
	default:
		return "✗"
	}
}

// PrintReport writes a human-readable rendering of the report to w.
// Verbose adds per-check details and issue recommendations.
func PrintReport(w io.Writer, r *Report, verbose bool) {
	for _, comp := range r.Components {
		fmt.Fprintf(w, "--- %s ---\n", comp.Component) //nolint:errcheck // best-effort output
		for _, check := range comp.Checks {
			printCheck(w, check, verbose)
		}
		for _, is := range comp.Issues {
			printIssue(w, is, verbose)
		}
	}
	PrintSummary(w, r)
}

// printCheck writes a single sub-check line.
func printCheck(w io.Writer, c CheckResult, verbose bool) {
	fmt.Fprintf(w, "  %s %s — %s\n", statusIcon(c.Status), c.Name, c.Message) //nolint:errcheck // best-effort output
	if verbose && len(c.Details) > 0 {
		for _, k := range sortedKeys(c.Details) {
			fmt.Fprintf(w, "      %s: %v\n", k, c.Details[k]) //nolint:errcheck // best-effort output
		}
	}
}

// printIssue writes one issue with its fix hint or recommendations.
func printIssue(w io.Writer, is Issue, verbose bool) {
	fmt.Fprintf(w, "  ! [%s] %s\n", is.Severity, is.Message) //nolint:errcheck // best-effort output
	if is.AutoFixable {
		fmt.Fprintf(w, "      fix: %s\n", is.Fix.Description) //nolint:errcheck // best-effort output
	}
	if verbose {
		for _, rec := range is.Recommendations {
			fmt.Fprintf(w, "      recommend: %s\n", rec) //nolint:errcheck // best-effort output
		}
	}
}

// PrintSummary writes the final status line for a report.
func PrintSummary(w io.Writer, r *Report) {
	fixable := len(r.FixableIssues())
	fmt.Fprintf(w, "\n%s %s", statusIcon(r.OverallStatus), r.Summary) //nolint:errcheck // best-effort output
	if fixable > 0 {
		fmt.Fprintf(w, " (%d auto-fixable, run with --fix)", fixable) //nolint:errcheck // best-effort output
	}
	fmt.Fprintln(w) //nolint:errcheck // best-effort output
}

// PrintFixResults writes the outcome of an auto-fix pass.
func PrintFixResults(w io.Writer, results []FixResult) {
	fixed := 0
	for _, fr := range results {
		icon := "✗"
		if fr.Success {
			icon = "✓"
			fixed++
		}
		fmt.Fprintf(w, "  %s %s — %s\n", icon, fr.IssueID, fr.Message) //nolint:errcheck // best-effort output
		if fr.RollbackAvailable {
			fmt.Fprintf(w, "      backup: %s\n", fr.BackupID) //nolint:errcheck // best-effort output
		}
	}
	fmt.Fprintf(w, "\n%d of %d issues fixed\n", fixed, len(results)) //nolint:errcheck // best-effort output
}

// sortedKeys returns the map's keys in lexical order so verbose output
// is deterministic.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
