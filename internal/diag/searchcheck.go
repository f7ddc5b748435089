package diag

import (
	"context"
	"fmt"
	"time"

	"github.com/civreg/civreg/internal/backup"
	"github.com/civreg/civreg/internal/telemetry"
)

// ComponentSearch is the search checker's domain name.
const ComponentSearch = "search-index"

// Drift tiers: absolute row-count divergence between the records table
// and its full-text mirror.
const driftWarningMax = 5

// Query latency thresholds in milliseconds.
const (
	latencyAvgWarnMS = 500
	latencyMaxWarnMS = 1000
	latencyAvgMildMS = 100
)

// SearchService is the contract the search checker probes. It is
// satisfied by [search.Index].
type SearchService interface {
	// Exists reports whether the full-text table is present.
	Exists(ctx context.Context) (bool, error)
	// Counts returns the records row count and the full-text mirror's.
	Counts(ctx context.Context) (base, fts int64, err error)
	// Rebuild drops and recreates the full-text table, its triggers,
	// and its contents.
	Rebuild(ctx context.Context) error
	// Search runs a full-text query and returns matching record ids.
	Search(ctx context.Context, query string) ([]string, error)
	// Suggest returns title completions for a prefix.
	Suggest(ctx context.Context, prefix string) ([]string, error)
}

// SearchChecker verifies the full-text index: existence, contents,
// drift from the records table, query latency, and the suggestion
// endpoint. Index problems are auto-fixable by a backup-guarded
// rebuild.
type SearchChecker struct {
	svc           SearchService
	backups       backup.Creator
	probes        []string
	suggestProbes []string
	subTimeout    time.Duration
}

// NewSearchChecker creates a search checker. probes and suggestProbes
// come from the search section of civreg.toml; backups may be nil when
// no backup collaborator is available, in which case rebuild fixes run
// without rollback capability.
func NewSearchChecker(svc SearchService, backups backup.Creator, probes, suggestProbes []string, subTimeout time.Duration) *SearchChecker {
	return &SearchChecker{
		svc:           svc,
		backups:       backups,
		probes:        probes,
		suggestProbes: suggestProbes,
		subTimeout:    subTimeout,
	}
}

// Name returns the component name.
func (c *SearchChecker) Name() string { return ComponentSearch }

// Critical returns true: record search is a core platform capability.
func (c *SearchChecker) Critical() bool { return true }

// Check runs the search sub-checks. A missing index short-circuits the
// remaining probes — they would all fail with the same root cause.
func (c *SearchChecker) Check(ctx context.Context) (*ComponentReport, error) {
	var checks []CheckResult
	var issues []Issue

	r, found := runSub(ctx, "index-exists", c.subTimeout, func(ctx context.Context) (CheckResult, []Issue) {
		return c.checkExists(ctx)
	})
	checks = append(checks, r)
	issues = append(issues, found...)
	if r.Status == StatusError {
		return newComponent(ComponentSearch, c.Critical(), checks, issues), nil
	}

	r, found = runSub(ctx, "index-contents", c.subTimeout, func(ctx context.Context) (CheckResult, []Issue) {
		return c.checkContents(ctx)
	})
	checks = append(checks, r)
	issues = append(issues, found...)

	r, found = runSub(ctx, "query-latency", c.subTimeout, func(ctx context.Context) (CheckResult, []Issue) {
		return c.checkLatency(ctx)
	})
	checks = append(checks, r)
	issues = append(issues, found...)

	r, found = runSub(ctx, "suggestions", c.subTimeout, func(ctx context.Context) (CheckResult, []Issue) {
		return c.checkSuggestions(ctx)
	})
	checks = append(checks, r)
	issues = append(issues, found...)

	return newComponent(ComponentSearch, c.Critical(), checks, issues), nil
}

// rebuildFix is the plan attached to every index issue the rebuild
// remediation can address.
func rebuildFix() *FixPlan {
	return &FixPlan{
		Description:          "back up the data directory, then rebuild the full-text index",
		Command:              "civreg rebuild",
		RequiresConfirmation: true,
		EstimatedDuration:    "1m",
	}
}

// checkExists verifies the full-text table is present.
func (c *SearchChecker) checkExists(ctx context.Context) (CheckResult, []Issue) {
	exists, err := c.svc.Exists(ctx)
	if err != nil {
		return errorResult("index-exists", fmt.Sprintf("cannot probe index: %v", err)), nil
	}
	if !exists {
		is := newIssue(ComponentSearch, CategoryIndexMissing, SeverityHigh,
			"full-text search index does not exist", rebuildFix())
		return errorResult("index-exists", "full-text index missing"), []Issue{is}
	}
	return passResult("index-exists", "full-text index present"), nil
}

// checkContents covers both the emptiness and drift sub-checks from a
// single count query pair.
func (c *SearchChecker) checkContents(ctx context.Context) (CheckResult, []Issue) {
	base, fts, err := c.svc.Counts(ctx)
	if err != nil {
		return errorResult("index-contents", fmt.Sprintf("cannot count rows: %v", err)), nil
	}

	if fts == 0 && base > 0 {
		is := newIssue(ComponentSearch, CategoryIndexEmpty, SeverityMedium,
			fmt.Sprintf("index is empty but %d records exist", base), rebuildFix())
		r := warnResult("index-contents", fmt.Sprintf("index empty (%d records not searchable)", base))
		r.Details = map[string]any{"recordCount": base, "indexCount": fts}
		return r, []Issue{is}
	}

	drift := base - fts
	if drift < 0 {
		drift = -drift
	}
	msg := fmt.Sprintf("%d records, %d indexed (drift %d)", base, fts, drift)
	r := passResult("index-contents", msg)
	r.Details = map[string]any{"recordCount": base, "indexCount": fts, "drift": drift}

	switch {
	case drift == 0:
		return r, nil
	case drift <= driftWarningMax:
		r.Status = StatusWarning
		r.Message = "index drifting from records: " + msg
		is := newIssue(ComponentSearch, CategoryIndexDrift, SeverityMedium,
			fmt.Sprintf("index out of sync with records table by %d rows", drift), rebuildFix())
		return r, []Issue{is}
	default:
		r.Status = StatusError
		r.Message = "index out of sync: " + msg
		is := newIssue(ComponentSearch, CategoryIndexDrift, SeverityHigh,
			fmt.Sprintf("index out of sync with records table by %d rows", drift), rebuildFix())
		return r, []Issue{is}
	}
}

// checkLatency measures the probe query set and classifies average and
// worst-case latency.
func (c *SearchChecker) checkLatency(ctx context.Context) (CheckResult, []Issue) {
	if len(c.probes) == 0 {
		return passResult("query-latency", "no probe queries configured"), nil
	}
	var total, slowest time.Duration
	for _, q := range c.probes {
		start := time.Now()
		if _, err := c.svc.Search(ctx, q); err != nil {
			return warnResult("query-latency", fmt.Sprintf("probe query %q failed: %v", q, err)), nil
		}
		d := time.Since(start)
		total += d
		if d > slowest {
			slowest = d
		}
	}
	avgMS := float64(total) / float64(len(c.probes)) / float64(time.Millisecond)
	maxMS := float64(slowest) / float64(time.Millisecond)
	msg := fmt.Sprintf("avg %.0fms, max %.0fms over %d probes", avgMS, maxMS, len(c.probes))

	switch {
	case avgMS > latencyAvgWarnMS || maxMS > latencyMaxWarnMS:
		is := newIssue(ComponentSearch, CategoryQueryLatency, SeverityMedium,
			"search queries are slow: "+msg, nil)
		is.Recommendations = []string{
			"run 'civreg rebuild' to compact the index",
			"check disk and CPU pressure on the host",
		}
		return warnResult("query-latency", "slow queries: "+msg), []Issue{is}
	case avgMS > latencyAvgMildMS:
		is := newIssue(ComponentSearch, CategoryQueryLatency, SeverityLow,
			"search queries are slower than expected: "+msg, nil)
		return warnResult("query-latency", "queries slower than expected: "+msg), []Issue{is}
	default:
		return passResult("query-latency", msg), nil
	}
}

// checkSuggestions probes the suggestion endpoint: all probes failing
// is an error, a partial failure only warns.
func (c *SearchChecker) checkSuggestions(ctx context.Context) (CheckResult, []Issue) {
	if len(c.suggestProbes) == 0 {
		return passResult("suggestions", "no suggestion probes configured"), nil
	}
	failed := 0
	var lastErr error
	for _, p := range c.suggestProbes {
		if _, err := c.svc.Suggest(ctx, p); err != nil {
			failed++
			lastErr = err
		}
	}
	switch {
	case failed == len(c.suggestProbes):
		is := newIssue(ComponentSearch, CategorySuggestions, SeverityHigh,
			fmt.Sprintf("all %d suggestion probes failed: %v", failed, lastErr), nil)
		is.Recommendations = []string{"run 'civreg doctor --fix' to rebuild the index"}
		return errorResult("suggestions",
			fmt.Sprintf("all %d probes failed: %v", failed, lastErr)), []Issue{is}
	case failed > 0:
		is := newIssue(ComponentSearch, CategorySuggestions, SeverityMedium,
			fmt.Sprintf("%d of %d suggestion probes failed: %v", failed, len(c.suggestProbes), lastErr), nil)
		return warnResult("suggestions",
			fmt.Sprintf("%d of %d probes failed", failed, len(c.suggestProbes))), []Issue{is}
	default:
		return passResult("suggestions",
			fmt.Sprintf("all %d probes answered", len(c.suggestProbes))), nil
	}
}

// AutoFix rebuilds the index for the index categories. The rebuild is
// destructive, so a backup is requested first unless opts.Backup is
// false; a failed backup is reported but does not block the fix — the
// result simply carries no rollback capability.
func (c *SearchChecker) AutoFix(ctx context.Context, issues []Issue, opts FixOptions) []FixResult {
	results := make([]FixResult, 0, len(issues))
	for _, is := range issues {
		switch is.Category {
		case CategoryIndexMissing, CategoryIndexEmpty, CategoryIndexDrift:
			results = append(results, c.fixRebuild(ctx, is, opts))
		default:
			results = append(results, FixResult{
				IssueID: is.ID,
				Success: false,
				Message: "automatic fix not available for this issue",
			})
		}
	}
	return results
}

// fixRebuild performs backup-then-rebuild for one issue and verifies
// convergence by re-running the drift count.
func (c *SearchChecker) fixRebuild(ctx context.Context, is Issue, opts FixOptions) FixResult {
	start := time.Now()
	fr := FixResult{IssueID: is.ID}

	var backupNote string
	if opts.Backup && c.backups != nil {
		res, err := c.backups.Create(ctx, backup.Options{
			IncludeStorage:   true,
			IncludeGitBundle: true,
			Compress:         true,
		})
		if err != nil {
			// Proceed without rollback capability rather than blocking
			// the repair.
			backupNote = fmt.Sprintf(" (backup failed: %v)", err)
			telemetry.RecordBackup(ctx, "", 0, err)
		} else {
			fr.BackupID = res.ID
			fr.RollbackAvailable = true
			telemetry.RecordBackup(ctx, res.ID, res.Files, nil)
		}
	}

	err := c.svc.Rebuild(ctx)
	if err != nil {
		fr.Success = false
		fr.Message = fmt.Sprintf("index rebuild failed: %v%s", err, backupNote)
		fr.Err = err
		fr.Duration = time.Since(start)
		telemetry.RecordRebuild(ctx, 0, float64(fr.Duration)/float64(time.Millisecond), err)
		return fr
	}

	base, fts, countErr := c.svc.Counts(ctx)
	fr.Duration = time.Since(start)
	telemetry.RecordRebuild(ctx, fts, float64(fr.Duration)/float64(time.Millisecond), nil)
	switch {
	case countErr != nil:
		fr.Success = true
		fr.Message = fmt.Sprintf("index rebuilt, convergence unverified: %v%s", countErr, backupNote)
	case base != fts:
		fr.Success = false
		fr.Message = fmt.Sprintf("index rebuilt but still out of sync (%d records, %d indexed)%s", base, fts, backupNote)
	default:
		fr.Success = true
		fr.Message = fmt.Sprintf("index rebuilt, %d rows indexed%s", fts, backupNote)
	}
	return fr
}
