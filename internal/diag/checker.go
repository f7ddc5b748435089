package diag

import (
	"context"
	"fmt"
	"time"
)

// Checker is a pluggable diagnostic unit probing one subsystem.
// Implementations are registered with an Orchestrator and executed
// during Run. Checkers are stateless per invocation and share no
// mutable state, so the orchestrator is free to run them in any order.
type Checker interface {
	// Name returns the checker's unique component name (e.g. "cache").
	Name() string
	// Critical reports whether an error in this component should fail
	// the whole report.
	Critical() bool
	// Check runs the checker's sub-checks in declared order and returns
	// the component report. A returned error means the checker itself
	// fell over; the orchestrator converts it into a synthetic error
	// component rather than aborting the run.
	Check(ctx context.Context) (*ComponentReport, error)
	// AutoFix remediates the given issues, returning one FixResult per
	// issue. Issues whose category the checker cannot safely fix yield
	// an unsuccessful "not available" result, never an error.
	AutoFix(ctx context.Context, issues []Issue, opts FixOptions) []FixResult
}

// FixOptions control auto-fix behavior.
type FixOptions struct {
	// Backup controls whether destructive remediations attempt a
	// pre-fix backup. Defaults to true at the CLI layer.
	Backup bool
}

// DefaultSubCheckTimeout bounds a single sub-check. A hung probe query
// or filesystem syscall must not stall the whole report.
const DefaultSubCheckTimeout = 10 * time.Second

// --- result builders ---

func passResult(name, message string) CheckResult {
	return CheckResult{Name: name, Status: StatusPass, Message: message}
}

func warnResult(name, message string) CheckResult {
	return CheckResult{Name: name, Status: StatusWarning, Message: message}
}

func errorResult(name, message string) CheckResult {
	return CheckResult{Name: name, Status: StatusError, Message: message}
}

// newIssue constructs an issue with a derived id. Fix must be non-nil
// iff the issue is auto-fixable; passing a nil fix yields a manual-only
// issue.
func newIssue(component string, category Category, severity Severity, message string, fix *FixPlan) Issue {
	return Issue{
		ID:          issueID(component, category, message),
		Component:   component,
		Category:    category,
		Severity:    severity,
		Message:     message,
		AutoFixable: fix != nil,
		Fix:         fix,
	}
}

// newComponent assembles a component report from sub-check results. The
// component status is the worst of its checks, and recommendations are
// collected from the issues in order.
func newComponent(name string, critical bool, checks []CheckResult, issues []Issue) *ComponentReport {
	statuses := make([]Status, len(checks))
	for i, c := range checks {
		statuses[i] = c.Status
	}
	var recs []string
	for _, is := range issues {
		recs = append(recs, is.Recommendations...)
	}
	return &ComponentReport{
		Component:       name,
		Status:          WorstOf(statuses...),
		Critical:        critical,
		Checks:          checks,
		Issues:          issues,
		Recommendations: recs,
	}
}

// subResult carries one sub-check's outcome across the deadline
// boundary.
type subResult struct {
	check  CheckResult
	issues []Issue
}

// runSub executes one sub-check under a deadline, stamping the measured
// duration onto the result. A sub-check that outlives its deadline is
// reported as an error and its issues are dropped; the probe goroutine
// is left to finish in the background since blocking syscalls cannot be
// interrupted.
func runSub(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) (CheckResult, []Issue)) (CheckResult, []Issue) {
	if timeout <= 0 {
		timeout = DefaultSubCheckTimeout
	}
	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan subResult, 1)
	go func() {
		check, issues := fn(subCtx)
		done <- subResult{check: check, issues: issues}
	}()

	select {
	case sr := <-done:
		sr.check.Duration = time.Since(start)
		return sr.check, sr.issues
	case <-subCtx.Done():
		r := errorResult(name, fmt.Sprintf("timed out after %s", timeout))
		r.Duration = time.Since(start)
		return r, nil
	}
}

// unavailableFixes returns a "not available" FixResult per issue, for
// checkers with no safe remediation for the given categories.
func unavailableFixes(issues []Issue) []FixResult {
	results := make([]FixResult, 0, len(issues))
	for _, is := range issues {
		results = append(results, FixResult{
			IssueID: is.ID,
			Success: false,
			Message: "automatic fix not available for this issue",
		})
	}
	return results
}
