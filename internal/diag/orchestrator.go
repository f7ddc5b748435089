package diag

import (
	"context"
	"fmt"
	"time"

	"github.com/civreg/civreg/internal/telemetry"
)

// Orchestrator runs registered checkers and aggregates their findings
// into a single report.
type Orchestrator struct {
	checkers []Checker
}

// Register adds a checker to the run list. Checkers run in registration
// order.
func (o *Orchestrator) Register(c Checker) {
	o.checkers = append(o.checkers, c)
}

// Checker returns the registered checker owning the given component
// name, or nil.
func (o *Orchestrator) Checker(component string) Checker {
	for _, c := range o.checkers {
		if c.Name() == component {
			return c
		}
	}
	return nil
}

// Run executes all registered checkers and merges their results. A
// checker fault never aborts the run: it becomes a synthetic error
// component and the remaining checkers still execute. The returned
// report is complete even in the worst case.
func (o *Orchestrator) Run(ctx context.Context) *Report {
	start := time.Now()
	report := &Report{}

	for _, c := range o.checkers {
		comp := o.runChecker(ctx, c)
		report.Components = append(report.Components, *comp)
		report.Issues = append(report.Issues, comp.Issues...)
	}

	report.OverallStatus = aggregate(report.Components)
	report.Duration = time.Since(start)
	report.GeneratedAt = time.Now()
	report.Summary = summarize(report)

	telemetry.RecordDoctorRun(ctx, string(report.OverallStatus),
		len(report.Issues), len(report.FixableIssues()),
		float64(report.Duration)/float64(time.Millisecond))
	return report
}

// runChecker invokes one checker, containing both returned errors and
// panics as a synthetic error component.
func (o *Orchestrator) runChecker(ctx context.Context, c Checker) (comp *ComponentReport) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			comp = faultComponent(c, fmt.Sprintf("checker panicked: %v", rec))
		}
		telemetry.RecordCheck(ctx, comp.Component, string(comp.Status),
			float64(time.Since(start))/float64(time.Millisecond))
	}()

	comp, err := c.Check(ctx)
	if err != nil {
		return faultComponent(c, fmt.Sprintf("checker failed: %v", err))
	}
	return comp
}

// faultComponent builds the error component reported when a checker
// itself falls over.
func faultComponent(c Checker, message string) *ComponentReport {
	return &ComponentReport{
		Component: c.Name(),
		Status:    StatusError,
		Critical:  c.Critical(),
		Checks: []CheckResult{
			errorResult(c.Name(), message),
		},
	}
}

// aggregate computes the overall status: error if any critical component
// errored, warning if any component warned or a non-critical component
// errored, pass otherwise.
func aggregate(components []ComponentReport) Status {
	overall := StatusPass
	for _, comp := range components {
		switch {
		case comp.Status == StatusError && comp.Critical:
			return StatusError
		case comp.Status == StatusError || comp.Status == StatusWarning:
			overall = StatusWarning
		}
	}
	return overall
}

// summarize builds the report's one-line summary.
func summarize(r *Report) string {
	healthy := 0
	for _, comp := range r.Components {
		if comp.Status == StatusPass {
			healthy++
		}
	}
	switch r.OverallStatus {
	case StatusPass:
		return fmt.Sprintf("all %d components healthy", len(r.Components))
	case StatusWarning:
		return fmt.Sprintf("%d of %d components healthy, %d issues found",
			healthy, len(r.Components), len(r.Issues))
	default:
		return fmt.Sprintf("%d of %d components healthy, %d issues found (critical failure)",
			healthy, len(r.Components), len(r.Issues))
	}
}

// Fix dispatches the given issues to their owning checkers and returns
// one FixResult per issue, in issue order. Issues for unregistered
// components yield an unsuccessful result rather than an error. Callers
// must not issue overlapping Fix calls for the same component: two
// concurrent search-index rebuilds race on trigger creation.
func (o *Orchestrator) Fix(ctx context.Context, issues []Issue, opts FixOptions) []FixResult {
	// Group by component, preserving order within each group.
	byComponent := map[string][]Issue{}
	var order []string
	for _, is := range issues {
		if _, seen := byComponent[is.Component]; !seen {
			order = append(order, is.Component)
		}
		byComponent[is.Component] = append(byComponent[is.Component], is)
	}

	indexByID := map[string]int{}
	for i, is := range issues {
		indexByID[is.ID] = i
	}
	results := make([]FixResult, len(issues))

	for _, component := range order {
		group := byComponent[component]
		c := o.Checker(component)
		var fixes []FixResult
		if c == nil {
			for _, is := range group {
				fixes = append(fixes, FixResult{
					IssueID: is.ID,
					Success: false,
					Message: fmt.Sprintf("no checker registered for component %q", component),
				})
			}
		} else {
			fixes = o.fixComponent(ctx, c, group, opts)
		}
		for _, f := range fixes {
			if i, ok := indexByID[f.IssueID]; ok {
				results[i] = f
			}
		}
	}

	for i := range results {
		telemetry.RecordFix(ctx, results[i].IssueID, issues[i].Component,
			results[i].BackupID, results[i].Err)
	}
	return results
}

// fixComponent invokes one checker's AutoFix, containing panics as a
// failed FixResult per issue. A remediation fault never propagates to
// the caller.
func (o *Orchestrator) fixComponent(ctx context.Context, c Checker, issues []Issue, opts FixOptions) (results []FixResult) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("fix panicked: %v", rec)
			results = nil
			for _, is := range issues {
				results = append(results, FixResult{
					IssueID: is.ID,
					Success: false,
					Message: err.Error(),
					Err:     err,
				})
			}
		}
	}()
	return c.AutoFix(ctx, issues, opts)
}
