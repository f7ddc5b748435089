// Package diag provides health diagnostics for a civreg workspace.
// It defines a Checker contract, five domain checkers (cache,
// configuration, filesystem, search index, system resources), an
// orchestrator that merges their findings into a single report, and an
// auto-fix engine with backup-before-fix semantics for destructive
// remediations.
package diag

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Status is the outcome of a check, a component, or a whole report.
type Status string

const (
	// StatusPass means the check found no problems.
	StatusPass Status = "pass"
	// StatusWarning means the check found a non-critical issue.
	StatusWarning Status = "warning"
	// StatusError means the check found a serious problem.
	StatusError Status = "error"
)

// rank orders statuses for aggregation: error > warning > pass.
func (s Status) rank() int {
	switch s {
	case StatusError:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// WorstOf returns the most severe of the given statuses, or StatusPass
// when none are given.
func WorstOf(statuses ...Status) Status {
	worst := StatusPass
	for _, s := range statuses {
		if s.rank() > worst.rank() {
			worst = s
		}
	}
	return worst
}

// Severity ranks an issue's operational impact.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Category tags an issue with the remediation family it belongs to.
// The auto-fix engine dispatches on this tag directly; no remediation
// ever inspects an issue's message text.
type Category string

const (
	CategoryHitRate          Category = "cache_hit_rate"
	CategoryCacheErrors      Category = "cache_errors"
	CategoryCacheMemory      Category = "cache_memory"
	CategoryCacheCapacity    Category = "cache_capacity"
	CategoryConfigMissing    Category = "config_missing"
	CategoryConfigField      Category = "config_field"
	CategoryConfigSyntax     Category = "config_syntax"
	CategoryMissingDirectory Category = "missing_directory"
	CategoryPermissions      Category = "permissions"
	CategoryDiskSpace        Category = "disk_space"
	CategoryIndexMissing     Category = "index_missing"
	CategoryIndexEmpty       Category = "index_empty"
	CategoryIndexDrift       Category = "index_drift"
	CategoryQueryLatency     Category = "query_latency"
	CategorySuggestions      Category = "suggestions"
	CategoryMemoryPressure   Category = "memory_pressure"
	CategoryCPULoad          Category = "cpu_load"
	CategoryRuntimeVersion   Category = "runtime_version"
)

// CheckResult holds the outcome of a single sub-check.
type CheckResult struct {
	// Name identifies the sub-check (e.g. "disk-space").
	Name string `json:"name"`
	// Status is the outcome: pass, warning, or error.
	Status Status `json:"status"`
	// Message is a human-readable summary of the result.
	Message string `json:"message"`
	// Duration is the sub-check's wall-clock time.
	Duration time.Duration `json:"duration"`
	// Details holds extra domain-specific diagnostics, shown in verbose
	// output and carried through to report consumers.
	Details map[string]any `json:"details,omitempty"`
}

// FixPlan describes how an auto-fixable issue would be remediated.
type FixPlan struct {
	// Description says what the remediation will do.
	Description string `json:"description"`
	// Command is an advisory equivalent shell command. It is never
	// executed; it exists so operators can act manually.
	Command string `json:"command,omitempty"`
	// RequiresConfirmation marks destructive remediations that should
	// be confirmed interactively before running.
	RequiresConfirmation bool `json:"requiresConfirmation"`
	// EstimatedDuration is a rough expected remediation time.
	EstimatedDuration string `json:"estimatedDuration,omitempty"`
}

// Issue is a normalized, severity-ranked finding produced by a checker.
type Issue struct {
	// ID is an opaque stable identifier derived from the component,
	// category, and message.
	ID string `json:"id"`
	// Component is the owning checker's domain name.
	Component string `json:"component"`
	// Category selects the remediation family during auto-fix dispatch.
	Category Category `json:"category"`
	// Severity ranks the issue's impact.
	Severity Severity `json:"severity"`
	// Message describes the finding.
	Message string `json:"message"`
	// AutoFixable reports whether the owning checker can remediate this
	// issue. Fix is non-nil iff AutoFixable is true.
	AutoFixable bool `json:"autoFixable"`
	// Fix describes the remediation, present only when AutoFixable.
	Fix *FixPlan `json:"fix,omitempty"`
	// Recommendations are ordered advisory actions for the operator.
	// They are never executed automatically.
	Recommendations []string `json:"recommendations,omitempty"`
	// Details holds extra domain-specific context.
	Details map[string]any `json:"details,omitempty"`
}

// FixResult is the outcome of one remediation attempt.
type FixResult struct {
	// IssueID back-references the issue this fix addressed.
	IssueID string `json:"issueId"`
	// Success reports whether the remediation completed.
	Success bool `json:"success"`
	// Message summarizes what happened.
	Message string `json:"message"`
	// BackupID is set only when a pre-fix backup succeeded.
	BackupID string `json:"backupId,omitempty"`
	// RollbackAvailable is true iff BackupID is set.
	RollbackAvailable bool `json:"rollbackAvailable"`
	// Duration is the remediation's wall-clock time.
	Duration time.Duration `json:"duration"`
	// Err carries the remediation fault, if any.
	Err error `json:"-"`
}

// ComponentReport is one checker's contribution to a report.
type ComponentReport struct {
	// Component is the checker's domain name.
	Component string `json:"component"`
	// Status is the worst status across the component's checks.
	Status Status `json:"status"`
	// Critical marks whether an error here fails the whole report.
	Critical bool `json:"critical"`
	// Checks are the sub-check results in declared order.
	Checks []CheckResult `json:"checks"`
	// Issues are the findings synthesized from threshold breaches.
	Issues []Issue `json:"issues,omitempty"`
	// Recommendations aggregates advisory text across the component.
	Recommendations []string `json:"recommendations,omitempty"`
}

// Report is the aggregate outcome of a diagnostic run. It is immutable
// once returned; re-running diagnostics produces a new report.
type Report struct {
	// OverallStatus is error if any critical component errored, warning
	// if any component warned or a non-critical component errored, and
	// pass otherwise.
	OverallStatus Status `json:"overallStatus"`
	// Summary is a one-line human description of the run.
	Summary string `json:"summary"`
	// Duration is the whole run's wall-clock time.
	Duration time.Duration `json:"duration"`
	// GeneratedAt is when the run completed.
	GeneratedAt time.Time `json:"generatedAt"`
	// Components holds each checker's contribution in run order.
	Components []ComponentReport `json:"components"`
	// Issues flattens all component issues in order.
	Issues []Issue `json:"issues,omitempty"`
}

// HasFixableIssues reports whether any issue on the report is
// auto-fixable.
func (r *Report) HasFixableIssues() bool {
	return len(r.FixableIssues()) > 0
}

// FixableIssues returns the subset of issues marked auto-fixable, in
// report order.
func (r *Report) FixableIssues() []Issue {
	var fixable []Issue
	for _, is := range r.Issues {
		if is.AutoFixable {
			fixable = append(fixable, is)
		}
	}
	return fixable
}

// issueID derives a stable opaque identifier for an issue. Two runs that
// find the same problem produce the same id, so operators can correlate
// issues across reports.
func issueID(component string, category Category, message string) string {
	sum := sha256.Sum256([]byte(component + "\x00" + string(category) + "\x00" + message))
	return component + "/" + string(category) + "/" + hex.EncodeToString(sum[:4])
}
