package diag

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// stubChecker is a scriptable Checker for orchestrator tests.
type stubChecker struct {
	name     string
	critical bool
	status   Status
	issues   []Issue
	checkErr error
	panics   bool

	fixed []Issue // records what AutoFix received
}

func (s *stubChecker) Name() string   { return s.name }
func (s *stubChecker) Critical() bool { return s.critical }

func (s *stubChecker) Check(context.Context) (*ComponentReport, error) {
	if s.panics {
		panic("checker exploded")
	}
	if s.checkErr != nil {
		return nil, s.checkErr
	}
	checks := []CheckResult{{Name: s.name + "-probe", Status: s.status, Message: "probe"}}
	return newComponent(s.name, s.critical, checks, s.issues), nil
}

func (s *stubChecker) AutoFix(_ context.Context, issues []Issue, _ FixOptions) []FixResult {
	s.fixed = append(s.fixed, issues...)
	results := make([]FixResult, 0, len(issues))
	for _, is := range issues {
		results = append(results, FixResult{IssueID: is.ID, Success: true, Message: "fixed"})
	}
	return results
}

func TestOrchestratorRun_Aggregation(t *testing.T) {
	tests := []struct {
		name     string
		checkers []*stubChecker
		want     Status
	}{
		{
			"all pass",
			[]*stubChecker{
				{name: "a", status: StatusPass},
				{name: "b", status: StatusPass},
			},
			StatusPass,
		},
		{
			"warning component",
			[]*stubChecker{
				{name: "a", status: StatusPass},
				{name: "b", status: StatusWarning},
				{name: "c", status: StatusPass},
			},
			StatusWarning,
		},
		{
			"critical error",
			[]*stubChecker{
				{name: "a", status: StatusPass},
				{name: "b", status: StatusError, critical: true},
				{name: "c", status: StatusPass},
			},
			StatusError,
		},
		{
			"non-critical error downgrades to warning",
			[]*stubChecker{
				{name: "a", status: StatusPass},
				{name: "b", status: StatusError, critical: false},
			},
			StatusWarning,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var o Orchestrator
			for _, c := range tt.checkers {
				o.Register(c)
			}
			report := o.Run(context.Background())
			if report.OverallStatus != tt.want {
				t.Errorf("OverallStatus = %v, want %v", report.OverallStatus, tt.want)
			}
			if len(report.Components) != len(tt.checkers) {
				t.Errorf("got %d components, want %d", len(report.Components), len(tt.checkers))
			}
		})
	}
}

func TestOrchestratorRun_FaultContainment(t *testing.T) {
	var o Orchestrator
	o.Register(&stubChecker{name: "healthy", status: StatusPass})
	o.Register(&stubChecker{name: "failing", checkErr: errors.New("db unreachable")})
	o.Register(&stubChecker{name: "also-healthy", status: StatusPass})

	report := o.Run(context.Background())
	if len(report.Components) != 3 {
		t.Fatalf("got %d components, want 3", len(report.Components))
	}
	failing := report.Components[1]
	if failing.Status != StatusError {
		t.Errorf("failing component status = %v, want error", failing.Status)
	}
	if len(failing.Checks) != 1 || !strings.Contains(failing.Checks[0].Message, "db unreachable") {
		t.Errorf("failing component should carry the fault message: %+v", failing.Checks)
	}
	if report.Components[0].Status != StatusPass || report.Components[2].Status != StatusPass {
		t.Error("healthy components were disturbed by the fault")
	}
}

func TestOrchestratorRun_PanicContainment(t *testing.T) {
	var o Orchestrator
	o.Register(&stubChecker{name: "exploding", panics: true, critical: true})
	o.Register(&stubChecker{name: "healthy", status: StatusPass})

	report := o.Run(context.Background())
	if len(report.Components) != 2 {
		t.Fatalf("got %d components, want 2", len(report.Components))
	}
	if report.Components[0].Status != StatusError {
		t.Errorf("panicking component status = %v, want error", report.Components[0].Status)
	}
	if report.OverallStatus != StatusError {
		t.Errorf("OverallStatus = %v, want error (critical component panicked)", report.OverallStatus)
	}
}

func TestOrchestratorFix_DispatchesByComponent(t *testing.T) {
	fsIssue := newIssue("filesystem", CategoryMissingDirectory, SeverityLow, "missing exports",
		&FixPlan{Description: "mkdir"})
	searchIssue := newIssue("search-index", CategoryIndexDrift, SeverityHigh, "drift 7",
		&FixPlan{Description: "rebuild"})

	fsChecker := &stubChecker{name: "filesystem"}
	searchChecker := &stubChecker{name: "search-index"}
	var o Orchestrator
	o.Register(fsChecker)
	o.Register(searchChecker)

	results := o.Fix(context.Background(), []Issue{fsIssue, searchIssue}, FixOptions{})
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].IssueID != fsIssue.ID || results[1].IssueID != searchIssue.ID {
		t.Errorf("fix results out of issue order: %+v", results)
	}
	if len(fsChecker.fixed) != 1 || fsChecker.fixed[0].ID != fsIssue.ID {
		t.Errorf("filesystem checker received wrong issues: %+v", fsChecker.fixed)
	}
	if len(searchChecker.fixed) != 1 || searchChecker.fixed[0].ID != searchIssue.ID {
		t.Errorf("search checker received wrong issues: %+v", searchChecker.fixed)
	}
}

func TestOrchestratorFix_UnknownComponent(t *testing.T) {
	var o Orchestrator
	issue := newIssue("ghost", CategoryHitRate, SeverityLow, "phantom", nil)

	results := o.Fix(context.Background(), []Issue{issue}, FixOptions{})
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Success {
		t.Error("fix for unregistered component reported success")
	}
	if !strings.Contains(results[0].Message, "ghost") {
		t.Errorf("message should name the component: %q", results[0].Message)
	}
}
