package diag

import "testing"

func TestWorstOf(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty", nil, StatusPass},
		{"all pass", []Status{StatusPass, StatusPass}, StatusPass},
		{"warning wins over pass", []Status{StatusPass, StatusWarning, StatusPass}, StatusWarning},
		{"error wins over warning", []Status{StatusWarning, StatusError, StatusPass}, StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WorstOf(tt.statuses...); got != tt.want {
				t.Errorf("WorstOf(%v) = %v, want %v", tt.statuses, got, tt.want)
			}
		})
	}
}

func TestNewIssue_FixImpliesAutoFixable(t *testing.T) {
	manual := newIssue("cache", CategoryHitRate, SeverityMedium, "low hit rate", nil)
	if manual.AutoFixable || manual.Fix != nil {
		t.Errorf("issue without fix plan must not be auto-fixable: %+v", manual)
	}

	fixable := newIssue("filesystem", CategoryMissingDirectory, SeverityLow, "missing dir",
		&FixPlan{Description: "create it"})
	if !fixable.AutoFixable || fixable.Fix == nil {
		t.Errorf("issue with fix plan must be auto-fixable: %+v", fixable)
	}
}

func TestIssueID_StableAcrossRuns(t *testing.T) {
	a := issueID("search-index", CategoryIndexDrift, "index out of sync by 3 rows")
	b := issueID("search-index", CategoryIndexDrift, "index out of sync by 3 rows")
	if a != b {
		t.Errorf("same finding produced different ids: %q vs %q", a, b)
	}
	c := issueID("search-index", CategoryIndexDrift, "index out of sync by 4 rows")
	if a == c {
		t.Errorf("different findings produced the same id: %q", a)
	}
}

func TestReport_FixableIssues(t *testing.T) {
	r := &Report{Issues: []Issue{
		newIssue("a", CategoryHitRate, SeverityLow, "one", nil),
		newIssue("b", CategoryMissingDirectory, SeverityLow, "two", &FixPlan{Description: "mkdir"}),
		newIssue("c", CategoryIndexDrift, SeverityHigh, "three", &FixPlan{Description: "rebuild"}),
	}}
	fixable := r.FixableIssues()
	if len(fixable) != 2 {
		t.Fatalf("FixableIssues returned %d issues, want 2", len(fixable))
	}
	if fixable[0].Message != "two" || fixable[1].Message != "three" {
		t.Errorf("FixableIssues out of order: %+v", fixable)
	}
	if !r.HasFixableIssues() {
		t.Error("HasFixableIssues = false, want true")
	}
	if (&Report{}).HasFixableIssues() {
		t.Error("empty report reports fixable issues")
	}
}
