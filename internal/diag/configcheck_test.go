package diag

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/civreg/civreg/internal/config"
	"github.com/civreg/civreg/internal/fsys"
)

// seedConfigFS writes a valid root civreg.toml into a Fake.
func seedConfigFS(t *testing.T) *fsys.Fake {
	t.Helper()
	fs := fsys.NewFake()
	fs.Dirs[testDataDir] = true
	cfg := config.Default("townhall", testDataDir)
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	fs.Files[filepath.Join(testDataDir, config.FileName)] = data
	return fs
}

func newConfigChecker(fs *fsys.Fake) *ConfigChecker {
	return NewConfigChecker(config.NewFileProvider(fs, testDataDir), fs, 0)
}

func TestConfigChecker_Healthy(t *testing.T) {
	comp, err := newConfigChecker(seedConfigFS(t)).Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if comp.Status != StatusPass {
		t.Errorf("Status = %v, want pass: %+v", comp.Status, comp.Checks)
	}
	if len(comp.Checks) != 4 {
		t.Errorf("got %d sub-checks, want 4", len(comp.Checks))
	}
	if !comp.Critical {
		t.Error("configuration component must be critical")
	}
}

// stallingProvider blocks Config until released, simulating a load
// stuck on slow storage.
type stallingProvider struct {
	release chan struct{}
}

func (p *stallingProvider) Config() (*config.Config, error) {
	<-p.release
	return nil, context.Canceled
}

func (p *stallingProvider) Path() string           { return testDataDir }
func (p *stallingProvider) ManagedFiles() []string { return nil }
func (p *stallingProvider) Reload() error          { return nil }

func TestConfigChecker_StuckLoadHitsDeadline(t *testing.T) {
	p := &stallingProvider{release: make(chan struct{})}
	t.Cleanup(func() { close(p.release) })
	c := NewConfigChecker(p, fsys.NewFake(), 50*time.Millisecond)

	start := time.Now()
	comp, err := c.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Check blocked for %s despite 50ms sub-check deadline", elapsed)
	}
	if comp.Status != StatusError {
		t.Errorf("Status = %v, want error", comp.Status)
	}
	if len(comp.Checks) != 1 || comp.Checks[0].Name != "presence" {
		t.Fatalf("timed-out load must short-circuit remaining checks: %+v", comp.Checks)
	}
	if !strings.Contains(comp.Checks[0].Message, "timed out") {
		t.Errorf("presence message = %q, want timeout", comp.Checks[0].Message)
	}
}

func TestConfigChecker_MissingRootShortCircuits(t *testing.T) {
	fs := fsys.NewFake()
	fs.Dirs[testDataDir] = true

	comp, err := newConfigChecker(fs).Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if comp.Status != StatusError {
		t.Errorf("Status = %v, want error", comp.Status)
	}
	// Only the presence sub-check should have run.
	if len(comp.Checks) != 1 || comp.Checks[0].Name != "presence" {
		t.Errorf("missing root must short-circuit remaining checks: %+v", comp.Checks)
	}
	if len(comp.Issues) != 1 || comp.Issues[0].Severity != SeverityCritical {
		t.Errorf("expected one critical issue: %+v", comp.Issues)
	}
	if comp.Issues[0].AutoFixable {
		t.Error("missing config must not be auto-fixable")
	}
}

func TestConfigChecker_MissingRequiredField(t *testing.T) {
	fs := seedConfigFS(t)
	cfg := config.Default("townhall", testDataDir)
	cfg.Storage.DataDir = ""
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	fs.Files[filepath.Join(testDataDir, config.FileName)] = data

	comp, err := newConfigChecker(fs).Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if comp.Status != StatusError {
		t.Errorf("Status = %v, want error", comp.Status)
	}
	var found bool
	for _, is := range comp.Issues {
		if is.Category == CategoryConfigField && strings.Contains(is.Message, "data_dir") {
			found = true
		}
	}
	if !found {
		t.Errorf("no data_dir issue raised: %+v", comp.Issues)
	}
}

func TestConfigChecker_InvalidEnumWarns(t *testing.T) {
	fs := seedConfigFS(t)
	cfg := config.Default("townhall", testDataDir)
	cfg.Storage.Database.Driver = "postgres"
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	fs.Files[filepath.Join(testDataDir, config.FileName)] = data

	comp, err := newConfigChecker(fs).Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if comp.Status != StatusWarning {
		t.Errorf("Status = %v, want warning: %+v", comp.Status, comp.Checks)
	}
}

func TestConfigChecker_BrokenFragment(t *testing.T) {
	fs := seedConfigFS(t)
	confDir := filepath.Join(testDataDir, "config")
	fs.Dirs[confDir] = true
	fs.Files[filepath.Join(confDir, "exports.toml")] = []byte("[exports\nbroken =")

	comp, err := newConfigChecker(fs).Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if comp.Status != StatusError {
		t.Errorf("Status = %v, want error", comp.Status)
	}
	var syntax *Issue
	for i := range comp.Issues {
		if comp.Issues[i].Category == CategoryConfigSyntax {
			syntax = &comp.Issues[i]
		}
	}
	if syntax == nil {
		t.Fatalf("no syntax issue raised: %+v", comp.Issues)
	}
	if !syntax.AutoFixable || !syntax.Fix.RequiresConfirmation {
		t.Errorf("syntax issue should route to the repair path: %+v", syntax)
	}
}

func TestConfigChecker_AutoFixSyntaxIsExplicitStub(t *testing.T) {
	c := newConfigChecker(seedConfigFS(t))
	syntax := newIssue(ComponentConfig, CategoryConfigSyntax, SeverityHigh, "broken file",
		&FixPlan{Description: "repair"})
	field := newIssue(ComponentConfig, CategoryConfigField, SeverityHigh, "missing field", nil)

	results := c.AutoFix(context.Background(), []Issue{syntax, field}, FixOptions{})
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Success || !strings.Contains(results[0].Message, "not yet available") {
		t.Errorf("syntax repair must be an explicit stub: %+v", results[0])
	}
	if results[1].Success || results[1].Err != nil {
		t.Errorf("field fix must be a plain unavailable result: %+v", results[1])
	}
}
