package diag

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/civreg/civreg/internal/sysinfo"
)

// memOf builds a Memory snapshot from total bytes and used percent.
func memOf(total uint64, usedPercent float64) sysinfo.Memory {
	used := uint64(float64(total) * usedPercent / 100)
	return sysinfo.Memory{TotalBytes: total, FreeBytes: total - used}
}

func newSysChecker(probe *fakeProbe) *SystemChecker {
	return NewSystemChecker(probe, 0)
}

func TestSystemChecker_MemoryDecisionTree(t *testing.T) {
	tests := []struct {
		name       string
		mem        sysinfo.Memory
		wantStatus Status
		wantSev    Severity // zero value means no issue expected
	}{
		{"above 95 percent is critical", memOf(64*gb, 96), StatusError, SeverityCritical},
		{"above 90 with under 2GB free is critical",
			sysinfo.Memory{TotalBytes: 16 * gb, FreeBytes: 1 * gb}, StatusError, SeverityCritical},
		{"above 85 with under 1GB free is an error",
			sysinfo.Memory{TotalBytes: 8 * gb, FreeBytes: 900 * mb}, StatusError, SeverityHigh},
		{"above 80 with under 500MB free is an error",
			sysinfo.Memory{TotalBytes: 2 * gb, FreeBytes: 300 * mb}, StatusError, SeverityHigh},
		{"above 90 with headroom only warns", memOf(64*gb, 92), StatusWarning, SeverityMedium},
		{"above 85 under the large-host tier warns",
			sysinfo.Memory{TotalBytes: 32 * gb, FreeBytes: 3584 * mb}, StatusWarning, SeverityMedium},
		{"above 80 under the small-host tier warns",
			sysinfo.Memory{TotalBytes: 3 * gb, FreeBytes: 507 * mb}, StatusWarning, SeverityLow},
		{"above 80 with tier headroom passes",
			sysinfo.Memory{TotalBytes: 16 * gb, FreeBytes: 3 * gb}, StatusPass, ""},
		{"healthy host passes", memOf(32*gb, 50), StatusPass, ""},
		{"above 85 with large absolute headroom passes",
			sysinfo.Memory{TotalBytes: 64 * gb, FreeBytes: 9 * gb}, StatusPass, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newSysChecker(&fakeProbe{mem: tt.mem, cpus: 4})
			r, issues := c.checkMemory()
			if r.Status != tt.wantStatus {
				t.Fatalf("status = %v, want %v (%s)", r.Status, tt.wantStatus, r.Message)
			}
			if tt.wantSev == "" {
				if len(issues) != 0 {
					t.Errorf("expected no issue, got %+v", issues)
				}
				return
			}
			if len(issues) != 1 {
				t.Fatalf("got %d issues, want 1", len(issues))
			}
			if issues[0].Severity != tt.wantSev {
				t.Errorf("severity = %v, want %v", issues[0].Severity, tt.wantSev)
			}
		})
	}
}

func TestSystemChecker_MemoryTierBoundaries(t *testing.T) {
	tests := []struct {
		total          uint64
		want85, want80 uint64
	}{
		{64 * gb, 4 * gb, 2 * gb},
		{32 * gb, 4 * gb, 2 * gb},
		{16 * gb, 2 * gb, 1 * gb},
		{8 * gb, 1 * gb, 512 * mb},
	}
	for _, tt := range tests {
		got85, got80 := memoryTier(tt.total)
		if got85 != tt.want85 || got80 != tt.want80 {
			t.Errorf("memoryTier(%d GiB) = (%d, %d), want (%d, %d)",
				tt.total/gb, got85, got80, tt.want85, tt.want80)
		}
	}
}

func TestSystemChecker_MemoryProbeError(t *testing.T) {
	c := newSysChecker(&fakeProbe{memErr: errors.New("sysinfo unsupported"), cpus: 4})
	r, issues := c.checkMemory()
	if r.Status != StatusWarning {
		t.Errorf("probe failure status = %v, want warning", r.Status)
	}
	if len(issues) != 0 {
		t.Errorf("probe failure should not synthesize issues: %+v", issues)
	}
}

func TestSystemChecker_CPULoadTiers(t *testing.T) {
	tests := []struct {
		name       string
		one, five  float64
		wantStatus Status
		wantSev    Severity
	}{
		{"idle", 1.0, 1.0, StatusPass, ""},
		{"at capacity", 4.0, 4.0, StatusPass, ""},
		{"above capacity", 4.2, 3.0, StatusWarning, SeverityLow},
		{"one-and-a-half times capacity", 3.0, 6.2, StatusWarning, SeverityMedium},
		{"double capacity", 8.4, 2.0, StatusWarning, SeverityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newSysChecker(&fakeProbe{load: sysinfo.Load{One: tt.one, Five: tt.five}, cpus: 4})
			r, issues := c.checkCPULoad()
			if r.Status != tt.wantStatus {
				t.Fatalf("status = %v, want %v (%s)", r.Status, tt.wantStatus, r.Message)
			}
			if tt.wantSev == "" {
				if len(issues) != 0 {
					t.Errorf("expected no issue, got %+v", issues)
				}
				return
			}
			if len(issues) != 1 || issues[0].Severity != tt.wantSev {
				t.Errorf("issues = %+v, want one %v issue", issues, tt.wantSev)
			}
		})
	}
}

func TestSystemChecker_RuntimeVersion(t *testing.T) {
	tests := []struct {
		version    string
		wantStatus Status
	}{
		{"go1.25.0", StatusPass},
		{"go1.24.3", StatusPass},
		{"go1.23.1", StatusWarning},
		{"go1.21.0", StatusError},
		{"gibberish", StatusWarning},
	}
	for _, tt := range tests {
		c := newSysChecker(&fakeProbe{cpus: 4})
		c.goVersion = func() string { return tt.version }
		r, _ := c.checkRuntimeVersion()
		if r.Status != tt.wantStatus {
			t.Errorf("version %q: status = %v, want %v", tt.version, r.Status, tt.wantStatus)
		}
	}
}

func TestSystemChecker_HeapPressure(t *testing.T) {
	c := newSysChecker(&fakeProbe{cpus: 4})
	c.readMemStats = func(ms *runtime.MemStats) {
		ms.HeapSys = 100 * mb
		ms.HeapAlloc = 95 * mb
	}
	r, issues := c.checkHeap()
	if r.Status != StatusWarning {
		t.Errorf("status = %v, want warning", r.Status)
	}
	if len(issues) != 1 || issues[0].Category != CategoryMemoryPressure {
		t.Errorf("expected one memory-pressure issue: %+v", issues)
	}

	c.readMemStats = func(ms *runtime.MemStats) {
		ms.HeapSys = 100 * mb
		ms.HeapAlloc = 40 * mb
	}
	r, issues = c.checkHeap()
	if r.Status != StatusPass || len(issues) != 0 {
		t.Errorf("healthy heap flagged: %v %+v", r.Status, issues)
	}
}

func TestSystemChecker_CheckAggregatesSubChecks(t *testing.T) {
	probe := &fakeProbe{
		mem:  memOf(32*gb, 50),
		load: sysinfo.Load{One: 1, Five: 1, Fifteen: 1},
		cpus: 8,
	}
	comp, err := newSysChecker(probe).Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(comp.Checks) != 4 {
		t.Fatalf("got %d sub-checks, want 4", len(comp.Checks))
	}
	if comp.Critical {
		t.Error("system component must not be critical")
	}
}
