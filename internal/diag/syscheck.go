package diag

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/civreg/civreg/internal/sysinfo"
)

// ComponentSystem is the system checker's domain name.
const ComponentSystem = "system"

const (
	mb = uint64(1) << 20
	gb = uint64(1) << 30
)

// Go runtime support window. Below minimum the build is untested and
// unsupported; below recommended it still works but misses fixes we
// rely on.
const (
	minGoMinor         = 22
	recommendedGoMinor = 24
)

// SystemChecker probes host resources: physical memory pressure, the
// process heap, CPU load relative to core count, and the Go runtime
// version.
type SystemChecker struct {
	probe      sysinfo.Probe
	subTimeout time.Duration

	// Seams for tests; default to the real runtime.
	goVersion    func() string
	readMemStats func(*runtime.MemStats)
}

// NewSystemChecker creates a system checker over the given probe.
func NewSystemChecker(probe sysinfo.Probe, subTimeout time.Duration) *SystemChecker {
	return &SystemChecker{
		probe:        probe,
		subTimeout:   subTimeout,
		goVersion:    runtime.Version,
		readMemStats: runtime.ReadMemStats,
	}
}

// Name returns the component name.
func (c *SystemChecker) Name() string { return ComponentSystem }

// Critical returns false: resource pressure degrades service but the
// report should not hard-fail on a busy host.
func (c *SystemChecker) Critical() bool { return false }

// Check runs the system sub-checks.
func (c *SystemChecker) Check(ctx context.Context) (*ComponentReport, error) {
	var checks []CheckResult
	var issues []Issue

	r, found := runSub(ctx, "memory", c.subTimeout, func(context.Context) (CheckResult, []Issue) {
		return c.checkMemory()
	})
	checks = append(checks, r)
	issues = append(issues, found...)

	r, found = c.checkHeap()
	checks = append(checks, r)
	issues = append(issues, found...)

	r, found = runSub(ctx, "cpu-load", c.subTimeout, func(context.Context) (CheckResult, []Issue) {
		return c.checkCPULoad()
	})
	checks = append(checks, r)
	issues = append(issues, found...)

	r, found = c.checkRuntimeVersion()
	checks = append(checks, r)
	issues = append(issues, found...)

	return newComponent(ComponentSystem, c.Critical(), checks, issues), nil
}

// memoryTier returns the free-space thresholds (for the 85% and 80%
// warning clauses) scaled by total RAM. Bigger hosts are expected to
// keep more absolute headroom.
func memoryTier(totalBytes uint64) (warn85Free, warn80Free uint64) {
	switch {
	case totalBytes >= 32*gb:
		return 4 * gb, 2 * gb
	case totalBytes >= 16*gb:
		return 2 * gb, 1 * gb
	default:
		return 1 * gb, 512 * mb
	}
}

// checkMemory classifies physical memory pressure. The clauses are
// ordered most-severe-first; the first match wins.
func (c *SystemChecker) checkMemory() (CheckResult, []Issue) {
	mem, err := c.probe.Memory()
	if err != nil {
		return warnResult("memory", fmt.Sprintf("cannot read memory stats: %v", err)), nil
	}
	used := mem.UsedPercent()
	free := mem.FreeBytes
	warn85Free, warn80Free := memoryTier(mem.TotalBytes)
	msg := fmt.Sprintf("%.1f%% used, %s free of %s", used, formatBytes(free), formatBytes(mem.TotalBytes))

	var r CheckResult
	var sev Severity
	switch {
	case used > 95:
		r, sev = errorResult("memory", "memory exhausted: "+msg), SeverityCritical
	case used > 90 && free < 2*gb:
		r, sev = errorResult("memory", "memory critically low: "+msg), SeverityCritical
	case used > 85 && free < 1*gb:
		r, sev = errorResult("memory", "memory very low: "+msg), SeverityHigh
	case used > 80 && free < 500*mb:
		r, sev = errorResult("memory", "memory very low: "+msg), SeverityHigh
	case used > 90:
		r, sev = warnResult("memory", "memory pressure high: "+msg), SeverityMedium
	case used > 85 && free < warn85Free:
		r, sev = warnResult("memory", "memory pressure elevated: "+msg), SeverityMedium
	case used > 80 && free < warn80Free:
		r, sev = warnResult("memory", "memory pressure elevated: "+msg), SeverityLow
	default:
		r = passResult("memory", msg)
	}
	r.Details = map[string]any{
		"usedPercent": used,
		"freeBytes":   free,
		"totalBytes":  mem.TotalBytes,
	}
	if r.Status == StatusPass {
		return r, nil
	}
	is := newIssue(ComponentSystem, CategoryMemoryPressure, sev, r.Message, nil)
	is.Recommendations = []string{
		"identify memory-hungry processes with top or ps",
		"consider adding RAM or moving the platform to a larger host",
	}
	return r, []Issue{is}
}

// checkHeap warns when the process's own heap is nearly full, even if
// system memory looks healthy.
func (c *SystemChecker) checkHeap() (CheckResult, []Issue) {
	var ms runtime.MemStats
	c.readMemStats(&ms)
	if ms.HeapSys == 0 {
		return passResult("process-heap", "heap stats unavailable"), nil
	}
	usedPct := float64(ms.HeapAlloc) / float64(ms.HeapSys) * 100
	msg := fmt.Sprintf("%.1f%% of %s heap in use", usedPct, formatBytes(ms.HeapSys))
	if usedPct > 90 {
		is := newIssue(ComponentSystem, CategoryMemoryPressure, SeverityMedium,
			"process heap nearly full: "+msg, nil)
		is.Recommendations = []string{"restart the service if heap growth continues"}
		return warnResult("process-heap", msg), []Issue{is}
	}
	return passResult("process-heap", msg), nil
}

// checkCPULoad classifies load averages as a percentage of the core
// count, using the worse of the 1- and 5-minute averages.
func (c *SystemChecker) checkCPULoad() (CheckResult, []Issue) {
	load, err := c.probe.LoadAverage()
	if err != nil {
		return warnResult("cpu-load", fmt.Sprintf("cannot read load average: %v", err)), nil
	}
	cores := c.probe.NumCPU()
	if cores == 0 {
		cores = 1
	}
	pct1 := load.One / float64(cores) * 100
	pct5 := load.Five / float64(cores) * 100
	worst := pct1
	if pct5 > worst {
		worst = pct5
	}
	msg := fmt.Sprintf("load %.2f/%.2f/%.2f on %d cores (%.0f%%)",
		load.One, load.Five, load.Fifteen, cores, worst)

	var sev Severity
	switch {
	case worst > 200:
		sev = SeverityHigh
	case worst > 150:
		sev = SeverityMedium
	case worst > 100:
		sev = SeverityLow
	default:
		r := passResult("cpu-load", msg)
		r.Details = map[string]any{"loadPercent": worst, "cores": cores}
		return r, nil
	}
	r := warnResult("cpu-load", "cpu load high: "+msg)
	r.Details = map[string]any{"loadPercent": worst, "cores": cores}
	is := newIssue(ComponentSystem, CategoryCPULoad, sev, r.Message, nil)
	is.Recommendations = []string{"check for runaway processes or long-running exports"}
	return r, []Issue{is}
}

// checkRuntimeVersion compares the running Go version against the
// support window.
func (c *SystemChecker) checkRuntimeVersion() (CheckResult, []Issue) {
	version := c.goVersion()
	minor, err := sysinfo.GoMinor(version)
	if err != nil {
		return warnResult("runtime-version", err.Error()), nil
	}
	msg := fmt.Sprintf("%s (minimum go1.%d, recommended go1.%d)", version, minGoMinor, recommendedGoMinor)
	switch {
	case minor < minGoMinor:
		is := newIssue(ComponentSystem, CategoryRuntimeVersion, SeverityHigh,
			fmt.Sprintf("runtime %s is below the minimum supported go1.%d", version, minGoMinor), nil)
		is.Recommendations = []string{fmt.Sprintf("rebuild with go1.%d or newer", recommendedGoMinor)}
		return errorResult("runtime-version", "unsupported runtime: "+msg), []Issue{is}
	case minor < recommendedGoMinor:
		is := newIssue(ComponentSystem, CategoryRuntimeVersion, SeverityLow,
			fmt.Sprintf("runtime %s is below the recommended go1.%d", version, recommendedGoMinor), nil)
		return warnResult("runtime-version", "outdated runtime: "+msg), []Issue{is}
	default:
		return passResult("runtime-version", msg), nil
	}
}

// AutoFix has no system remediation; every issue reports "not
// available".
func (c *SystemChecker) AutoFix(_ context.Context, issues []Issue, _ FixOptions) []FixResult {
	return unavailableFixes(issues)
}
