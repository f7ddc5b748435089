package diag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/civreg/civreg/internal/fsys"
	"github.com/civreg/civreg/internal/sysinfo"
)

// ComponentFilesystem is the filesystem checker's domain name.
const ComponentFilesystem = "filesystem"

// Directory layout expected under the data directory. Required dirs
// hold records and managed config; optional dirs are created on demand
// by other subsystems and can be re-created safely.
var (
	requiredDirs = []string{"records", "config"}
	optionalDirs = []string{"exports", "backups", ".civreg"}
)

// Disk-space tiers in percent free. Boundary values resolve to the
// stricter tier.
const (
	diskCriticalPercent = 5
	diskErrorPercent    = 10
	diskWarningPercent  = 20
)

// dirMode is the mode applied when creating or normalizing directories.
const dirMode = 0o755

// FilesystemChecker verifies the data directory layout, disk headroom,
// and write access. Missing directories are auto-fixable; permission
// normalization is best-effort and Unix-only.
type FilesystemChecker struct {
	fs         fsys.FS
	probe      sysinfo.Probe
	dataDir    string
	subTimeout time.Duration

	// goos is a test seam for the Windows no-op path.
	goos string
}

// NewFilesystemChecker creates a filesystem checker for dataDir.
func NewFilesystemChecker(fs fsys.FS, probe sysinfo.Probe, dataDir string, subTimeout time.Duration) *FilesystemChecker {
	return &FilesystemChecker{
		fs:         fs,
		probe:      probe,
		dataDir:    dataDir,
		subTimeout: subTimeout,
		goos:       runtime.GOOS,
	}
}

// Name returns the component name.
func (c *FilesystemChecker) Name() string { return ComponentFilesystem }

// Critical returns true: an unusable data directory fails the report.
func (c *FilesystemChecker) Critical() bool { return true }

// Check runs the filesystem sub-checks in declared order.
func (c *FilesystemChecker) Check(ctx context.Context) (*ComponentReport, error) {
	var checks []CheckResult
	var issues []Issue

	r, found := runSub(ctx, "required-dirs", c.subTimeout, func(context.Context) (CheckResult, []Issue) {
		return c.checkRequiredDirs()
	})
	checks = append(checks, r)
	issues = append(issues, found...)

	r, found = runSub(ctx, "optional-dirs", c.subTimeout, func(context.Context) (CheckResult, []Issue) {
		return c.checkOptionalDirs()
	})
	checks = append(checks, r)
	issues = append(issues, found...)

	r, found = runSub(ctx, "disk-space", c.subTimeout, func(context.Context) (CheckResult, []Issue) {
		res, issue := c.checkDiskSpace()
		if issue != nil {
			return res, []Issue{*issue}
		}
		return res, nil
	})
	checks = append(checks, r)
	issues = append(issues, found...)

	r, found = runSub(ctx, "permissions", c.subTimeout, func(context.Context) (CheckResult, []Issue) {
		return c.checkPermissions()
	})
	checks = append(checks, r)
	issues = append(issues, found...)

	return newComponent(ComponentFilesystem, c.Critical(), checks, issues), nil
}

// checkRequiredDirs verifies the required directory set exists. Any
// missing directory is an error, but remains auto-fixable by creation.
func (c *FilesystemChecker) checkRequiredDirs() (CheckResult, []Issue) {
	var missing []string
	var issues []Issue
	for _, dir := range requiredDirs {
		path := filepath.Join(c.dataDir, dir)
		if fi, err := c.fs.Stat(path); err != nil || !fi.IsDir() {
			missing = append(missing, dir)
			issues = append(issues, c.missingDirIssue(path, dir, SeverityHigh))
		}
	}
	if len(missing) > 0 {
		return errorResult("required-dirs",
			fmt.Sprintf("missing required directories: %v", missing)), issues
	}
	return passResult("required-dirs",
		fmt.Sprintf("all %d required directories present", len(requiredDirs))), nil
}

// checkOptionalDirs verifies the optional directory set. Missing
// optional dirs only warn, and are auto-fixable by creation.
func (c *FilesystemChecker) checkOptionalDirs() (CheckResult, []Issue) {
	var missing []string
	var issues []Issue
	for _, dir := range optionalDirs {
		path := filepath.Join(c.dataDir, dir)
		if fi, err := c.fs.Stat(path); err != nil || !fi.IsDir() {
			missing = append(missing, dir)
			issues = append(issues, c.missingDirIssue(path, dir, SeverityLow))
		}
	}
	if len(missing) > 0 {
		return warnResult("optional-dirs",
			fmt.Sprintf("missing optional directories: %v", missing)), issues
	}
	return passResult("optional-dirs",
		fmt.Sprintf("all %d optional directories present", len(optionalDirs))), nil
}

// missingDirIssue builds the auto-fixable issue for one absent
// directory. The full path rides in Details so the fix engine does not
// re-derive it.
func (c *FilesystemChecker) missingDirIssue(path, dir string, sev Severity) Issue {
	is := newIssue(ComponentFilesystem, CategoryMissingDirectory, sev,
		fmt.Sprintf("directory %s is missing", dir),
		&FixPlan{
			Description:       fmt.Sprintf("create directory %s", path),
			Command:           fmt.Sprintf("mkdir -p %s", path),
			EstimatedDuration: "1s",
		})
	is.Details = map[string]any{"path": path}
	return is
}

// checkDiskSpace classifies free disk headroom on the data directory's
// volume into the fixed tiers.
func (c *FilesystemChecker) checkDiskSpace() (CheckResult, *Issue) {
	free, total, err := c.probe.DiskFree(c.dataDir)
	if err != nil {
		return warnResult("disk-space", fmt.Sprintf("cannot determine free space: %v", err)), nil
	}
	if total == 0 {
		return warnResult("disk-space", "volume reports zero capacity"), nil
	}
	freePct := float64(free) / float64(total) * 100
	msg := fmt.Sprintf("%.1f%% free (%s of %s)", freePct, formatBytes(free), formatBytes(total))

	var r CheckResult
	var issue *Issue
	switch {
	case freePct <= diskCriticalPercent:
		r = errorResult("disk-space", "critically low disk space: "+msg)
		is := newIssue(ComponentFilesystem, CategoryDiskSpace, SeverityCritical,
			"disk space critically low: "+msg, nil)
		is.Recommendations = []string{
			"remove old backups from the backups directory",
			"move exports to external storage",
		}
		issue = &is
	case freePct <= diskErrorPercent:
		r = errorResult("disk-space", "low disk space: "+msg)
		is := newIssue(ComponentFilesystem, CategoryDiskSpace, SeverityHigh,
			"disk space low: "+msg, nil)
		is.Recommendations = []string{"free disk space before the volume fills"}
		issue = &is
	case freePct <= diskWarningPercent:
		r = warnResult("disk-space", "disk space getting low: "+msg)
		is := newIssue(ComponentFilesystem, CategoryDiskSpace, SeverityMedium,
			"disk space getting low: "+msg, nil)
		issue = &is
	default:
		r = passResult("disk-space", msg)
	}
	r.Details = map[string]any{
		"freeBytes":   free,
		"totalBytes":  total,
		"freePercent": freePct,
	}
	return r, issue
}

// checkPermissions probes write access on the data dir and the required
// subdirectories that exist. A failed write probe is an error with an
// auto-fixable permission issue.
func (c *FilesystemChecker) checkPermissions() (CheckResult, []Issue) {
	targets := []string{c.dataDir}
	for _, dir := range requiredDirs {
		path := filepath.Join(c.dataDir, dir)
		if fi, err := c.fs.Stat(path); err == nil && fi.IsDir() {
			targets = append(targets, path)
		}
	}

	var denied []string
	var issues []Issue
	for _, dir := range targets {
		if err := c.probeWrite(dir); err != nil {
			denied = append(denied, dir)
			is := newIssue(ComponentFilesystem, CategoryPermissions, SeverityHigh,
				fmt.Sprintf("no write access to %s", dir),
				&FixPlan{
					Description: fmt.Sprintf("normalize permissions on %s to %o", dir, dirMode),
					Command:     fmt.Sprintf("chmod %o %s", dirMode, dir),
				})
			is.Details = map[string]any{"path": dir}
			issues = append(issues, is)
		}
	}
	if len(denied) > 0 {
		return errorResult("permissions",
			fmt.Sprintf("write access denied: %v", denied)), issues
	}
	return passResult("permissions", "data directory is writable"), nil
}

// probeWrite writes and removes a throwaway file to confirm access.
func (c *FilesystemChecker) probeWrite(dir string) error {
	probe := filepath.Join(dir, ".civreg-write-probe")
	if err := c.fs.WriteFile(probe, []byte("probe"), 0o644); err != nil {
		return err
	}
	return c.fs.Remove(probe)
}

// AutoFix creates missing directories and normalizes permissions.
// Directory creation is idempotent; a second run over the same issues
// succeeds without changing the directory set. Permission fixes are a
// Unix-only remediation — on Windows they report failure rather than
// silently doing nothing.
func (c *FilesystemChecker) AutoFix(ctx context.Context, issues []Issue, _ FixOptions) []FixResult {
	results := make([]FixResult, 0, len(issues))
	for _, is := range issues {
		start := time.Now()
		var fr FixResult
		switch is.Category {
		case CategoryMissingDirectory:
			fr = c.fixMissingDir(is)
		case CategoryPermissions:
			fr = c.fixPermissions(is)
		default:
			fr = FixResult{
				IssueID: is.ID,
				Success: false,
				Message: "automatic fix not available for this issue",
			}
		}
		fr.Duration = time.Since(start)
		results = append(results, fr)
	}
	return results
}

// fixMissingDir creates the directory named by the issue.
func (c *FilesystemChecker) fixMissingDir(is Issue) FixResult {
	path, ok := is.Details["path"].(string)
	if !ok || path == "" {
		err := fmt.Errorf("issue %s carries no path detail", is.ID)
		return FixResult{IssueID: is.ID, Success: false, Message: err.Error(), Err: err}
	}
	if err := c.fs.MkdirAll(path, dirMode); err != nil {
		return FixResult{
			IssueID: is.ID,
			Success: false,
			Message: fmt.Sprintf("creating %s: %v", path, err),
			Err:     err,
		}
	}
	return FixResult{IssueID: is.ID, Success: true, Message: "created " + path}
}

// fixPermissions normalizes the directory mode. No-op failure on
// Windows where POSIX modes do not apply.
func (c *FilesystemChecker) fixPermissions(is Issue) FixResult {
	if c.goos == "windows" {
		return FixResult{
			IssueID: is.ID,
			Success: false,
			Message: "permission normalization is not supported on windows",
		}
	}
	path, ok := is.Details["path"].(string)
	if !ok || path == "" {
		err := fmt.Errorf("issue %s carries no path detail", is.ID)
		return FixResult{IssueID: is.ID, Success: false, Message: err.Error(), Err: err}
	}
	if err := c.fs.Chmod(path, os.FileMode(dirMode)); err != nil {
		return FixResult{
			IssueID: is.ID,
			Success: false,
			Message: fmt.Sprintf("chmod %s: %v", path, err),
			Err:     err,
		}
	}
	return FixResult{IssueID: is.ID, Success: true, Message: fmt.Sprintf("set mode %o on %s", dirMode, path)}
}

// formatBytes renders a byte count with a binary unit suffix.
func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
