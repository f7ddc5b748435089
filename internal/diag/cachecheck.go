package diag

import (
	"context"
	"fmt"

	"github.com/civreg/civreg/internal/cache"
)

// ComponentCache is the cache checker's domain name.
const ComponentCache = "cache"

// CacheStatsProvider is the capability a collaborator exposes so the
// cache checker can read its statistics without reaching into
// implementation internals.
type CacheStatsProvider interface {
	Stats() cache.Stats
}

// CacheOptions hold the cache checker's thresholds.
type CacheOptions struct {
	// MinHitRate is the hit-rate floor below which an issue is raised.
	MinHitRate float64
	// MaxErrors is the error-count ceiling.
	MaxErrors uint64
	// MaxMemoryBytes caps cache memory; zero disables the memory
	// sub-check's issue.
	MaxMemoryBytes int64
}

// DefaultCacheOptions returns the standard thresholds.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{MinHitRate: 0.5, MaxErrors: 10}
}

// CacheChecker inspects the search-result cache's health: hit rate,
// error count, memory usage, and capacity headroom.
type CacheChecker struct {
	stats CacheStatsProvider
	opts  CacheOptions
}

// NewCacheChecker creates a cache checker over the given stats source.
// Zero-valued thresholds fall back to the defaults.
func NewCacheChecker(stats CacheStatsProvider, opts CacheOptions) *CacheChecker {
	def := DefaultCacheOptions()
	if opts.MinHitRate == 0 {
		opts.MinHitRate = def.MinHitRate
	}
	if opts.MaxErrors == 0 {
		opts.MaxErrors = def.MaxErrors
	}
	return &CacheChecker{stats: stats, opts: opts}
}

// Name returns the component name.
func (c *CacheChecker) Name() string { return ComponentCache }

// Critical returns false: a degraded cache slows queries but the
// platform keeps working.
func (c *CacheChecker) Critical() bool { return false }

// Check runs the cache sub-checks against a single stats snapshot so
// all four see consistent numbers.
func (c *CacheChecker) Check(_ context.Context) (*ComponentReport, error) {
	stats := c.stats.Stats()
	var checks []CheckResult
	var issues []Issue

	r, found := c.checkHitRate(stats)
	checks = append(checks, r)
	issues = append(issues, found...)

	r, found = c.checkErrors(stats)
	checks = append(checks, r)
	issues = append(issues, found...)

	r, found = c.checkMemory(stats)
	checks = append(checks, r)
	issues = append(issues, found...)

	r, found = c.checkCapacity(stats)
	checks = append(checks, r)
	issues = append(issues, found...)

	return newComponent(ComponentCache, c.Critical(), checks, issues), nil
}

// checkHitRate raises exactly one medium issue when the hit rate falls
// below the floor.
func (c *CacheChecker) checkHitRate(stats cache.Stats) (CheckResult, []Issue) {
	rate := stats.HitRate()
	msg := fmt.Sprintf("hit rate %.1f%% (%d hits, %d misses)", rate*100, stats.Hits, stats.Misses)
	if rate < c.opts.MinHitRate {
		is := newIssue(ComponentCache, CategoryHitRate, SeverityMedium,
			fmt.Sprintf("cache hit rate %.1f%% is below the %.1f%% minimum", rate*100, c.opts.MinHitRate*100),
			nil)
		is.Recommendations = []string{
			"increase cache capacity in civreg.toml",
			"review query patterns for uncacheable one-off searches",
		}
		return warnResult("hit-rate", msg), []Issue{is}
	}
	return passResult("hit-rate", msg), nil
}

// checkErrors raises a high issue when the error count exceeds the
// ceiling.
func (c *CacheChecker) checkErrors(stats cache.Stats) (CheckResult, []Issue) {
	msg := fmt.Sprintf("%d cache errors", stats.Errors)
	if stats.Errors > c.opts.MaxErrors {
		is := newIssue(ComponentCache, CategoryCacheErrors, SeverityHigh,
			fmt.Sprintf("cache recorded %d errors, above the %d ceiling", stats.Errors, c.opts.MaxErrors),
			nil)
		is.Recommendations = []string{"inspect search logs for the underlying query failures"}
		return warnResult("errors", msg), []Issue{is}
	}
	return passResult("errors", msg), nil
}

// checkMemory raises a medium issue when a memory cap is configured and
// exceeded. Without a cap the sub-check only reports usage.
func (c *CacheChecker) checkMemory(stats cache.Stats) (CheckResult, []Issue) {
	msg := fmt.Sprintf("%s in use", formatBytes(uint64(stats.MemoryBytes)))
	if c.opts.MaxMemoryBytes > 0 && stats.MemoryBytes > c.opts.MaxMemoryBytes {
		is := newIssue(ComponentCache, CategoryCacheMemory, SeverityMedium,
			fmt.Sprintf("cache memory %s exceeds the configured %s cap",
				formatBytes(uint64(stats.MemoryBytes)), formatBytes(uint64(c.opts.MaxMemoryBytes))),
			nil)
		is.Recommendations = []string{"lower cache capacity or raise max_memory_mb in civreg.toml"}
		return warnResult("memory", msg), []Issue{is}
	}
	return passResult("memory", msg), nil
}

// checkCapacity raises a low issue when the cache is at or above 90% of
// its entry capacity.
func (c *CacheChecker) checkCapacity(stats cache.Stats) (CheckResult, []Issue) {
	msg := fmt.Sprintf("%d of %d entries", stats.Entries, stats.Capacity)
	if stats.Capacity > 0 && float64(stats.Entries) >= 0.9*float64(stats.Capacity) {
		is := newIssue(ComponentCache, CategoryCacheCapacity, SeverityLow,
			fmt.Sprintf("cache is near capacity (%d of %d entries)", stats.Entries, stats.Capacity),
			nil)
		is.Recommendations = []string{"increase cache capacity if evictions hurt hit rate"}
		return warnResult("capacity", msg), []Issue{is}
	}
	return passResult("capacity", msg), nil
}

// AutoFix has no cache remediation; every issue reports "not available".
func (c *CacheChecker) AutoFix(_ context.Context, issues []Issue, _ FixOptions) []FixResult {
	return unavailableFixes(issues)
}
