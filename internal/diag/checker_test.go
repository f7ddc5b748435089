package diag

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunSub_CompletesWithinDeadline(t *testing.T) {
	r, issues := runSub(context.Background(), "probe", time.Second, func(context.Context) (CheckResult, []Issue) {
		return passResult("probe", "ok"), []Issue{newIssue("x", CategoryHitRate, SeverityLow, "m", nil)}
	})
	if r.Status != StatusPass {
		t.Errorf("status = %v, want pass", r.Status)
	}
	if r.Duration <= 0 {
		t.Error("duration not stamped")
	}
	if len(issues) != 1 {
		t.Errorf("issues lost across the deadline boundary: %+v", issues)
	}
}

func TestRunSub_TimesOut(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	r, issues := runSub(context.Background(), "hung-probe", 20*time.Millisecond, func(context.Context) (CheckResult, []Issue) {
		<-block
		return passResult("hung-probe", "too late"), nil
	})
	if r.Status != StatusError {
		t.Errorf("status = %v, want error", r.Status)
	}
	if !strings.Contains(r.Message, "timed out") {
		t.Errorf("message = %q, want timeout notice", r.Message)
	}
	if issues != nil {
		t.Errorf("timed-out sub-check leaked issues: %+v", issues)
	}
}

func TestRunSub_ZeroTimeoutUsesDefault(t *testing.T) {
	r, _ := runSub(context.Background(), "probe", 0, func(ctx context.Context) (CheckResult, []Issue) {
		if _, ok := ctx.Deadline(); !ok {
			return errorResult("probe", "no deadline set"), nil
		}
		return passResult("probe", "ok"), nil
	})
	if r.Status != StatusPass {
		t.Errorf("status = %v: %s", r.Status, r.Message)
	}
}
