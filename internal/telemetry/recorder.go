package telemetry

import (
	"context"
	"sync"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterRecorderName = "github.com/civreg/civreg"
	loggerName        = "civreg"
)

// recorderInstruments holds all lazy-initialized OTel metric instruments.
type recorderInstruments struct {
	doctorRunTotal    metric.Int64Counter
	checkTotal        metric.Int64Counter
	fixTotal          metric.Int64Counter
	rebuildTotal      metric.Int64Counter
	backupTotal       metric.Int64Counter
	configReloadTotal metric.Int64Counter

	checkDurationHist   metric.Float64Histogram
	rebuildDurationHist metric.Float64Histogram
}

var (
	instOnce sync.Once
	inst     recorderInstruments
)

// initInstruments registers the recorder metric instruments against the
// current global MeterProvider. Must run after Init so the real provider is
// set; also called lazily on first use as a safety net.
func initInstruments() {
	instOnce.Do(func() {
		m := otel.GetMeterProvider().Meter(meterRecorderName)

		inst.doctorRunTotal, _ = m.Int64Counter("civreg.doctor.runs.total",
			metric.WithDescription("Total diagnostic runs"),
		)
		inst.checkTotal, _ = m.Int64Counter("civreg.doctor.checks.total",
			metric.WithDescription("Total component checks by status"),
		)
		inst.fixTotal, _ = m.Int64Counter("civreg.doctor.fixes.total",
			metric.WithDescription("Total auto-fix attempts"),
		)
		inst.rebuildTotal, _ = m.Int64Counter("civreg.index.rebuilds.total",
			metric.WithDescription("Total search index rebuilds"),
		)
		inst.backupTotal, _ = m.Int64Counter("civreg.backups.total",
			metric.WithDescription("Total pre-fix backups"),
		)
		inst.configReloadTotal, _ = m.Int64Counter("civreg.config.reloads.total",
			metric.WithDescription("Total config reload attempts"),
		)

		inst.checkDurationHist, _ = m.Float64Histogram("civreg.doctor.check.duration_ms",
			metric.WithDescription("Component check wall-clock time in milliseconds"),
			metric.WithUnit("ms"),
		)
		inst.rebuildDurationHist, _ = m.Float64Histogram("civreg.index.rebuild.duration_ms",
			metric.WithDescription("Search index rebuild wall-clock time in milliseconds"),
			metric.WithUnit("ms"),
		)
	})
}

// statusStr returns "ok" or "error" depending on whether err is nil.
func statusStr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// emit sends an OTel log event with the given body and key-value attributes.
func emit(ctx context.Context, body string, sev otellog.Severity, attrs ...otellog.KeyValue) {
	logger := global.GetLoggerProvider().Logger(loggerName)
	var r otellog.Record
	r.SetBody(otellog.StringValue(body))
	r.SetSeverity(sev)
	r.AddAttributes(attrs...)
	logger.Emit(ctx, r)
}

// errKV returns a log KeyValue with the error message, or empty string
// if nil. Messages are capped so a pathological error (a dumped query,
// a config file echoed back) cannot bloat the log event.
func errKV(err error) otellog.KeyValue {
	if err != nil {
		return otellog.String("error", truncateMessage(err.Error(), maxMessageLog))
	}
	return otellog.String("error", "")
}

// severity returns SeverityInfo on success, SeverityError on failure.
func severity(err error) otellog.Severity {
	if err != nil {
		return otellog.SeverityError
	}
	return otellog.SeverityInfo
}

// maxMessageLog is the maximum number of bytes of a diagnostic message
// captured in log events.
const maxMessageLog = 1024

// truncateMessage trims s to max bytes and appends "…" when truncated.
// Avoids splitting multi-byte UTF-8 characters at the boundary.
func truncateMessage(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	truncated := s[:limit]
	for len(truncated) > 0 && !utf8.ValidString(truncated) {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated + "…"
}

// RecordDoctorRun records a completed diagnostic run (metrics + log event).
// status is the aggregated report status; issues is the total issue count.
func RecordDoctorRun(ctx context.Context, status string, issues, fixable int, durationMs float64) {
	initInstruments()
	inst.doctorRunTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	sev := otellog.SeverityInfo
	if status != "pass" {
		sev = otellog.SeverityWarn
	}
	emit(ctx, "doctor.run", sev,
		otellog.String("status", status),
		otellog.Int("issues", issues),
		otellog.Int("fixable", fixable),
		otellog.Float64("duration_ms", durationMs),
	)
}

// RecordCheck records one component check (metrics + log event).
func RecordCheck(ctx context.Context, component, status string, durationMs float64) {
	initInstruments()
	attrs := metric.WithAttributes(
		attribute.String("component", component),
		attribute.String("status", status),
	)
	inst.checkTotal.Add(ctx, 1, attrs)
	inst.checkDurationHist.Record(ctx, durationMs, attrs)
	emit(ctx, "doctor.check", otellog.SeverityInfo,
		otellog.String("component", component),
		otellog.String("status", status),
		otellog.Float64("duration_ms", durationMs),
	)
}

// RecordFix records an auto-fix attempt (metrics + log event). backupID is
// empty when no backup preceded the fix.
func RecordFix(ctx context.Context, issueID, component, backupID string, err error) {
	initInstruments()
	status := statusStr(err)
	inst.fixTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("status", status),
		),
	)
	emit(ctx, "doctor.fix", severity(err),
		otellog.String("issue", issueID),
		otellog.String("component", component),
		otellog.String("backup", backupID),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordRebuild records a search index rebuild (metrics + log event).
// rows is the number of records re-indexed.
func RecordRebuild(ctx context.Context, rows int64, durationMs float64, err error) {
	initInstruments()
	status := statusStr(err)
	attrs := metric.WithAttributes(attribute.String("status", status))
	inst.rebuildTotal.Add(ctx, 1, attrs)
	inst.rebuildDurationHist.Record(ctx, durationMs, attrs)
	emit(ctx, "index.rebuild", severity(err),
		otellog.Int64("rows", rows),
		otellog.Float64("duration_ms", durationMs),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordBackup records a pre-fix backup attempt (metrics + log event).
func RecordBackup(ctx context.Context, backupID string, files int, err error) {
	initInstruments()
	status := statusStr(err)
	inst.backupTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	emit(ctx, "backup.create", severity(err),
		otellog.String("backup", backupID),
		otellog.Int("files", files),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordConfigReload records a config reload attempt (metrics + log event).
func RecordConfigReload(ctx context.Context, path string, err error) {
	initInstruments()
	status := statusStr(err)
	inst.configReloadTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	emit(ctx, "config.reload", severity(err),
		otellog.String("path", path),
		otellog.String("status", status),
		errKV(err),
	)
}
