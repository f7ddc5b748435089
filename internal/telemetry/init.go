// Package telemetry wires the OTel SDK for civreg and provides recording
// helpers for diagnostic events. Each recorder emits both an OTel log
// event and increments a metric counter, so operators can alert on fix
// failures and index-drift trends without scraping CLI output.
//
// Telemetry is opt-in: with CIVREG_OTEL_METRICS_URL unset, Init is a
// no-op and all recorders fall through to the noop global providers.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

const (
	// EnvMetricsURL is the OTLP/HTTP metrics endpoint. Telemetry is
	// disabled entirely when this is unset.
	EnvMetricsURL = "CIVREG_OTEL_METRICS_URL"
	// EnvLogsURL is the OTLP/HTTP logs endpoint. Log events are skipped
	// when unset even if metrics are active.
	EnvLogsURL = "CIVREG_OTEL_LOGS_URL"

	serviceName = "civreg"
)

// Init installs the global meter and logger providers from the CIVREG_OTEL
// environment. The returned shutdown flushes pending exports; it is safe to
// call even when telemetry is disabled.
func Init(ctx context.Context) (shutdown func(context.Context) error, err error) {
	metricsURL := os.Getenv(EnvMetricsURL)
	if metricsURL == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building telemetry resource: %w", err)
	}

	metricExp, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpointURL(metricsURL),
	)
	if err != nil {
		return nil, fmt.Errorf("creating metrics exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
	)
	otel.SetMeterProvider(mp)

	var lp *sdklog.LoggerProvider
	if logsURL := os.Getenv(EnvLogsURL); logsURL != "" {
		logExp, err := otlploghttp.New(ctx,
			otlploghttp.WithEndpointURL(logsURL),
		)
		if err != nil {
			_ = mp.Shutdown(ctx)
			return nil, fmt.Errorf("creating logs exporter: %w", err)
		}
		lp = sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		)
		global.SetLoggerProvider(lp)
	}

	return func(ctx context.Context) error {
		var firstErr error
		if lp != nil {
			firstErr = lp.Shutdown(ctx)
		}
		if err := mp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}, nil
}
