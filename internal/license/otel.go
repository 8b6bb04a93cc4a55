package license

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "voxd/internal/license"

var tracer = otel.Tracer(tracerName)

// Metrics holds the license verification instruments. All record methods
// accept a nil receiver, so CLIs and tests that never wire metrics still
// work; they just report nothing.
type Metrics struct {
	VerificationAttempts metric.Int64Counter
	VerificationFailures metric.Int64Counter
	VerificationDuration metric.Float64Histogram
	TamperSignals        metric.Int64Counter
	RemainingDays        metric.Int64Gauge
}

// InitMetrics creates the license instruments on the given meter. Call it
// once during startup, before the first verification.
func InitMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.VerificationAttempts, err = meter.Int64Counter(
		"license_verification_attempts_total",
		metric.WithDescription("Total number of license verification attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification attempts counter: %w", err)
	}

	m.VerificationFailures, err = meter.Int64Counter(
		"license_verification_failures_total",
		metric.WithDescription("Total number of failed license verifications"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification failures counter: %w", err)
	}

	m.VerificationDuration, err = meter.Float64Histogram(
		"license_verification_duration_seconds",
		metric.WithDescription("License verification duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification duration histogram: %w", err)
	}

	m.TamperSignals, err = meter.Int64Counter(
		"timeguard_tamper_signals_total",
		metric.WithDescription("Total number of clock tamper signals raised during verification"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tamper signals counter: %w", err)
	}

	m.RemainingDays, err = meter.Int64Gauge(
		"license_remaining_days",
		metric.WithDescription("Days until license expiry; 9999 means permanent"),
		metric.WithUnit("d"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create remaining days gauge: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordVerification(ctx context.Context, status string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.VerificationAttempts.Add(ctx, 1, attrs)
	m.VerificationDuration.Record(ctx, seconds, attrs)
	if status != StatusActive {
		m.VerificationFailures.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) recordTamperSignals(ctx context.Context, count int) {
	if m == nil || count == 0 {
		return
	}
	m.TamperSignals.Add(ctx, int64(count))
}

func (m *Metrics) recordRemainingDays(ctx context.Context, days int) {
	if m == nil {
		return
	}
	m.RemainingDays.Record(ctx, int64(days))
}

// startVerifySpan opens a span covering one verification pass.
func startVerifySpan(ctx context.Context, artifactPath string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "license.verify",
		trace.WithAttributes(attribute.String("license.path", artifactPath)))
}

// endVerifySpan records the outcome before closing the span.
func endVerifySpan(span trace.Span, status string, err error) {
	span.SetAttributes(attribute.String("license.status", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	} else {
		span.SetStatus(codes.Ok, status)
	}
	span.End()
}
