// Package telemetry records service metrics through OpenTelemetry. It uses
// the global MeterProvider unless a meter is passed in, so metrics are no-ops
// until a provider is configured.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const scope = "github.com/michaelbrown/pyrun"

// Completion outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the service instruments. A nil *Metrics records nothing.
type Metrics struct {
	runs        metric.Int64Counter
	lints       metric.Int64Counter
	completions metric.Int64Counter
	duration    metric.Float64Histogram
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Metrics, error) {
	runs, err := meter.Int64Counter("pyrun.runs",
		metric.WithDescription("Snippet executions by final status."))
	if err != nil {
		return nil, fmt.Errorf("creating runs counter: %w", err)
	}
	lints, err := meter.Int64Counter("pyrun.lints",
		metric.WithDescription("Lint requests."))
	if err != nil {
		return nil, fmt.Errorf("creating lints counter: %w", err)
	}
	completions, err := meter.Int64Counter("pyrun.completions",
		metric.WithDescription("Completion requests by outcome."))
	if err != nil {
		return nil, fmt.Errorf("creating completions counter: %w", err)
	}
	duration, err := meter.Float64Histogram("pyrun.run.duration",
		metric.WithDescription("Snippet execution time."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}
	return &Metrics{runs: runs, lints: lints, completions: completions, duration: duration}, nil
}

// NewGlobal creates the instruments on the global MeterProvider.
func NewGlobal() (*Metrics, error) {
	return New(otel.Meter(scope))
}

// RecordRun counts a run and records how long it took.
func (m *Metrics) RecordRun(ctx context.Context, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.runs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}

// RecordLint counts a lint request.
func (m *Metrics) RecordLint(ctx context.Context, diagnostics int) {
	if m == nil {
		return
	}
	m.lints.Add(ctx, 1, metric.WithAttributes(attribute.Bool("clean", diagnostics == 0)))
}

// RecordCompletion counts a completion request.
func (m *Metrics) RecordCompletion(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.completions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
