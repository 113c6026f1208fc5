package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestRecordWithNoopMeter(t *testing.T) {
	m, err := New(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordRun(ctx, "ok", 150*time.Millisecond)
		m.RecordLint(ctx, 2)
		m.RecordCompletion(ctx, OutcomeError)
	})
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordRun(ctx, "timeout", time.Second)
		m.RecordLint(ctx, 0)
		m.RecordCompletion(ctx, OutcomeOK)
	})
}

func TestNewGlobal(t *testing.T) {
	m, err := NewGlobal()
	require.NoError(t, err)
	assert.NotNil(t, m)
}
