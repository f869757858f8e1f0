package voiceline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// pipelineMetrics counts run outcomes and segment fates. Counters are
// lazily no-op if no meter provider is installed.
type pipelineMetrics struct {
	runs            metric.Int64Counter
	segments        metric.Int64Counter
	segmentFailures metric.Int64Counter
	synthDuration   metric.Float64Histogram
}

func newPipelineMetrics() *pipelineMetrics {
	meter := otel.Meter("fablevoice/voiceline")

	runs, _ := meter.Int64Counter("voiceline_runs_total",
		metric.WithDescription("Voice line runs by outcome"))
	segments, _ := meter.Int64Counter("voiceline_segments_total",
		metric.WithDescription("Segments dispatched for synthesis"))
	segmentFailures, _ := meter.Int64Counter("voiceline_segment_failures_total",
		metric.WithDescription("Segments dropped after synthesis failure"))
	synthDuration, _ := meter.Float64Histogram("voiceline_run_duration_seconds",
		metric.WithDescription("End-to-end duration of a voice line run"))

	return &pipelineMetrics{
		runs:            runs,
		segments:        segments,
		segmentFailures: segmentFailures,
		synthDuration:   synthDuration,
	}
}

func (m *pipelineMetrics) recordRun(ctx context.Context, outcome string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.runs.Add(ctx, 1, attrs)
	m.synthDuration.Record(ctx, seconds, attrs)
}

func (m *pipelineMetrics) recordSegments(ctx context.Context, dispatched, produced int) {
	m.segments.Add(ctx, int64(dispatched))
	if dropped := dispatched - produced; dropped > 0 {
		m.segmentFailures.Add(ctx, int64(dropped))
	}
}
