package observability

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// JobMetrics records River job outcomes and queue depth.
type JobMetrics interface {
	RecordOutcome(ctx context.Context, kind, status string)
	SetRiverQueueDepth(depth int)
}

type jobMetrics struct {
	outcomes        metric.Int64Counter
	riverQueueDepth atomic.Int64
	riverQueueGauge metric.Float64ObservableGauge
}

// NewJobMetrics creates JobMetrics and registers the queue depth gauge. Returns (nil, nil) when meter is nil.
func NewJobMetrics(meter metric.Meter) (JobMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	outcomes, err := meter.Int64Counter(
		MetricNameJobOutcomes,
		metric.WithDescription("River job outcomes by kind and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create job outcomes counter: %w", err)
	}

	jm := &jobMetrics{outcomes: outcomes}

	gauge, err := meter.Float64ObservableGauge(
		MetricNameRiverQueueDepth,
		metric.WithDescription("Current River job queue depth (available, retryable, scheduled)"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(float64(jm.riverQueueDepth.Load()))

			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create river queue depth gauge: %w", err)
	}

	jm.riverQueueGauge = gauge

	return jm, nil
}

func (j *jobMetrics) RecordOutcome(ctx context.Context, kind, status string) {
	j.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrKind, kind),
		attribute.String(AttrStatus, NormalizeReason(status, AllowedStatuses)),
	))
}

func (j *jobMetrics) SetRiverQueueDepth(depth int) {
	j.riverQueueDepth.Store(int64(depth))
}
