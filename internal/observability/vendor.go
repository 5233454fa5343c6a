package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// VendorMetrics records outbound calls to third-party APIs.
type VendorMetrics interface {
	RecordCall(ctx context.Context, vendor, op, status string, duration time.Duration)
}

type vendorMetrics struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewVendorMetrics creates VendorMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewVendorMetrics(meter metric.Meter) (VendorMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	calls, err := meter.Int64Counter(
		MetricNameVendorCalls,
		metric.WithDescription("Outbound vendor API calls by vendor, operation and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create vendor calls counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameVendorCallDuration,
		metric.WithDescription("Outbound vendor API call duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create vendor duration histogram: %w", err)
	}

	return &vendorMetrics{calls: calls, duration: duration}, nil
}

func (v *vendorMetrics) RecordCall(ctx context.Context, vendor, op, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(AttrVendor, NormalizeReason(vendor, AllowedVendors)),
		attribute.String(AttrOp, op),
		attribute.String(AttrStatus, NormalizeReason(status, AllowedStatuses)),
	)
	v.calls.Add(ctx, 1, attrs)
	v.duration.Record(ctx, duration.Seconds(), attrs)
}

// TimeVendorCall runs fn and records its outcome on m. m may be nil.
func TimeVendorCall(ctx context.Context, m VendorMetrics, vendor, op string, fn func() error) error {
	start := time.Now()
	err := fn()

	if m != nil {
		status := "success"
		if err != nil {
			status = "error"
		}

		m.RecordCall(ctx, vendor, op, status, time.Since(start))
	}

	return err
}
