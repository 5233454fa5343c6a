package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Body kinds for the body-too-large counter.
const (
	BodyJSON   = "json"
	BodyUpload = "upload"
)

// APIMetrics records request-level rejections and the size of accepted audio uploads.
type APIMetrics interface {
	RecordRequestBodyTooLarge(ctx context.Context, body string)
	RecordUploadRejected(ctx context.Context, reason string)
	RecordUploadBytes(ctx context.Context, n int64)
}

type apiMetrics struct {
	tooLarge    metric.Int64Counter
	rejected    metric.Int64Counter
	uploadBytes metric.Int64Histogram
}

// NewAPIMetrics creates APIMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewAPIMetrics(meter metric.Meter) (APIMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	tooLarge, err := meter.Int64Counter(MetricNameRequestBodyTooLarge,
		metric.WithDescription("Requests answered 413. Label body: json or upload."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create request body too large counter: %w", err)
	}

	rejected, err := meter.Int64Counter(MetricNameUploadsRejected,
		metric.WithDescription("Audio uploads rejected before transcription. Label reason."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create uploads rejected counter: %w", err)
	}

	uploadBytes, err := meter.Int64Histogram(MetricNameUploadBytes,
		metric.WithDescription("Size of accepted audio uploads."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1<<20, 5<<20, 20<<20, 50<<20, 100<<20, 250<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("create upload bytes histogram: %w", err)
	}

	return &apiMetrics{tooLarge: tooLarge, rejected: rejected, uploadBytes: uploadBytes}, nil
}

func (a *apiMetrics) RecordRequestBodyTooLarge(ctx context.Context, body string) {
	if body != BodyUpload {
		body = BodyJSON
	}

	a.tooLarge.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrBody, body)))
}

func (a *apiMetrics) RecordUploadRejected(ctx context.Context, reason string) {
	a.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrReason, NormalizeReason(reason, AllowedUploadRejections)),
	))
}

func (a *apiMetrics) RecordUploadBytes(ctx context.Context, n int64) {
	a.uploadBytes.Record(ctx, n)
}
