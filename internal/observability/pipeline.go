package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics records transcription, indexing and topic pipeline metrics.
// Methods accept ctx for future exemplar support.
type PipelineMetrics interface {
	RecordStage(ctx context.Context, stage, status string, duration time.Duration)
	RecordRun(ctx context.Context, status string)
	RecordPostsGenerated(ctx context.Context, count int)
	RecordTopicsFound(ctx context.Context, count int)
	RecordTranscriptionPolls(ctx context.Context, polls int)
	RecordChunksIndexed(ctx context.Context, count int)
}

type pipelineMetrics struct {
	stageDuration  metric.Float64Histogram
	runs           metric.Int64Counter
	postsGenerated metric.Int64Counter
	topicsFound    metric.Int64Histogram
	polls          metric.Int64Histogram
	chunksIndexed  metric.Int64Counter
}

// NewPipelineMetrics creates PipelineMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewPipelineMetrics(meter metric.Meter) (PipelineMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	stageDuration, err := meter.Float64Histogram(
		MetricNamePipelineStageDuration,
		metric.WithDescription("Duration of one pipeline stage (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage duration histogram: %w", err)
	}

	runs, err := meter.Int64Counter(
		MetricNamePipelineRuns,
		metric.WithDescription("Topic pipeline runs by final status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline runs counter: %w", err)
	}

	postsGenerated, err := meter.Int64Counter(
		MetricNamePostsGenerated,
		metric.WithDescription("Posts persisted by the topic pipeline"),
	)
	if err != nil {
		return nil, fmt.Errorf("create posts generated counter: %w", err)
	}

	topicsFound, err := meter.Int64Histogram(
		MetricNameTopicsFound,
		metric.WithDescription("Topics found per pipeline run (outliers excluded)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create topics histogram: %w", err)
	}

	polls, err := meter.Int64Histogram(
		MetricNameTranscriptionPolls,
		metric.WithDescription("Status polls needed per transcription job"),
	)
	if err != nil {
		return nil, fmt.Errorf("create transcription polls histogram: %w", err)
	}

	chunksIndexed, err := meter.Int64Counter(
		MetricNameChunksIndexed,
		metric.WithDescription("Chunks written to the vector store"),
	)
	if err != nil {
		return nil, fmt.Errorf("create chunks indexed counter: %w", err)
	}

	return &pipelineMetrics{
		stageDuration:  stageDuration,
		runs:           runs,
		postsGenerated: postsGenerated,
		topicsFound:    topicsFound,
		polls:          polls,
		chunksIndexed:  chunksIndexed,
	}, nil
}

func (p *pipelineMetrics) RecordStage(ctx context.Context, stage, status string, duration time.Duration) {
	p.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrStage, NormalizeReason(stage, AllowedStages)),
		attribute.String(AttrStatus, NormalizeReason(status, AllowedStatuses)),
	))
}

func (p *pipelineMetrics) RecordRun(ctx context.Context, status string) {
	p.runs.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStatus, NormalizeReason(status, AllowedStatuses))))
}

func (p *pipelineMetrics) RecordPostsGenerated(ctx context.Context, count int) {
	p.postsGenerated.Add(ctx, int64(count))
}

func (p *pipelineMetrics) RecordTopicsFound(ctx context.Context, count int) {
	p.topicsFound.Record(ctx, int64(count))
}

func (p *pipelineMetrics) RecordTranscriptionPolls(ctx context.Context, polls int) {
	p.polls.Record(ctx, int64(polls))
}

func (p *pipelineMetrics) RecordChunksIndexed(ctx context.Context, count int) {
	p.chunksIndexed.Add(ctx, int64(count))
}
