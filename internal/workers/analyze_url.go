package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/sdt-zeiss/prototype-ai/internal/apperrors"
	"github.com/sdt-zeiss/prototype-ai/internal/jobs"
	"github.com/sdt-zeiss/prototype-ai/internal/observability"
	"github.com/sdt-zeiss/prototype-ai/internal/topics"
)

// AnalyzeTimeout bounds one analysis: transcription polling plus the topic pipeline.
const AnalyzeTimeout = 45 * time.Minute

// URLAnalyzer transcribes hosted audio and generates posts from it.
type URLAnalyzer interface {
	AnalyzeURL(ctx context.Context, audioURL string) (*topics.Result, error)
}

// AnalyzeURLWorker runs an analysis of a hosted audio file.
type AnalyzeURLWorker struct {
	river.WorkerDefaults[jobs.AnalyzeURLArgs]

	analyzer URLAnalyzer
	metrics  observability.JobMetrics
}

// NewAnalyzeURLWorker creates the worker. metrics may be nil when metrics are disabled.
func NewAnalyzeURLWorker(analyzer URLAnalyzer, metrics observability.JobMetrics) *AnalyzeURLWorker {
	return &AnalyzeURLWorker{analyzer: analyzer, metrics: metrics}
}

// Timeout limits how long a single analysis can run.
func (w *AnalyzeURLWorker) Timeout(*river.Job[jobs.AnalyzeURLArgs]) time.Duration {
	return AnalyzeTimeout
}

// Work runs the analysis. Vendor and timeout failures are retried; bad input and malformed
// output are not.
func (w *AnalyzeURLWorker) Work(ctx context.Context, job *river.Job[jobs.AnalyzeURLArgs]) error {
	ctx = observability.WithJobID(ctx, job.ID)
	if job.Args.RequestID != "" {
		ctx = context.WithValue(ctx, observability.RequestIDKey, job.Args.RequestID)
	}

	start := time.Now()

	result, err := w.analyzer.AnalyzeURL(ctx, job.Args.AudioURL)
	if err != nil {
		return w.fail(ctx, job, fmt.Errorf("analyze %s: %w", job.Args.AudioURL, err))
	}

	w.record(ctx, job.Kind, "success")

	slog.InfoContext(ctx, "Audio analyzed",
		"topics", len(result.Topics),
		"posts", len(result.Posts),
		"duration", time.Since(start),
	)

	return nil
}

func (w *AnalyzeURLWorker) fail(ctx context.Context, job *river.Job[jobs.AnalyzeURLArgs], err error) error {
	if errors.Is(err, apperrors.ErrValidation) || errors.Is(err, apperrors.ErrMalformedOutput) {
		slog.ErrorContext(ctx, "analysis failed permanently", "audio_url", job.Args.AudioURL, "error", err)

		return river.JobCancel(err)
	}

	return err
}

func (w *AnalyzeURLWorker) record(ctx context.Context, kind, status string) {
	if w.metrics != nil {
		w.metrics.RecordOutcome(ctx, kind, status)
	}
}
