package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/sdt-zeiss/prototype-ai/internal/observability"
)

// ErrorHandler logs job errors and panics and counts them on the job metrics.
type ErrorHandler struct {
	Metrics observability.JobMetrics
}

// HandleError is called when a job returns an error. Cancelled jobs and last attempts count as failed_final.
func (h *ErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	var cancelled *rivertype.JobCancelError

	status := "retry"
	if job.Attempt >= job.MaxAttempts || errors.As(err, &cancelled) {
		status = "failed_final"
	}

	slog.ErrorContext(ctx, "job failed",
		"job_kind", job.Kind,
		"job_id", job.ID,
		"attempt", job.Attempt,
		"max_attempts", job.MaxAttempts,
		"error", err,
	)

	if h.Metrics != nil {
		h.Metrics.RecordOutcome(ctx, job.Kind, status)
	}

	return nil
}

// HandlePanic is called when a job panics.
func (h *ErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	slog.ErrorContext(ctx, "job panicked",
		"job_kind", job.Kind,
		"job_id", job.ID,
		"attempt", job.Attempt,
		"panic_value", panicVal,
		"stack_trace", trace,
	)

	if h.Metrics != nil {
		h.Metrics.RecordOutcome(ctx, job.Kind, "error")
	}

	return nil
}
