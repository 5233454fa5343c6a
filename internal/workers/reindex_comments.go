// Package workers provides the River job workers: comment reindexing and asynchronous audio analysis.
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
)

// ReindexTimeout bounds one reindex run (embedding every comment can take a while).
const ReindexTimeout = 30 * time.Minute

// commentIndexer is the part of the indexer the reindex worker needs.
type commentIndexer interface {
	PreprocessComments(ctx context.Context, collection string) (int, error)
}

// ReindexCommentsWorker rebuilds a vector collection from the comments table.
type ReindexCommentsWorker struct {
	river.WorkerDefaults[jobs.ReindexCommentsArgs]

	indexer           commentIndexer
	defaultCollection string
	metrics           observability.JobMetrics
}

// NewReindexCommentsWorker creates the worker. metrics may be nil when metrics are disabled.
// Failures are counted by jobs.ErrorHandler; the worker records successes.
func NewReindexCommentsWorker(indexer commentIndexer, defaultCollection string, metrics observability.JobMetrics) *ReindexCommentsWorker {
	return &ReindexCommentsWorker{indexer: indexer, defaultCollection: defaultCollection, metrics: metrics}
}

// Timeout limits how long a single reindex can run.
func (w *ReindexCommentsWorker) Timeout(*river.Job[jobs.ReindexCommentsArgs]) time.Duration {
	return ReindexTimeout
}

// Work replaces the collection with freshly embedded comments.
func (w *ReindexCommentsWorker) Work(ctx context.Context, job *river.Job[jobs.ReindexCommentsArgs]) error {
	ctx = observability.WithJobID(ctx, job.ID)

	collection := job.Args.Collection
	if collection == "" {
		collection = w.defaultCollection
	}

	start := time.Now()

	n, err := w.indexer.PreprocessComments(ctx, collection)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			return river.JobCancel(fmt.Errorf("reindex %s: %w", collection, err))
		}

		return fmt.Errorf("reindex %s: %w", collection, err)
	}

	w.record(ctx, job.Kind, "success")

	slog.InfoContext(ctx, "Comments reindexed",
		"collection", collection,
		"chunks", n,
		"duration", time.Since(start),
	)

	return nil
}

func (w *ReindexCommentsWorker) record(ctx context.Context, kind, status string) {
	if w.metrics != nil {
		w.metrics.RecordOutcome(ctx, kind, status)
	}
}
