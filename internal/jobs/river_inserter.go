package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// RiverJobInserter implements JobInserter using the River client.
type RiverJobInserter struct {
	client      *river.Client[pgx.Tx]
	maxAttempts int
}

// NewRiverJobInserter creates a River-based job inserter. maxAttempts <= 0 keeps River's default.
func NewRiverJobInserter(client *river.Client[pgx.Tx], maxAttempts int) *RiverJobInserter {
	return &RiverJobInserter{client: client, maxAttempts: maxAttempts}
}

// InsertReindexComments enqueues a reindex, deduplicated by collection.
func (r *RiverJobInserter) InsertReindexComments(ctx context.Context, args ReindexCommentsArgs) (int64, error) {
	return r.insert(ctx, args, &river.InsertOpts{
		MaxAttempts: r.maxAttempts,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
			// JobStatePending is required by River when using ByState.
			ByState: []rivertype.JobState{
				rivertype.JobStatePending,
				rivertype.JobStateAvailable,
				rivertype.JobStateRunning,
				rivertype.JobStateRetryable,
				rivertype.JobStateScheduled,
			},
		},
	})
}

// InsertAnalyzeURL enqueues an analysis. Every call creates a new job.
func (r *RiverJobInserter) InsertAnalyzeURL(ctx context.Context, args AnalyzeURLArgs) (int64, error) {
	return r.insert(ctx, args, &river.InsertOpts{MaxAttempts: r.maxAttempts})
}

func (r *RiverJobInserter) insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (int64, error) {
	res, err := r.client.Insert(ctx, args, opts)
	if err != nil {
		return 0, fmt.Errorf("insert %s job: %w", args.Kind(), err)
	}

	return res.Job.ID, nil
}
