package jobs

import (
	"context"
)

// JobInserter enqueues background jobs without exposing River to callers.
type JobInserter interface {
	// InsertReindexComments enqueues a comment reindex and returns the job ID.
	// A reindex of the same collection that is already queued or running is reused.
	InsertReindexComments(ctx context.Context, args ReindexCommentsArgs) (int64, error)
	// InsertAnalyzeURL enqueues an analysis of a hosted audio file and returns the job ID.
	InsertAnalyzeURL(ctx context.Context, args AnalyzeURLArgs) (int64, error)
}
