package workers

import (
	"context"
	"errors"
	"testing"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdt-zeiss/prototype-ai/internal/apperrors"
	"github.com/sdt-zeiss/prototype-ai/internal/jobs"
	"github.com/sdt-zeiss/prototype-ai/internal/models"
	"github.com/sdt-zeiss/prototype-ai/internal/topics"
)

type recordedOutcome struct {
	kind, status string
}

type fakeJobMetrics struct {
	outcomes []recordedOutcome
}

func (f *fakeJobMetrics) RecordOutcome(_ context.Context, kind, status string) {
	f.outcomes = append(f.outcomes, recordedOutcome{kind, status})
}

func (f *fakeJobMetrics) SetRiverQueueDepth(int) {}

type fakeIndexer struct {
	collection string
	n          int
	err        error
}

func (f *fakeIndexer) PreprocessComments(_ context.Context, collection string) (int, error) {
	f.collection = collection

	return f.n, f.err
}

func reindexJob(args jobs.ReindexCommentsArgs) *river.Job[jobs.ReindexCommentsArgs] {
	return &river.Job[jobs.ReindexCommentsArgs]{
		JobRow: &rivertype.JobRow{ID: 7, Kind: args.Kind(), Attempt: 1, MaxAttempts: 3},
		Args:   args,
	}
}

func TestReindexCommentsWorker_Work(t *testing.T) {
	t.Run("uses default collection", func(t *testing.T) {
		indexer := &fakeIndexer{n: 12}
		metrics := &fakeJobMetrics{}
		worker := NewReindexCommentsWorker(indexer, "comments", metrics)

		require.NoError(t, worker.Work(t.Context(), reindexJob(jobs.ReindexCommentsArgs{})))
		assert.Equal(t, "comments", indexer.collection)
		assert.Equal(t, []recordedOutcome{{"reindex_comments", "success"}}, metrics.outcomes)
	})

	t.Run("explicit collection", func(t *testing.T) {
		indexer := &fakeIndexer{}
		worker := NewReindexCommentsWorker(indexer, "comments", nil)

		require.NoError(t, worker.Work(t.Context(), reindexJob(jobs.ReindexCommentsArgs{Collection: "staging"})))
		assert.Equal(t, "staging", indexer.collection)
	})

	t.Run("upstream failure is retried", func(t *testing.T) {
		upstream := apperrors.NewUpstreamError("openai", "embed", errors.New("503"))
		metrics := &fakeJobMetrics{}
		worker := NewReindexCommentsWorker(&fakeIndexer{err: upstream}, "comments", metrics)

		err := worker.Work(t.Context(), reindexJob(jobs.ReindexCommentsArgs{}))
		require.ErrorIs(t, err, apperrors.ErrUpstream)
		assert.Empty(t, metrics.outcomes)
	})

	t.Run("validation failure is cancelled", func(t *testing.T) {
		metrics := &fakeJobMetrics{}
		worker := NewReindexCommentsWorker(&fakeIndexer{err: apperrors.NewValidationError("collection", "invalid")}, "c", metrics)

		err := worker.Work(t.Context(), reindexJob(jobs.ReindexCommentsArgs{}))
		require.ErrorIs(t, err, apperrors.ErrValidation)

		var cancelled *rivertype.JobCancelError
		assert.ErrorAs(t, err, &cancelled)
		assert.Empty(t, metrics.outcomes)
	})
}

type fakeAnalyzer struct {
	result *topics.Result
	err    error
	gotURL string
}

func (f *fakeAnalyzer) AnalyzeURL(_ context.Context, audioURL string) (*topics.Result, error) {
	f.gotURL = audioURL

	return f.result, f.err
}

func analyzeJob(url string) *river.Job[jobs.AnalyzeURLArgs] {
	args := jobs.AnalyzeURLArgs{AudioURL: url, RequestID: "req-1"}

	return &river.Job[jobs.AnalyzeURLArgs]{
		JobRow: &rivertype.JobRow{ID: 9, Kind: args.Kind(), Attempt: 1, MaxAttempts: 3},
		Args:   args,
	}
}

func TestAnalyzeURLWorker_Work(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		analyzer := &fakeAnalyzer{result: &topics.Result{Posts: []models.Post{{Title: "A"}}}}
		metrics := &fakeJobMetrics{}

		err := NewAnalyzeURLWorker(analyzer, metrics).Work(t.Context(), analyzeJob("https://audio.example/a.mp3"))
		require.NoError(t, err)

		assert.Equal(t, "https://audio.example/a.mp3", analyzer.gotURL)
		assert.Equal(t, []recordedOutcome{{"analyze_url", "success"}}, metrics.outcomes)
	})

	t.Run("transcription timeout is retried", func(t *testing.T) {
		analyzer := &fakeAnalyzer{err: apperrors.NewTimeoutError("transcription poll", "too slow")}

		err := NewAnalyzeURLWorker(analyzer, nil).Work(t.Context(), analyzeJob("u"))
		require.ErrorIs(t, err, apperrors.ErrTimeout)

		var cancelled *rivertype.JobCancelError
		assert.False(t, errors.As(err, &cancelled))
	})

	t.Run("malformed output is cancelled", func(t *testing.T) {
		analyzer := &fakeAnalyzer{err: apperrors.NewMalformedOutputError("bad json", "{")}
		metrics := &fakeJobMetrics{}

		err := NewAnalyzeURLWorker(analyzer, metrics).Work(t.Context(), analyzeJob("u"))
		require.ErrorIs(t, err, apperrors.ErrMalformedOutput)

		var cancelled *rivertype.JobCancelError
		assert.ErrorAs(t, err, &cancelled)
		assert.Empty(t, metrics.outcomes)
	})
}
