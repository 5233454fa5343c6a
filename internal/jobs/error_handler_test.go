package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
)

type countingMetrics struct {
	statuses []string
}

func (c *countingMetrics) RecordOutcome(_ context.Context, _, status string) {
	c.statuses = append(c.statuses, status)
}

func (c *countingMetrics) SetRiverQueueDepth(int) {}

func TestErrorHandler_StatusByAttempt(t *testing.T) {
	metrics := &countingMetrics{}
	h := &ErrorHandler{Metrics: metrics}

	assert.Nil(t, h.HandleError(t.Context(), &rivertype.JobRow{Kind: "analyze_url", Attempt: 1, MaxAttempts: 3}, errors.New("boom")))
	assert.Nil(t, h.HandleError(t.Context(), &rivertype.JobRow{Kind: "analyze_url", Attempt: 3, MaxAttempts: 3}, errors.New("boom")))
	assert.Nil(t, h.HandlePanic(t.Context(), &rivertype.JobRow{Kind: "analyze_url"}, "nil map", "trace"))

	assert.Nil(t, h.HandleError(t.Context(), &rivertype.JobRow{Kind: "analyze_url", Attempt: 1, MaxAttempts: 3}, river.JobCancel(errors.New("bad input"))))

	assert.Equal(t, []string{"retry", "failed_final", "error", "failed_final"}, metrics.statuses)
}

func TestErrorHandler_NilMetrics(t *testing.T) {
	h := &ErrorHandler{}

	assert.NotPanics(t, func() {
		h.HandleError(t.Context(), &rivertype.JobRow{}, errors.New("boom"))
	})
}

func TestArgsKinds(t *testing.T) {
	assert.Equal(t, "reindex_comments", ReindexCommentsArgs{}.Kind())
	assert.Equal(t, "analyze_url", AnalyzeURLArgs{}.Kind())
}
