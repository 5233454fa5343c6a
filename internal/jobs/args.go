// Package jobs defines the River job arguments and the queue-facing helpers shared by the API and workers.
package jobs

// ReindexCommentsArgs rebuilds a vector collection from the comments table.
type ReindexCommentsArgs struct {
	// Collection is the vector collection to replace. Empty means the configured default.
	Collection string `json:"collection,omitempty"`
}

// Kind returns the job type identifier for River.
func (ReindexCommentsArgs) Kind() string { return "reindex_comments" }

// AnalyzeURLArgs runs transcription and the topic pipeline for a hosted audio file.
type AnalyzeURLArgs struct {
	AudioURL string `json:"audio_url"`
	// RequestID is the X-Request-ID of the request that enqueued the job, for log correlation.
	RequestID string `json:"request_id,omitempty"`
}

// Kind returns the job type identifier for River.
func (AnalyzeURLArgs) Kind() string { return "analyze_url" }
