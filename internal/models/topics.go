package models

// OutlierTopicID marks documents that did not fall into any dense cluster.
const OutlierTopicID = -1

// Topic is a transient cluster of utterances found by the topic pipeline.
type Topic struct {
	ID                 int       `json:"id"`
	Label              string    `json:"label"`
	Keywords           []string  `json:"keywords"`
	RepresentativeDocs []string  `json:"representative_docs"`
	Size               int       `json:"size"`
	Centroid           []float64 `json:"-"`
}

// TopicSummary is the LLM output for one topic.
type TopicSummary struct {
	TopicID int    `json:"topic_id"`
	Label   string `json:"label"`
	Summary string `json:"summary"`
}

// DraftPost is an LLM-written post before image generation and persistence.
type DraftPost struct {
	TopicID int    `json:"topic_id"`
	Label   string `json:"label"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}
