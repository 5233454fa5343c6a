package models

import "time"

// Utterance is one diarized speech segment, kept in vendor order.
// Timestamp is the start offset coerced to a datetime (Unix epoch plus Start seconds, UTC).
type Utterance struct {
	Text      string    `json:"text"`
	Speaker   int       `json:"speaker"`
	Timestamp time.Time `json:"timestamp"`
	Start     float64   `json:"start"`
	End       float64   `json:"end"`
}

// UtterancesToDocuments converts utterances into indexer rows; speaker and offsets go to metadata.
func UtterancesToDocuments(utterances []Utterance) []Document {
	docs := make([]Document, 0, len(utterances))
	for _, u := range utterances {
		docs = append(docs, Document{
			PageContent: u.Text,
			Metadata: map[string]any{
				"speaker":   u.Speaker,
				"timestamp": u.Timestamp.Format(time.RFC3339Nano),
				"start":     u.Start,
			},
		})
	}

	return docs
}
