package models

// Document is one source row handed to the indexer: page content plus free-form metadata.
type Document struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Chunk is a slice of a Document produced by the splitter. StartIndex is the character
// offset of the chunk inside the source document's PageContent.
type Chunk struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	StartIndex  int            `json:"start_index"`
}

// EmbeddedChunk is a chunk together with its embedding, ready for the vector store.
type EmbeddedChunk struct {
	Chunk
	Embedding []float32 `json:"-"`
}

// ScoredChunk is a stored chunk returned by a similarity search.
// Score is 1 - cosine distance (higher is more similar).
type ScoredChunk struct {
	ID          string         `json:"id"`
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Score       float64        `json:"score"`
}

// Comment is one row of the externally owned comments table.
type Comment struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}
