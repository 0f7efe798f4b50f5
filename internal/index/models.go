package index

import "time"

// Chunk is a bounded span of source text stored with its embedding.
// Chunks are immutable once written; re-ingesting the same document
// produces the same ids, so an upsert overwrites in place.
type Chunk struct {
	ID          string // deterministic UUID derived from (SourceTitle, ChunkIndex)
	SourceTitle string // wiki page title, e.g. "Torch"
	SourceURL   string
	ChunkIndex  int // position within the source document (0, 1, 2...)
	Text        string
	Embedding   []float32
}

// ScoredChunk pairs a chunk with its similarity to a query embedding.
// Score is cosine similarity clamped to [0,1]; higher is more relevant.
type ScoredChunk struct {
	Chunk
	Score float64
}

// Metadata describes one index instance. EmbeddingModelID records the
// model the index was built with so a model change can be detected
// before serving mismatched vectors.
type Metadata struct {
	TotalChunks      int
	EmbeddingModelID string
	BuiltAt          time.Time
}
