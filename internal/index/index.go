// Package index stores chunks with their embeddings and serves
// k-nearest-neighbor similarity search over them.
package index

import "context"

// Index is the persistence contract shared by the Qdrant and in-memory
// backends. Implementations must only ever insert or replace complete
// chunk records, so a concurrent Search never observes a partially
// written chunk.
type Index interface {
	// Upsert writes chunks, overwriting any existing record with the
	// same id. Every chunk must already carry an embedding; a chunk
	// without one is rejected with ErrMissingEmbedding before anything
	// is written.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Search returns the k nearest chunks by cosine similarity,
	// ordered by descending score. Searching an empty index returns an
	// empty slice, not an error.
	Search(ctx context.Context, embedding []float32, k int) ([]ScoredChunk, error)

	// Reset destroys all persisted chunks and metadata.
	Reset(ctx context.Context) error

	// Stats reports the current index metadata.
	Stats(ctx context.Context) (Metadata, error)

	Close() error
}
