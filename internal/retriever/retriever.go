// Package retriever turns a query string into ranked, deduplicated
// context passages from the embedding index.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/craftwiki/wikibot/internal/index"
)

// ErrStaleIndex means the index was built with a different embedding
// model than the one answering queries; the vectors live in different
// spaces and the index must be rebuilt.
var ErrStaleIndex = errors.New("index built with a different embedding model")

// overfetchFactor asks the index for more candidates than requested so
// enough unique sources survive deduplication.
const overfetchFactor = 3

// Embedder is the slice of the embedding client the retriever needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelID() string
}

// Retriever embeds queries and searches the index.
type Retriever struct {
	embedder Embedder
	idx      index.Index

	mu      sync.Mutex
	checked bool // model check passed once; rebuilds use the same embedder
}

// New creates a Retriever over the given embedder and index. Both must
// use the same embedding model; the mismatch check runs on first
// retrieval, once the index has metadata to compare against.
func New(embedder Embedder, idx index.Index) *Retriever {
	return &Retriever{embedder: embedder, idx: idx}
}

// Retrieve returns up to k passages scoring at least minScore,
// descending by score, at most one chunk per source title (the
// highest-scoring one; ties keep original chunk order). An empty
// result is a valid outcome, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, minScore float64) ([]index.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	if err := r.checkModel(ctx); err != nil {
		return nil, err
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := r.idx.Search(ctx, vectors[0], k*overfetchFactor)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	// Candidates arrive ordered by descending score with stable
	// tie-breaks, so the first chunk seen per source is the one to
	// keep.
	seen := make(map[string]bool, len(candidates))
	results := make([]index.ScoredChunk, 0, k)
	for _, c := range candidates {
		if c.Score < minScore {
			continue
		}
		if seen[c.Chunk.SourceTitle] {
			continue
		}
		seen[c.Chunk.SourceTitle] = true
		results = append(results, c)
		if len(results) == k {
			break
		}
	}

	return results, nil
}

// checkModel compares the index's recorded embedding model against the
// live embedder. The check memoizes success; an empty index has no
// model recorded yet and passes until it is built.
func (r *Retriever) checkModel(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.checked {
		return nil
	}

	meta, err := r.idx.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read index metadata: %w", err)
	}
	if meta.EmbeddingModelID == "" {
		return nil // not built yet, nothing to compare
	}
	if meta.EmbeddingModelID != r.embedder.ModelID() {
		return fmt.Errorf("%w: index has %q, embedder has %q",
			ErrStaleIndex, meta.EmbeddingModelID, r.embedder.ModelID())
	}

	r.checked = true
	return nil
}
