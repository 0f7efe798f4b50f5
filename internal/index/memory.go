package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Index using brute-force cosine similarity.
// It holds the whole corpus in RAM and is intended for tests and small
// corpora; Qdrant is the persistent production backend.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	modelID   string
	order     []string // insertion order of ids, for stable tie-breaks
	chunks    map[string]Chunk
	builtAt   time.Time
}

// NewMemory creates an empty in-memory index for vectors of the given
// dimension, produced by the given embedding model.
func NewMemory(dimension int, modelID string) *Memory {
	return &Memory{
		dimension: dimension,
		modelID:   modelID,
		chunks:    make(map[string]Chunk),
	}
}

func (m *Memory) Upsert(ctx context.Context, chunks []Chunk) error {
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %d (%s)", ErrMissingEmbedding, i, c.ID)
		}
		if len(c.Embedding) != m.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(c.Embedding), m.dimension)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		if _, exists := m.chunks[c.ID]; !exists {
			m.order = append(m.order, c.ID)
		}
		m.chunks[c.ID] = c
	}
	m.builtAt = time.Now()
	return nil
}

func (m *Memory) Search(ctx context.Context, embedding []float32, k int) ([]ScoredChunk, error) {
	if len(embedding) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(embedding), m.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]ScoredChunk, 0, len(m.order))
	for _, id := range m.order {
		c := m.chunks[id]
		results = append(results, ScoredChunk{Chunk: c, Score: cosineScore(embedding, c.Embedding)})
	}

	// Stable sort keeps insertion order for equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = nil
	m.chunks = make(map[string]Chunk)
	m.builtAt = time.Time{}
	return nil
}

func (m *Memory) Stats(ctx context.Context) (Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta := Metadata{TotalChunks: len(m.chunks), BuiltAt: m.builtAt}
	if len(m.chunks) > 0 {
		meta.EmbeddingModelID = m.modelID
	}
	return meta, nil
}

func (m *Memory) Close() error { return nil }

// cosineScore maps cosine similarity onto [0,1]; anti-correlated
// vectors floor at 0 rather than going negative.
func cosineScore(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}
