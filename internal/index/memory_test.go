package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkWithVector(id string, v ...float32) Chunk {
	return Chunk{
		ID:          id,
		SourceTitle: "Title " + id,
		SourceURL:   "https://wiki.example/" + id,
		Text:        "text for " + id,
		Embedding:   v,
	}
}

func TestMemoryUpsert_RejectsBadEmbeddings(t *testing.T) {
	m := NewMemory(3, "test-model")
	ctx := context.Background()

	err := m.Upsert(ctx, []Chunk{{ID: "a", Text: "no vector"}})
	assert.ErrorIs(t, err, ErrMissingEmbedding)

	err = m.Upsert(ctx, []Chunk{chunkWithVector("a", 1, 0)})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	// rejected batches leave the index untouched
	meta, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, meta.TotalChunks)
}

func TestMemorySearch_DimensionMismatch(t *testing.T) {
	m := NewMemory(3, "test-model")

	_, err := m.Search(context.Background(), []float32{1, 0}, 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemorySearch_Empty(t *testing.T) {
	m := NewMemory(3, "test-model")

	results, err := m.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemorySearch_OrdersByScore(t *testing.T) {
	m := NewMemory(3, "test-model")
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, []Chunk{
		chunkWithVector("far", 0, 1, 0),
		chunkWithVector("near", 1, 0, 0),
		chunkWithVector("mid", 1, 1, 0),
	}))

	results, err := m.Search(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "near", results[0].ID)
	assert.Equal(t, "mid", results[1].ID)
	assert.Equal(t, "far", results[2].ID)

	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 0.7071, results[1].Score, 1e-4)
	assert.InDelta(t, 0.0, results[2].Score, 1e-9)

	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestMemorySearch_StableTies(t *testing.T) {
	m := NewMemory(2, "test-model")
	ctx := context.Background()

	// identical vectors, inserted in a known order
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Upsert(ctx, []Chunk{
			chunkWithVector(fmt.Sprintf("c%d", i), 1, 1),
		}))
	}

	results, err := m.Search(ctx, []float32{1, 1}, 5)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("c%d", i), r.ID)
	}
}

func TestMemorySearch_LimitsToK(t *testing.T) {
	m := NewMemory(2, "test-model")
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, []Chunk{
		chunkWithVector("a", 1, 0),
		chunkWithVector("b", 0, 1),
		chunkWithVector("c", 1, 1),
	}))

	results, err := m.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = m.Search(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryUpsert_ReplacesByID(t *testing.T) {
	m := NewMemory(2, "test-model")
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, []Chunk{chunkWithVector("a", 1, 0)}))
	updated := chunkWithVector("a", 0, 1)
	updated.Text = "rewritten"
	require.NoError(t, m.Upsert(ctx, []Chunk{updated}))

	meta, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, meta.TotalChunks)

	results, err := m.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "rewritten", results[0].Text)
}

func TestMemoryReset(t *testing.T) {
	m := NewMemory(2, "test-model")
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, []Chunk{chunkWithVector("a", 1, 0)}))
	require.NoError(t, m.Reset(ctx))

	meta, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, meta.TotalChunks)

	results, err := m.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStats_ModelIDOnlyWhenPopulated(t *testing.T) {
	m := NewMemory(2, "test-model")
	ctx := context.Background()

	meta, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Empty(t, meta.EmbeddingModelID)
	assert.True(t, meta.BuiltAt.IsZero())

	require.NoError(t, m.Upsert(ctx, []Chunk{chunkWithVector("a", 1, 0)}))

	meta, err = m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test-model", meta.EmbeddingModelID)
	assert.Equal(t, 1, meta.TotalChunks)
	assert.False(t, meta.BuiltAt.IsZero())
}
