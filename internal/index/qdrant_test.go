//go:build integration

package index

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQdrant_Integration(t *testing.T) {
	if os.Getenv("QDRANT_HOST") == "" {
		t.Skip("QDRANT_HOST not set, skipping integration test")
	}

	idx, err := NewQdrant(os.Getenv("QDRANT_HOST"), 6334, "wiki_chunks_test", 4, "test-model")
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Reset(ctx))

	chunks := []Chunk{
		{
			ID:          "11111111-1111-1111-1111-111111111111",
			SourceTitle: "Torch",
			SourceURL:   "https://wiki.example/Torch",
			ChunkIndex:  0,
			Text:        "Torches are made from coal and sticks.",
			Embedding:   []float32{1, 0, 0, 0},
		},
		{
			ID:          "22222222-2222-2222-2222-222222222222",
			SourceTitle: "Iron Sword",
			SourceURL:   "https://wiki.example/Iron_Sword",
			ChunkIndex:  0,
			Text:        "Swords are made from ingots and sticks.",
			Embedding:   []float32{0, 1, 0, 0},
		},
	}
	require.NoError(t, idx.Upsert(ctx, chunks))

	meta, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.TotalChunks)
	assert.Equal(t, "test-model", meta.EmbeddingModelID)
	assert.False(t, meta.BuiltAt.IsZero())

	results, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Torch", results[0].SourceTitle)
	assert.Equal(t, "Torches are made from coal and sticks.", results[0].Text)
	assert.Greater(t, results[0].Score, results[1].Score)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}

	// upserting the same ids must not grow the collection
	require.NoError(t, idx.Upsert(ctx, chunks))
	meta, err = idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.TotalChunks)

	require.NoError(t, idx.Reset(ctx))
	meta, err = idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, meta.TotalChunks)
}
