package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, BackendQdrant, cfg.IndexBackend)
	assert.Equal(t, "localhost", cfg.QdrantHost)
	assert.Equal(t, 6334, cfg.QdrantPort)
	assert.Equal(t, "wiki_chunks", cfg.Collection)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	assert.Equal(t, 1536, cfg.EmbeddingDimension)
	assert.Equal(t, "phi3:mini", cfg.OllamaModel)
	assert.Equal(t, 180*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, "data/recipe_cache.db", cfg.CachePath)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 3, cfg.RetrieveK)
	assert.InDelta(t, 0.25, cfg.MinScore, 1e-9)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("INDEX_BACKEND", BackendMemory)
	t.Setenv("QDRANT_PORT", "7001")
	t.Setenv("MIN_SCORE", "0.4")
	t.Setenv("GENERATION_TIMEOUT", "30s")
	t.Setenv("BOT_NAME", "CraftHelper")

	cfg := Load()
	assert.Equal(t, BackendMemory, cfg.IndexBackend)
	assert.Equal(t, 7001, cfg.QdrantPort)
	assert.InDelta(t, 0.4, cfg.MinScore, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, "CraftHelper", cfg.BotName)
}

func TestLoad_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("QDRANT_PORT", "not-a-port")
	t.Setenv("MIN_SCORE", "plenty")
	t.Setenv("GENERATION_TIMEOUT", "soonish")

	cfg := Load()
	assert.Equal(t, 6334, cfg.QdrantPort)
	assert.InDelta(t, 0.25, cfg.MinScore, 1e-9)
	assert.Equal(t, 180*time.Second, cfg.GenerationTimeout)
}
