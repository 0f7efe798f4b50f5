// Package config reads engine configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Index backend selectors.
const (
	BackendQdrant = "qdrant"
	BackendMemory = "memory"
)

// Config carries every knob the CLI needs to assemble an engine.
type Config struct {
	IndexBackend string
	QdrantHost   string
	QdrantPort   int
	Collection   string

	EmbeddingModel     string
	EmbeddingDimension int

	OllamaURL         string
	OllamaModel       string
	GenerationTimeout time.Duration

	CachePath string
	BotName   string

	PromptTemplateFile string

	ChunkSize    int
	ChunkOverlap int

	RetrieveK       int
	MinScore        float64
	MaxContextChars int
	MaxTokens       int
	Temperature     float64
}

// Load reads configuration from environment variables, applying
// defaults for anything unset.
func Load() Config {
	return Config{
		IndexBackend: getEnv("INDEX_BACKEND", BackendQdrant),
		QdrantHost:   getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:   getEnvInt("QDRANT_PORT", 6334),
		Collection:   getEnv("QDRANT_COLLECTION", "wiki_chunks"),

		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 1536),

		OllamaURL:         getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:       getEnv("OLLAMA_MODEL", "phi3:mini"),
		GenerationTimeout: getEnvDuration("GENERATION_TIMEOUT", 180*time.Second),

		CachePath: getEnv("CACHE_PATH", "data/recipe_cache.db"),
		BotName:   getEnv("BOT_NAME", "WikiBot"),

		PromptTemplateFile: getEnv("PROMPT_TEMPLATE_FILE", ""),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 500),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 50),

		RetrieveK:       getEnvInt("RETRIEVE_K", 3),
		MinScore:        getEnvFloat("MIN_SCORE", 0.25),
		MaxContextChars: getEnvInt("MAX_CONTEXT_CHARS", 2000),
		MaxTokens:       getEnvInt("MAX_TOKENS", 300),
		Temperature:     getEnvFloat("TEMPERATURE", 0.3),
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
