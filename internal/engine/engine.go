// Package engine wires the cache, retriever, prompt assembler and
// generation client into the single answer entry point the chat front
// end calls, plus the administrative ingest and maintenance
// operations.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/craftwiki/wikibot/internal/cache"
	"github.com/craftwiki/wikibot/internal/chunker"
	"github.com/craftwiki/wikibot/internal/generate"
	"github.com/craftwiki/wikibot/internal/index"
	"github.com/craftwiki/wikibot/internal/prompt"
	"github.com/craftwiki/wikibot/internal/retriever"
)

// NoInformationText is returned when no indexed passage clears the
// similarity threshold. It is never cached.
const NoInformationText = "I couldn't find any relevant information in my knowledge base."

// Config tunes retrieval and generation. Zero fields take defaults.
type Config struct {
	RetrieveK       int     // passages per query (default 3)
	MinScore        float64 // similarity threshold in [0,1] (default 0.25)
	MaxContextChars int     // prompt context budget (default 2000)
	MaxTokens       int     // generation length cap (default 300)
	Temperature     float64 // generation temperature (default 0.3)
}

func (c Config) withDefaults() Config {
	if c.RetrieveK <= 0 {
		c.RetrieveK = 3
	}
	if c.MinScore <= 0 {
		c.MinScore = 0.25
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = 2000
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 300
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.3
	}
	return c
}

// Result is the answer to one query.
type Result struct {
	AnswerText string
	Sources    []cache.Source
	FromCache  bool
	NoMatch    bool // nothing relevant was found; AnswerText is the fallback
}

// Engine owns the full query path and the ingestion pipeline. All
// collaborators are injected so the core logic is testable with fakes.
type Engine struct {
	chunks    *chunker.Chunker
	embedder  retriever.Embedder
	idx       index.Index
	retriever *retriever.Retriever
	assembler *prompt.Assembler
	generator generate.Generator
	cache     *cache.Cache
	cfg       Config
	logger    *slog.Logger
}

// New assembles an Engine from its parts.
func New(
	chunks *chunker.Chunker,
	embedder retriever.Embedder,
	idx index.Index,
	assembler *prompt.Assembler,
	generator generate.Generator,
	responses *cache.Cache,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		chunks:    chunks,
		embedder:  embedder,
		idx:       idx,
		retriever: retriever.New(embedder, idx),
		assembler: assembler,
		generator: generator,
		cache:     responses,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Answer resolves one user query: cache lookup, then on a miss
// retrieval, prompt assembly, generation, and a cache store. Query
// failures surface as typed errors (retriever.ErrStaleIndex,
// generate.ErrTimeout, ...) and never pollute the cache.
func (e *Engine) Answer(ctx context.Context, rawQuery string) (*Result, error) {
	entry, err := e.cache.Lookup(ctx, rawQuery)
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	if entry != nil {
		e.logger.Debug("cache hit", "key", entry.NormalizedKey, "hits", entry.HitCount)
		return &Result{
			AnswerText: entry.AnswerText,
			Sources:    entry.Sources,
			FromCache:  true,
		}, nil
	}

	results, err := e.retriever.Retrieve(ctx, rawQuery, e.cfg.RetrieveK, e.cfg.MinScore)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		e.logger.Info("no passages above threshold", "query", rawQuery)
		return &Result{AnswerText: NoInformationText, NoMatch: true}, nil
	}

	promptText := e.assembler.Assemble(rawQuery, results, e.cfg.MaxContextChars)

	answer, err := e.generator.Generate(ctx, promptText, generate.Options{
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		return nil, err
	}
	answer = strings.TrimSpace(answer)

	sources := make([]cache.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, cache.Source{
			Title: r.Chunk.SourceTitle,
			URL:   r.Chunk.SourceURL,
		})
	}

	// A store failure costs a future cache hit, not this answer.
	if err := e.cache.Store(ctx, rawQuery, answer, sources); err != nil {
		e.logger.Warn("failed to cache answer", "error", err)
	}

	return &Result{AnswerText: answer, Sources: sources}, nil
}

// IndexStats reports the embedding index metadata.
func (e *Engine) IndexStats(ctx context.Context) (index.Metadata, error) {
	return e.idx.Stats(ctx)
}

// TopQueries returns the n most-asked cached queries.
func (e *Engine) TopQueries(ctx context.Context, n int) ([]cache.Entry, error) {
	return e.cache.TopQueries(ctx, n)
}

// ClearCache destroys all cached answers.
func (e *Engine) ClearCache(ctx context.Context) error {
	return e.cache.Clear(ctx)
}

// CacheStats reports cache entry and hit totals.
func (e *Engine) CacheStats(ctx context.Context) (cache.Stats, error) {
	return e.cache.CacheStats(ctx)
}
