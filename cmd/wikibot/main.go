// Package main provides the wikibot CLI for managing the wiki
// knowledge index and answering questions against it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/craftwiki/wikibot/internal/cache"
	"github.com/craftwiki/wikibot/internal/chunker"
	"github.com/craftwiki/wikibot/internal/config"
	"github.com/craftwiki/wikibot/internal/embedding"
	"github.com/craftwiki/wikibot/internal/engine"
	"github.com/craftwiki/wikibot/internal/generate"
	"github.com/craftwiki/wikibot/internal/index"
	"github.com/craftwiki/wikibot/internal/prompt"
	"github.com/craftwiki/wikibot/internal/retriever"
)

var rootCmd = &cobra.Command{
	Use:   "wikibot",
	Short: "Wiki knowledge retrieval and response cache engine",
	Long:  "CLI for ingesting wiki documents, answering questions against them, and maintaining the response cache",
}

var (
	ingestFile    string
	ingestNoReset bool
	topN          int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index wiki documents from a JSON file",
	Long: `Reads a JSON array of {title, url, text} documents, chunks and
embeds them, and writes them to the vector index. By default the index
is reset first; --no-reset upserts incrementally instead (chunk ids
are deterministic, so unchanged documents overwrite in place).

Environment variables:
  QDRANT_HOST       Qdrant hostname (default: localhost)
  QDRANT_PORT       Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY    OpenAI API key for embeddings (required)
  INDEX_BACKEND     qdrant or memory (default: qdrant)`,
	RunE: runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question using the indexed corpus",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index and cache statistics",
	RunE:  runStats,
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Show the most frequently asked cached queries",
	RunE:  runTop,
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Delete all cached answers",
	RunE:  runClearCache,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "wiki_docs.json", "JSON file with documents to index")
	ingestCmd.Flags().BoolVar(&ingestNoReset, "no-reset", false, "upsert without resetting the index first")
	topCmd.Flags().IntVarP(&topN, "count", "n", 10, "number of queries to show")

	rootCmd.AddCommand(ingestCmd, askCmd, statsCmd, topCmd, clearCacheCmd)
}

func main() {
	// Load .env if present (local development), ignore if missing.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildEngine assembles the engine and returns a close function for
// its resources.
func buildEngine(cfg config.Config) (*engine.Engine, func(), error) {
	client, err := embedding.NewClient()
	if err != nil {
		return nil, nil, fmt.Errorf("create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(client, cfg.EmbeddingModel, 0)

	idx, err := buildIndex(cfg, embedder)
	if err != nil {
		return nil, nil, err
	}

	template := ""
	if cfg.PromptTemplateFile != "" {
		data, err := os.ReadFile(cfg.PromptTemplateFile)
		if err != nil {
			idx.Close()
			return nil, nil, fmt.Errorf("read prompt template: %w", err)
		}
		template = string(data)
	}
	assembler, err := prompt.NewAssembler(template)
	if err != nil {
		idx.Close()
		return nil, nil, err
	}

	generator := generate.NewOllama(generate.OllamaConfig{
		BaseURL: cfg.OllamaURL,
		Model:   cfg.OllamaModel,
		Timeout: cfg.GenerationTimeout,
	})

	responses, err := cache.New(cfg.CachePath, cfg.BotName)
	if err != nil {
		idx.Close()
		return nil, nil, fmt.Errorf("open response cache: %w", err)
	}

	eng := engine.New(
		chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		idx,
		assembler,
		generator,
		responses,
		engine.Config{
			RetrieveK:       cfg.RetrieveK,
			MinScore:        cfg.MinScore,
			MaxContextChars: cfg.MaxContextChars,
			MaxTokens:       cfg.MaxTokens,
			Temperature:     cfg.Temperature,
		},
		slog.Default(),
	)

	closeAll := func() {
		responses.Close()
		idx.Close()
	}
	return eng, closeAll, nil
}

func buildIndex(cfg config.Config, embedder retriever.Embedder) (index.Index, error) {
	switch cfg.IndexBackend {
	case config.BackendMemory:
		return index.NewMemory(cfg.EmbeddingDimension, embedder.ModelID()), nil
	case config.BackendQdrant:
		idx, err := index.NewQdrant(cfg.QdrantHost, cfg.QdrantPort, cfg.Collection,
			cfg.EmbeddingDimension, embedder.ModelID())
		if err != nil {
			return nil, fmt.Errorf("connect to Qdrant: %w", err)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	data, err := os.ReadFile(ingestFile)
	if err != nil {
		return fmt.Errorf("read documents file: %w", err)
	}
	var docs []chunker.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("parse documents file: %w", err)
	}
	fmt.Printf("Loaded %d documents from %s\n", len(docs), ingestFile)

	eng, closeAll, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer closeAll()

	bar := progressbar.Default(int64(len(docs)), "indexing")
	onDoc := func(string) { _ = bar.Add(1) }

	var report *engine.IngestReport
	if ingestNoReset {
		report, err = eng.Ingest(ctx, docs, onDoc)
	} else {
		report, err = eng.RebuildIndex(ctx, docs, onDoc)
	}
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Ingestion complete!")
	fmt.Printf("  Documents: %d/%d\n", report.IndexedDocs, report.TotalDocs)
	fmt.Printf("  Chunks:    %d\n", report.TotalChunks)
	fmt.Printf("  Duration:  %s\n", report.Duration.Round(time.Second))

	if len(report.SkippedDocs) > 0 {
		fmt.Println()
		fmt.Println("Skipped documents:")
		for _, skipped := range report.SkippedDocs {
			fmt.Printf("  - %s: %s\n", skipped.Title, skipped.Reason)
		}
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	eng, closeAll, err := buildEngine(config.Load())
	if err != nil {
		return err
	}
	defer closeAll()

	result, err := eng.Answer(ctx, args[0])
	if err != nil {
		// Generation trouble gets the graceful fallback a chat front
		// end would show; anything else is a real failure.
		if errors.Is(err, generate.ErrTimeout) || errors.Is(err, generate.ErrUnavailable) ||
			errors.Is(err, generate.ErrEmptyCompletion) {
			fmt.Println("Sorry, I couldn't generate an answer right now. Please try again later.")
			return nil
		}
		return err
	}

	fmt.Println(result.AnswerText)
	if len(result.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, s := range result.Sources {
			fmt.Printf("  - %s (%s)\n", s.Title, s.URL)
		}
	}
	if result.FromCache {
		fmt.Println()
		fmt.Println("(cached)")
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	eng, closeAll, err := buildEngine(config.Load())
	if err != nil {
		return err
	}
	defer closeAll()

	meta, err := eng.IndexStats(ctx)
	if err != nil {
		return fmt.Errorf("read index stats: %w", err)
	}
	cacheStats, err := eng.CacheStats(ctx)
	if err != nil {
		return fmt.Errorf("read cache stats: %w", err)
	}

	fmt.Println("Index:")
	fmt.Printf("  Chunks:          %d\n", meta.TotalChunks)
	fmt.Printf("  Embedding model: %s\n", meta.EmbeddingModelID)
	if !meta.BuiltAt.IsZero() {
		fmt.Printf("  Built at:        %s\n", meta.BuiltAt.Format(time.RFC3339))
	}
	fmt.Println("Cache:")
	fmt.Printf("  Entries:    %d\n", cacheStats.Entries)
	fmt.Printf("  Total hits: %d\n", cacheStats.TotalHits)
	return nil
}

func runTop(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	// Cache maintenance does not need the index or embedding backends.
	responses, err := cache.New(cfg.CachePath, cfg.BotName)
	if err != nil {
		return fmt.Errorf("open response cache: %w", err)
	}
	defer responses.Close()

	entries, err := responses.TopQueries(ctx, topN)
	if err != nil {
		return fmt.Errorf("read top queries: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No cached queries yet.")
		return nil
	}

	for i, entry := range entries {
		fmt.Printf("%2d. %s  (%d hits, last %s)\n",
			i+1, entry.NormalizedKey, entry.HitCount,
			entry.LastAccessedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runClearCache(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	responses, err := cache.New(cfg.CachePath, cfg.BotName)
	if err != nil {
		return fmt.Errorf("open response cache: %w", err)
	}
	defer responses.Close()

	if err := responses.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	fmt.Println("Cache cleared")
	return nil
}
