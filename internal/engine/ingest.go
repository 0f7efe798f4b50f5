package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/craftwiki/wikibot/internal/chunker"
)

// IngestReport summarizes one ingestion batch.
type IngestReport struct {
	TotalDocs   int
	IndexedDocs int
	TotalChunks int
	SkippedDocs []SkippedDoc
	Duration    time.Duration
}

// SkippedDoc records a document that was skipped during ingestion.
type SkippedDoc struct {
	Title  string
	Reason string
}

// Ingest chunks, embeds and upserts a batch of documents. Documents
// without extractable text are logged, recorded in the report and
// skipped; an embedding failure is fatal to the batch and aborts
// before that document writes anything to the index. onDoc, if not
// nil, is called after each document is handled.
func (e *Engine) Ingest(ctx context.Context, docs []chunker.Document, onDoc func(title string)) (*IngestReport, error) {
	start := time.Now()
	report := &IngestReport{TotalDocs: len(docs)}

	for _, doc := range docs {
		n, err := e.ingestDocument(ctx, doc)
		if err != nil {
			if isSkippable(err) {
				e.logger.Warn("skipping document", "title", doc.Title, "error", err)
				report.SkippedDocs = append(report.SkippedDocs, SkippedDoc{
					Title:  doc.Title,
					Reason: err.Error(),
				})
				if onDoc != nil {
					onDoc(doc.Title)
				}
				continue
			}
			return nil, fmt.Errorf("ingest %q: %w", doc.Title, err)
		}
		report.IndexedDocs++
		report.TotalChunks += n
		if onDoc != nil {
			onDoc(doc.Title)
		}
	}

	report.Duration = time.Since(start)
	e.logger.Info("ingestion complete",
		"indexed", report.IndexedDocs,
		"skipped", len(report.SkippedDocs),
		"chunks", report.TotalChunks,
		"duration", report.Duration,
	)
	return report, nil
}

// RebuildIndex resets the index and ingests the batch from scratch.
// Chunk ids are deterministic, so rebuilding the same corpus yields
// the same ids and counts every time.
func (e *Engine) RebuildIndex(ctx context.Context, docs []chunker.Document, onDoc func(title string)) (*IngestReport, error) {
	if err := e.idx.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset index: %w", err)
	}
	return e.Ingest(ctx, docs, onDoc)
}

// ingestDocument runs the pipeline for one document and returns its
// chunk count. Embeddings are computed before anything is upserted, so
// a failure never leaves a chunk stored without its vector.
func (e *Engine) ingestDocument(ctx context.Context, doc chunker.Document) (int, error) {
	chunks, err := e.chunks.Split(doc)
	if err != nil {
		return 0, err
	}
	e.logger.Debug("chunked document", "title", doc.Title, "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	if err := e.idx.Upsert(ctx, chunks); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}

	return len(chunks), nil
}
