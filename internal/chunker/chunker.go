// Package chunker splits wiki documents into fixed-size overlapping
// text chunks suitable for embedding.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/craftwiki/wikibot/internal/index"
)

// ErrEmptyDocument marks a document with no extractable text. The
// ingest pipeline logs and skips such documents rather than failing
// the batch.
var ErrEmptyDocument = errors.New("document has no extractable text")

// Document is the ingestion input shape, as supplied by the external
// scraping collaborator.
type Document struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50
)

// nsChunk is the UUID namespace for deterministic chunk ids.
var nsChunk = uuid.MustParse("5f2b9c41-7a83-4a6f-9a0e-3d8f1c62b7d4")

// Chunker splits documents at paragraph and word boundaries into
// chunks of roughly chunkSize characters, carrying overlap characters
// of trailing context into the next chunk.
type Chunker struct {
	chunkSize int
	overlap   int
}

// New creates a Chunker. Non-positive parameters fall back to the
// defaults; overlap is capped below chunkSize.
func New(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// Split turns one document into chunks. Identical input always
// produces identical chunk boundaries and ids, which is what makes a
// no-op re-ingestion overwrite in place instead of duplicating.
func (c *Chunker) Split(doc Document) ([]index.Chunk, error) {
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil, fmt.Errorf("%q: %w", doc.Title, ErrEmptyDocument)
	}

	bodies := c.pack(c.units(text))

	chunks := make([]index.Chunk, len(bodies))
	carry := ""
	for i, body := range bodies {
		chunkText := body
		if carry != "" {
			chunkText = carry + "\n" + body
		}
		chunks[i] = index.Chunk{
			ID:          ChunkID(doc.Title, i),
			SourceTitle: doc.Title,
			SourceURL:   doc.URL,
			ChunkIndex:  i,
			Text:        chunkText,
		}
		carry = overlapTail(body, c.overlap)
	}
	return chunks, nil
}

// ChunkID derives the stable chunk id from the source title and chunk
// position.
func ChunkID(title string, chunkIndex int) string {
	return uuid.NewSHA1(nsChunk, []byte(fmt.Sprintf("%s#%d", title, chunkIndex))).String()
}

// units splits text into paragraphs; any paragraph longer than the
// chunk size is further split at word boundaries so no unit ever
// forces a mid-word cut.
func (c *Chunker) units(text string) []string {
	var units []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= c.chunkSize {
			units = append(units, para)
			continue
		}
		units = append(units, packWords(strings.Fields(para), c.chunkSize)...)
	}
	return units
}

// pack greedily merges consecutive units into chunk bodies of at most
// chunkSize characters.
func (c *Chunker) pack(units []string) []string {
	var bodies []string
	var cur strings.Builder
	for _, u := range units {
		if cur.Len() == 0 {
			cur.WriteString(u)
			continue
		}
		if cur.Len()+2+len(u) <= c.chunkSize {
			cur.WriteString("\n\n")
			cur.WriteString(u)
			continue
		}
		bodies = append(bodies, cur.String())
		cur.Reset()
		cur.WriteString(u)
	}
	if cur.Len() > 0 {
		bodies = append(bodies, cur.String())
	}
	return bodies
}

// packWords joins words into pieces no longer than limit characters.
func packWords(words []string, limit int) []string {
	var pieces []string
	var cur strings.Builder
	for _, w := range words {
		if cur.Len() == 0 {
			cur.WriteString(w)
			continue
		}
		if cur.Len()+1+len(w) <= limit {
			cur.WriteByte(' ')
			cur.WriteString(w)
			continue
		}
		pieces = append(pieces, cur.String())
		cur.Reset()
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		pieces = append(pieces, cur.String())
	}
	return pieces
}

// overlapTail returns up to n trailing characters of body, advanced to
// the next word boundary so the carried context never starts mid-word.
func overlapTail(body string, n int) string {
	if n <= 0 || len(body) <= n {
		return ""
	}
	tail := body[len(body)-n:]
	if i := strings.IndexAny(tail, " \n"); i >= 0 {
		tail = tail[i+1:]
	}
	return strings.TrimSpace(tail)
}
