package engine

import (
	"errors"

	"github.com/craftwiki/wikibot/internal/chunker"
)

// isSkippable reports whether a per-document ingestion error should
// skip the document and continue the batch instead of failing it.
func isSkippable(err error) bool {
	return errors.Is(err, chunker.ErrEmptyDocument)
}
