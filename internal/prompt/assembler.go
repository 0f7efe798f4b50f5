// Package prompt assembles retrieved passages and the user query into
// a single generation prompt.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/craftwiki/wikibot/internal/index"
)

// ErrTemplate marks a prompt template missing a required placeholder.
// This is a configuration error and should fail at startup, not per
// query.
var ErrTemplate = errors.New("prompt template missing required placeholder")

const (
	placeholderContext = "{context}"
	placeholderQuery   = "{query}"

	// passageSeparator divides passages while keeping each one
	// attributed to its source title.
	passageSeparator = "\n\n---\n\n"

	// minTailChars is the smallest truncated passage worth keeping; a
	// shorter remainder is dropped instead of emitting a fragment.
	minTailChars = 200

	// ellipsis marks a truncated final passage.
	ellipsis = "..."
)

// DefaultTemplate grounds the generator in retrieved wiki passages and
// tells it to refuse rather than invent.
const DefaultTemplate = `You are a helpful game guide assistant. Answer the user's question based on the information provided from the wiki.

CONTEXT FROM WIKI:
{context}

USER QUESTION:
{query}

INSTRUCTIONS:
- Answer based ONLY on the information provided above
- If the context contains a recipe, format it clearly with ingredients and steps
- If the answer is not in the context, say "I don't have enough information about that in my knowledge base"
- Be concise but complete

ANSWER:`

// Assembler renders the generation prompt. It is a pure function of
// its inputs; validation happens once at construction.
type Assembler struct {
	template string
}

// NewAssembler validates the template and returns an Assembler.
func NewAssembler(template string) (*Assembler, error) {
	if template == "" {
		template = DefaultTemplate
	}
	for _, p := range []string{placeholderContext, placeholderQuery} {
		if !strings.Contains(template, p) {
			return nil, fmt.Errorf("%w: %s", ErrTemplate, p)
		}
	}
	return &Assembler{template: template}, nil
}

// Assemble merges ranked passages and the query into the template. The
// concatenated context never exceeds maxContextChars: passages are
// included in ranked order and only the last included passage is
// truncated.
func (a *Assembler) Assemble(query string, results []index.ScoredChunk, maxContextChars int) string {
	context := buildContext(results, maxContextChars)
	out := strings.ReplaceAll(a.template, placeholderContext, context)
	return strings.ReplaceAll(out, placeholderQuery, query)
}

func buildContext(results []index.ScoredChunk, budget int) string {
	var parts []string
	used := 0

	for _, r := range results {
		block := fmt.Sprintf("[Source: %s]\n%s", r.Chunk.SourceTitle, r.Chunk.Text)

		cost := len(block)
		if len(parts) > 0 {
			cost += len(passageSeparator)
		}

		if used+cost <= budget {
			parts = append(parts, block)
			used += cost
			continue
		}

		// Out of budget: truncate this passage if a useful amount
		// fits, then stop either way.
		remaining := budget - used - len(ellipsis)
		if len(parts) > 0 {
			remaining -= len(passageSeparator)
		}
		if remaining >= minTailChars {
			parts = append(parts, block[:remaining]+ellipsis)
		}
		break
	}

	return strings.Join(parts, passageSeparator)
}
