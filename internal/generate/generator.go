// Package generate defines the text-generation port and its Ollama
// adapter. The engine treats the backend as an opaque, possibly-slow,
// possibly-failing remote call.
package generate

import (
	"context"
	"errors"
)

var (
	// ErrTimeout means the generation call exceeded its deadline.
	// Nothing is cached for the request.
	ErrTimeout = errors.New("generation timed out")

	// ErrUnavailable means the generation backend could not be
	// reached or refused the request.
	ErrUnavailable = errors.New("generation backend unavailable")

	// ErrEmptyCompletion means the backend answered with no usable
	// text.
	ErrEmptyCompletion = errors.New("generation returned empty completion")
)

// Options tune a single generation call.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Generator produces text for an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}
