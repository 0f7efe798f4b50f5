package index

import "errors"

var (
	ErrUnreachable       = errors.New("index backend unreachable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrMissingEmbedding  = errors.New("chunk has no embedding")
)
