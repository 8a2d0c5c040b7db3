// Package embedding maps images to L2-normalized embedding vectors.
package embedding

import "context"

// Provider produces normalized embeddings for encoded images. Implementations
// must be safe for concurrent use. A malformed image yields an error matching
// errs.ErrInvalidInput and leaves the provider usable.
type Provider interface {
	Embed(ctx context.Context, image []byte) ([]float32, error)
	EmbedBatch(ctx context.Context, images [][]byte) ([][]float32, error)
	Dimensions() int
	// Version identifies the weights in use, read once at construction.
	Version() string
	Close() error
}
