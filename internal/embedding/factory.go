package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/revelation/internal/fileid"
	"go.uber.org/zap"
)

// Options configure provider construction.
type Options struct {
	Provider       string
	ModelPath      string
	RuntimeLibrary string
	Dimensions     int
	ImageSize      int
	InputName      string
	OutputName     string
	CacheSize      int
	DisableGPU     bool
}

// NewProvider builds the provider named by opts.Provider ("onnx" or "mock").
// Failure to load the model is fatal to startup and is returned as is.
func NewProvider(opts Options, logger *zap.Logger) (Provider, error) {
	switch opts.Provider {
	case "mock":
		return NewMockProvider(opts.Dimensions), nil
	case "onnx", "":
		return NewONNXProvider(opts, logger)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}
}

// CachedProvider memoizes single-image embeddings by content ID. Batch calls
// bypass the cache since gallery builds see each image once.
type CachedProvider struct {
	Provider
	cache *EmbeddingCache
}

// WithCache wraps p with an LRU of the given capacity.
func WithCache(p Provider, capacity int) *CachedProvider {
	return &CachedProvider{Provider: p, cache: NewEmbeddingCache(capacity)}
}

// Embed returns the cached embedding for identical bytes, computing it once otherwise.
func (c *CachedProvider) Embed(ctx context.Context, data []byte) ([]float32, error) {
	key := fileid.ContentID(data)
	if emb, ok := c.cache.Get(key); ok {
		return emb, nil
	}
	emb, err := c.Provider.Embed(ctx, data)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, emb)
	return emb, nil
}

// CacheLen reports how many embeddings are cached.
func (c *CachedProvider) CacheLen() int {
	return c.cache.Len()
}
