package embedding

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"math"

	"github.com/hyperjump/revelation/internal/errs"
	"github.com/hyperjump/revelation/internal/fileid"
	"github.com/hyperjump/revelation/internal/vector"
)

// MockProvider is a deterministic provider for tests and model-less runs. It
// validates that the input decodes as an image, then derives a normalized
// vector from the content hash so identical bytes always embed identically.
type MockProvider struct {
	dimensions int
}

// NewMockProvider returns a provider producing vectors of the given dimension.
func NewMockProvider(dimensions int) *MockProvider {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockProvider{dimensions: dimensions}
}

// Embed returns a deterministic embedding for the image bytes.
func (m *MockProvider) Embed(ctx context.Context, data []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errs.Invalid("embedding.MockProvider.Embed", "empty image")
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, errs.Wrap(errs.ErrInvalidInput, "embedding.MockProvider.Embed", err)
	}
	id := fileid.ContentID(data)
	seed := binary.LittleEndian.Uint64([]byte(id[len(id)-16:]))
	emb := make([]float32, m.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(float64(seed%9973)*float64(i+1)) + 0.01)
	}
	vector.Normalize(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each image.
func (m *MockProvider) EmbedBatch(ctx context.Context, images [][]byte) ([][]float32, error) {
	out := make([][]float32, len(images))
	for i, img := range images {
		emb, err := m.Embed(ctx, img)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (m *MockProvider) Dimensions() int {
	return m.dimensions
}

// Version identifies the mock weights.
func (m *MockProvider) Version() string {
	return "mock"
}

// Close is a no-op for MockProvider.
func (m *MockProvider) Close() error {
	return nil
}
