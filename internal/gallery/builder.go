package gallery

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hyperjump/revelation/internal/embedding"
	"github.com/hyperjump/revelation/internal/errs"
	"github.com/hyperjump/revelation/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize bounds how many images are held in memory per embedding call.
const DefaultBatchSize = 128

// Builder embeds a labeled source tree into an Index.
type Builder struct {
	provider    embedding.Provider
	scan        ScanOptions
	batchSize   int
	concurrency int
	progress    ProgressReporter
	logger      *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets a logger for build events.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// WithBatchSize sets the number of images embedded per batch.
func WithBatchSize(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithConcurrency sets how many files are read in parallel within a batch.
func WithConcurrency(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithScanOptions sets the extension allowlist and exclude patterns.
func WithScanOptions(opts ScanOptions) BuilderOption {
	return func(b *Builder) { b.scan = opts }
}

// WithProgress reports per-image progress to p.
func WithProgress(p ProgressReporter) BuilderOption {
	return func(b *Builder) {
		if p != nil {
			b.progress = p
		}
	}
}

// NewBuilder returns a Builder using provider for embeddings.
func NewBuilder(provider embedding.Provider, opts ...BuilderOption) *Builder {
	b := &Builder{
		provider:    provider,
		scan:        ScanOptions{Extensions: []string{".png", ".jpg", ".jpeg", ".webp"}},
		batchSize:   DefaultBatchSize,
		concurrency: 4,
		progress:    nopProgress{},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build scans root and embeds every image. Any unreadable or undecodable
// image aborts the whole build; no partial gallery is returned. A tree with
// no images yields errs.ErrServiceUnavailable.
func (b *Builder) Build(ctx context.Context, root string) (*Index, error) {
	const op = "gallery.Build"
	start := time.Now()
	sources, err := Scan(root, b.scan)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, errs.Unavailable(op, "no images found under %s", root)
	}

	dim := b.provider.Dimensions()
	entries := make([]Entry, 0, len(sources))
	b.progress.Start(len(sources))
	defer b.progress.Finish()

	for lo := 0; lo < len(sources); lo += b.batchSize {
		hi := min(lo+b.batchSize, len(sources))
		batch := sources[lo:hi]
		images, err := b.readBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		vecs, err := b.provider.EmbedBatch(ctx, images)
		if err != nil {
			return nil, b.attribute(ctx, batch, images, err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("%s: provider returned %d vectors for %d images", op, len(vecs), len(batch))
		}
		for i, v := range vecs {
			if len(v) != dim {
				return nil, errs.Invalid(op, "%s: embedding dimension %d, want %d", batch[i].Path, len(v), dim)
			}
			if !vector.IsNormalized(v) {
				return nil, errs.Invalid(op, "%s: embedding is not unit length", batch[i].Path)
			}
			entries = append(entries, Entry{Label: batch[i].Label, Vector: v})
		}
		b.progress.Add(len(batch))
		b.logger.Debug("gallery batch embedded",
			zap.Int("from", lo), zap.Int("to", hi), zap.Int("total", len(sources)))
	}

	idx, err := NewIndex(dim, entries, b.provider.Version())
	if err != nil {
		return nil, err
	}
	b.logger.Info("gallery built",
		zap.String("root", root),
		zap.Int("entries", idx.Len()),
		zap.Int("labels", len(idx.DistinctLabels())),
		zap.Duration("elapsed", time.Since(start)))
	return idx, nil
}

// readBatch loads file contents in parallel, keeping source order.
func (b *Builder) readBatch(ctx context.Context, batch []Source) ([][]byte, error) {
	images := make([][]byte, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, src := range batch {
		i, src := i, src
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(src.Path)
			if err != nil {
				return errs.Wrap(errs.ErrInvalidInput, "gallery.Build", fmt.Errorf("read %s: %w", src.Path, err))
			}
			images[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// attribute finds which image in a failed batch caused err so the build
// error names the offending file.
func (b *Builder) attribute(ctx context.Context, batch []Source, images [][]byte, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	for i, img := range images {
		if _, e := b.provider.Embed(ctx, img); e != nil {
			return fmt.Errorf("gallery.Build: %s: %w", batch[i].Path, e)
		}
	}
	return fmt.Errorf("gallery.Build: %w", err)
}
