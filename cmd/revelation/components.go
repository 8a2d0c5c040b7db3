package main

import (
	"context"
	"fmt"
	"io"

	"github.com/hyperjump/revelation/internal/config"
	"github.com/hyperjump/revelation/internal/embedding"
	"github.com/hyperjump/revelation/internal/feedback"
	"github.com/hyperjump/revelation/internal/gallery"
	"github.com/hyperjump/revelation/internal/metadata"
	"github.com/hyperjump/revelation/internal/metrics"
	"github.com/hyperjump/revelation/internal/ranking"
	"github.com/hyperjump/revelation/internal/service"
	"go.uber.org/zap"
)

// Components holds everything a command may need. Fields a command does not
// ask for stay nil.
type Components struct {
	Provider embedding.Provider
	Builder  *gallery.Builder
	Loader   *gallery.Loader
	Ranker   ranking.Ranker
	State    *service.State
	Metrics  *metrics.Metrics
	Catalog  *metadata.Store
	Feedback *feedback.Service
}

// Close releases components in reverse order of construction.
func (c *Components) Close() {
	if c.Feedback != nil {
		_ = c.Feedback.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
	if c.State != nil {
		_ = c.State.Close(shutdownTimeout)
	} else if c.Provider != nil {
		_ = c.Provider.Close()
	}
	if closer, ok := c.Ranker.(io.Closer); ok {
		_ = closer.Close()
	}
}

func providerOptions(cfg *config.Config) embedding.Options {
	m := cfg.Model
	return embedding.Options{
		Provider:       m.Provider,
		ModelPath:      m.ModelPath,
		RuntimeLibrary: m.RuntimeLibrary,
		Dimensions:     m.Dimensions,
		ImageSize:      m.ImageSize,
		InputName:      m.InputName,
		OutputName:     m.OutputName,
		CacheSize:      m.CacheSize,
		DisableGPU:     m.DisableGPU,
	}
}

// newBuilder loads the provider and wires the gallery build pipeline.
func newBuilder(cfg *config.Config, logger *zap.Logger, progress gallery.ProgressReporter) (embedding.Provider, *gallery.Builder, error) {
	provider, err := embedding.NewProvider(providerOptions(cfg), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load embedding provider: %w", err)
	}
	if cfg.Model.CacheSize > 0 {
		provider = embedding.WithCache(provider, cfg.Model.CacheSize)
	}
	opts := []gallery.BuilderOption{
		gallery.WithLogger(logger),
		gallery.WithBatchSize(cfg.Gallery.BatchSize),
		gallery.WithConcurrency(cfg.Gallery.Concurrency),
		gallery.WithScanOptions(gallery.ScanOptions{
			Extensions: cfg.Gallery.Extensions,
			Exclude:    cfg.Gallery.Exclude,
		}),
	}
	if progress != nil {
		opts = append(opts, gallery.WithProgress(progress))
	}
	return provider, gallery.NewBuilder(provider, opts...), nil
}

// initializeComponents builds the ranking service plus catalog. The feedback
// service is opened only when withFeedback is set; failures there are logged
// and leave Feedback nil.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, withFeedback bool) (*Components, error) {
	provider, builder, err := newBuilder(cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	ranker, err := ranking.New(cfg.Gallery.RankMode, cfg.Gallery.CandidatePoolSize)
	if err != nil {
		_ = provider.Close()
		return nil, err
	}
	c := &Components{Provider: provider, Builder: builder, Ranker: ranker, Metrics: metrics.New()}
	c.Loader = gallery.NewLoader(builder, logger)
	c.State = service.New(provider, c.Loader, service.Options{
		CachePath:  cfg.Gallery.CachePath,
		SourceRoot: cfg.Gallery.SourceRoot,
		DefaultK:   cfg.Search.DefaultK,
		MaxK:       cfg.Search.MaxK,
		Workers:    cfg.Workers.Count,
		QueueSize:  cfg.Workers.QueueSize,
	},
		service.WithLogger(logger),
		service.WithMetrics(c.Metrics),
		service.WithRanker(ranker),
	)

	catalog, err := metadata.Open(cfg.Metadata.TablePath, metadata.WithLogger(logger))
	if err != nil {
		logger.Warn("gear metadata unavailable, results will have no siblings",
			zap.String("path", cfg.Metadata.TablePath), zap.Error(err))
		catalog = metadata.NewStore(nil)
	}
	c.Catalog = catalog

	if withFeedback {
		fb, err := openFeedback(ctx, cfg, logger)
		if err != nil {
			logger.Warn("feedback storage unavailable", zap.String("storage", cfg.Feedback.Storage), zap.Error(err))
		} else {
			c.Feedback = fb
		}
	}
	return c, nil
}

func openFeedback(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*feedback.Service, error) {
	backend, err := feedback.NewBackend(ctx, cfg.Feedback)
	if err != nil {
		return nil, err
	}
	store, err := feedback.OpenStore(cfg.Feedback.DatabasePath)
	if err != nil {
		if c, ok := backend.(interface{ Close() error }); ok {
			_ = c.Close()
		}
		return nil, err
	}
	return feedback.NewService(backend, store, logger), nil
}
