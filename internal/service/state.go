// Package service owns the process-wide embedding provider and gallery and
// runs request-time compute on a bounded worker pool.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hyperjump/revelation/internal/embedding"
	"github.com/hyperjump/revelation/internal/errs"
	"github.com/hyperjump/revelation/internal/gallery"
	"github.com/hyperjump/revelation/internal/metrics"
	"github.com/hyperjump/revelation/internal/ranking"
	"github.com/hyperjump/revelation/internal/worker"
	"go.uber.org/zap"
)

// Options configure a State.
type Options struct {
	CachePath  string
	SourceRoot string
	DefaultK   int
	MaxK       int
	Workers    int
	QueueSize  int
}

// State binds the embedding provider and the gallery. The gallery is loaded
// exactly once by Init; afterwards both are read-only and shared by all
// requests without locking.
type State struct {
	opts     Options
	provider embedding.Provider
	loader   *gallery.Loader
	ranker   ranking.Ranker
	metrics  *metrics.Metrics
	logger   *zap.Logger

	once    sync.Once
	ready   chan struct{}
	initErr error
	index   *gallery.Index
	report  *gallery.Report

	pool       *worker.Pool[*task]
	poolCancel context.CancelFunc
}

// Option configures a State.
type Option func(*State)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *State) { s.logger = l }
}

// WithMetrics records rank and embed timings plus pool metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *State) { s.metrics = m }
}

// WithRanker replaces the default exact ranker.
func WithRanker(r ranking.Ranker) Option {
	return func(s *State) {
		if r != nil {
			s.ranker = r
		}
	}
}

// New returns an uninitialized State. provider must already be loaded; a
// provider that fails to load should stop startup before New is called.
func New(provider embedding.Provider, loader *gallery.Loader, opts Options, options ...Option) *State {
	if opts.DefaultK <= 0 {
		opts.DefaultK = ranking.DefaultK
	}
	if opts.MaxK <= 0 {
		opts.MaxK = 50
	}
	s := &State{
		opts:     opts,
		provider: provider,
		loader:   loader,
		ranker:   ranking.Exact{},
		logger:   zap.NewNop(),
		ready:    make(chan struct{}),
	}
	for _, o := range options {
		o(s)
	}
	s.pool = worker.NewPool(opts.Workers, opts.QueueSize, runTask,
		worker.WithMetrics[*task](s.metrics.Registerer(), metrics.Namespace+"_pool"))
	return s
}

// Init loads or builds the gallery and starts the worker pool. Only the first
// call does any work; concurrent callers block until it finishes and all
// callers observe the same result.
func (s *State) Init(ctx context.Context) error {
	s.once.Do(func() {
		s.initErr = s.initialize(ctx)
		close(s.ready)
	})
	return s.initErr
}

func (s *State) initialize(ctx context.Context) error {
	if s.provider == nil {
		return errs.Config("service.Init", "embedding provider not loaded")
	}
	start := time.Now()
	idx, report, err := s.loader.LoadOrBuild(ctx, s.opts.CachePath, s.opts.SourceRoot)
	if err != nil {
		s.logger.Error("gallery initialization failed", zap.Error(err))
		return err
	}
	if idx.Len() == 0 {
		return errs.Unavailable("service.Init", "gallery is empty")
	}
	if idx.Dim() != s.provider.Dimensions() {
		return errs.Config("service.Init", "gallery dimension %d does not match model dimension %d",
			idx.Dim(), s.provider.Dimensions())
	}

	poolCtx, cancel := context.WithCancel(context.Background())
	if err := s.pool.Start(poolCtx); err != nil {
		cancel()
		return err
	}
	s.poolCancel = cancel
	s.index = idx
	s.report = report
	s.metrics.SetGallery(idx.Len(), report.Labels)
	s.logger.Info("service ready",
		zap.String("origin", string(report.Origin)),
		zap.Int("entries", idx.Len()),
		zap.Int("labels", report.Labels),
		zap.String("rank_mode", s.ranker.Mode()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Ready reports whether Init has completed successfully.
func (s *State) Ready() bool {
	select {
	case <-s.ready:
		return s.initErr == nil
	default:
		return false
	}
}

// ModelLoaded reports whether an embedding provider is bound.
func (s *State) ModelLoaded() bool {
	return s.provider != nil
}

// Index returns the loaded gallery, or nil before Init succeeds.
func (s *State) Index() *gallery.Index {
	if !s.Ready() {
		return nil
	}
	return s.index
}

// ResolveK applies the default and the allowed range to a requested k.
func (s *State) ResolveK(k int) (int, error) {
	if k == 0 {
		return s.opts.DefaultK, nil
	}
	if k < 0 || k > s.opts.MaxK {
		return 0, errs.Invalid("service.ResolveK", "k must be between 1 and %d, got %d", s.opts.MaxK, k)
	}
	return k, nil
}

// Predict embeds image and ranks it against the gallery on the worker pool.
func (s *State) Predict(ctx context.Context, image []byte, k int) ([]ranking.Result, error) {
	return s.dispatch(ctx, "predict", k, func(ctx context.Context, k int) ([]ranking.Result, error) {
		start := time.Now()
		query, err := s.provider.Embed(ctx, image)
		s.metrics.ObserveEmbed(time.Since(start))
		if err != nil {
			return nil, err
		}
		return s.rank(query, k)
	})
}

// RankVector ranks a precomputed query embedding on the worker pool.
func (s *State) RankVector(ctx context.Context, query []float32, k int) ([]ranking.Result, error) {
	return s.dispatch(ctx, "rank", k, func(_ context.Context, k int) ([]ranking.Result, error) {
		return s.rank(query, k)
	})
}

func (s *State) rank(query []float32, k int) ([]ranking.Result, error) {
	start := time.Now()
	results, err := s.ranker.Rank(query, s.index, k)
	s.metrics.ObserveRank(s.ranker.Mode(), time.Since(start))
	return results, err
}

// dispatch submits fn to the pool and waits for its result. Once accepted a
// task runs to completion; a caller whose ctx ends stops waiting but does not
// cancel the task.
func (s *State) dispatch(ctx context.Context, op string, k int, fn func(context.Context, int) ([]ranking.Result, error)) ([]ranking.Result, error) {
	results, err := s.submit(ctx, op, k, fn)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if kind := errs.KindOf(err); kind != nil {
			outcome = kindLabel(kind)
		}
	}
	s.metrics.CountRequest(op, outcome)
	return results, err
}

func (s *State) submit(ctx context.Context, op string, k int, fn func(context.Context, int) ([]ranking.Result, error)) ([]ranking.Result, error) {
	opName := "service." + op
	if !s.Ready() {
		return nil, errs.Unavailable(opName, "gallery not loaded")
	}
	k, err := s.ResolveK(k)
	if err != nil {
		return nil, err
	}
	t := &task{fn: fn, k: k, done: make(chan taskResult, 1)}
	if err := s.pool.Submit(t); err != nil {
		if errors.Is(err, worker.ErrQueueFull) || errors.Is(err, worker.ErrPoolStopped) {
			return nil, errs.Wrap(errs.ErrServiceUnavailable, opName, err)
		}
		return nil, err
	}
	select {
	case r := <-t.done:
		return r.results, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status is a snapshot of the service state.
type Status struct {
	Ready          bool             `json:"ready"`
	ModelLoaded    bool             `json:"model_loaded"`
	GalleryLoaded  bool             `json:"gallery_loaded"`
	Entries        int              `json:"entries"`
	Labels         int              `json:"labels"`
	Dimensions     int              `json:"dimensions"`
	ModelVersion   string           `json:"model_version,omitempty"`
	GalleryVersion string           `json:"gallery_version,omitempty"`
	Origin         string           `json:"origin,omitempty"`
	RankMode       string           `json:"rank_mode"`
	Pool           worker.PoolStats `json:"pool"`
}

// Status returns the current state.
func (s *State) Status() Status {
	st := Status{
		Ready:       s.Ready(),
		ModelLoaded: s.ModelLoaded(),
		RankMode:    s.ranker.Mode(),
		Pool:        s.pool.Stats(),
	}
	if s.provider != nil {
		st.ModelVersion = s.provider.Version()
		st.Dimensions = s.provider.Dimensions()
	}
	if idx := s.Index(); idx != nil {
		st.GalleryLoaded = true
		st.Entries = idx.Len()
		st.Labels = s.report.Labels
		st.GalleryVersion = idx.Version()
		st.Origin = string(s.report.Origin)
	}
	return st
}

// Close stops the pool, letting queued tasks finish within timeout, and
// releases the provider.
func (s *State) Close(timeout time.Duration) error {
	err := s.pool.Stop(timeout)
	if s.poolCancel != nil {
		s.poolCancel()
	}
	if s.provider != nil {
		if cerr := s.provider.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func kindLabel(kind error) string {
	switch kind {
	case errs.ErrInvalidInput:
		return "invalid_input"
	case errs.ErrServiceUnavailable:
		return "unavailable"
	case errs.ErrIO:
		return "io_error"
	default:
		return "config_error"
	}
}
