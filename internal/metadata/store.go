package metadata

import (
	"context"
	"sync/atomic"

	"github.com/hyperjump/revelation/internal/watcher"
	"go.uber.org/zap"
)

// Store holds the current catalog and swaps it atomically on reload.
// Readers never observe a partially loaded table.
type Store struct {
	path    string
	current atomic.Pointer[Catalog]
	logger  *zap.Logger
	watch   *watcher.Watcher
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Open loads the table at path into a new Store.
func Open(path string, opts ...StoreOption) (*Store, error) {
	s := &Store{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	c, err := LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	s.current.Store(c)
	s.logger.Info("gear metadata loaded", zap.String("path", path), zap.Int("items", c.Len()))
	return s, nil
}

// NewStore wraps an already loaded catalog.
func NewStore(c *Catalog) *Store {
	s := &Store{logger: zap.NewNop()}
	if c == nil {
		c = Empty()
	}
	s.current.Store(c)
	return s
}

// Catalog returns the current catalog.
func (s *Store) Catalog() *Catalog {
	return s.current.Load()
}

// Path returns the table path.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the table. On failure the previous catalog stays active.
func (s *Store) Reload() error {
	c, err := LoadCatalog(s.path)
	if err != nil {
		s.logger.Warn("gear metadata reload failed", zap.String("path", s.path), zap.Error(err))
		return err
	}
	// The previous catalog may still be serving readers; it is left to the GC.
	s.current.Store(c)
	s.logger.Info("gear metadata reloaded", zap.String("path", s.path), zap.Int("items", c.Len()))
	return nil
}

// Watch reloads the table whenever it changes on disk until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	s.watch = watcher.NewWatcher([]string{s.path}, func(string) { _ = s.Reload() }, watcher.WithLogger(s.logger))
	return s.watch.Start(ctx)
}

// Close stops watching and releases the current catalog.
func (s *Store) Close() error {
	if s.watch != nil {
		s.watch.Stop()
	}
	if c := s.current.Load(); c != nil {
		return c.Close()
	}
	return nil
}
