package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/revelation/internal/config"
	"github.com/hyperjump/revelation/internal/errs"
	"go.uber.org/zap"
)

// NewBackend builds the backend named by cfg.Storage.
func NewBackend(ctx context.Context, cfg config.FeedbackConfig) (Backend, error) {
	switch cfg.Storage {
	case KindLocal, "":
		return NewLocalBackend(cfg.Dir)
	case KindObjectStore:
		return DialObjectStore(ctx, cfg.NATSURL, cfg.Bucket)
	default:
		return nil, errs.Config("feedback.NewBackend", "unknown feedback storage %q", cfg.Storage)
	}
}

// Service files feedback images and logs them.
type Service struct {
	backend Backend
	store   *Store
	logger  *zap.Logger
}

// NewService combines a backend and a log store.
func NewService(backend Backend, store *Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{backend: backend, store: store, logger: logger}
}

// Submit saves data and records it under label. If the log write fails the
// saved image is removed again.
func (s *Service) Submit(ctx context.Context, data []byte, filename, label string) (*Record, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, errs.Invalid("feedback.Submit", "label must not be empty")
	}
	if len(data) == 0 {
		return nil, errs.Invalid("feedback.Submit", "image is empty")
	}
	path, err := s.backend.Save(ctx, data, filename)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.Create(ctx, path, label)
	if err != nil {
		if derr := s.backend.Delete(context.WithoutCancel(ctx), path); derr != nil {
			s.logger.Warn("failed to remove orphaned feedback image", zap.String("path", path), zap.Error(derr))
		}
		return nil, err
	}
	s.logger.Info("feedback recorded", zap.String("id", rec.ID), zap.String("label", label), zap.String("backend", s.backend.Kind()))
	return rec, nil
}

// List returns a page of records.
func (s *Service) List(ctx context.Context, skip, limit int) ([]*Record, error) {
	return s.store.List(ctx, skip, limit)
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.store.Get(ctx, id)
}

// Count returns the number of records.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// Close closes the store and the backend when it holds a connection.
func (s *Service) Close() error {
	var errList []error
	if c, ok := s.backend.(interface{ Close() error }); ok {
		errList = append(errList, c.Close())
	}
	errList = append(errList, s.store.Close())
	if err := errors.Join(errList...); err != nil {
		return fmt.Errorf("close feedback: %w", err)
	}
	return nil
}
