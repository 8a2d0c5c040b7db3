package gallery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/hyperjump/revelation/internal/errs"
	"go.uber.org/zap"
)

// Origin says where a loaded Index came from.
type Origin string

const (
	OriginCache Origin = "cache"
	OriginBuild Origin = "build"
)

// Report describes a LoadOrBuild run.
type Report struct {
	Origin   Origin
	Entries  int
	Labels   int
	Elapsed  time.Duration
	CacheErr error // cache read failure that caused a rebuild, if any
	// PersistErr is set when the built gallery could not be written. The
	// returned Index is still valid.
	PersistErr error
}

// Loader resolves the startup gallery from a cache artifact or a source tree.
type Loader struct {
	builder *Builder
	logger  *zap.Logger
}

// NewLoader returns a Loader that builds with b when no cache is usable.
func NewLoader(b *Builder, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{builder: b, logger: logger}
}

// LoadOrBuild returns the gallery at cachePath when it exists and validates.
// Otherwise it builds from sourceRoot and writes the result to cachePath.
// Either path may be empty. With no usable cache and no usable source the
// error matches errs.ErrConfig.
func (l *Loader) LoadOrBuild(ctx context.Context, cachePath, sourceRoot string) (*Index, *Report, error) {
	const op = "gallery.LoadOrBuild"
	start := time.Now()
	report := &Report{}

	if cachePath != "" {
		idx, err := ReadArtifact(cachePath)
		switch {
		case err == nil && l.dimensions() > 0 && idx.Dim() != l.dimensions():
			report.CacheErr = errs.IO(op, fmt.Errorf("cache dimension %d does not match model dimension %d", idx.Dim(), l.dimensions()))
		case err == nil && idx.Len() > 0:
			l.checkVersion(idx)
			report.Origin = OriginCache
			report.Entries = idx.Len()
			report.Labels = len(idx.DistinctLabels())
			report.Elapsed = time.Since(start)
			l.logger.Info("gallery loaded from cache",
				zap.String("path", cachePath),
				zap.Int("entries", report.Entries),
				zap.Int("labels", report.Labels))
			return idx, report, nil
		case err == nil:
			report.CacheErr = errs.IO(op, errors.New("cache artifact is empty"))
		case errors.Is(err, fs.ErrNotExist):
			l.logger.Debug("no gallery cache", zap.String("path", cachePath))
		default:
			report.CacheErr = err
		}
		if report.CacheErr != nil {
			l.logger.Warn("gallery cache unusable", zap.String("path", cachePath), zap.Error(report.CacheErr))
		}
	}

	if sourceRoot == "" {
		return nil, report, l.noSource(op, report.CacheErr, "no gallery source configured")
	}
	if info, err := os.Stat(sourceRoot); err != nil || !info.IsDir() {
		return nil, report, l.noSource(op, report.CacheErr, "gallery source "+sourceRoot+" is not a directory")
	}

	idx, err := l.builder.Build(ctx, sourceRoot)
	if err != nil {
		return nil, report, err
	}
	report.Origin = OriginBuild
	report.Entries = idx.Len()
	report.Labels = len(idx.DistinctLabels())

	if cachePath != "" {
		if err := WriteArtifact(cachePath, idx); err != nil {
			report.PersistErr = err
			l.logger.Warn("failed to persist gallery cache", zap.String("path", cachePath), zap.Error(err))
		} else {
			l.logger.Info("gallery cache written", zap.String("path", cachePath))
		}
	}
	report.Elapsed = time.Since(start)
	return idx, report, nil
}

func (l *Loader) noSource(op string, cacheErr error, reason string) error {
	if cacheErr != nil {
		return errs.Wrap(errs.ErrConfig, op+": neither cache nor source available: "+reason, cacheErr)
	}
	return errs.Config(op, "neither cache nor source available: %s", reason)
}

func (l *Loader) dimensions() int {
	if l.builder == nil || l.builder.provider == nil {
		return 0
	}
	return l.builder.provider.Dimensions()
}

func (l *Loader) checkVersion(idx *Index) {
	if l.builder == nil || l.builder.provider == nil {
		return
	}
	want := l.builder.provider.Version()
	if idx.Version() != "" && want != "" && idx.Version() != want {
		l.logger.Warn("gallery cache was built with a different model",
			zap.String("cache_version", idx.Version()),
			zap.String("model_version", want))
	}
}
