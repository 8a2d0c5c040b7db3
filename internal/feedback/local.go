package feedback

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/revelation/internal/errs"
)

// LocalBackend stores images under a base directory.
type LocalBackend struct {
	base string
	now  func() time.Time
}

// NewLocalBackend creates the base directory if needed.
func NewLocalBackend(base string) (*LocalBackend, error) {
	if base == "" {
		return nil, errs.Config("feedback.NewLocalBackend", "feedback directory is empty")
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, errs.IO("feedback.NewLocalBackend", fmt.Errorf("failed to create feedback directory: %w", err))
	}
	return &LocalBackend{base: base, now: time.Now}, nil
}

// Kind implements Backend.
func (b *LocalBackend) Kind() string { return KindLocal }

// Base returns the base directory.
func (b *LocalBackend) Base() string { return b.base }

// Save writes data to base/YYYY-MM-DD/<uuid><ext> and returns the path
// relative to base, with forward slashes.
func (b *LocalBackend) Save(ctx context.Context, data []byte, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel := objectName(b.now(), filename)
	full := filepath.Join(b.base, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", errs.IO("feedback.Save", fmt.Errorf("failed to create date directory: %w", err))
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", errs.IO("feedback.Save", fmt.Errorf("failed to write feedback image: %w", err))
	}
	return rel, nil
}

// Delete removes a previously saved image. Missing files are not an error.
func (b *LocalBackend) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errs.IO("feedback.Delete", fmt.Errorf("failed to remove feedback image: %w", err))
	}
	return nil
}

func (b *LocalBackend) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errs.Invalid("feedback.Delete", "path %q escapes feedback directory", path)
	}
	return filepath.Join(b.base, clean), nil
}
