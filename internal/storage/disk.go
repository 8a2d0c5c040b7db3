// Package storage measures the on-disk footprint of the service's persistent
// state for status reporting.
package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hyperjump/revelation/internal/config"
)

// sqliteSidecars are the files SQLite keeps next to a WAL-mode database.
var sqliteSidecars = []string{"-wal", "-shm"}

// Paths names the locations Measure inspects. Empty paths are skipped.
type Paths struct {
	GalleryCache string
	FeedbackDB   string
	FeedbackDir  string
}

// PathsFor returns the persistent locations configured in cfg.
func PathsFor(cfg *config.Config) Paths {
	return Paths{
		GalleryCache: cfg.Gallery.CachePath,
		FeedbackDB:   cfg.Feedback.DatabasePath,
		FeedbackDir:  cfg.Feedback.Dir,
	}
}

// Usage is the size in bytes of each persistent component.
type Usage struct {
	GalleryCacheBytes  int64 `json:"gallery_cache_bytes"`
	FeedbackDBBytes    int64 `json:"feedback_db_bytes"`
	FeedbackImageBytes int64 `json:"feedback_image_bytes"`
	FeedbackImageCount int   `json:"feedback_images"`
}

// Total is the sum of all components.
func (u Usage) Total() int64 {
	return u.GalleryCacheBytes + u.FeedbackDBBytes + u.FeedbackImageBytes
}

// Measure sizes each component of p. Missing files count as zero; the
// feedback database includes its WAL sidecars.
func Measure(p Paths) (Usage, error) {
	var u Usage
	var err error
	if u.GalleryCacheBytes, err = fileSize(p.GalleryCache); err != nil {
		return Usage{}, err
	}
	if p.FeedbackDB != "" {
		for _, suffix := range append([]string{""}, sqliteSidecars...) {
			n, err := fileSize(p.FeedbackDB + suffix)
			if err != nil {
				return Usage{}, err
			}
			u.FeedbackDBBytes += n
		}
	}
	if u.FeedbackImageBytes, u.FeedbackImageCount, err = dirSize(p.FeedbackDir); err != nil {
		return Usage{}, err
	}
	return u, nil
}

func fileSize(path string) (int64, error) {
	if path == "" {
		return 0, nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, nil
	}
	return info.Size(), nil
}

// dirSize sums regular files under dir.
func dirSize(dir string) (int64, int, error) {
	if dir == "" {
		return 0, 0, nil
	}
	var total int64
	var count int
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		count++
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, 0, nil
	}
	return total, count, err
}
