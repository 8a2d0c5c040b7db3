package config

import (
	"fmt"
	"strings"

	"github.com/hyperjump/revelation/internal/errs"
)

// Validate checks the numeric and enumerated settings.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Model.Provider {
	case "onnx", "mock":
	default:
		add("model.provider %q must be onnx or mock", c.Model.Provider)
	}
	if c.Model.Dimensions <= 0 {
		add("model.dimensions must be positive")
	}
	if c.Model.ImageSize <= 0 {
		add("model.image_size must be positive")
	}
	if c.Gallery.BatchSize <= 0 {
		add("gallery.batch_size must be positive")
	}
	if c.Gallery.Concurrency <= 0 {
		add("gallery.concurrency must be positive")
	}
	switch c.Gallery.RankMode {
	case RankModeExact:
	case RankModeCandidatePool, RankModeFAISS:
		if c.Gallery.CandidatePoolSize <= 0 {
			add("gallery.candidate_pool_size must be positive")
		}
	default:
		add("gallery.rank_mode %q must be %s, %s or %s", c.Gallery.RankMode, RankModeExact, RankModeCandidatePool, RankModeFAISS)
	}
	if c.Search.MaxK <= 0 {
		add("search.max_k must be positive")
	}
	if c.Search.DefaultK < 1 || c.Search.DefaultK > c.Search.MaxK {
		add("search.default_k %d must be within [1, %d]", c.Search.DefaultK, c.Search.MaxK)
	}
	if c.Workers.Count <= 0 {
		add("workers.count must be positive")
	}
	if c.Workers.QueueSize <= 0 {
		add("workers.queue_size must be positive")
	}
	switch c.Feedback.Storage {
	case "local", "objectstore":
	default:
		add("feedback.storage %q must be local or objectstore", c.Feedback.Storage)
	}

	if len(problems) > 0 {
		return errs.Config("config.Validate", "%s", strings.Join(problems, "; "))
	}
	return nil
}
