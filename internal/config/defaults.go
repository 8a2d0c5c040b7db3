package config

import "runtime"

// Default values applied by ApplyDefaults.
const (
	DefaultPort              = 8000
	DefaultDimensions        = 512
	DefaultImageSize         = 512
	DefaultBatchSize         = 128
	DefaultCandidatePoolSize = 50
	DefaultK                 = 10
	DefaultMaxK              = 50
	DefaultQueueSize         = 64
	DefaultCacheSize         = 256
	DefaultBuildConcurrency  = 4
)

// DefaultExtensions is the gallery image extension allowlist.
var DefaultExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = "onnx"
	}
	if cfg.Model.ModelPath == "" {
		cfg.Model.ModelPath = "/usr/local/var/revelation/models/aethersight.onnx"
	}
	if cfg.Model.Dimensions == 0 {
		cfg.Model.Dimensions = DefaultDimensions
	}
	if cfg.Model.ImageSize == 0 {
		cfg.Model.ImageSize = DefaultImageSize
	}
	if cfg.Model.InputName == "" {
		cfg.Model.InputName = "input"
	}
	if cfg.Model.OutputName == "" {
		cfg.Model.OutputName = "embedding"
	}
	if cfg.Model.CacheSize == 0 {
		cfg.Model.CacheSize = DefaultCacheSize
	}
	if cfg.Gallery.CachePath == "" {
		cfg.Gallery.CachePath = "/usr/local/var/revelation/data/aethersight_gallery.rvg"
	}
	if cfg.Gallery.BatchSize == 0 {
		cfg.Gallery.BatchSize = DefaultBatchSize
	}
	if cfg.Gallery.Concurrency == 0 {
		cfg.Gallery.Concurrency = DefaultBuildConcurrency
	}
	if cfg.Gallery.Extensions == nil {
		cfg.Gallery.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if cfg.Gallery.RankMode == "" {
		cfg.Gallery.RankMode = RankModeExact
	}
	if cfg.Gallery.CandidatePoolSize == 0 {
		cfg.Gallery.CandidatePoolSize = DefaultCandidatePoolSize
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = DefaultK
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = DefaultMaxK
	}
	if cfg.Workers.Count == 0 {
		cfg.Workers.Count = runtime.NumCPU()
	}
	if cfg.Workers.QueueSize == 0 {
		cfg.Workers.QueueSize = DefaultQueueSize
	}
	if cfg.Feedback.Storage == "" {
		cfg.Feedback.Storage = "local"
	}
	if cfg.Feedback.Dir == "" {
		cfg.Feedback.Dir = "/usr/local/var/revelation/feedback"
	}
	if cfg.Feedback.DatabasePath == "" {
		cfg.Feedback.DatabasePath = "/usr/local/var/revelation/data/feedback.db"
	}
	if cfg.Feedback.Bucket == "" {
		cfg.Feedback.Bucket = "revelation-feedback"
	}
}
