// Package config provides configuration loading and structs for the Revelation server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rank modes accepted by GalleryConfig.RankMode.
const (
	RankModeExact         = "exact"
	RankModeCandidatePool = "candidate_pool"
	RankModeFAISS         = "faiss"
)

// Config holds all configuration for the application.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Model    ModelConfig    `yaml:"model"`
	Gallery  GalleryConfig  `yaml:"gallery"`
	Search   SearchConfig   `yaml:"search"`
	Workers  WorkerConfig   `yaml:"workers"`
	Feedback FeedbackConfig `yaml:"feedback"`
	Metadata MetadataConfig `yaml:"metadata"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ModelConfig holds embedding provider settings.
type ModelConfig struct {
	Provider       string `yaml:"provider"`
	ModelPath      string `yaml:"model_path"`
	RuntimeLibrary string `yaml:"onnxruntime_library"`
	Dimensions     int    `yaml:"dimensions"`
	ImageSize      int    `yaml:"image_size"`
	InputName      string `yaml:"input_name"`
	OutputName     string `yaml:"output_name"`
	CacheSize      int    `yaml:"cache_size"`
	DisableGPU     bool   `yaml:"disable_gpu"`
}

// GalleryConfig holds gallery build and cache settings.
type GalleryConfig struct {
	SourceRoot        string   `yaml:"source_root"`
	CachePath         string   `yaml:"cache_path"`
	BatchSize         int      `yaml:"batch_size"`
	Concurrency       int      `yaml:"concurrency"`
	Extensions        []string `yaml:"extensions"`
	Exclude           []string `yaml:"exclude"`
	RankMode          string   `yaml:"rank_mode"`
	CandidatePoolSize int      `yaml:"candidate_pool_size"`
}

// SearchConfig holds ranking request limits.
type SearchConfig struct {
	DefaultK int `yaml:"default_k"`
	MaxK     int `yaml:"max_k"`
}

// WorkerConfig sizes the request-time compute pool.
type WorkerConfig struct {
	Count     int `yaml:"count"`
	QueueSize int `yaml:"queue_size"`
}

// FeedbackConfig holds feedback image storage and log settings.
type FeedbackConfig struct {
	Storage      string `yaml:"storage"`
	Dir          string `yaml:"dir"`
	DatabasePath string `yaml:"database_path"`
	NATSURL      string `yaml:"nats_url"`
	Bucket       string `yaml:"bucket"`
}

// MetadataConfig points at the gear metadata table.
type MetadataConfig struct {
	TablePath string `yaml:"table_path"`
	Watch     bool   `yaml:"watch"`
}

// Address returns host:port for the HTTP listener.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads and parses the config file at path, expands paths, applies defaults
// and environment overrides. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := finalize(&cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv builds a config from defaults and environment overrides alone.
// Relative paths resolve against the working directory.
func FromEnv() (*Config, error) {
	var cfg Config
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	if err := finalize(&cfg, cwd); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func finalize(cfg *Config, configDir string) error {
	ApplyDefaults(cfg)
	ApplyEnv(cfg, os.LookupEnv)

	cfg.Model.ModelPath = expandPath(cfg.Model.ModelPath, configDir)
	cfg.Gallery.SourceRoot = expandPath(cfg.Gallery.SourceRoot, configDir)
	cfg.Gallery.CachePath = expandPath(cfg.Gallery.CachePath, configDir)
	cfg.Feedback.Dir = expandPath(cfg.Feedback.Dir, configDir)
	cfg.Feedback.DatabasePath = expandPath(cfg.Feedback.DatabasePath, configDir)
	cfg.Metadata.TablePath = expandPath(cfg.Metadata.TablePath, configDir)

	return cfg.Validate()
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
