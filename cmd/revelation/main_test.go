package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/revelation/internal/config"
	"github.com/hyperjump/revelation/internal/feedback"
	"github.com/hyperjump/revelation/internal/gallery"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after image are moved first",
			args:     []string{"crop.png", "-k", "5"},
			expected: []string{"-k", "5", "crop.png"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-json", "crop.png"},
			expected: []string{"-json", "crop.png"},
		},
		{
			name:     "image only returns unchanged",
			args:     []string{"crop.png"},
			expected: []string{"crop.png"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestImageContentType(t *testing.T) {
	tests := map[string]string{
		"a.PNG":  "image/png",
		"a.webp": "image/webp",
		"a.jpg":  "image/jpeg",
		"a":      "image/jpeg",
	}
	for name, want := range tests {
		if got := imageContentType(name); got != want {
			t.Errorf("imageContentType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
gallery:
  cache_path: "./gallery.bin"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while configPath from t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "")

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Gallery.CachePath = filepath.Join(dir, "gallery.bin")
	cfg.Feedback.DatabasePath = filepath.Join(dir, "feedback.db")
	cfg.Feedback.Dir = filepath.Join(dir, "feedback")
	cfg.Metadata.TablePath = filepath.Join(dir, "gears.csv")
	return cfg
}

func TestCollectStatus_NothingBuilt(t *testing.T) {
	cfg := testConfig(t)
	report, err := collectStatus(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if report.Gallery.Cached || report.FeedbackRecords != 0 || report.CatalogItems != 0 {
		t.Errorf("report = %+v", report)
	}
	if report.Service.RankMode != "exact" {
		t.Errorf("rank mode = %q", report.Service.RankMode)
	}
}

func TestCollectStatus(t *testing.T) {
	cfg := testConfig(t)
	idx, err := gallery.NewIndex(2, []gallery.Entry{
		{Label: "Axe_1", Vector: []float32{1, 0}},
		{Label: "Axe_1", Vector: []float32{0, 1}},
		{Label: "Bow_2", Vector: []float32{1, 0}},
	}, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if err := gallery.WriteArtifact(cfg.Gallery.CachePath, idx); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.Metadata.TablePath, []byte("id,name,model_path\n1,Axe,m/a\n2,Bow,m/b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := feedback.OpenStore(cfg.Feedback.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create(context.Background(), "2024-01-01/a.jpg", "Axe_1"); err != nil {
		t.Fatal(err)
	}
	store.Close()

	report, err := collectStatus(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	g := report.Gallery
	if !g.Cached || g.Entries != 3 || g.Labels != 2 || g.Dimensions != 2 || g.Version != "v1" {
		t.Errorf("gallery = %+v", g)
	}
	if report.CatalogItems != 2 || report.FeedbackRecords != 1 {
		t.Errorf("catalog=%d feedback=%d", report.CatalogItems, report.FeedbackRecords)
	}
	if report.Disk.GalleryCacheBytes <= 0 || report.Disk.FeedbackDBBytes <= 0 {
		t.Errorf("disk usage = %+v", report.Disk)
	}
}
