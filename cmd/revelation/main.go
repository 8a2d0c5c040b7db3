// Package main is the Revelation CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/revelation/internal/cli"
	"github.com/hyperjump/revelation/internal/config"
	"github.com/hyperjump/revelation/internal/errs"
	"github.com/hyperjump/revelation/internal/feedback"
	"github.com/hyperjump/revelation/internal/gallery"
	"github.com/hyperjump/revelation/internal/metadata"
	"github.com/hyperjump/revelation/internal/models"
	"github.com/hyperjump/revelation/internal/server"
	"github.com/hyperjump/revelation/internal/storage"
	"github.com/hyperjump/revelation/pkg/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/revelation/config.yaml"
	shutdownTimeout   = 10 * time.Second
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// When no file exists at the default path, defaults plus environment overrides are used.
// Returns the config and the path that was actually loaded ("" when none was read).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg, err := config.FromEnv()
			if err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "build":
		runBuild()
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("revelation version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and creates the logger for a subcommand.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return cfg, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	// The gallery must be ready before the listener accepts traffic.
	if err := components.State.Init(ctx); err != nil {
		logger.Fatal("Failed to load gallery", zap.Error(err))
	}
	if cfg.Metadata.Watch {
		if err := components.Catalog.Watch(ctx); err != nil {
			logger.Warn("gear metadata watch disabled", zap.Error(err))
		}
	}

	opts := []server.Option{
		server.WithCatalog(components.Catalog),
		server.WithMetrics(components.Metrics),
	}
	if components.Feedback != nil {
		opts = append(opts, server.WithFeedback(components.Feedback))
	}
	srv := server.NewServer(components.State, cfg, logger, opts...)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	source := fs.String("source", "", "gallery source root (overrides config)")
	output := fs.String("output", "", "cache artifact path (overrides config)")
	noProgress := fs.Bool("no-progress", false, "disable the progress bar")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()
	if *source != "" {
		cfg.Gallery.SourceRoot = *source
	}
	if *output != "" {
		cfg.Gallery.CachePath = *output
	}
	if cfg.Gallery.SourceRoot == "" {
		fmt.Fprintln(os.Stderr, "No gallery source root configured (use --source or gallery.source_root)")
		os.Exit(1)
	}

	var progress gallery.ProgressReporter
	if !*noProgress && gallery.DefaultProgressEnabled() {
		progress = gallery.NewBarProgress(os.Stderr)
	}
	provider, builder, err := newBuilder(cfg, logger, progress)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer provider.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	idx, err := builder.Build(ctx, cfg.Gallery.SourceRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		os.Exit(1)
	}
	if err := gallery.WriteArtifact(cfg.Gallery.CachePath, idx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write cache: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Built gallery: %d entries, %d labels, dim %d in %s\n",
		idx.Len(), len(idx.DistinctLabels()), idx.Dim(), time.Since(start).Round(time.Millisecond))
	fmt.Printf("Cache written to %s\n", cfg.Gallery.CachePath)
}

// searchArgsReorder moves any flags (and their values) that appear after the image
// path to the front of the slice so that flag.Parse() sees them.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: revelation search [flags] <image>\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Without --server the gallery cache is loaded (or built) locally.

Examples:
  revelation search crop.png
  revelation search crop.png --k 5 --json
  revelation search --server http://localhost:8000 crop.png
`)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = rank locally)")
	k := fs.Int("k", 0, "number of labels to return (default from config)")
	jsonOut := fs.Bool("json", false, "print JSON")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	if fs.NArg() != 1 {
		printSearchUsage(fs)
		os.Exit(1)
	}
	imagePath := fs.Arg(0)
	data, err := os.ReadFile(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read image: %v\n", err)
		os.Exit(1)
	}
	format := cli.ParseFormat(*jsonOut)

	start := time.Now()
	var response *models.PredictionResponse
	if *serverURL != "" {
		response, err = predictViaHTTP(*serverURL, filepath.Base(imagePath), data, *k)
	} else {
		response, err = predictLocal(*configPath, *debug, data, *k)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	response.Query = imagePath
	response.QueryTime = time.Since(start).Milliseconds()
	if err := cli.WritePredictions(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func predictLocal(configPath string, debug bool, data []byte, k int) (*models.PredictionResponse, error) {
	cfg, logger := setup(configPath, debug)
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, false)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	if err := components.State.Init(ctx); err != nil {
		return nil, err
	}
	results, err := components.State.Predict(ctx, data, k)
	if err != nil {
		return nil, err
	}
	resp := models.NewPredictionResponse(components.Catalog.Catalog(), results)
	return &resp, nil
}

func predictViaHTTP(serverURL, filename string, data []byte, k int) (*models.PredictionResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	h.Set("Content-Type", imageContentType(filename))
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if k > 0 {
		if err := mw.WriteField("k", fmt.Sprint(k)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/predict", mw.FormDataContentType(), &body)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.PredictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// imageContentType guesses the upload content type from the file extension.
func imageContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	jsonOut := fs.Bool("json", false, "print JSON")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, false)
	defer logger.Sync()

	report, err := collectStatus(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, report, cli.ParseFormat(*jsonOut)); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// collectStatus reads on-disk state without loading the model.
func collectStatus(ctx context.Context, cfg *config.Config) (*cli.StatusReport, error) {
	report := &cli.StatusReport{Gallery: cli.GalleryStatus{CachePath: cfg.Gallery.CachePath}}
	report.Service.RankMode = cfg.Gallery.RankMode

	idx, err := gallery.ReadArtifact(cfg.Gallery.CachePath)
	switch {
	case err == nil:
		report.Gallery.Cached = true
		report.Gallery.Entries = idx.Len()
		report.Gallery.Labels = len(idx.DistinctLabels())
		report.Gallery.Dimensions = idx.Dim()
		report.Gallery.Version = idx.Version()
		report.Service.GalleryLoaded = true
		report.Service.Entries = idx.Len()
		report.Service.Labels = report.Gallery.Labels
		report.Service.Dimensions = idx.Dim()
		report.Service.GalleryVersion = idx.Version()
	case errors.Is(err, errs.ErrIO):
		// Missing or unreadable cache reports as not built.
	default:
		return nil, err
	}

	catalog, err := metadata.LoadCatalog(cfg.Metadata.TablePath)
	if err == nil {
		report.CatalogItems = catalog.Len()
		_ = catalog.Close()
	}

	if _, statErr := os.Stat(cfg.Feedback.DatabasePath); statErr == nil {
		store, err := feedback.OpenStore(cfg.Feedback.DatabasePath)
		if err != nil {
			return nil, err
		}
		report.FeedbackRecords, err = store.Count(ctx)
		_ = store.Close()
		if err != nil {
			return nil, err
		}
	}

	report.Disk, err = storage.Measure(storage.PathsFor(cfg))
	if err != nil {
		return nil, err
	}
	return report, nil
}

func printUsage() {
	fmt.Println(`revelation - Visual similarity search over a labeled image gallery

Usage:
  revelation server [flags]           Start the HTTP server
  revelation build [flags]            Build the gallery cache from the source tree
  revelation search [flags] <image>   Rank an image against the gallery
  revelation status [flags]           Show gallery, catalog and feedback status
  revelation version                  Show version
  revelation help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/revelation/config.yaml)
  --debug            Enable debug logging

Build Flags:
  --config string    Config file path
  --source string    Gallery source root (overrides config)
  --output string    Cache artifact path (overrides config)
  --no-progress      Disable the progress bar

Search Flags:
  --config string    Config file path (local mode)
  --server string    Server URL; empty ranks locally
  --k int            Number of labels to return (default from config)
  --json             Print JSON

Status Flags:
  --config string    Config file path
  --json             Print JSON

Environment:
  REVELATION_GALLERY_ROOT, REVELATION_GALLERY_CACHE, REVELATION_MODEL_PATH, PORT, DEBUG,
  STORAGE_TYPE, FEEDBACK_STORAGE_DIR, FEEDBACK_DB_PATH, GEAR_MODEL_INFO_CSV, NATS_URL.
  A .env file in the working directory is loaded first.

Examples:
  revelation build --source ./gallery
  revelation server
  revelation search crop.png --k 5
  revelation search --json crop.png
  revelation status --json`)
}
