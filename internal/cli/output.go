// Package cli provides CLI output helpers for Revelation.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperjump/revelation/internal/models"
	"github.com/hyperjump/revelation/internal/service"
	"github.com/hyperjump/revelation/internal/storage"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a --json flag to a format.
func ParseFormat(jsonOut bool) OutputFormat {
	if jsonOut {
		return OutputJSON
	}
	return OutputText
}

// WritePredictions writes ranked predictions to w in the given format.
func WritePredictions(w io.Writer, response *models.PredictionResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	default:
		writePredictionsText(w, response)
		return nil
	}
}

func writePredictionsText(w io.Writer, response *models.PredictionResponse) {
	fmt.Fprintf(w, "\n%d results", len(response.Results))
	if response.Query != "" {
		fmt.Fprintf(w, " for %s", response.Query)
	}
	fmt.Fprintf(w, " in %dms\n\n", response.QueryTime)
	for _, p := range response.Results {
		fmt.Fprintf(w, "%3d. %-40s %.4f\n", p.Rank, Truncate(p.Label, 40), p.Score)
		if len(p.SameModelGears) > 0 {
			names := make([]string, len(p.SameModelGears))
			for i, s := range p.SameModelGears {
				names[i] = s.Name + "_" + s.ID
			}
			fmt.Fprintf(w, "     same model: %s\n", TruncateWords(strings.Join(names, ", "), 12))
		}
	}
	fmt.Fprintln(w)
}

// PrintPredictions prints predictions to stdout in text format.
func PrintPredictions(response *models.PredictionResponse) {
	_ = WritePredictions(os.Stdout, response, OutputText)
}

// StatusReport is what `revelation status` prints.
type StatusReport struct {
	Gallery         GalleryStatus  `json:"gallery"`
	Service         service.Status `json:"service"`
	CatalogItems    int            `json:"catalog_items"`
	FeedbackRecords int64          `json:"feedback_records"`
	Disk            storage.Usage  `json:"disk"`
}

// GalleryStatus describes the gallery cache on disk.
type GalleryStatus struct {
	CachePath  string `json:"cache_path"`
	Cached     bool   `json:"cached"`
	Entries    int    `json:"entries"`
	Labels     int    `json:"labels"`
	Dimensions int    `json:"dimensions"`
	Version    string `json:"version,omitempty"`
}

// WriteStatus writes a status report to w in the given format.
func WriteStatus(w io.Writer, report *StatusReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	g := report.Gallery
	fmt.Fprintf(w, "Gallery cache:     %s\n", g.CachePath)
	if g.Cached {
		fmt.Fprintf(w, "  entries:         %d\n", g.Entries)
		fmt.Fprintf(w, "  labels:          %d\n", g.Labels)
		fmt.Fprintf(w, "  dimensions:      %d\n", g.Dimensions)
		fmt.Fprintf(w, "  model version:   %s\n", g.Version)
	} else {
		fmt.Fprintln(w, "  (not built)")
	}
	fmt.Fprintf(w, "Rank mode:         %s\n", report.Service.RankMode)
	fmt.Fprintf(w, "Catalog items:     %d\n", report.CatalogItems)
	fmt.Fprintf(w, "Feedback records:  %d\n", report.FeedbackRecords)
	d := report.Disk
	fmt.Fprintf(w, "Disk usage:        %s\n", FormatBytes(d.Total()))
	fmt.Fprintf(w, "  gallery cache:   %s\n", FormatBytes(d.GalleryCacheBytes))
	fmt.Fprintf(w, "  feedback db:     %s\n", FormatBytes(d.FeedbackDBBytes))
	fmt.Fprintf(w, "  feedback images: %s (%d files)\n", FormatBytes(d.FeedbackImageBytes), d.FeedbackImageCount)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
