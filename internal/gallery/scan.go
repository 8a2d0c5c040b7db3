package gallery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hyperjump/revelation/internal/errs"
)

// Source is one reference image on disk.
type Source struct {
	Label string
	Path  string
}

// ScanOptions filters the source tree.
type ScanOptions struct {
	// Extensions is the case-insensitive allowlist, e.g. ".png".
	Extensions []string
	// Exclude holds doublestar patterns matched against "label/file" and the file name.
	Exclude []string
}

// Scan lists reference images under root. Each immediate subdirectory is a
// label; its regular files passing the filters are that label's images.
// Labels and files are visited in lexicographic order so repeated scans of
// identical input yield identical sequences. Hidden entries are skipped.
func Scan(root string, opts ScanOptions) ([]Source, error) {
	const op = "gallery.Scan"
	info, err := os.Stat(root)
	if err != nil {
		return nil, errs.Config(op, "gallery source %s: %v", root, err)
	}
	if !info.IsDir() {
		return nil, errs.Config(op, "gallery source %s is not a directory", root)
	}
	allowed := extensionSet(opts.Extensions)

	labelDirs, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read gallery source: %w", err)
	}
	var out []Source
	for _, d := range labelDirs {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		label := d.Name()
		files, err := os.ReadDir(filepath.Join(root, label))
		if err != nil {
			return nil, fmt.Errorf("read label dir %s: %w", label, err)
		}
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || strings.HasPrefix(name, ".") {
				continue
			}
			if _, ok := allowed[strings.ToLower(filepath.Ext(name))]; !ok {
				continue
			}
			if excluded(label+"/"+name, name, opts.Exclude) {
				continue
			}
			out = append(out, Source{Label: label, Path: filepath.Join(root, label, name)})
		}
	}
	return out, nil
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return set
}

func excluded(relPath, base string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, relPath); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, base); ok {
			return true
		}
	}
	return false
}
