// Package gallery builds, persists and loads the in-memory gallery of labeled
// embedding vectors that query images are ranked against.
package gallery

import (
	"fmt"

	"github.com/hyperjump/revelation/internal/errs"
)

// Entry is one labeled reference vector. A label may appear in many entries.
type Entry struct {
	Label  string
	Vector []float32
}

// Index is an immutable, ordered collection of entries sharing one dimension.
// Vectors are stored row-major in a single slice. Concurrent reads are safe;
// nothing mutates an Index after construction.
type Index struct {
	dim     int
	labels  []string
	data    []float32
	version string
}

// NewIndex copies entries into a new Index. Every vector must have length dim.
// version records the provider identity that produced the vectors.
func NewIndex(dim int, entries []Entry, version string) (*Index, error) {
	if dim <= 0 {
		return nil, errs.Invalid("gallery.NewIndex", "dimension must be positive, got %d", dim)
	}
	idx := &Index{
		dim:     dim,
		labels:  make([]string, len(entries)),
		data:    make([]float32, 0, len(entries)*dim),
		version: version,
	}
	for i, e := range entries {
		if len(e.Vector) != dim {
			return nil, errs.Invalid("gallery.NewIndex",
				"entry %d (%s) has dimension %d, want %d", i, e.Label, len(e.Vector), dim)
		}
		idx.labels[i] = e.Label
		idx.data = append(idx.data, e.Vector...)
	}
	return idx, nil
}

// newIndexFromMatrix adopts labels and a row-major matrix without copying.
func newIndexFromMatrix(dim int, labels []string, data []float32, version string) (*Index, error) {
	if len(data) != len(labels)*dim {
		return nil, fmt.Errorf("matrix has %d values, want %d rows x %d", len(data), len(labels), dim)
	}
	return &Index{dim: dim, labels: labels, data: data, version: version}, nil
}

// Len returns the number of entries.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.labels)
}

// Dim returns the shared vector dimension.
func (x *Index) Dim() int {
	return x.dim
}

// Version returns the provider identity recorded at build time.
func (x *Index) Version() string {
	return x.version
}

// Label returns the label of entry i.
func (x *Index) Label(i int) string {
	return x.labels[i]
}

// Vector returns a read-only view of entry i's vector. Callers must not modify it.
func (x *Index) Vector(i int) []float32 {
	return x.data[i*x.dim : (i+1)*x.dim : (i+1)*x.dim]
}

// Entry returns a copy of entry i.
func (x *Index) Entry(i int) Entry {
	v := make([]float32, x.dim)
	copy(v, x.Vector(i))
	return Entry{Label: x.labels[i], Vector: v}
}

// DistinctLabels returns each label once, in order of first appearance.
func (x *Index) DistinctLabels() []string {
	seen := make(map[string]struct{}, len(x.labels))
	out := make([]string, 0)
	for _, l := range x.labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
