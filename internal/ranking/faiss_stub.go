//go:build !faiss || !cgo

package ranking

import (
	"github.com/hyperjump/revelation/internal/errs"
	"github.com/hyperjump/revelation/internal/gallery"
)

// FAISSAvailable reports whether this binary was built with FAISS support.
const FAISSAvailable = false

// FAISS is unavailable without the faiss build tag and cgo.
type FAISS struct {
	Size int
}

// NewFAISS fails unless the binary is built with -tags=faiss.
func NewFAISS(size int) (*FAISS, error) {
	return nil, errs.Config("ranking.NewFAISS", "faiss not available: build with -tags=faiss and install libfaiss_c")
}

// Mode returns "faiss".
func (f *FAISS) Mode() string { return "faiss" }

// Rank always fails.
func (f *FAISS) Rank(query []float32, idx *gallery.Index, k int) ([]Result, error) {
	return nil, errs.Unavailable("ranking.FAISS.Rank", "faiss not available")
}

// Close is a no-op.
func (f *FAISS) Close() error { return nil }
