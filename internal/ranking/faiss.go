//go:build faiss && cgo

package ranking

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/hyperjump/revelation/internal/errs"
	"github.com/hyperjump/revelation/internal/gallery"
	"github.com/hyperjump/revelation/internal/vector"
)

// FAISSAvailable reports whether this binary was built with FAISS support.
const FAISSAvailable = true

// FAISS fetches the Size best entries from a FAISS IndexFlatIP holding the
// gallery, rescores them and deduplicates. Like CandidatePool it falls back to
// the exact full sort when the candidates hold fewer than k distinct labels.
//
// FAISS does not promise gallery order among equal scores, so ties at the
// candidate cutoff may select different entries than Exact.
type FAISS struct {
	Size int

	mu    sync.Mutex
	src   *gallery.Index
	index *C.FaissIndexFlatIP
}

// NewFAISS returns a FAISS ranker with the given candidate count.
func NewFAISS(size int) (*FAISS, error) {
	return &FAISS{Size: size}, nil
}

// Mode returns "faiss".
func (f *FAISS) Mode() string { return "faiss" }

// Rank implements Ranker.
func (f *FAISS) Rank(query []float32, idx *gallery.Index, k int) ([]Result, error) {
	const op = "ranking.FAISS.Rank"
	k, err := prepare(op, query, idx, k)
	if err != nil {
		return nil, err
	}
	size := f.Size
	if size <= 0 {
		size = DefaultPoolSize
	}
	if size >= idx.Len() {
		return rankScores(Scores(query, idx), idx, k), nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(idx); err != nil {
		return nil, errs.Wrap(errs.ErrServiceUnavailable, op, err)
	}

	distances := make([]float32, size)
	labels := make([]int64, size)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(size),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, errs.Wrap(errs.ErrServiceUnavailable, op, fmt.Errorf("faiss search: %s", faissLastError()))
	}

	scores := make([]float64, idx.Len())
	order := make([]int, 0, size)
	for _, l := range labels {
		if l < 0 {
			continue
		}
		i := int(l)
		scores[i] = vector.Clamp(vector.Dot(query, idx.Vector(i)))
		order = append(order, i)
	}
	sort.SliceStable(order, func(a, b int) bool {
		if scores[order[a]] != scores[order[b]] {
			return scores[order[a]] > scores[order[b]]
		}
		return order[a] < order[b]
	})

	results := collect(order, scores, idx, k)
	if len(results) >= k {
		return results, nil
	}
	return rankScores(Scores(query, idx), idx, k), nil
}

// load builds the FAISS index for idx unless it already holds it.
// Callers hold f.mu.
func (f *FAISS) load(idx *gallery.Index) error {
	if f.src == idx && f.index != nil {
		return nil
	}
	f.free()

	var index *C.FaissIndexFlatIP
	if C.faiss_IndexFlatIP_new_with(&index, C.idx_t(idx.Dim())) != 0 {
		return fmt.Errorf("create faiss index: %s", faissLastError())
	}
	flat := make([]float32, 0, idx.Len()*idx.Dim())
	for i := 0; i < idx.Len(); i++ {
		flat = append(flat, idx.Vector(i)...)
	}
	if C.faiss_Index_add(index, C.idx_t(idx.Len()), (*C.float)(unsafe.Pointer(&flat[0]))) != 0 {
		C.faiss_Index_free(index)
		return fmt.Errorf("add gallery to faiss index: %s", faissLastError())
	}
	f.index = index
	f.src = idx
	return nil
}

// Close frees the native index.
func (f *FAISS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.free()
	return nil
}

func (f *FAISS) free() {
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
		f.src = nil
	}
}

func faissLastError() string {
	msg := C.faiss_get_last_error()
	if msg == nil {
		return "unknown error"
	}
	return C.GoString(msg)
}
