package ranking

import (
	"container/heap"
	"sort"

	"github.com/hyperjump/revelation/internal/errs"
	"github.com/hyperjump/revelation/internal/gallery"
)

// DefaultPoolSize is the candidate pool size used when none is configured.
const DefaultPoolSize = 50

// CandidatePool is a two-stage performance mode. It selects the Size
// highest-scoring entries with a bounded heap instead of sorting the whole
// gallery, deduplicates within that pool, and only falls back to the exact
// full sort when the pool holds fewer than k distinct labels.
//
// Selection breaks score ties by gallery order, so the pool is always a
// prefix of the exact ordering and results match Exact. The cost is a
// second full pass whenever near-duplicate references crowd the pool, which
// makes this mode slower than Exact for large k or small Size.
type CandidatePool struct {
	Size int
}

// Mode returns "candidate_pool".
func (CandidatePool) Mode() string { return "candidate_pool" }

// Rank implements Ranker.
func (c CandidatePool) Rank(query []float32, idx *gallery.Index, k int) ([]Result, error) {
	k, err := prepare("ranking.CandidatePool.Rank", query, idx, k)
	if err != nil {
		return nil, err
	}
	size := c.Size
	if size <= 0 {
		size = DefaultPoolSize
	}
	scores := Scores(query, idx)
	if size >= len(scores) {
		return rankScores(scores, idx, k), nil
	}

	results := collect(topN(scores, size), scores, idx, k)
	if len(results) >= k {
		return results, nil
	}
	return rankScores(scores, idx, k), nil
}

// topN returns the indices of the n best scores, best first, ties by index.
func topN(scores []float64, n int) []int {
	h := &minHeap{scores: scores, idx: make([]int, 0, n)}
	for i := range scores {
		if h.Len() < n {
			heap.Push(h, i)
			continue
		}
		if h.better(i, h.idx[0]) {
			h.idx[0] = i
			heap.Fix(h, 0)
		}
	}
	out := h.idx
	sort.Slice(out, func(a, b int) bool { return h.better(out[a], out[b]) })
	return out
}

// minHeap keeps the worst retained candidate at the root.
type minHeap struct {
	scores []float64
	idx    []int
}

// better orders by score descending, then gallery index ascending.
func (h *minHeap) better(a, b int) bool {
	if h.scores[a] != h.scores[b] {
		return h.scores[a] > h.scores[b]
	}
	return a < b
}

func (h *minHeap) Len() int           { return len(h.idx) }
func (h *minHeap) Less(i, j int) bool { return h.better(h.idx[j], h.idx[i]) }
func (h *minHeap) Swap(i, j int)      { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }
func (h *minHeap) Push(x any)         { h.idx = append(h.idx, x.(int)) }
func (h *minHeap) Pop() any {
	old := h.idx
	n := len(old)
	x := old[n-1]
	h.idx = old[:n-1]
	return x
}

// New returns the Ranker for mode ("exact", "candidate_pool" or "faiss").
// poolSize is the candidate count of the two-stage modes.
func New(mode string, poolSize int) (Ranker, error) {
	switch mode {
	case "", "exact":
		return Exact{}, nil
	case "candidate_pool":
		return CandidatePool{Size: poolSize}, nil
	case "faiss":
		return NewFAISS(poolSize)
	default:
		return nil, errs.Config("ranking.New", "unknown rank mode %q", mode)
	}
}
