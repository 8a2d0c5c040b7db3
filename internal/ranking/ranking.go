// Package ranking produces deduplicated top-K label rankings of a query
// vector against a gallery.
//
// Scores are inner products of L2-normalized vectors, so they equal cosine
// similarity in [-1, 1]. Each label appears at most once in a result, carrying
// its best score. Entries with equal scores keep their gallery order.
package ranking

import (
	"math"
	"sort"

	"github.com/hyperjump/revelation/internal/errs"
	"github.com/hyperjump/revelation/internal/gallery"
	"github.com/hyperjump/revelation/internal/vector"
)

// DefaultK replaces a non-positive k.
const DefaultK = 10

// Result is one ranked label.
type Result struct {
	Rank  int     `json:"rank"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Ranker ranks a query against a gallery.
type Ranker interface {
	Rank(query []float32, idx *gallery.Index, k int) ([]Result, error)
	Mode() string
}

// Exact scores every entry, stable-sorts all of them by score and emits
// labels first-seen-wins. It is the reference behavior.
type Exact struct{}

// Mode returns "exact".
func (Exact) Mode() string { return "exact" }

// Rank implements Ranker.
func (Exact) Rank(query []float32, idx *gallery.Index, k int) ([]Result, error) {
	return Rank(query, idx, k)
}

// Rank returns up to k distinct labels ordered by their best score. A
// non-positive k is replaced by DefaultK. The result is shorter than k when
// the gallery holds fewer distinct labels.
func Rank(query []float32, idx *gallery.Index, k int) ([]Result, error) {
	k, err := prepare("ranking.Rank", query, idx, k)
	if err != nil {
		return nil, err
	}
	return rankScores(Scores(query, idx), idx, k), nil
}

// rankScores stable-sorts every entry by score and collects k labels.
func rankScores(scores []float64, idx *gallery.Index, k int) []Result {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return collect(order, scores, idx, k)
}

// Scores returns the clamped cosine score of query against every entry.
func Scores(query []float32, idx *gallery.Index) []float64 {
	scores := make([]float64, idx.Len())
	for i := range scores {
		scores[i] = vector.Clamp(vector.Dot(query, idx.Vector(i)))
	}
	return scores
}

// prepare validates inputs and resolves k.
func prepare(op string, query []float32, idx *gallery.Index, k int) (int, error) {
	if idx.Len() == 0 {
		return 0, errs.Unavailable(op, "gallery not loaded")
	}
	if len(query) != idx.Dim() {
		return 0, errs.Invalid(op, "query dimension %d does not match gallery dimension %d", len(query), idx.Dim())
	}
	for _, v := range query {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return 0, errs.Invalid(op, "query contains non-finite values")
		}
	}
	if !vector.IsNormalized(query) {
		return 0, errs.Invalid(op, "query is not unit length (norm %.4f)", vector.L2Norm(query))
	}
	if k <= 0 {
		k = DefaultK
	}
	return k, nil
}

// collect walks order once and emits each label at its first (best) position,
// stopping after k labels.
func collect(order []int, scores []float64, idx *gallery.Index, k int) []Result {
	set := newLabelSet(min(k, len(order)))
	for _, i := range order {
		set.offer(idx.Label(i), scores[i])
		if set.Len() == k {
			break
		}
	}
	return set.Results()
}
