package ranking

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/hyperjump/revelation/internal/errs"
	"github.com/hyperjump/revelation/internal/gallery"
	"github.com/hyperjump/revelation/internal/vector"
)

// scored returns a 2-d unit vector whose dot with (1, 0) is s.
func scored(s float64) []float32 {
	return []float32{float32(s), float32(math.Sqrt(1 - s*s))}
}

var query2 = []float32{1, 0}

func scenarioIndex(t *testing.T) *gallery.Index {
	t.Helper()
	idx, err := gallery.NewIndex(2, []gallery.Entry{
		{Label: "A", Vector: scored(0.90)},
		{Label: "A", Vector: scored(0.95)},
		{Label: "B", Vector: scored(0.80)},
		{Label: "C", Vector: scored(0.99)},
	}, "test")
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

type want struct {
	label string
	score float64
}

func assertResults(t *testing.T, got []Result, expected []want) {
	t.Helper()
	if len(got) != len(expected) {
		t.Fatalf("got %d results %+v, want %d", len(got), got, len(expected))
	}
	for i, w := range expected {
		if got[i].Rank != i+1 {
			t.Errorf("result %d rank = %d", i, got[i].Rank)
		}
		if got[i].Label != w.label {
			t.Errorf("result %d label = %s, want %s", i, got[i].Label, w.label)
		}
		if math.Abs(got[i].Score-w.score) > 1e-6 {
			t.Errorf("result %d score = %v, want %v", i, got[i].Score, w.score)
		}
	}
}

func TestRank_Scenarios(t *testing.T) {
	idx := scenarioIndex(t)
	for _, r := range []Ranker{Exact{}, CandidatePool{Size: 2}, CandidatePool{Size: 3}, CandidatePool{}} {
		t.Run(r.Mode(), func(t *testing.T) {
			got, err := r.Rank(query2, idx, 2)
			if err != nil {
				t.Fatal(err)
			}
			assertResults(t, got, []want{{"C", 0.99}, {"A", 0.95}})

			got, err = r.Rank(query2, idx, 10)
			if err != nil {
				t.Fatal(err)
			}
			assertResults(t, got, []want{{"C", 0.99}, {"A", 0.95}, {"B", 0.80}})
		})
	}
}

func TestRank_EmptyGallery(t *testing.T) {
	empty, err := gallery.NewIndex(2, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range []Ranker{Exact{}, CandidatePool{Size: 5}} {
		if _, err := r.Rank(query2, empty, 3); !errors.Is(err, errs.ErrServiceUnavailable) {
			t.Errorf("%s: err = %v, want ErrServiceUnavailable", r.Mode(), err)
		}
	}
	if _, err := Rank(query2, nil, 3); !errors.Is(err, errs.ErrServiceUnavailable) {
		t.Errorf("nil index: err = %v, want ErrServiceUnavailable", err)
	}
}

func TestRank_InvalidQuery(t *testing.T) {
	idx := scenarioIndex(t)
	tests := []struct {
		name  string
		query []float32
	}{
		{"wrong dimension", []float32{1, 0, 0}},
		{"not normalized", []float32{2, 0}},
		{"nan", []float32{float32(math.NaN()), 0}},
		{"zero", []float32{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Rank(tt.query, idx, 2); !errors.Is(err, errs.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestRank_DefaultK(t *testing.T) {
	entries := make([]gallery.Entry, 0, 30)
	for i := 0; i < 30; i++ {
		entries = append(entries, gallery.Entry{
			Label:  string(rune('a' + i%26)) + string(rune('0'+i/26)),
			Vector: scored(float64(i) / 40),
		})
	}
	idx, err := gallery.NewIndex(2, entries, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []int{0, -3} {
		got, err := Rank(query2, idx, k)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != DefaultK {
			t.Errorf("k=%d: len = %d, want %d", k, len(got), DefaultK)
		}
	}
}

func TestRank_StableTieBreak(t *testing.T) {
	same := scored(0.5)
	idx, err := gallery.NewIndex(2, []gallery.Entry{
		{Label: "Z", Vector: same},
		{Label: "Y", Vector: scored(0.7)},
		{Label: "X", Vector: same},
		{Label: "Y", Vector: same},
		{Label: "W", Vector: same},
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range []Ranker{Exact{}, CandidatePool{Size: 2}} {
		got, err := r.Rank(query2, idx, 10)
		if err != nil {
			t.Fatal(err)
		}
		assertResults(t, got, []want{{"Y", 0.7}, {"Z", 0.5}, {"X", 0.5}, {"W", 0.5}})
	}
}

func randomIndex(t *testing.T, rng *rand.Rand, n, dim, labels int) *gallery.Index {
	t.Helper()
	entries := make([]gallery.Entry, n)
	for i := range entries {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		vector.Normalize(v)
		// Duplicate some vectors to force exact ties.
		if i > 0 && rng.Intn(10) == 0 {
			v = append([]float32(nil), entries[rng.Intn(i)].Vector...)
		}
		entries[i] = gallery.Entry{Label: string(rune('A' + rng.Intn(labels))), Vector: v}
	}
	idx, err := gallery.NewIndex(dim, entries, "")
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

// reference computes each label's best score and the first index reaching it,
// then orders labels by score, then by that index.
func reference(query []float32, idx *gallery.Index, k int) []Result {
	scores := Scores(query, idx)
	type best struct {
		label string
		score float64
		first int
	}
	byLabel := map[string]*best{}
	for i, s := range scores {
		l := idx.Label(i)
		b, ok := byLabel[l]
		if !ok || s > b.score {
			byLabel[l] = &best{label: l, score: s, first: i}
		}
	}
	all := make([]*best, 0, len(byLabel))
	for _, b := range byLabel {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].first < all[j].first
	})
	if len(all) > k {
		all = all[:k]
	}
	out := make([]Result, len(all))
	for i, b := range all {
		out[i] = Result{Rank: i + 1, Label: b.label, Score: b.score}
	}
	return out
}

func TestRank_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(200)
		labels := 1 + rng.Intn(20)
		idx := randomIndex(t, rng, n, 8, labels)
		q := make([]float32, 8)
		for j := range q {
			q[j] = float32(rng.NormFloat64())
		}
		vector.Normalize(q)
		k := 1 + rng.Intn(25)
		distinct := len(idx.DistinctLabels())

		exact, err := Rank(q, idx, k)
		if err != nil {
			t.Fatal(err)
		}
		if len(exact) != min(k, distinct) {
			t.Fatalf("trial %d: len = %d, want %d", trial, len(exact), min(k, distinct))
		}
		seen := map[string]bool{}
		for i, r := range exact {
			if r.Score < -1 || r.Score > 1 {
				t.Errorf("trial %d: score %v out of range", trial, r.Score)
			}
			if seen[r.Label] {
				t.Errorf("trial %d: duplicate label %s", trial, r.Label)
			}
			seen[r.Label] = true
			if i > 0 && r.Score > exact[i-1].Score {
				t.Errorf("trial %d: scores increase at %d", trial, i)
			}
		}

		ref := reference(q, idx, k)
		for i := range ref {
			if exact[i] != ref[i] {
				t.Fatalf("trial %d: result %d = %+v, reference %+v", trial, i, exact[i], ref[i])
			}
		}

		for _, size := range []int{1, 5, 50} {
			pooled, err := CandidatePool{Size: size}.Rank(q, idx, k)
			if err != nil {
				t.Fatal(err)
			}
			if len(pooled) != len(exact) {
				t.Fatalf("trial %d pool %d: len %d vs %d", trial, size, len(pooled), len(exact))
			}
			for i := range exact {
				if pooled[i] != exact[i] {
					t.Fatalf("trial %d pool %d: result %d = %+v, exact %+v", trial, size, i, pooled[i], exact[i])
				}
			}
		}
	}
}

func TestTopN(t *testing.T) {
	scores := []float64{0.1, 0.9, 0.5, 0.9, 0.3}
	got := topN(scores, 3)
	wantIdx := []int{1, 3, 2}
	for i := range wantIdx {
		if got[i] != wantIdx[i] {
			t.Fatalf("topN = %v, want %v", got, wantIdx)
		}
	}
}

func TestNew(t *testing.T) {
	r, err := New("exact", 0)
	if err != nil || r.Mode() != "exact" {
		t.Errorf("exact mode: %v %v", r, err)
	}
	r, err = New("candidate_pool", 7)
	if pool, ok := r.(CandidatePool); err != nil || !ok || pool.Size != 7 {
		t.Errorf("candidate pool mode: %#v %v", r, err)
	}
	if _, err := New("annoy", 0); !errors.Is(err, errs.ErrConfig) {
		t.Errorf("unknown mode: %v", err)
	}
}

func TestNew_FAISS(t *testing.T) {
	r, err := New("faiss", 2)
	if !FAISSAvailable {
		if !errors.Is(err, errs.ErrConfig) {
			t.Fatalf("expected config error without faiss, got %v", err)
		}
		return
	}
	if err != nil {
		t.Fatal(err)
	}
	f := r.(*FAISS)
	defer f.Close()

	got, err := f.Rank(query2, scenarioIndex(t), 2)
	if err != nil {
		t.Fatal(err)
	}
	assertResults(t, got, []want{{"C", 0.99}, {"A", 0.95}})
}
