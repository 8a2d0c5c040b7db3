package ranking

// labelSet records labels in the order they are first offered. Later offers
// of a known label are ignored, so when offers arrive in descending score
// order each label keeps its maximum.
type labelSet struct {
	seen    map[string]struct{}
	results []Result
}

func newLabelSet(capacity int) *labelSet {
	return &labelSet{
		seen:    make(map[string]struct{}, capacity),
		results: make([]Result, 0, capacity),
	}
}

// offer emits label with score unless it was emitted before. It reports
// whether the label was new.
func (s *labelSet) offer(label string, score float64) bool {
	if _, ok := s.seen[label]; ok {
		return false
	}
	s.seen[label] = struct{}{}
	s.results = append(s.results, Result{Rank: len(s.results) + 1, Label: label, Score: score})
	return true
}

func (s *labelSet) Len() int {
	return len(s.results)
}

// Results returns the emitted labels with 1-based ranks in emission order.
func (s *labelSet) Results() []Result {
	return s.results
}
