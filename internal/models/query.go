package models

import "fmt"

// RankRequest ranks a precomputed embedding.
type RankRequest struct {
	Embedding []float32 `json:"embedding"`
	K         int       `json:"k,omitempty"`
}

// Validate checks the request shape. Dimension and norm checks happen at
// ranking time against the loaded gallery.
func (q *RankRequest) Validate() error {
	if len(q.Embedding) == 0 {
		return fmt.Errorf("embedding cannot be empty")
	}
	if q.K < 0 {
		return fmt.Errorf("k must not be negative, got %d", q.K)
	}
	return nil
}
