// Package models defines the request and response shapes shared by the HTTP
// API and the CLI.
package models

import (
	"github.com/hyperjump/revelation/internal/metadata"
	"github.com/hyperjump/revelation/internal/ranking"
)

// Prediction is one ranked label with its same-model siblings.
type Prediction struct {
	Rank           int                `json:"rank"`
	Label          string             `json:"label"`
	Score          float64            `json:"score"`
	SameModelGears []metadata.Sibling `json:"same_model_gears"`
}

// PredictionResponse is the result of ranking one query.
type PredictionResponse struct {
	Query     string       `json:"query,omitempty"`
	QueryTime int64        `json:"query_time_ms,omitempty"`
	Results   []Prediction `json:"results"`
}

// HealthResponse reports liveness and what has been loaded.
type HealthResponse struct {
	Status        string `json:"status"`
	ModelLoaded   bool   `json:"model_loaded"`
	GalleryLoaded bool   `json:"gallery_loaded"`
}

// NewPredictionResponse converts ranked results into predictions carrying
// same-model siblings from c. A nil catalog yields empty sibling lists.
func NewPredictionResponse(c *metadata.Catalog, results []ranking.Result) PredictionResponse {
	if c == nil {
		c = metadata.Empty()
	}
	out := PredictionResponse{Results: make([]Prediction, len(results))}
	for i, res := range results {
		siblings := c.Siblings(res.Label)
		if siblings == nil {
			siblings = []metadata.Sibling{}
		}
		out.Results[i] = Prediction{
			Rank:           res.Rank,
			Label:          res.Label,
			Score:          res.Score,
			SameModelGears: siblings,
		}
	}
	return out
}
