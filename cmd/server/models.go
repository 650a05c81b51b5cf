package main

import (
	"time"

	"github.com/popsynth/popsynth/demographics"
	"github.com/popsynth/popsynth/population"
)

// API Request and Response Models

// DemographicResponse represents a stored demographic in API responses.
// The spec is echoed back exactly as submitted, attribute order included.
type DemographicResponse struct {
	ID        string            `json:"id"`
	Spec      demographics.Spec `json:"spec"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func toDemographicResponse(rec *demographics.Record) DemographicResponse {
	return DemographicResponse{
		ID:        rec.ID,
		Spec:      rec.Spec,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

// DemographicsListResponse represents the response for listing demographics
type DemographicsListResponse struct {
	Demographics []DemographicResponse `json:"demographics"`
}

// GenerateRequest represents the request body for generating a population
// from a stored demographic. When Seed is omitted a random seed is drawn
// and reported back in the run metadata.
type GenerateRequest struct {
	Seed *uint64 `json:"seed,omitempty"`
}

// PreviewRequest represents the request body for a one-shot generation
// from an inline spec, without persisting anything.
type PreviewRequest struct {
	Spec demographics.Spec `json:"spec"`
	Seed *uint64           `json:"seed,omitempty"`
}

// RunsListResponse represents the response for listing generation runs
type RunsListResponse struct {
	Runs []*population.Run `json:"runs"`
}

// AgentsPageResponse represents one page of agents from a run
type AgentsPageResponse struct {
	RunID  string             `json:"run_id"`
	Offset int                `json:"offset"`
	Limit  int                `json:"limit"`
	Agents []population.Agent `json:"agents"`
}

// FilterRequest represents the request body for filtering a run's agents
// with a CEL expression
type FilterRequest struct {
	Expression string `json:"expression"`
}

// FilterResponse represents the agents matching a filter expression
type FilterResponse struct {
	RunID      string             `json:"run_id"`
	Expression string             `json:"expression"`
	Count      int                `json:"count"`
	Agents     []population.Agent `json:"agents"`
}
