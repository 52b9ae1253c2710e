/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. The snapshot itself is
  served as-is (its JSON layout is the public contract); everything around
  it lives here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry validator/v10 tags, checked in handlers.

SEE ALSO:
  - handlers.go: Uses these types
  - insights/snapshot.go: Snapshot and Run
*/
package api

import (
	"time"

	"github.com/warp/insights-engine/insights"
	"github.com/warp/insights-engine/scenarios"
)

// =============================================================================
// PIPELINE
// =============================================================================

// TriggerRequest is the optional body of a trigger call.
type TriggerRequest struct {
	SourceDir string `json:"source_dir,omitempty" validate:"omitempty,max=4096"`
}

// TriggerResponse is returned after a successful run.
type TriggerResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Run     RunDTO `json:"run"`
}

// RunDTO describes a completed run.
type RunDTO struct {
	ID         string   `json:"id"`
	SourceDir  string   `json:"source_dir"`
	Archives   []string `json:"archives"`
	Files      int      `json:"files"`
	Records    int      `json:"records"`
	Anomalies  int      `json:"anomalies"`
	StartedAt  string   `json:"started_at"`
	FinishedAt string   `json:"finished_at"`
	DurationMS int64    `json:"duration_ms"`
}

// InsightsResponse is the snapshot plus the run that produced it.
type InsightsResponse struct {
	insights.Snapshot
	Run *RunDTO `json:"run,omitempty"`
}

// NotTriggeredResponse is the query marker before any successful run.
type NotTriggeredResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Status values used in responses.
const (
	StatusSuccess      = "success"
	StatusNotTriggered = "not_triggered"
	StatusOK           = "ok"
	StatusLoaded       = "loaded"
)

var notTriggered = NotTriggeredResponse{
	Status:  StatusNotTriggered,
	Message: "Pipeline not yet triggered.",
}

// =============================================================================
// HEALTH
// =============================================================================

// HealthDTO reports service state.
type HealthDTO struct {
	Status      string  `json:"status"`
	Store       string  `json:"store"`
	DataDir     string  `json:"data_dir"`
	HasSnapshot bool    `json:"has_snapshot"`
	LastRun     *RunDTO `json:"last_run,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Archives    []string `json:"archives"`
}

// LoadScenarioRequest selects a scenario to write into the data directory.
// With Trigger set, the pipeline runs over it right away.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
	Trigger    bool   `json:"trigger"`
}

// LoadScenarioResponse lists what was written.
type LoadScenarioResponse struct {
	Status   string   `json:"status"`
	Scenario string   `json:"scenario"`
	Archives []string `json:"archives"`
	Run      *RunDTO  `json:"run,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toRunDTO(run insights.Run) RunDTO {
	archives := run.Archives
	if archives == nil {
		archives = []string{}
	}
	return RunDTO{
		ID:         run.ID.String(),
		SourceDir:  run.SourceDir,
		Archives:   archives,
		Files:      run.Files,
		Records:    run.Records,
		Anomalies:  run.Anomalies,
		StartedAt:  run.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: run.FinishedAt.UTC().Format(time.RFC3339),
		DurationMS: run.Duration().Milliseconds(),
	}
}

func toScenarioDTO(s scenarios.Scenario) ScenarioDTO {
	names := make([]string, len(s.Archives))
	for i, a := range s.Archives {
		names[i] = a.Name
	}
	return ScenarioDTO{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Archives:    names,
	}
}
