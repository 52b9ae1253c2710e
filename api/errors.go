package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/warp/insights-engine/insights"
)

// APIError is the JSON error body returned by every endpoint.
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// Error codes.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeBusy           = "BUSY"
	CodeNoData         = "NO_DATA_FOUND"
	CodeSchemaMismatch = "SCHEMA_MISMATCH"
	CodeIngestion      = "INGESTION_FAILED"
	CodeNotTriggered   = "NOT_TRIGGERED"
	CodeNotFound       = "NOT_FOUND"
	CodeInternal       = "INTERNAL_SERVER_ERROR"
)

func newAPIError(status int, code, message string, details any) *APIError {
	return &APIError{StatusCode: status, ErrorCode: code, Message: message, Details: details}
}

// invalidRequest wraps a body decoding or validation failure.
func invalidRequest(err error) *APIError {
	return newAPIError(http.StatusBadRequest, CodeInvalidRequest, "Invalid request body", err.Error())
}

// pipelineError maps a Trigger failure onto a status and code.
func pipelineError(err error) *APIError {
	var schema *insights.SchemaMismatchError
	switch {
	case errors.Is(err, insights.ErrBusy):
		return newAPIError(http.StatusConflict, CodeBusy, "A pipeline run is already in progress", nil)
	case errors.Is(err, insights.ErrNoDataFound):
		return newAPIError(http.StatusNotFound, CodeNoData, "No archives found in the source directory", err.Error())
	case errors.As(err, &schema):
		return newAPIError(http.StatusUnprocessableEntity, CodeSchemaMismatch, "Table columns match no known category", schemaDetails{
			File:    schema.File,
			Columns: schema.Columns,
			Missing: schema.Missing,
		})
	case errors.Is(err, insights.ErrSchemaMismatch):
		return newAPIError(http.StatusUnprocessableEntity, CodeSchemaMismatch, "Table columns match no known category", err.Error())
	case errors.Is(err, insights.ErrIngestion):
		return newAPIError(http.StatusUnprocessableEntity, CodeIngestion, "Failed to ingest archives", err.Error())
	default:
		return newAPIError(http.StatusInternalServerError, CodeInternal, "Pipeline run failed", err.Error())
	}
}

type schemaDetails struct {
	File    string   `json:"file,omitempty"`
	Columns []string `json:"columns"`
	Missing []string `json:"missing,omitempty"`
}
