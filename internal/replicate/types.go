// Package replicate provides an HTTP client for the Replicate predictions API.
package replicate

import (
	"encoding/json"
	"time"
)

// Status represents the status of a Replicate prediction.
type Status string

// Replicate prediction statuses aligned with the Replicate API.
const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// predictionRequest is the body for POST /models/{owner}/{name}/predictions.
type predictionRequest struct {
	Input map[string]any `json:"input"`
}

// prediction is the prediction object returned by create and get.
type prediction struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     any             `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Prediction contains the result of polling a prediction.
type Prediction struct {
	ID        string
	Status    Status
	OutputURL string // First output URL (only set when Status is StatusSucceeded)
	Error     string // Error message (only set when Status is StatusFailed)
	CreatedAt time.Time
}
