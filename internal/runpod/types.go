// Package runpod provides an HTTP client for RunPod serverless generation endpoints.
package runpod

// Status represents the status of a RunPod job.
type Status string

// RunPod job statuses aligned with the RunPod API.
const (
	StatusInQueue    Status = "IN_QUEUE"
	StatusRunning    Status = "RUNNING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusTimedOut   Status = "TIMED_OUT"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// JobInput contains the generation parameters sent to the endpoint worker.
type JobInput struct {
	Prompt string // Prompt text for generation
	Style  string // Opaque style blob forwarded to the worker
	Kind   string // "video" or "image"
}

// runRequest represents the request body for RunPod's /run endpoint.
type runRequest struct {
	Input runInput `json:"input"`
}

// runInput represents the input field in a RunPod run request.
type runInput struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style,omitempty"`
	Kind   string `json:"kind"`
}

// runResponse represents the response from RunPod's /run endpoint.
type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// statusResponse represents the response from RunPod's /status endpoint.
type statusResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Output statusOutput `json:"output,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// statusOutput represents the output field in a status response.
type statusOutput struct {
	URL string `json:"url,omitempty"`
}

// PollResult contains the result of polling a job's status.
type PollResult struct {
	Status    Status
	OutputURL string // URL of the generated asset (only set when Status is StatusCompleted)
	Error     string // Error message (only set when Status is StatusFailed)
}
