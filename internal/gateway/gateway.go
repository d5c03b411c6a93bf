// Package gateway provides the provider-neutral submit/poll abstraction over
// remote generation jobs. Replicate, RunPod and Beam adapters implement it.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maauso/clipline/internal/production"
)

// Static errors for gateway operations.
var (
	// ErrSubmission is returned when a job could not be created.
	ErrSubmission = errors.New("gateway: submission failed")
	// ErrPollTransient is returned when a status query failed; the job state is unknown.
	ErrPollTransient = errors.New("gateway: poll failed")
	// ErrRemoteJobFailure describes a job that the provider reported as failed.
	ErrRemoteJobFailure = errors.New("gateway: remote job failed")
	// ErrNoResultURL describes a job reported as succeeded without an output URL.
	ErrNoResultURL = errors.New("gateway: no output URL")
)

// Status represents the normalized status of a remote job.
type Status string

// Normalized job statuses shared by all providers.
const (
	StatusQueued     Status = "QUEUED"     // Accepted, waiting for a worker
	StatusStarting   Status = "STARTING"   // Worker is booting
	StatusProcessing Status = "PROCESSING" // Generation in progress
	StatusSucceeded  Status = "SUCCEEDED"  // Finished with an output
	StatusFailed     Status = "FAILED"     // Failed or cancelled
)

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// SubmitRequest contains everything a provider needs to start a job.
type SubmitRequest struct {
	CampaignID string
	ClipID     string
	Kind       production.Kind
	Prompt     string
	Style      string
}

// PollResult contains the result of polling a job's status.
type PollResult struct {
	Status    Status
	ResultURL string // Output URL (only meaningful when Status is StatusSucceeded)
	Error     string // Remote error text (only set when Status is StatusFailed)
}

// Err returns the terminal failure described by the result, or nil when the
// job succeeded with an output or is still running.
func (r PollResult) Err() error {
	switch r.Status {
	case StatusFailed:
		if r.Error == "" {
			return ErrRemoteJobFailure
		}
		return fmt.Errorf("%w: %s", ErrRemoteJobFailure, r.Error)
	case StatusSucceeded:
		if r.ResultURL == "" {
			return ErrNoResultURL
		}
	}
	return nil
}

// Gateway defines the interface for remote generation providers.
type Gateway interface {
	// Submit starts a generation job and returns its provider job ID.
	Submit(ctx context.Context, req SubmitRequest) (jobID string, err error)

	// Poll checks the status of a job and returns the result.
	Poll(ctx context.Context, jobID string) (PollResult, error)
}

// BatchPoller is implemented by gateways that can query several jobs in one call.
// Missing entries in the returned map are treated as poll failures for that job.
type BatchPoller interface {
	PollMany(ctx context.Context, jobIDs []string) (map[string]PollResult, error)
}

// composePrompt appends the production style to the clip prompt.
func composePrompt(prompt, style string) string {
	prompt = strings.TrimSpace(prompt)
	style = strings.TrimSpace(style)
	switch {
	case style == "":
		return prompt
	case prompt == "":
		return style
	default:
		return prompt + ", " + style
	}
}

func submissionError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSubmission, provider, err)
}

func pollError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPollTransient, provider, err)
}
