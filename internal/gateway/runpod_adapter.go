package gateway

import (
	"context"

	"github.com/maauso/clipline/internal/runpod"
)

// RunPodAdapter adapts the RunPod client to the Gateway interface.
type RunPodAdapter struct {
	client runpod.Client
}

// NewRunPodAdapter creates a new RunPod gateway adapter.
func NewRunPodAdapter(client runpod.Client) *RunPodAdapter {
	return &RunPodAdapter{client: client}
}

// Submit sends a generation job to RunPod.
func (a *RunPodAdapter) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	jobID, err := a.client.Submit(ctx, runpod.JobInput{
		Prompt: req.Prompt,
		Style:  req.Style,
		Kind:   string(req.Kind),
	})
	if err != nil {
		return "", submissionError("runpod", err)
	}
	return jobID, nil
}

// Poll checks the status of a RunPod job.
func (a *RunPodAdapter) Poll(ctx context.Context, jobID string) (PollResult, error) {
	result, err := a.client.Poll(ctx, jobID)
	if err != nil {
		return PollResult{}, pollError("runpod", err)
	}

	var status Status
	switch result.Status {
	case runpod.StatusInQueue:
		status = StatusQueued
	case runpod.StatusRunning, runpod.StatusInProgress:
		status = StatusProcessing
	case runpod.StatusCompleted:
		status = StatusSucceeded
	case runpod.StatusFailed, runpod.StatusCancelled, runpod.StatusTimedOut:
		status = StatusFailed
		if result.Error == "" {
			result.Error = "job " + string(result.Status)
		}
	default:
		status = StatusQueued
	}

	return PollResult{
		Status:    status,
		ResultURL: result.OutputURL,
		Error:     result.Error,
	}, nil
}

// Compile-time check that RunPodAdapter implements Gateway.
var _ Gateway = (*RunPodAdapter)(nil)
