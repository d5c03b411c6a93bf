package gateway

import (
	"context"

	"github.com/maauso/clipline/internal/beam"
)

// BeamAdapter adapts the Beam client to the Gateway interface.
type BeamAdapter struct {
	client beam.Client
}

// NewBeamAdapter creates a new Beam gateway adapter.
func NewBeamAdapter(client beam.Client) *BeamAdapter {
	return &BeamAdapter{client: client}
}

// Submit enqueues a generation task on Beam.
func (a *BeamAdapter) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	taskID, err := a.client.Submit(ctx, beam.TaskInput{
		Prompt: req.Prompt,
		Style:  req.Style,
		Kind:   string(req.Kind),
	})
	if err != nil {
		return "", submissionError("beam", err)
	}
	return taskID, nil
}

// Poll checks the status of a Beam task.
func (a *BeamAdapter) Poll(ctx context.Context, taskID string) (PollResult, error) {
	result, err := a.client.Poll(ctx, taskID)
	if err != nil {
		return PollResult{}, pollError("beam", err)
	}

	var status Status
	switch result.Status {
	case beam.StatusPending:
		status = StatusQueued
	case beam.StatusRunning:
		status = StatusProcessing
	case beam.StatusCompleted:
		status = StatusSucceeded
	case beam.StatusFailed, beam.StatusCanceled:
		status = StatusFailed
		if result.Error == "" {
			result.Error = "task " + string(result.Status)
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

// Compile-time check that BeamAdapter implements Gateway.
var _ Gateway = (*BeamAdapter)(nil)
