package gateway

import (
	"context"

	"github.com/maauso/clipline/internal/production"
	"github.com/maauso/clipline/internal/replicate"
)

// Default Replicate models per production kind.
const (
	DefaultVideoModel = "minimax/video-01"
	DefaultImageModel = "black-forest-labs/flux-schnell"
)

// ReplicateAdapter adapts the Replicate client to the Gateway interface.
type ReplicateAdapter struct {
	client     replicate.Client
	videoModel string
	imageModel string
}

// NewReplicateAdapter creates a new Replicate gateway adapter. Empty model
// names fall back to the defaults.
func NewReplicateAdapter(client replicate.Client, videoModel, imageModel string) *ReplicateAdapter {
	if videoModel == "" {
		videoModel = DefaultVideoModel
	}
	if imageModel == "" {
		imageModel = DefaultImageModel
	}
	return &ReplicateAdapter{client: client, videoModel: videoModel, imageModel: imageModel}
}

// Submit starts a prediction on the model matching the request kind.
func (a *ReplicateAdapter) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	model := a.videoModel
	input := map[string]any{
		"prompt": composePrompt(req.Prompt, req.Style),
	}
	if req.Kind == production.KindImage {
		model = a.imageModel
		input["num_outputs"] = 1
	} else {
		input["prompt_optimizer"] = true
	}

	id, err := a.client.Create(ctx, model, input)
	if err != nil {
		return "", submissionError("replicate", err)
	}
	return id, nil
}

// Poll fetches a prediction and maps its status.
func (a *ReplicateAdapter) Poll(ctx context.Context, jobID string) (PollResult, error) {
	p, err := a.client.Get(ctx, jobID)
	if err != nil {
		return PollResult{}, pollError("replicate", err)
	}

	var status Status
	switch p.Status {
	case replicate.StatusStarting:
		status = StatusStarting
	case replicate.StatusProcessing:
		status = StatusProcessing
	case replicate.StatusSucceeded:
		status = StatusSucceeded
	case replicate.StatusFailed:
		status = StatusFailed
	case replicate.StatusCanceled:
		status = StatusFailed
		if p.Error == "" {
			p.Error = "prediction canceled"
		}
	default:
		status = StatusQueued
	}

	return PollResult{
		Status:    status,
		ResultURL: p.OutputURL,
		Error:     p.Error,
	}, nil
}

// Compile-time check that ReplicateAdapter implements Gateway.
var _ Gateway = (*ReplicateAdapter)(nil)
