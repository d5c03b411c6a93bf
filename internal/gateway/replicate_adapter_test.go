package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/clipline/internal/production"
	"github.com/maauso/clipline/internal/replicate"
)

type mockReplicateClient struct {
	mock.Mock
}

func (m *mockReplicateClient) Create(ctx context.Context, model string, input map[string]any) (string, error) {
	args := m.Called(ctx, model, input)
	return args.String(0), args.Error(1)
}

func (m *mockReplicateClient) Get(ctx context.Context, id string) (replicate.Prediction, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(replicate.Prediction), args.Error(1)
}

func TestReplicateAdapter_Submit_Video(t *testing.T) {
	ctx := context.Background()
	client := &mockReplicateClient{}
	adapter := NewReplicateAdapter(client, "", "")

	client.On("Create", ctx, DefaultVideoModel, mock.MatchedBy(func(in map[string]any) bool {
		return in["prompt"] == "a red car, cinematic" && in["prompt_optimizer"] == true
	})).Return("pred-1", nil)

	id, err := adapter.Submit(ctx, SubmitRequest{
		CampaignID: "c1",
		ClipID:     "s0",
		Kind:       production.KindVideo,
		Prompt:     "a red car",
		Style:      "cinematic",
	})
	require.NoError(t, err)
	assert.Equal(t, "pred-1", id)
	client.AssertExpectations(t)
}

func TestReplicateAdapter_Submit_ImageUsesImageModel(t *testing.T) {
	ctx := context.Background()
	client := &mockReplicateClient{}
	adapter := NewReplicateAdapter(client, "v/model", "i/model")

	client.On("Create", ctx, "i/model", mock.Anything).Return("pred-2", nil)

	id, err := adapter.Submit(ctx, SubmitRequest{Kind: production.KindImage, Prompt: "a logo"})
	require.NoError(t, err)
	assert.Equal(t, "pred-2", id)
	client.AssertExpectations(t)
}

func TestReplicateAdapter_Submit_Error(t *testing.T) {
	ctx := context.Background()
	client := &mockReplicateClient{}
	adapter := NewReplicateAdapter(client, "", "")

	client.On("Create", ctx, mock.Anything, mock.Anything).Return("", errors.New("quota exceeded"))

	_, err := adapter.Submit(ctx, SubmitRequest{Kind: production.KindVideo, Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubmission)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestReplicateAdapter_Poll(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		prediction replicate.Prediction
		want       PollResult
	}{
		{"starting", replicate.Prediction{Status: replicate.StatusStarting}, PollResult{Status: StatusStarting}},
		{"processing", replicate.Prediction{Status: replicate.StatusProcessing}, PollResult{Status: StatusProcessing}},
		{
			"succeeded",
			replicate.Prediction{Status: replicate.StatusSucceeded, OutputURL: "https://cdn/a.mp4"},
			PollResult{Status: StatusSucceeded, ResultURL: "https://cdn/a.mp4"},
		},
		{
			"failed",
			replicate.Prediction{Status: replicate.StatusFailed, Error: "boom"},
			PollResult{Status: StatusFailed, Error: "boom"},
		},
		{
			"canceled",
			replicate.Prediction{Status: replicate.StatusCanceled},
			PollResult{Status: StatusFailed, Error: "prediction canceled"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockReplicateClient{}
			adapter := NewReplicateAdapter(client, "", "")
			client.On("Get", ctx, "pred-1").Return(tt.prediction, nil)

			got, err := adapter.Poll(ctx, "pred-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReplicateAdapter_Poll_Error(t *testing.T) {
	ctx := context.Background()
	client := &mockReplicateClient{}
	adapter := NewReplicateAdapter(client, "", "")

	client.On("Get", ctx, "pred-1").Return(replicate.Prediction{}, errors.New("timeout"))

	_, err := adapter.Poll(ctx, "pred-1")
	assert.ErrorIs(t, err, ErrPollTransient)
}
