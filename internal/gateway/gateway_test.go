package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusQueued.IsTerminal())
	assert.False(t, StatusStarting.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.True(t, StatusSucceeded.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}

func TestPollResult_Err(t *testing.T) {
	tests := []struct {
		name    string
		result  PollResult
		wantErr error
		wantMsg string
	}{
		{"processing", PollResult{Status: StatusProcessing}, nil, ""},
		{"succeeded with url", PollResult{Status: StatusSucceeded, ResultURL: "https://cdn/a.mp4"}, nil, ""},
		{"succeeded without url", PollResult{Status: StatusSucceeded}, ErrNoResultURL, "no output URL"},
		{"failed with text", PollResult{Status: StatusFailed, Error: "NSFW"}, ErrRemoteJobFailure, "NSFW"},
		{"failed without text", PollResult{Status: StatusFailed}, ErrRemoteJobFailure, "remote job failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Err()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestComposePrompt(t *testing.T) {
	assert.Equal(t, "a car", composePrompt("a car", ""))
	assert.Equal(t, "noir", composePrompt("", "noir"))
	assert.Equal(t, "a car, noir, 8k", composePrompt(" a car ", "noir, 8k"))
}
