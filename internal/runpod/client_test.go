package runpod

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// setTestEnv sets the RUNPOD_API_KEY env var for the duration of the test.
func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RUNPOD_API_KEY", "test-key")
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusInQueue, false},
		{StatusRunning, false},
		{StatusInProgress, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
		{StatusTimedOut, true},
		{Status("UNKNOWN"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("Status(%q).IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
			}
		})
	}
}

func TestNewClient_MissingEndpointID(t *testing.T) {
	setTestEnv(t)

	_, err := NewClient("")
	if !errors.Is(err, ErrEndpointIDRequired) {
		t.Errorf("expected ErrEndpointIDRequired, got %v", err)
	}
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	t.Setenv("RUNPOD_API_KEY", "")

	_, err := NewClient("test-endpoint")
	if !errors.Is(err, ErrAPIKeyNotSet) {
		t.Errorf("expected ErrAPIKeyNotSet, got %v", err)
	}
}

func TestNewClient_WithAPIKeyOptionOverridesEnv(t *testing.T) {
	setTestEnv(t)

	client, err := NewClient("test-endpoint", WithAPIKey("explicit-api-key"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.apiKey != "explicit-api-key" {
		t.Errorf("expected apiKey to be 'explicit-api-key', got '%s'", client.apiKey)
	}
}

func TestSubmit_Success(t *testing.T) {
	setTestEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/test-endpoint/run" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		var req runRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if req.Input.Prompt != "a lighthouse in fog" {
			t.Errorf("unexpected prompt %q", req.Input.Prompt)
		}
		if req.Input.Style != "noir" {
			t.Errorf("unexpected style %q", req.Input.Style)
		}
		if req.Input.Kind != "image" {
			t.Errorf("unexpected kind %q", req.Input.Kind)
		}

		_ = json.NewEncoder(w).Encode(runResponse{ID: "job-123"})
	}))
	defer server.Close()

	client, _ := NewClient("test-endpoint", WithBaseURL(server.URL))

	jobID, err := client.Submit(context.Background(), JobInput{Prompt: "a lighthouse in fog", Style: "noir", Kind: "image"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobID != "job-123" {
		t.Errorf("expected job-123, got %s", jobID)
	}
}

func TestSubmit_DefaultsKindToVideo(t *testing.T) {
	setTestEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req runRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Input.Kind != "video" {
			t.Errorf("expected kind video, got %q", req.Input.Kind)
		}
		_ = json.NewEncoder(w).Encode(runResponse{ID: "job-1"})
	}))
	defer server.Close()

	client, _ := NewClient("test-endpoint", WithBaseURL(server.URL))

	if _, err := client.Submit(context.Background(), JobInput{Prompt: "p"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSubmit_Error(t *testing.T) {
	setTestEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(runResponse{Error: "invalid input"})
	}))
	defer server.Close()

	client, _ := NewClient("test-endpoint", WithBaseURL(server.URL))

	_, err := client.Submit(context.Background(), JobInput{Prompt: "p"})
	if !errors.Is(err, ErrSubmitFailed) {
		t.Errorf("expected ErrSubmitFailed, got %v", err)
	}
}

func TestSubmit_NoJobID(t *testing.T) {
	setTestEnv(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(runResponse{})
	}))
	defer server.Close()

	client, _ := NewClient("test-endpoint", WithBaseURL(server.URL))

	_, err := client.Submit(context.Background(), JobInput{Prompt: "p"})
	if !errors.Is(err, ErrNoJobIDReturned) {
		t.Errorf("expected ErrNoJobIDReturned, got %v", err)
	}
}

func TestSubmit_ContextCancelled(t *testing.T) {
	setTestEnv(t)

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, _ := NewClient("test-endpoint", WithBaseURL(server.URL), WithMaxRetries(0))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Submit(ctx, JobInput{Prompt: "p"})
	if err == nil {
		t.Error("expected error due to context cancellation")
	}
}

func TestPoll_AllStatuses(t *testing.T) {
	setTestEnv(t)

	tests := []struct {
		name           string
		response       statusResponse
		expectedStatus Status
		expectedURL    string
		expectedError  string
	}{
		{
			name:           "IN_QUEUE",
			response:       statusResponse{ID: "job-1", Status: "IN_QUEUE"},
			expectedStatus: StatusInQueue,
		},
		{
			name:           "IN_PROGRESS",
			response:       statusResponse{ID: "job-1", Status: "IN_PROGRESS"},
			expectedStatus: StatusInProgress,
		},
		{
			name: "COMPLETED",
			response: statusResponse{
				ID:     "job-1",
				Status: "COMPLETED",
				Output: statusOutput{URL: "https://cdn.example.com/job-1.mp4"},
			},
			expectedStatus: StatusCompleted,
			expectedURL:    "https://cdn.example.com/job-1.mp4",
		},
		{
			name: "FAILED",
			response: statusResponse{
				ID:     "job-1",
				Status: "FAILED",
				Error:  "processing failed",
			},
			expectedStatus: StatusFailed,
			expectedError:  "processing failed",
		},
		{
			name:           "CANCELLED",
			response:       statusResponse{ID: "job-1", Status: "CANCELLED"},
			expectedStatus: StatusCancelled,
		},
		{
			name:           "TIMED_OUT",
			response:       statusResponse{ID: "job-1", Status: "TIMED_OUT"},
			expectedStatus: StatusTimedOut,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("expected GET, got %s", r.Method)
				}
				if r.URL.Path != "/test-endpoint/status/job-1" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				_ = json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			client, _ := NewClient("test-endpoint", WithBaseURL(server.URL))

			result, err := client.Poll(context.Background(), "job-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Status != tt.expectedStatus {
				t.Errorf("expected status %v, got %v", tt.expectedStatus, result.Status)
			}
			if result.OutputURL != tt.expectedURL {
				t.Errorf("expected url %q, got %q", tt.expectedURL, result.OutputURL)
			}
			if result.Error != tt.expectedError {
				t.Errorf("expected error %q, got %q", tt.expectedError, result.Error)
			}
		})
	}
}

func TestPoll_EmptyJobID(t *testing.T) {
	setTestEnv(t)

	client, _ := NewClient("test-endpoint")

	_, err := client.Poll(context.Background(), "")
	if !errors.Is(err, ErrJobIDRequired) {
		t.Errorf("expected ErrJobIDRequired, got %v", err)
	}
}

func TestRetry_TransientFailure(t *testing.T) {
	setTestEnv(t)

	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := atomic.AddInt32(&attempts, 1)
		if count < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("service unavailable"))
			return
		}
		_ = json.NewEncoder(w).Encode(statusResponse{ID: "job-1", Status: "IN_QUEUE"})
	}))
	defer server.Close()

	client, _ := NewClient("test-endpoint",
		WithBaseURL(server.URL),
		WithMaxRetries(3),
		WithBaseBackoff(10*time.Millisecond),
	)

	result, err := client.Poll(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusInQueue {
		t.Errorf("expected IN_QUEUE, got %v", result.Status)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_NonRetryableError(t *testing.T) {
	setTestEnv(t)

	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request"))
	}))
	defer server.Close()

	client, _ := NewClient("test-endpoint",
		WithBaseURL(server.URL),
		WithMaxRetries(3),
		WithBaseBackoff(10*time.Millisecond),
	)

	_, err := client.Poll(context.Background(), "job-1")
	if err == nil {
		t.Error("expected error")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("expected 1 attempt (no retries for 400), got %d", attempts)
	}
}
