package beam

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/maauso/clipline/internal/httpclient"
)

// Static errors for Beam client operations.
var (
	// ErrQueueURLRequired is returned when the queue URL is not provided.
	ErrQueueURLRequired = errors.New("beam: queue URL is required")
	// ErrTokenNotSet is returned when the BEAM_TOKEN is not provided.
	ErrTokenNotSet = errors.New("beam: token is required")
	// ErrTaskIDRequired is returned when the task ID is not provided.
	ErrTaskIDRequired = errors.New("beam: task ID is required")
	// ErrNoTaskIDReturned is returned when the submit response contains no task ID.
	ErrNoTaskIDReturned = errors.New("beam: submit failed: no task ID returned")
	// ErrSubmitFailed is returned when the submit operation fails.
	ErrSubmitFailed = errors.New("beam: submit failed")
)

// Client defines the interface for interacting with the Beam Task Queue API.
type Client interface {
	// Submit enqueues a generation task on Beam and returns the task ID.
	Submit(ctx context.Context, input TaskInput) (taskID string, err error)

	// Poll checks the status of a task and returns the result.
	Poll(ctx context.Context, taskID string) (PollResult, error)
}

// HTTPClient is the HTTP implementation of the Beam Client interface.
type HTTPClient struct {
	token     string
	queueURL  string
	statusURL string
	opts      []httpclient.Option
	http      *httpclient.Client
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithToken sets the API token for authentication.
func WithToken(token string) ClientOption {
	return func(hc *HTTPClient) {
		hc.token = token
	}
}

// WithStatusURL overrides the task status API base URL.
func WithStatusURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.statusURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.opts = append(hc.opts, httpclient.WithHTTPClient(c))
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.opts = append(hc.opts, httpclient.WithMaxRetries(n))
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.opts = append(hc.opts, httpclient.WithBaseBackoff(d))
	}
}

// NewClient creates a new Beam HTTP client.
// The token can be set via the WithToken option. If not provided,
// it is read from the environment variable BEAM_TOKEN.
// The queue URL must be provided.
func NewClient(queueURL string, opts ...ClientOption) (*HTTPClient, error) {
	if queueURL == "" {
		return nil, ErrQueueURLRequired
	}

	c := &HTTPClient{
		queueURL:  queueURL,
		statusURL: "https://api.beam.cloud/v2/task",
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.token == "" {
		c.token = os.Getenv("BEAM_TOKEN")
	}

	if c.token == "" {
		return nil, ErrTokenNotSet
	}

	c.http = httpclient.New("beam", c.token, c.opts...)
	return c, nil
}

// Submit enqueues a generation task on Beam and returns the task ID.
func (c *HTTPClient) Submit(ctx context.Context, input TaskInput) (string, error) {
	reqBody := taskRequest{
		Prompt: input.Prompt,
		Style:  input.Style,
		Kind:   input.Kind,
	}

	var resp taskResponse
	if err := c.http.Do(ctx, http.MethodPost, c.queueURL, reqBody, &resp); err != nil {
		return "", err
	}

	if resp.TaskID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrSubmitFailed, resp.Error)
		}
		return "", ErrNoTaskIDReturned
	}

	return resp.TaskID, nil
}

// Poll checks the status of a task and returns the result.
func (c *HTTPClient) Poll(ctx context.Context, taskID string) (PollResult, error) {
	if taskID == "" {
		return PollResult{}, ErrTaskIDRequired
	}

	url := fmt.Sprintf("%s/%s/", c.statusURL, taskID)

	var resp statusResponse
	if err := c.http.Do(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return PollResult{}, err
	}

	result := PollResult{
		Status: normalizeStatus(resp.Status),
	}

	switch result.Status {
	case StatusCompleted:
		if len(resp.Outputs) > 0 {
			result.OutputURL = resp.Outputs[0].URL
		}
	case StatusFailed:
		result.Error = resp.Error
	}

	return result, nil
}

// normalizeStatus folds Beam's status aliases onto the canonical set.
func normalizeStatus(s string) Status {
	switch s {
	case "COMPLETED", "COMPLETE":
		return StatusCompleted
	case "FAILED", "ERROR":
		return StatusFailed
	default:
		return Status(s)
	}
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
