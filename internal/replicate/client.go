package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/maauso/clipline/internal/httpclient"
)

// Static errors for Replicate client operations.
var (
	// ErrTokenNotSet is returned when no API token is configured.
	ErrTokenNotSet = errors.New("replicate: REPLICATE_API_TOKEN is not set")
	// ErrModelRequired is returned when the model is not provided.
	ErrModelRequired = errors.New("replicate: model is required")
	// ErrPredictionIDRequired is returned when the prediction ID is not provided.
	ErrPredictionIDRequired = errors.New("replicate: prediction ID is required")
	// ErrNoPredictionID is returned when the create response contains no ID.
	ErrNoPredictionID = errors.New("replicate: create failed: no prediction ID returned")
)

// Client defines the interface for interacting with the Replicate API.
type Client interface {
	// Create starts a prediction for the model ("owner/name") and returns its ID.
	Create(ctx context.Context, model string, input map[string]any) (predictionID string, err error)

	// Get fetches the current state of a prediction.
	Get(ctx context.Context, predictionID string) (Prediction, error)
}

// HTTPClient is the HTTP implementation of the Replicate Client interface.
type HTTPClient struct {
	token   string
	baseURL string
	opts    []httpclient.Option
	http    *httpclient.Client
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithToken sets the API token for authentication.
func WithToken(token string) ClientOption {
	return func(c *HTTPClient) {
		c.token = token
	}
}

// WithBaseURL sets a custom base URL for the Replicate API.
func WithBaseURL(url string) ClientOption {
	return func(c *HTTPClient) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.opts = append(c.opts, httpclient.WithHTTPClient(hc))
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.opts = append(c.opts, httpclient.WithMaxRetries(n))
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.opts = append(c.opts, httpclient.WithBaseBackoff(d))
	}
}

// NewClient creates a new Replicate HTTP client.
// The token can be set via the WithToken option. If not provided,
// it is read from the environment variable REPLICATE_API_TOKEN.
func NewClient(opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		baseURL: "https://api.replicate.com/v1",
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.token == "" {
		c.token = os.Getenv("REPLICATE_API_TOKEN")
	}
	if c.token == "" {
		return nil, ErrTokenNotSet
	}

	c.http = httpclient.New("replicate", c.token, c.opts...)
	return c, nil
}

// Create starts an asynchronous prediction and returns its ID immediately.
func (c *HTTPClient) Create(ctx context.Context, model string, input map[string]any) (string, error) {
	if model == "" {
		return "", ErrModelRequired
	}

	url := fmt.Sprintf("%s/models/%s/predictions", c.baseURL, model)

	var resp prediction
	if err := c.http.Do(ctx, http.MethodPost, url, predictionRequest{Input: input}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", ErrNoPredictionID
	}
	return resp.ID, nil
}

// Get fetches a prediction and normalizes its output to a single URL.
func (c *HTTPClient) Get(ctx context.Context, predictionID string) (Prediction, error) {
	if predictionID == "" {
		return Prediction{}, ErrPredictionIDRequired
	}

	url := fmt.Sprintf("%s/predictions/%s", c.baseURL, predictionID)

	var resp prediction
	if err := c.http.Do(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return Prediction{}, err
	}

	result := Prediction{
		ID:        resp.ID,
		Status:    Status(resp.Status),
		CreatedAt: resp.CreatedAt,
	}

	switch result.Status {
	case StatusSucceeded:
		result.OutputURL = firstOutputURL(resp.Output)
	case StatusFailed, StatusCanceled:
		result.Error = errorText(resp.Error)
	}

	return result, nil
}

// firstOutputURL extracts a URL from the model output, which is either a
// string, an array of strings, or an object with a url field depending on
// the model.
func firstOutputURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		if len(many) > 0 {
			return many[0]
		}
		return ""
	}

	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.URL
	}
	return ""
}

// errorText renders the prediction error field, which may be a string or an object.
func errorText(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return e
	default:
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Sprint(e)
		}
		return string(b)
	}
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
