package relayb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/maauso/genjob/internal/transport"
)

// Static errors for relay client operations.
var (
	ErrAPIKeyRequired   = errors.New("relayb: API key is required")
	ErrBaseURLRequired  = errors.New("relayb: base URL is required")
	ErrTaskIDRequired   = errors.New("relayb: task ID is required")
	ErrNoTaskIDReturned = errors.New("relayb: submit failed: no task ID returned")
	ErrNoImageReturned  = errors.New("relayb: incomplete response: no image returned")
)

// Client defines the interface for interacting with the relay.
type Client interface {
	GenerateImage(ctx context.Context, req ImageRequest) (string, error)
	SubmitVideo(ctx context.Context, req VideoRequest) (taskID string, err error)
	Poll(ctx context.Context, taskID string) (PollResult, error)
	Balance(ctx context.Context) (Balance, error)
}

// HTTPClient is the HTTP implementation of Client.
type HTTPClient struct {
	api *transport.Client
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	httpClient *http.Client
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.httpClient = hc
	}
}

// NewClient creates a relay client. baseURL is the relay root, without /v1.
func NewClient(baseURL, apiKey string, opts ...ClientOption) (*HTTPClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	cfg := clientConfig{httpClient: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &HTTPClient{
		api: transport.New("relayb", baseURL, cfg.httpClient, transport.Bearer(apiKey)),
	}, nil
}

// GenerateImage creates an image synchronously and returns its URL or a data URI.
func (c *HTTPClient) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	body := imageRequest{Model: req.Model, Prompt: req.Prompt, Size: req.Size, N: 1}

	var resp imageResponse
	if err := c.api.Do(ctx, http.MethodPost, "/v1/images/generations", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 {
		return "", ErrNoImageReturned
	}

	switch d := resp.Data[0]; {
	case d.URL != "":
		return d.URL, nil
	case d.B64JSON != "":
		return "data:image/png;base64," + d.B64JSON, nil
	default:
		return "", ErrNoImageReturned
	}
}

// SubmitVideo submits a video task and returns its task ID.
func (c *HTTPClient) SubmitVideo(ctx context.Context, req VideoRequest) (string, error) {
	body := videoRequest{
		Model:    req.Model,
		Prompt:   req.Prompt,
		Image:    req.Image,
		Duration: req.Duration,
		Size:     req.Size,
	}

	var resp submitResponse
	if err := c.api.Do(ctx, http.MethodPost, "/v1/video/generations", body, &resp); err != nil {
		return "", err
	}
	if resp.TaskID == "" {
		return "", ErrNoTaskIDReturned
	}

	return resp.TaskID, nil
}

// Poll checks the status of a video task.
func (c *HTTPClient) Poll(ctx context.Context, taskID string) (PollResult, error) {
	if taskID == "" {
		return PollResult{}, ErrTaskIDRequired
	}

	var resp taskEnvelope
	if err := c.api.Do(ctx, http.MethodGet, "/v1/video/generations/"+url.PathEscape(taskID), nil, &resp); err != nil {
		return PollResult{}, err
	}
	if resp.Code != "" && resp.Code != "success" {
		return PollResult{}, fmt.Errorf("relayb: poll %s: %s: %s", taskID, resp.Code, resp.Message)
	}

	d := resp.Data
	result := PollResult{
		Status:   Status(d.Status),
		Progress: parseProgress(d.Progress),
	}
	switch result.Status {
	case StatusSuccess:
		result.Progress = 100
		if d.ResultURL == "" {
			result.Status = StatusFailure
			result.Error = "incomplete response: task succeeded without result URL"
			break
		}
		result.URL = d.ResultURL
	case StatusFailure:
		result.Error = d.FailReason
		if result.Error == "" {
			result.Error = "task failed"
		}
	}

	return result, nil
}

// Balance reports the account's hard limit and usage from the billing dashboard.
func (c *HTTPClient) Balance(ctx context.Context) (Balance, error) {
	var sub subscriptionResponse
	if err := c.api.Do(ctx, http.MethodGet, "/v1/dashboard/billing/subscription", nil, &sub); err != nil {
		return Balance{}, err
	}

	var usage usageResponse
	if err := c.api.Do(ctx, http.MethodGet, "/v1/dashboard/billing/usage", nil, &usage); err != nil {
		return Balance{}, err
	}

	return Balance{
		Total: sub.HardLimitUSD,
		Used:  usage.TotalUsage / 100,
	}, nil
}

var _ Client = (*HTTPClient)(nil)
