package native

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/maauso/genjob/internal/transport"
)

// DefaultBaseURL is the public endpoint of the native API.
const DefaultBaseURL = "https://open.bigmodel.cn/api/paas/v4"

// Static errors for native client operations.
var (
	// ErrAPIKeyRequired is returned when no API key is configured.
	ErrAPIKeyRequired = errors.New("native: API key is required")
	// ErrTaskIDRequired is returned when the task ID is not provided.
	ErrTaskIDRequired = errors.New("native: task ID is required")
	// ErrNoTaskIDReturned is returned when the submit response contains no task ID.
	ErrNoTaskIDReturned = errors.New("native: submit failed: no task ID returned")
	// ErrNoImageReturned is returned when an image response contains no URL.
	ErrNoImageReturned = errors.New("native: no image returned")
	// ErrContentFiltered is returned when the response was withheld by the safety filter.
	ErrContentFiltered = errors.New("native: output blocked by content moderation")
)

// Client defines the interface for interacting with the native API.
type Client interface {
	// GenerateImage creates an image synchronously.
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error)

	// SubmitVideo submits a video task and returns its task ID.
	SubmitVideo(ctx context.Context, req VideoRequest) (taskID string, err error)

	// Poll checks the status of an async task.
	Poll(ctx context.Context, taskID string) (PollResult, error)
}

// HTTPClient is the HTTP implementation of the native Client interface.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	api        *transport.Client
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *HTTPClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// NewClient creates a new native API client.
func NewClient(apiKey string, opts ...ClientOption) (*HTTPClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	c := &HTTPClient{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.api = transport.New("native", c.baseURL, c.httpClient, transport.Bearer(c.apiKey))

	return c, nil
}

// GenerateImage creates an image synchronously.
func (c *HTTPClient) GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error) {
	body := imageRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Size:    req.Size,
		Quality: req.Quality,
	}

	var resp imageResponse
	if err := c.api.Do(ctx, http.MethodPost, "/images/generations", body, &resp); err != nil {
		return ImageResult{}, err
	}

	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		if filtered(resp.ContentFilter) {
			return ImageResult{}, ErrContentFiltered
		}
		return ImageResult{}, ErrNoImageReturned
	}

	id := resp.RequestID
	if id == "" {
		id = resp.ID
	}
	return ImageResult{RequestID: id, URL: resp.Data[0].URL}, nil
}

// SubmitVideo submits a video task and returns its task ID.
func (c *HTTPClient) SubmitVideo(ctx context.Context, req VideoRequest) (string, error) {
	body := videoRequest{
		Model:    req.Model,
		Prompt:   req.Prompt,
		ImageURL: req.ImageURL,
		Size:     req.Size,
		Duration: req.Duration,
		Quality:  req.Quality,
	}

	var resp taskResponse
	if err := c.api.Do(ctx, http.MethodPost, "/videos/generations", body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", ErrNoTaskIDReturned
	}
	if Status(resp.TaskStatus) == StatusFail {
		return "", fmt.Errorf("native: task %s failed on submission", resp.ID)
	}

	return resp.ID, nil
}

// Poll checks the status of an async task.
func (c *HTTPClient) Poll(ctx context.Context, taskID string) (PollResult, error) {
	if taskID == "" {
		return PollResult{}, ErrTaskIDRequired
	}

	var resp asyncResultResponse
	if err := c.api.Do(ctx, http.MethodGet, "/async-result/"+url.PathEscape(taskID), nil, &resp); err != nil {
		return PollResult{}, err
	}

	result := PollResult{Status: Status(resp.TaskStatus)}
	switch result.Status {
	case StatusSuccess:
		switch {
		case len(resp.VideoResult) > 0 && resp.VideoResult[0].URL != "":
			result.URL = resp.VideoResult[0].URL
		case len(resp.ImageResult) > 0 && resp.ImageResult[0].URL != "":
			result.URL = resp.ImageResult[0].URL
		default:
			// A success without output is a partial result.
			result.Status = StatusFail
			result.Error = "incomplete response: task succeeded without output"
		}
	case StatusFail:
		if resp.Error != nil {
			result.Error = fmt.Sprintf("%s (%s)", resp.Error.Message, resp.Error.Code)
		} else {
			result.Error = "task failed"
		}
	}

	return result, nil
}

// filtered reports whether any content filter entry blocked the output.
// Level 0 is the most severe.
func filtered(filters []contentFilter) bool {
	for _, f := range filters {
		if f.Level == 0 {
			return true
		}
	}
	return false
}
