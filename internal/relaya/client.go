package relaya

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/maauso/genjob/internal/transport"
)

// Static errors for relay client operations.
var (
	// ErrAPIKeyRequired is returned when no API key is configured.
	ErrAPIKeyRequired = errors.New("relaya: API key is required")
	// ErrBaseURLRequired is returned when no relay base URL is configured.
	ErrBaseURLRequired = errors.New("relaya: base URL is required")
	// ErrTaskIDRequired is returned when the video ID is not provided.
	ErrTaskIDRequired = errors.New("relaya: video ID is required")
	// ErrNoImageReturned is returned when an image response carries no data.
	ErrNoImageReturned = errors.New("relaya: incomplete response: no image returned")
	// ErrNoTaskIDReturned is returned when the video submit response carries no ID.
	ErrNoTaskIDReturned = errors.New("relaya: submit failed: no video ID returned")
)

// Client defines the interface for interacting with an OpenAI-compatible relay.
type Client interface {
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error)
	SubmitVideo(ctx context.Context, req VideoRequest) (taskID string, err error)
	PollVideo(ctx context.Context, taskID string) (PollResult, error)
}

// SDKClient implements Client on top of the official OpenAI SDK. SDK retries are
// disabled; fallback and polling decide when to try again.
type SDKClient struct {
	api     openai.Client
	baseURL string
}

// ClientOption is a function that configures an SDKClient.
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

// NewClient creates a relay client for baseURL (e.g. "https://relay.example.com/v1").
func NewClient(baseURL, apiKey string, opts ...ClientOption) (*SDKClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	cfg := clientConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &SDKClient{
		api:     openai.NewClient(reqOpts...),
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// GenerateImage generates an image, or edits the reference image when one is set.
func (c *SDKClient) GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error) {
	var (
		resp *openai.ImagesResponse
		err  error
	)

	if req.ReferenceURL != "" {
		resp = &openai.ImagesResponse{}
		body := editRequest{
			Model:   req.Model,
			Prompt:  req.Prompt,
			Images:  []imageLink{{ImageURL: req.ReferenceURL}},
			Size:    req.Size,
			Quality: req.Quality,
			N:       1,
		}
		err = c.api.Post(ctx, "images/edits", body, resp)
	} else {
		params := openai.ImageGenerateParams{
			Model:  openai.ImageModel(req.Model),
			Prompt: req.Prompt,
			N:      openai.Int(1),
		}
		if req.Size != "" {
			params.Size = openai.ImageGenerateParamsSize(req.Size)
		}
		if req.Quality != "" {
			params.Quality = openai.ImageGenerateParamsQuality(req.Quality)
		}
		resp, err = c.api.Images.Generate(ctx, params)
	}
	if err != nil {
		return ImageResult{}, convertError(err)
	}

	if resp == nil || len(resp.Data) == 0 {
		return ImageResult{}, ErrNoImageReturned
	}
	img := resp.Data[0]
	if img.URL == "" && img.B64JSON == "" {
		return ImageResult{}, ErrNoImageReturned
	}

	return ImageResult{URL: img.URL, B64JSON: img.B64JSON}, nil
}

// SubmitVideo creates a video job and returns its ID.
func (c *SDKClient) SubmitVideo(ctx context.Context, req VideoRequest) (string, error) {
	body := videoRequest{
		Model:          req.Model,
		Prompt:         req.Prompt,
		Size:           req.Size,
		InputReference: req.ReferenceURL,
	}
	if req.Seconds > 0 {
		body.Seconds = strconv.Itoa(req.Seconds)
	}

	var resp videoResponse
	if err := c.api.Post(ctx, "videos", body, &resp); err != nil {
		return "", convertError(err)
	}
	if resp.ID == "" {
		return "", ErrNoTaskIDReturned
	}

	return resp.ID, nil
}

// PollVideo retrieves the current state of a video job.
func (c *SDKClient) PollVideo(ctx context.Context, taskID string) (PollResult, error) {
	if taskID == "" {
		return PollResult{}, ErrTaskIDRequired
	}

	var resp videoResponse
	if err := c.api.Get(ctx, "videos/"+url.PathEscape(taskID), nil, &resp); err != nil {
		return PollResult{}, convertError(err)
	}

	result := PollResult{Status: Status(resp.Status), Progress: resp.Progress}
	switch result.Status {
	case StatusCompleted:
		result.Progress = 100
		switch {
		case resp.URL != "":
			result.URL = resp.URL
		case resp.VideoURL != "":
			result.URL = resp.VideoURL
		default:
			result.URL = c.baseURL + "/videos/" + url.PathEscape(taskID) + "/content"
		}
	case StatusFailed:
		if resp.Error != nil && resp.Error.Message != "" {
			result.Error = resp.Error.Message
			if resp.Error.Code != "" {
				result.Error = fmt.Sprintf("%s: %s", resp.Error.Code, resp.Error.Message)
			}
		} else {
			result.Error = "video generation failed"
		}
	}

	return result, nil
}

// convertError turns SDK API errors into transport status errors so they
// classify the same way as every other provider.
func convertError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		body := apiErr.Message
		if apiErr.Code != "" {
			body = apiErr.Code + ": " + body
		}
		return &transport.StatusError{
			Service:    "relaya",
			StatusCode: apiErr.StatusCode,
			Body:       body,
		}
	}
	return fmt.Errorf("relaya: %w", err)
}

var _ Client = (*SDKClient)(nil)
