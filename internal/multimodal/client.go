package multimodal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maauso/genjob/internal/transport"
)

// DefaultBaseURL is the public endpoint of the multimodal API.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Static errors for multimodal client operations.
var (
	ErrAPIKeyRequired      = errors.New("multimodal: API key is required")
	ErrOperationRequired   = errors.New("multimodal: operation name is required")
	ErrNoImageReturned     = errors.New("multimodal: incomplete response: no image returned")
	ErrNoOperationReturned = errors.New("multimodal: submit failed: no operation returned")
	ErrNoVideoInOperation  = errors.New("multimodal: incomplete response: operation finished without a video")
)

// Client defines the interface for interacting with the multimodal API.
type Client interface {
	// GenerateImage returns the first inline image of the response.
	GenerateImage(ctx context.Context, req ImageRequest) (InlineImage, error)

	// SubmitVideo starts a long-running operation and returns its name.
	SubmitVideo(ctx context.Context, req VideoRequest) (string, error)

	// GetOperation fetches the state of an operation.
	GetOperation(ctx context.Context, name string) (Operation, error)
}

// HTTPClient is the HTTP implementation of Client.
type HTTPClient struct {
	api *transport.Client
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	baseURL    string
	httpClient *http.Client
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *clientConfig) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.httpClient = hc
	}
}

// NewClient creates a multimodal API client.
func NewClient(apiKey string, opts ...ClientOption) (*HTTPClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	cfg := clientConfig{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &HTTPClient{
		api: transport.New("multimodal", cfg.baseURL, cfg.httpClient, transport.Header("x-goog-api-key", apiKey)),
	}, nil
}

// GenerateImage returns the first inline image of the response. A blocked
// prompt or candidate is reported as an error carrying the block reason.
func (c *HTTPClient) GenerateImage(ctx context.Context, req ImageRequest) (InlineImage, error) {
	parts := []part{{Text: req.Prompt}}
	if req.Reference != nil {
		parts = append(parts, part{InlineData: &inlineData{
			MIMEType: req.Reference.MIMEType,
			Data:     req.Reference.Data,
		}})
	}

	body := generateContentRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}
	if req.AspectRatio != "" {
		body.GenerationConfig.ImageConfig = &imageConfig{AspectRatio: req.AspectRatio}
	}

	var resp generateContentResponse
	path := "/models/" + url.PathEscape(req.Model) + ":generateContent"
	if err := c.api.Do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return InlineImage{}, err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return InlineImage{}, fmt.Errorf("multimodal: prompt %s", blockedMessage(resp.PromptFeedback.BlockReason))
	}

	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				return InlineImage{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}, nil
			}
		}
		if blockedFinishReasons[cand.FinishReason] {
			return InlineImage{}, fmt.Errorf("multimodal: candidate %s", blockedMessage(cand.FinishReason))
		}
	}

	return InlineImage{}, ErrNoImageReturned
}

// SubmitVideo starts a predictLongRunning operation and returns its name.
func (c *HTTPClient) SubmitVideo(ctx context.Context, req VideoRequest) (string, error) {
	inst := videoInstance{Prompt: req.Prompt}
	if req.Reference != nil {
		inst.Image = &videoImage{
			BytesBase64Encoded: req.Reference.Data,
			MIMEType:           req.Reference.MIMEType,
		}
	}

	body := predictRequest{
		Instances: []videoInstance{inst},
		Parameters: videoParameters{
			AspectRatio:     req.AspectRatio,
			DurationSeconds: req.DurationSec,
		},
	}

	var resp operationResponse
	path := "/models/" + url.PathEscape(req.Model) + ":predictLongRunning"
	if err := c.api.Do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", err
	}
	if resp.Name == "" {
		return "", ErrNoOperationReturned
	}

	return resp.Name, nil
}

// GetOperation fetches the state of an operation, e.g. "models/veo-3/operations/abc".
func (c *HTTPClient) GetOperation(ctx context.Context, name string) (Operation, error) {
	if name == "" {
		return Operation{}, ErrOperationRequired
	}

	var resp operationResponse
	if err := c.api.Do(ctx, http.MethodGet, "/"+strings.TrimPrefix(name, "/"), nil, &resp); err != nil {
		return Operation{}, err
	}

	op := Operation{Name: resp.Name, Done: resp.Done}
	if !resp.Done {
		return op, nil
	}

	switch {
	case resp.Error != nil:
		op.Error = fmt.Sprintf("%s (code %d)", resp.Error.Message, resp.Error.Code)
	case resp.Response == nil:
		op.Error = ErrNoVideoInOperation.Error()
	default:
		gv := resp.Response.GenerateVideoResponse
		switch {
		case len(gv.GeneratedSamples) > 0 && gv.GeneratedSamples[0].Video.URI != "":
			op.URI = gv.GeneratedSamples[0].Video.URI
		case len(gv.RAIMediaFilteredReasons) > 0:
			op.Error = "blocked by safety filter: " + strings.Join(gv.RAIMediaFilteredReasons, "; ")
		default:
			op.Error = ErrNoVideoInOperation.Error()
		}
	}

	return op, nil
}

var _ Client = (*HTTPClient)(nil)
