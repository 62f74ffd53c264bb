// Package server provides the HTTP surface of the generation job orchestrator.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// ProviderConfig is the resolved provider configuration sent by the caller.
type ProviderConfig struct {
	// Provider selects the adapter: native, relayA, relayB or multimodal.
	Provider string `json:"provider" validate:"required,oneof=native relayA relayB multimodal"`
	// BaseURL overrides the provider endpoint. Required for the relays.
	BaseURL string `json:"baseUrl,omitempty" validate:"omitempty,url"`
	// APIKey is attached to provider requests as-is.
	APIKey string `json:"apiKey,omitempty"`
	// PreferredModel is tried before the catalog fallbacks.
	PreferredModel string `json:"preferredModel,omitempty" validate:"max=200"`
}

// Reference is an optional input image conditioning the generation.
type Reference struct {
	// URL is a remote URL or data URI.
	URL string `json:"url,omitempty" validate:"required_without=Base64"`
	// Base64 is the raw image, base64-encoded.
	Base64 string `json:"base64,omitempty" validate:"omitempty,base64"`
	// MIMEType of Base64, e.g. image/png.
	MIMEType string `json:"mimeType,omitempty" validate:"omitempty,max=100"`
	// Description is folded into the prompt when the provider cannot use the image.
	Description string `json:"description,omitempty" validate:"max=2000"`
}

// Options are kind-specific generation options.
type Options struct {
	AspectRatio string `json:"aspectRatio,omitempty" validate:"omitempty,oneof=1:1 16:9 9:16 4:3 3:4 3:2 2:3"`
	Size        string `json:"size,omitempty" validate:"omitempty,max=20"`
	DurationSec int    `json:"durationSec,omitempty" validate:"min=0,max=120"`
	Quality     string `json:"quality,omitempty" validate:"omitempty,max=20"`
}

// CreateJobRequest is the HTTP request body for creating a new job.
type CreateJobRequest struct {
	// Config is the provider configuration. The server default is used when absent.
	Config *ProviderConfig `json:"config,omitempty"`
	// Kind is image or video.
	Kind string `json:"kind" validate:"required,oneof=image video"`
	// Prompt is the generation prompt.
	Prompt string `json:"prompt" validate:"required,max=8000"`
	// Reference is an optional input image.
	Reference *Reference `json:"reference,omitempty"`
	// Options are kind-specific options.
	Options Options `json:"options"`
	// Models overrides the candidate models, in order.
	Models []string `json:"models,omitempty" validate:"max=10,dive,required"`
}

// QuotaRequest is the HTTP request body for a quota lookup.
type QuotaRequest struct {
	Config *ProviderConfig `json:"config,omitempty"`
}

// QuotaResponse is the account balance reported by a provider.
type QuotaResponse struct {
	Provider  string  `json:"provider"`
	Total     float64 `json:"total"`
	Used      float64 `json:"used"`
	Remaining float64 `json:"remaining"`
}

// AssetResponse is the materialized result of a job.
type AssetResponse struct {
	// Materialized is false when only the provider reference could be returned.
	Materialized bool   `json:"materialized"`
	Strategy     string `json:"strategy"`
	MIMEType     string `json:"mimeType,omitempty"`
	// Base64 is the asset content.
	Base64 string `json:"base64,omitempty"`
	// URL is the durable location, when object storage is configured.
	URL string `json:"url,omitempty"`
	// Ref is the provider reference.
	Ref string `json:"ref,omitempty"`
}

// FailureResponse is the classified failure of a job.
type FailureResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
}

// AttemptResponse is one fallback attempt.
type AttemptResponse struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Mode      string `json:"mode"`
	Succeeded bool   `json:"succeeded"`
	Code      string `json:"code,omitempty"`
}

// JobResponse is the HTTP response for job details.
type JobResponse struct {
	ID         string            `json:"id"`
	Status     string            `json:"status"`
	Kind       string            `json:"kind"`
	Provider   string            `json:"provider,omitempty"`
	Model      string            `json:"model,omitempty"`
	TaskID     string            `json:"taskId,omitempty"`
	Progress   int               `json:"progress"`
	Polls      int               `json:"polls"`
	Degraded   bool              `json:"degraded,omitempty"`
	Asset      *AssetResponse    `json:"asset,omitempty"`
	Error      *FailureResponse  `json:"error,omitempty"`
	Attempts   []AttemptResponse `json:"attempts,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// Jobs is the number of jobs in the registry.
	Jobs int `json:"jobs"`
}
