// Package native provides an HTTP client for the vendor's native generation API.
// Images are generated synchronously; videos are asynchronous tasks polled through
// the async-result endpoint.
package native

// Status represents the status of a native async task.
type Status string

// Native task statuses as returned by the async-result endpoint.
const (
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFail       Status = "FAIL"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFail
}

// ImageRequest contains the parameters for a synchronous image generation.
type ImageRequest struct {
	Model   string
	Prompt  string
	Size    string // e.g. "1024x1024"
	Quality string // "standard" or "hd"
}

// ImageResult is the outcome of a synchronous image generation.
type ImageResult struct {
	RequestID string
	URL       string
}

// VideoRequest contains the parameters for submitting a video task.
type VideoRequest struct {
	Model    string
	Prompt   string
	ImageURL string // optional first frame; URL or data URI
	Size     string
	Duration int
	Quality  string // "speed" or "quality"
}

// PollResult contains the result of polling a task.
type PollResult struct {
	Status Status
	URL    string // only set when Status is StatusSuccess
	Error  string // only set when Status is StatusFail
}

type imageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
}

type imageResponse struct {
	ID        string `json:"id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Created   int64  `json:"created"`
	Data      []struct {
		URL string `json:"url"`
	} `json:"data"`
	ContentFilter []contentFilter `json:"content_filter,omitempty"`
}

type videoRequest struct {
	Model    string `json:"model"`
	Prompt   string `json:"prompt,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Size     string `json:"size,omitempty"`
	Duration int    `json:"duration,omitempty"`
	Quality  string `json:"quality,omitempty"`
}

type taskResponse struct {
	ID         string `json:"id"`
	RequestID  string `json:"request_id,omitempty"`
	Model      string `json:"model,omitempty"`
	TaskStatus string `json:"task_status"`
}

type asyncResultResponse struct {
	ID          string `json:"id,omitempty"`
	Model       string `json:"model,omitempty"`
	TaskStatus  string `json:"task_status"`
	VideoResult []struct {
		URL           string `json:"url"`
		CoverImageURL string `json:"cover_image_url,omitempty"`
	} `json:"video_result,omitempty"`
	ImageResult []struct {
		URL string `json:"url"`
	} `json:"image_result,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type contentFilter struct {
	Role  string `json:"role"`
	Level int    `json:"level"`
}
