// Package relaya provides a client for OpenAI-compatible relays. Images are
// generated synchronously through the images API; videos are asynchronous jobs
// on the videos endpoint.
package relaya

// Status represents the status of a relay video job.
type Status string

// Video job statuses.
const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ImageRequest contains the parameters for an image generation or edit.
type ImageRequest struct {
	Model        string
	Prompt       string
	Size         string
	Quality      string
	ReferenceURL string // URL or data URI; switches the call to an edit
}

// ImageResult holds the generated image, either as a URL or inline base64.
type ImageResult struct {
	URL     string
	B64JSON string
}

// VideoRequest contains the parameters for submitting a video job.
type VideoRequest struct {
	Model        string
	Prompt       string
	Seconds      int
	Size         string
	ReferenceURL string
}

// PollResult contains the result of polling a video job.
type PollResult struct {
	Status   Status
	Progress int
	URL      string
	Error    string
}

type editRequest struct {
	Model   string      `json:"model"`
	Prompt  string      `json:"prompt"`
	Images  []imageLink `json:"images"`
	Size    string      `json:"size,omitempty"`
	Quality string      `json:"quality,omitempty"`
	N       int         `json:"n"`
}

type imageLink struct {
	ImageURL string `json:"image_url"`
}

type videoRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Seconds        string `json:"seconds,omitempty"`
	Size           string `json:"size,omitempty"`
	InputReference string `json:"input_reference,omitempty"`
}

type videoResponse struct {
	ID       string `json:"id"`
	Object   string `json:"object,omitempty"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	URL      string `json:"url,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
	Error    *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
