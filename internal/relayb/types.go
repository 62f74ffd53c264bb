// Package relayb provides an HTTP client for task-style aggregation relays.
// Videos are submitted as tasks with their own status vocabulary; the relay also
// exposes a billing dashboard that is used to report quota.
package relayb

import (
	"strconv"
	"strings"
)

// Status represents the status of a relay task.
type Status string

// Relay task statuses.
const (
	StatusNotStart   Status = "NOT_START"
	StatusSubmitted  Status = "SUBMITTED"
	StatusQueued     Status = "QUEUED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
	StatusFailure    Status = "FAILURE"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// ImageRequest contains the parameters for a synchronous image generation.
type ImageRequest struct {
	Model  string
	Prompt string
	Size   string
}

// VideoRequest contains the parameters for submitting a video task.
type VideoRequest struct {
	Model    string
	Prompt   string
	Image    string // optional reference; URL or data URI
	Duration int
	Size     string
}

// PollResult contains the result of polling a task.
type PollResult struct {
	Status   Status
	Progress int
	URL      string
	Error    string
}

// Balance is the account quota in USD.
type Balance struct {
	Total float64
	Used  float64
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
	N      int    `json:"n"`
}

type imageResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL     string `json:"url,omitempty"`
		B64JSON string `json:"b64_json,omitempty"`
	} `json:"data"`
}

type videoRequest struct {
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
	Image    string `json:"image,omitempty"`
	Duration int    `json:"duration,omitempty"`
	Size     string `json:"size,omitempty"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status,omitempty"`
}

type taskEnvelope struct {
	Code    string   `json:"code"`
	Message string   `json:"message,omitempty"`
	Data    taskData `json:"data"`
}

type taskData struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	Progress   string `json:"progress,omitempty"` // e.g. "30%"
	FailReason string `json:"fail_reason,omitempty"`
	ResultURL  string `json:"result_url,omitempty"`
}

type subscriptionResponse struct {
	HardLimitUSD float64 `json:"hard_limit_usd"`
}

type usageResponse struct {
	TotalUsage float64 `json:"total_usage"` // hundredths of a USD
}

// parseProgress converts "30%" to 30. Anything unparseable is 0.
func parseProgress(s string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if err != nil || n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
