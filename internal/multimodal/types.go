// Package multimodal provides an HTTP client for a multimodal model API that
// returns images inline from generateContent and produces videos through
// long-running operations.
package multimodal

import "strings"

// InlineImage is raw image data sent to or returned by the API.
type InlineImage struct {
	MIMEType string
	Data     string // base64
}

// ImageRequest contains the parameters for an image generation.
type ImageRequest struct {
	Model       string
	Prompt      string
	AspectRatio string
	Reference   *InlineImage
}

// VideoRequest contains the parameters for a video operation.
type VideoRequest struct {
	Model       string
	Prompt      string
	AspectRatio string
	DurationSec int
	Reference   *InlineImage
}

// Operation is the state of a long-running video operation.
type Operation struct {
	Name  string
	Done  bool
	URI   string
	Error string
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason,omitempty"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

type predictRequest struct {
	Instances  []videoInstance `json:"instances"`
	Parameters videoParameters `json:"parameters"`
}

type videoInstance struct {
	Prompt string      `json:"prompt"`
	Image  *videoImage `json:"image,omitempty"`
}

type videoImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MIMEType           string `json:"mimeType"`
}

type videoParameters struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

type operationResponse struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
			RAIMediaFilteredCount   int      `json:"raiMediaFilteredCount,omitempty"`
			RAIMediaFilteredReasons []string `json:"raiMediaFilteredReasons,omitempty"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

// blockedFinishReasons are finish reasons that mean the output was withheld.
var blockedFinishReasons = map[string]bool{
	"SAFETY":             true,
	"PROHIBITED_CONTENT": true,
	"IMAGE_SAFETY":       true,
	"BLOCKLIST":          true,
	"SPII":               true,
	"RECITATION":         true,
}

func blockedMessage(reason string) string {
	switch reason {
	case "RECITATION":
		return "output resembles copyright protected content"
	default:
		return "blocked: " + strings.ToLower(reason) + " content policy"
	}
}
