// Package provider defines the uniform contract every media-generation backend
// is driven through, and the adapters that translate it into each backend's
// wire format and status vocabulary.
package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/maauso/genjob/internal/classify"
)

// Kind is the type of media being generated.
type Kind string

// Supported media kinds.
const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindImage || k == KindVideo
}

// State is the normalized state of a remote task.
type State string

// Normalized task states. Every adapter maps its provider's vocabulary onto these.
const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// IsTerminal returns true if the state is final.
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Provider names accepted in Config.Provider.
const (
	NameNative     = "native"
	NameRelayA     = "relayA"
	NameRelayB     = "relayB"
	NameMultimodal = "multimodal"
)

// Static errors shared by all adapters.
var (
	// ErrQuotaNotSupported is returned by adapters without a quota endpoint.
	ErrQuotaNotSupported = errors.New("provider: quota not supported")
	// ErrReferenceNotSupported is returned when a reference asset cannot be used
	// for the requested kind; callers degrade to a text-only submission.
	ErrReferenceNotSupported = errors.New("provider: reference-conditioned generation not supported")
	// ErrKindNotSupported is returned when the adapter cannot generate the requested kind.
	ErrKindNotSupported = errors.New("provider: kind not supported")
	// ErrUnknownProvider is returned by New for an unrecognised provider name.
	ErrUnknownProvider = errors.New("provider: unknown provider")
	// ErrUnknownTask is returned when polling a handle the adapter never issued.
	ErrUnknownTask = errors.New("provider: unknown task handle")
)

// ReferenceAsset is an optional input image that conditions generation.
type ReferenceAsset struct {
	URL         string // remote URL or data URI
	Data        []byte // raw bytes, when already available
	MIMEType    string
	Description string // folded into the prompt when the reference cannot be used
}

// Link returns a URL usable in JSON request bodies: the remote URL if present,
// otherwise a data URI built from Data.
func (r *ReferenceAsset) Link() string {
	if r == nil {
		return ""
	}
	if r.URL != "" {
		return r.URL
	}
	if len(r.Data) == 0 {
		return ""
	}
	mime := r.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(r.Data)
}

// Options are kind-specific generation options.
type Options struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	Size        string `json:"size,omitempty"`
	DurationSec int    `json:"durationSec,omitempty"`
	Quality     string `json:"quality,omitempty"`
}

// Payload is one submission as seen by an adapter.
type Payload struct {
	Kind      Kind
	Model     string
	Prompt    string
	Reference *ReferenceAsset
	Options   Options
}

// JobStatus is the normalized result of a poll.
type JobStatus struct {
	State      State
	ResultRef  string // URL or data URI, set when State is StateSucceeded
	RawFailure string // provider text, set when State is StateFailed
	Progress   int    // 0-100 when the provider reports it
}

// Submission is the outcome of a successful submit.
type Submission struct {
	TaskID string
	// Status is the state right after submission. Synchronous endpoints
	// return a terminal status here and are never polled.
	Status JobStatus
}

// Quota is the account balance reported by a provider.
type Quota struct {
	Total     float64 `json:"total"`
	Used      float64 `json:"used"`
	Remaining float64 `json:"remaining"`
}

// Capabilities is the static description of an adapter.
type Capabilities struct {
	Kinds          []Kind
	// ReferenceKinds lists the kinds whose submit endpoint accepts a
	// reference image.
	ReferenceKinds []Kind
	FallbackModels map[Kind][]string
	RequestTimeout time.Duration
}

// Supports reports whether kind is among the supported kinds.
func (c Capabilities) Supports(kind Kind) bool {
	for _, k := range c.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// SupportsReference reports whether a reference image can be sent with a
// request of the given kind.
func (c Capabilities) SupportsReference(kind Kind) bool {
	for _, k := range c.ReferenceKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Adapter drives one backend family. Implementations never retry internally.
type Adapter interface {
	// Name returns the provider name, e.g. "relayA".
	Name() string

	// Capabilities returns the static capabilities of the adapter.
	Capabilities() Capabilities

	// Submit sends one generation request.
	Submit(ctx context.Context, p Payload) (Submission, error)

	// Poll returns the current status of a task. It has no side effects
	// beyond the network call.
	Poll(ctx context.Context, taskID string) (JobStatus, error)

	// Quota returns the account balance, or ErrQuotaNotSupported.
	Quota(ctx context.Context) (Quota, error)
}

// base carries the parts shared by every adapter.
type base struct {
	name string
	caps Capabilities
}

func (b base) Name() string { return b.name }

func (b base) Capabilities() Capabilities { return b.caps }

// callContext bounds a single provider call by the capability timeout.
func (b base) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.caps.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.caps.RequestTimeout)
}

// referenceNotSupported wraps ErrReferenceNotSupported as a bad request so the
// refusal is reported with a stable code.
func referenceNotSupported(kind Kind) error {
	ce := classify.New(classify.KindBadRequest, ErrReferenceNotSupported.Error()+": "+string(kind))
	ce.Err = ErrReferenceNotSupported
	return ce
}

func (b base) checkKind(kind Kind) error {
	if len(b.caps.Kinds) > 0 && !b.caps.Supports(kind) {
		return ErrKindNotSupported
	}
	return nil
}
