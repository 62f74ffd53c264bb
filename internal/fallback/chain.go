// Package fallback tries an ordered list of (adapter, model) candidates for a
// single logical request until one of them accepts the submission.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maauso/genjob/internal/classify"
	"github.com/maauso/genjob/internal/provider"
)

// ErrNoCandidates is returned when Execute is called with an empty candidate list.
var ErrNoCandidates = errors.New("fallback: no candidates")

// Candidate pairs an adapter with the model to substitute into the payload.
type Candidate struct {
	Adapter provider.Adapter
	Model   string
}

// Mode is the submission mode of one attempt.
type Mode string

// Attempt modes.
const (
	ModeReference Mode = "reference" // reference-conditioned
	ModeText      Mode = "text"      // text only
)

// AttemptRecord is the diagnostic record of one attempt.
type AttemptRecord struct {
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	Mode      Mode            `json:"mode"`
	Succeeded bool            `json:"succeeded"`
	Err       *classify.Error `json:"-"`
}

// Code returns the classified failure code, or "" for a successful attempt.
func (r AttemptRecord) Code() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Code()
}

// Result is the outcome of a successful chain execution.
type Result struct {
	Submission provider.Submission
	Winner     Candidate
	Attempts   []AttemptRecord
	// Degraded is true when a reference asset was supplied but the winning
	// submission was text only.
	Degraded bool
}

// ExhaustedError is returned when every candidate failed.
type ExhaustedError struct {
	Attempts []AttemptRecord
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s/%s(%s): %s", a.Provider, a.Model, a.Mode, a.Code()))
	}
	return fmt.Sprintf("fallback: all %d attempts failed: %s", len(e.Attempts), strings.Join(parts, ", "))
}

// Unwrap exposes every attempt's classified error to errors.Is/As.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// Classified summarises the exhaustion as one classified error. The kind is
// that of the last attempt; the raw text lists every attempt.
func (e *ExhaustedError) Classified() *classify.Error {
	if len(e.Attempts) == 0 {
		return classify.New(classify.KindUnknown, e.Error())
	}

	last := e.Attempts[len(e.Attempts)-1].Err
	kind := classify.KindUnknown
	if last != nil {
		kind = last.Kind
	}

	raws := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			raws = append(raws, fmt.Sprintf("%s: %s", a.Model, a.Err.Raw))
		}
	}

	ce := classify.New(kind, strings.Join(raws, "; "))
	if kind == classify.KindUnknown && last != nil {
		ce.Message = last.Message
	}
	ce.Err = e
	return ce
}

// Chain executes candidate lists. It is stateless and safe for concurrent use.
type Chain struct {
	logger *slog.Logger
}

// New creates a Chain.
func New(logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{logger: logger}
}

// Execute submits payload to each candidate in order and returns the first
// success. An AuthFailed or Cancelled failure stops the chain at once and is
// returned as a *classify.Error; if every candidate fails the error is an
// *ExhaustedError.
//
// When payload carries a reference asset, each candidate is tried first in
// reference mode (if it advertises image-to-image) and then in text mode with
// the reference description folded into the prompt.
func (c *Chain) Execute(ctx context.Context, candidates []Candidate, payload provider.Payload) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, ErrNoCandidates
	}

	var attempts []AttemptRecord

	for _, cand := range candidates {
		for _, mode := range modesFor(cand, payload) {
			if err := ctx.Err(); err != nil {
				return Result{Attempts: attempts}, classify.FromError(err)
			}

			p := payload
			p.Model = cand.Model
			if mode == ModeText && payload.Reference != nil {
				p.Reference = nil
				p.Prompt = foldReference(payload.Prompt, payload.Reference)
			}

			sub, err := cand.Adapter.Submit(ctx, p)
			rec := AttemptRecord{
				Provider: cand.Adapter.Name(),
				Model:    cand.Model,
				Mode:     mode,
			}

			if err == nil {
				rec.Succeeded = true
				attempts = append(attempts, rec)
				return Result{
					Submission: sub,
					Winner:     cand,
					Attempts:   attempts,
					Degraded:   payload.Reference != nil && mode == ModeText,
				}, nil
			}

			rec.Err = classify.FromError(err)
			attempts = append(attempts, rec)

			c.logger.Warn("fallback attempt failed",
				slog.String("provider", rec.Provider),
				slog.String("model", rec.Model),
				slog.String("mode", string(mode)),
				slog.String("code", rec.Code()),
				slog.String("error", err.Error()),
			)

			if !rec.Err.Kind.IsRetriable() {
				return Result{Attempts: attempts}, rec.Err
			}
		}
	}

	exhausted := &ExhaustedError{Attempts: attempts}
	c.logger.Error("fallback chain exhausted", slog.Int("attempts", len(attempts)))
	return Result{Attempts: attempts}, exhausted
}

// modesFor returns the submission modes to try for a candidate, in order.
func modesFor(cand Candidate, payload provider.Payload) []Mode {
	if payload.Reference == nil {
		return []Mode{ModeText}
	}
	if cand.Adapter.Capabilities().SupportsReference(payload.Kind) {
		return []Mode{ModeReference, ModeText}
	}
	return []Mode{ModeText}
}

// foldReference appends the reference description to the prompt.
func foldReference(prompt string, ref *provider.ReferenceAsset) string {
	if ref == nil || strings.TrimSpace(ref.Description) == "" {
		return prompt
	}
	return prompt + "\n\nReference image: " + strings.TrimSpace(ref.Description)
}
