package provider

import (
	"context"
	"fmt"

	"github.com/maauso/genjob/internal/relaya"
)

// RelayAAdapter adapts the OpenAI-compatible relay client to the Adapter interface.
type RelayAAdapter struct {
	base
	client relaya.Client
}

// NewRelayAAdapter creates a new relay adapter.
func NewRelayAAdapter(client relaya.Client, caps Capabilities) *RelayAAdapter {
	return &RelayAAdapter{base: base{name: NameRelayA, caps: caps}, client: client}
}

// Submit generates an image synchronously or creates a video job.
func (a *RelayAAdapter) Submit(ctx context.Context, p Payload) (Submission, error) {
	if err := a.checkKind(p.Kind); err != nil {
		return Submission{}, err
	}
	ctx, cancel := a.callContext(ctx)
	defer cancel()

	if p.Kind == KindImage {
		res, err := a.client.GenerateImage(ctx, relaya.ImageRequest{
			Model:        p.Model,
			Prompt:       p.Prompt,
			Size:         imageSize(p.Options),
			Quality:      p.Options.Quality,
			ReferenceURL: p.Reference.Link(),
		})
		if err != nil {
			return Submission{}, fmt.Errorf("relayA adapter submit: %w", err)
		}

		ref := res.URL
		if ref == "" {
			ref = dataURI("image/png", res.B64JSON)
		}
		return Submission{
			TaskID: newSyncTaskID(),
			Status: JobStatus{State: StateSucceeded, ResultRef: ref, Progress: 100},
		}, nil
	}

	taskID, err := a.client.SubmitVideo(ctx, relaya.VideoRequest{
		Model:        p.Model,
		Prompt:       p.Prompt,
		Seconds:      p.Options.DurationSec,
		Size:         videoSize(p.Options),
		ReferenceURL: p.Reference.Link(),
	})
	if err != nil {
		return Submission{}, fmt.Errorf("relayA adapter submit: %w", err)
	}

	return Submission{TaskID: taskID, Status: JobStatus{State: StateQueued}}, nil
}

// Poll checks the status of a relay video job.
func (a *RelayAAdapter) Poll(ctx context.Context, taskID string) (JobStatus, error) {
	if isSyncTaskID(taskID) {
		return JobStatus{}, ErrUnknownTask
	}
	ctx, cancel := a.callContext(ctx)
	defer cancel()

	result, err := a.client.PollVideo(ctx, taskID)
	if err != nil {
		return JobStatus{}, fmt.Errorf("relayA adapter poll: %w", err)
	}

	var state State
	switch result.Status {
	case relaya.StatusQueued:
		state = StateQueued
	case relaya.StatusCompleted:
		state = StateSucceeded
	case relaya.StatusFailed:
		state = StateFailed
	default:
		state = StateRunning
	}

	return JobStatus{
		State:      state,
		ResultRef:  result.URL,
		RawFailure: result.Error,
		Progress:   result.Progress,
	}, nil
}

// Quota is not offered by this relay.
func (a *RelayAAdapter) Quota(context.Context) (Quota, error) {
	return Quota{}, ErrQuotaNotSupported
}

var _ Adapter = (*RelayAAdapter)(nil)
