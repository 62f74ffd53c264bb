package provider

import (
	"context"
	"fmt"

	"github.com/maauso/genjob/internal/relayb"
)

// RelayBAdapter adapts the task-style relay client to the Adapter interface.
type RelayBAdapter struct {
	base
	client relayb.Client
}

// NewRelayBAdapter creates a new relay adapter.
func NewRelayBAdapter(client relayb.Client, caps Capabilities) *RelayBAdapter {
	return &RelayBAdapter{base: base{name: NameRelayB, caps: caps}, client: client}
}

// Submit generates an image synchronously or submits a video task.
func (a *RelayBAdapter) Submit(ctx context.Context, p Payload) (Submission, error) {
	if err := a.checkKind(p.Kind); err != nil {
		return Submission{}, err
	}
	ctx, cancel := a.callContext(ctx)
	defer cancel()

	if p.Kind == KindImage {
		if p.Reference != nil {
			return Submission{}, referenceNotSupported(p.Kind)
		}
		ref, err := a.client.GenerateImage(ctx, relayb.ImageRequest{
			Model:  p.Model,
			Prompt: p.Prompt,
			Size:   imageSize(p.Options),
		})
		if err != nil {
			return Submission{}, fmt.Errorf("relayB adapter submit: %w", err)
		}
		return Submission{
			TaskID: newSyncTaskID(),
			Status: JobStatus{State: StateSucceeded, ResultRef: ref, Progress: 100},
		}, nil
	}

	taskID, err := a.client.SubmitVideo(ctx, relayb.VideoRequest{
		Model:    p.Model,
		Prompt:   p.Prompt,
		Image:    p.Reference.Link(),
		Duration: p.Options.DurationSec,
		Size:     videoSize(p.Options),
	})
	if err != nil {
		return Submission{}, fmt.Errorf("relayB adapter submit: %w", err)
	}

	return Submission{TaskID: taskID, Status: JobStatus{State: StateQueued}}, nil
}

// Poll checks the status of a relay task.
func (a *RelayBAdapter) Poll(ctx context.Context, taskID string) (JobStatus, error) {
	if isSyncTaskID(taskID) {
		return JobStatus{}, ErrUnknownTask
	}
	ctx, cancel := a.callContext(ctx)
	defer cancel()

	result, err := a.client.Poll(ctx, taskID)
	if err != nil {
		return JobStatus{}, fmt.Errorf("relayB adapter poll: %w", err)
	}

	var state State
	switch result.Status {
	case relayb.StatusNotStart, relayb.StatusSubmitted, relayb.StatusQueued:
		state = StateQueued
	case relayb.StatusSuccess:
		state = StateSucceeded
	case relayb.StatusFailure:
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

// Quota reports the relay's billing balance.
func (a *RelayBAdapter) Quota(ctx context.Context) (Quota, error) {
	ctx, cancel := a.callContext(ctx)
	defer cancel()

	b, err := a.client.Balance(ctx)
	if err != nil {
		return Quota{}, fmt.Errorf("relayB adapter quota: %w", err)
	}

	remaining := b.Total - b.Used
	if remaining < 0 {
		remaining = 0
	}
	return Quota{Total: b.Total, Used: b.Used, Remaining: remaining}, nil
}

var _ Adapter = (*RelayBAdapter)(nil)
