package provider

import (
	"context"
	"fmt"

	"github.com/maauso/genjob/internal/native"
)

// NativeAdapter adapts the native vendor client to the Adapter interface.
type NativeAdapter struct {
	base
	client native.Client
}

// NewNativeAdapter creates a new native adapter.
func NewNativeAdapter(client native.Client, caps Capabilities) *NativeAdapter {
	return &NativeAdapter{base: base{name: NameNative, caps: caps}, client: client}
}

// Submit generates an image synchronously or submits a video task.
func (a *NativeAdapter) Submit(ctx context.Context, p Payload) (Submission, error) {
	if err := a.checkKind(p.Kind); err != nil {
		return Submission{}, err
	}
	ctx, cancel := a.callContext(ctx)
	defer cancel()

	if p.Kind == KindImage {
		if p.Reference != nil {
			return Submission{}, referenceNotSupported(p.Kind)
		}
		res, err := a.client.GenerateImage(ctx, native.ImageRequest{
			Model:   p.Model,
			Prompt:  p.Prompt,
			Size:    imageSize(p.Options),
			Quality: p.Options.Quality,
		})
		if err != nil {
			return Submission{}, fmt.Errorf("native adapter submit: %w", err)
		}
		return Submission{
			TaskID: newSyncTaskID(),
			Status: JobStatus{State: StateSucceeded, ResultRef: res.URL, Progress: 100},
		}, nil
	}

	taskID, err := a.client.SubmitVideo(ctx, native.VideoRequest{
		Model:    p.Model,
		Prompt:   p.Prompt,
		ImageURL: p.Reference.Link(),
		Size:     videoSize(p.Options),
		Duration: p.Options.DurationSec,
		Quality:  p.Options.Quality,
	})
	if err != nil {
		return Submission{}, fmt.Errorf("native adapter submit: %w", err)
	}

	return Submission{TaskID: taskID, Status: JobStatus{State: StateQueued}}, nil
}

// Poll checks the status of a native task.
func (a *NativeAdapter) Poll(ctx context.Context, taskID string) (JobStatus, error) {
	if isSyncTaskID(taskID) {
		return JobStatus{}, ErrUnknownTask
	}
	ctx, cancel := a.callContext(ctx)
	defer cancel()

	result, err := a.client.Poll(ctx, taskID)
	if err != nil {
		return JobStatus{}, fmt.Errorf("native adapter poll: %w", err)
	}

	// Map native status to common state
	var state State
	switch result.Status {
	case native.StatusSuccess:
		state = StateSucceeded
	case native.StatusFail:
		state = StateFailed
	default:
		state = StateRunning
	}

	return JobStatus{State: state, ResultRef: result.URL, RawFailure: result.Error}, nil
}

// Quota is not offered by the native API.
func (a *NativeAdapter) Quota(context.Context) (Quota, error) {
	return Quota{}, ErrQuotaNotSupported
}

// Compile-time check that NativeAdapter implements Adapter.
var _ Adapter = (*NativeAdapter)(nil)
