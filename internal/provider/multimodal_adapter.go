package provider

import (
	"context"
	"fmt"

	"github.com/maauso/genjob/internal/multimodal"
)

// MultimodalAdapter adapts the multimodal client to the Adapter interface.
// References must be available as bytes or a data URI; remote URLs are not
// fetched here.
type MultimodalAdapter struct {
	base
	client multimodal.Client
}

// NewMultimodalAdapter creates a new multimodal adapter.
func NewMultimodalAdapter(client multimodal.Client, caps Capabilities) *MultimodalAdapter {
	return &MultimodalAdapter{base: base{name: NameMultimodal, caps: caps}, client: client}
}

// Submit generates an inline image or starts a video operation.
func (a *MultimodalAdapter) Submit(ctx context.Context, p Payload) (Submission, error) {
	if err := a.checkKind(p.Kind); err != nil {
		return Submission{}, err
	}

	var ref *multimodal.InlineImage
	if p.Reference != nil {
		mime, data, ok := inlineReference(p.Reference)
		if !ok {
			return Submission{}, referenceNotSupported(p.Kind)
		}
		ref = &multimodal.InlineImage{MIMEType: mime, Data: data}
	}

	ctx, cancel := a.callContext(ctx)
	defer cancel()

	if p.Kind == KindImage {
		img, err := a.client.GenerateImage(ctx, multimodal.ImageRequest{
			Model:       p.Model,
			Prompt:      p.Prompt,
			AspectRatio: p.Options.AspectRatio,
			Reference:   ref,
		})
		if err != nil {
			return Submission{}, fmt.Errorf("multimodal adapter submit: %w", err)
		}
		return Submission{
			TaskID: newSyncTaskID(),
			Status: JobStatus{State: StateSucceeded, ResultRef: dataURI(img.MIMEType, img.Data), Progress: 100},
		}, nil
	}

	name, err := a.client.SubmitVideo(ctx, multimodal.VideoRequest{
		Model:       p.Model,
		Prompt:      p.Prompt,
		AspectRatio: p.Options.AspectRatio,
		DurationSec: p.Options.DurationSec,
		Reference:   ref,
	})
	if err != nil {
		return Submission{}, fmt.Errorf("multimodal adapter submit: %w", err)
	}

	return Submission{TaskID: name, Status: JobStatus{State: StateRunning}}, nil
}

// Poll checks the state of a long-running operation.
func (a *MultimodalAdapter) Poll(ctx context.Context, taskID string) (JobStatus, error) {
	if isSyncTaskID(taskID) {
		return JobStatus{}, ErrUnknownTask
	}
	ctx, cancel := a.callContext(ctx)
	defer cancel()

	op, err := a.client.GetOperation(ctx, taskID)
	if err != nil {
		return JobStatus{}, fmt.Errorf("multimodal adapter poll: %w", err)
	}

	switch {
	case !op.Done:
		return JobStatus{State: StateRunning}, nil
	case op.Error != "":
		return JobStatus{State: StateFailed, RawFailure: op.Error}, nil
	default:
		return JobStatus{State: StateSucceeded, ResultRef: op.URI, Progress: 100}, nil
	}
}

// Quota is not offered by the multimodal API.
func (a *MultimodalAdapter) Quota(context.Context) (Quota, error) {
	return Quota{}, ErrQuotaNotSupported
}

var _ Adapter = (*MultimodalAdapter)(nil)
