package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/genjob/internal/classify"
	"github.com/maauso/genjob/internal/provider"
	"github.com/maauso/genjob/internal/transport"
)

type mockAdapter struct {
	mock.Mock
	name string
	caps provider.Capabilities
}

func newMockAdapter(name string, referenceKinds ...provider.Kind) *mockAdapter {
	return &mockAdapter{name: name, caps: provider.Capabilities{ReferenceKinds: referenceKinds}}
}

func (m *mockAdapter) Name() string                        { return m.name }
func (m *mockAdapter) Capabilities() provider.Capabilities { return m.caps }

func (m *mockAdapter) Submit(ctx context.Context, p provider.Payload) (provider.Submission, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(provider.Submission), args.Error(1)
}

func (m *mockAdapter) Poll(ctx context.Context, taskID string) (provider.JobStatus, error) {
	args := m.Called(ctx, taskID)
	return args.Get(0).(provider.JobStatus), args.Error(1)
}

func (m *mockAdapter) Quota(ctx context.Context) (provider.Quota, error) {
	return provider.Quota{}, provider.ErrQuotaNotSupported
}

func withModel(model string) any {
	return mock.MatchedBy(func(p provider.Payload) bool { return p.Model == model })
}

func badRequest() error {
	return &transport.StatusError{Service: "test", StatusCode: 400, Body: "invalid model"}
}

func TestExecute_FallbackOrder(t *testing.T) {
	a := newMockAdapter("relayA")
	a.On("Submit", mock.Anything, withModel("A")).Return(provider.Submission{}, badRequest()).Once()
	a.On("Submit", mock.Anything, withModel("B")).Return(provider.Submission{}, badRequest()).Once()
	a.On("Submit", mock.Anything, withModel("C")).Return(provider.Submission{TaskID: "task-C"}, nil).Once()

	res, err := New(nil).Execute(context.Background(), []Candidate{
		{Adapter: a, Model: "A"},
		{Adapter: a, Model: "B"},
		{Adapter: a, Model: "C"},
	}, provider.Payload{Kind: provider.KindImage, Prompt: "p"})

	require.NoError(t, err)
	assert.Equal(t, "task-C", res.Submission.TaskID)
	assert.Equal(t, "C", res.Winner.Model)
	require.Len(t, res.Attempts, 3)
	assert.Equal(t, "A", res.Attempts[0].Model)
	assert.Equal(t, "B", res.Attempts[1].Model)
	assert.Equal(t, "C", res.Attempts[2].Model)
	assert.Equal(t, classify.KindBadRequest, res.Attempts[0].Err.Kind)
	assert.Equal(t, classify.KindBadRequest, res.Attempts[1].Err.Kind)
	assert.True(t, res.Attempts[2].Succeeded)
	assert.Nil(t, res.Attempts[2].Err)
	assert.False(t, res.Degraded)
	a.AssertExpectations(t)
}

func TestExecute_AuthShortCircuit(t *testing.T) {
	a := newMockAdapter("relayA")
	b := newMockAdapter("relayA")
	a.On("Submit", mock.Anything, mock.Anything).
		Return(provider.Submission{}, &transport.StatusError{Service: "test", StatusCode: 401, Body: "invalid api key"})

	_, err := New(nil).Execute(context.Background(), []Candidate{
		{Adapter: a, Model: "A"},
		{Adapter: b, Model: "B"},
	}, provider.Payload{Kind: provider.KindImage, Prompt: "p"})

	require.Error(t, err)
	var ce *classify.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, classify.KindAuthFailed, ce.Kind)
	b.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestExecute_AllFail(t *testing.T) {
	a := newMockAdapter("relayB")
	a.On("Submit", mock.Anything, withModel("A")).Return(provider.Submission{}, badRequest())
	a.On("Submit", mock.Anything, withModel("B")).Return(provider.Submission{}, errors.New("insufficient_quota"))

	res, err := New(nil).Execute(context.Background(), []Candidate{
		{Adapter: a, Model: "A"},
		{Adapter: a, Model: "B"},
	}, provider.Payload{Kind: provider.KindVideo, Prompt: "p"})

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	require.Len(t, ex.Attempts, 2)
	assert.Len(t, res.Attempts, 2)

	assert.ErrorIs(t, err, classify.ErrBadRequest)
	assert.ErrorIs(t, err, classify.ErrQuotaExhausted)

	ce := ex.Classified()
	assert.Equal(t, classify.KindQuotaExhausted, ce.Kind)
	assert.Contains(t, ce.Raw, "A: ")
	assert.Contains(t, ce.Raw, "B: insufficient_quota")
}

func TestExecute_NoCandidates(t *testing.T) {
	_, err := New(nil).Execute(context.Background(), nil, provider.Payload{})
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestExecute_CancelledContext(t *testing.T) {
	a := newMockAdapter("relayA")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil).Execute(ctx, []Candidate{{Adapter: a, Model: "A"}}, provider.Payload{})
	assert.ErrorIs(t, err, classify.ErrCancelled)
	a.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestExecute_ReferenceModeFirst(t *testing.T) {
	a := newMockAdapter("relayA", provider.KindImage)
	ref := &provider.ReferenceAsset{URL: "https://x/ref.png", Description: "a red barn"}

	a.On("Submit", mock.Anything, mock.MatchedBy(func(p provider.Payload) bool {
		return p.Reference == ref && p.Prompt == "paint it"
	})).Return(provider.Submission{TaskID: "t1"}, nil).Once()

	res, err := New(nil).Execute(context.Background(), []Candidate{{Adapter: a, Model: "A"}},
		provider.Payload{Kind: provider.KindImage, Prompt: "paint it", Reference: ref})

	require.NoError(t, err)
	assert.False(t, res.Degraded)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, ModeReference, res.Attempts[0].Mode)
}

func TestExecute_DegradesToTextWithFoldedPrompt(t *testing.T) {
	a := newMockAdapter("relayA", provider.KindImage)
	ref := &provider.ReferenceAsset{URL: "https://x/ref.png", Description: "a red barn"}

	a.On("Submit", mock.Anything, mock.MatchedBy(func(p provider.Payload) bool {
		return p.Reference != nil
	})).Return(provider.Submission{}, errors.New("service unavailable")).Once()
	a.On("Submit", mock.Anything, mock.MatchedBy(func(p provider.Payload) bool {
		return p.Reference == nil && p.Prompt == "paint it\n\nReference image: a red barn"
	})).Return(provider.Submission{TaskID: "t2"}, nil).Once()

	res, err := New(nil).Execute(context.Background(), []Candidate{{Adapter: a, Model: "A"}},
		provider.Payload{Kind: provider.KindImage, Prompt: "paint it", Reference: ref})

	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, "t2", res.Submission.TaskID)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, ModeReference, res.Attempts[0].Mode)
	assert.Equal(t, classify.KindUnreachable, res.Attempts[0].Err.Kind)
	assert.Equal(t, ModeText, res.Attempts[1].Mode)
	a.AssertExpectations(t)
}

func TestExecute_NoReferenceSupportGoesStraightToText(t *testing.T) {
	a := newMockAdapter("relayB")
	ref := &provider.ReferenceAsset{URL: "https://x/ref.png"}

	a.On("Submit", mock.Anything, mock.MatchedBy(func(p provider.Payload) bool {
		return p.Reference == nil && p.Prompt == "p"
	})).Return(provider.Submission{TaskID: "t"}, nil).Once()

	res, err := New(nil).Execute(context.Background(), []Candidate{{Adapter: a, Model: "A"}},
		provider.Payload{Kind: provider.KindImage, Prompt: "p", Reference: ref})

	require.NoError(t, err)
	assert.True(t, res.Degraded)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, ModeText, res.Attempts[0].Mode)
}

func TestModesFor_ReferenceSupportIsPerKind(t *testing.T) {
	a := newMockAdapter("relayB", provider.KindVideo)
	cand := Candidate{Adapter: a, Model: "m"}
	ref := &provider.ReferenceAsset{URL: "https://x/ref.png"}

	assert.Equal(t, []Mode{ModeText}, modesFor(cand, provider.Payload{Kind: provider.KindImage, Reference: ref}))
	assert.Equal(t, []Mode{ModeReference, ModeText}, modesFor(cand, provider.Payload{Kind: provider.KindVideo, Reference: ref}))
	assert.Equal(t, []Mode{ModeText}, modesFor(cand, provider.Payload{Kind: provider.KindVideo}))
}

func TestExecute_AuthInReferenceModeSkipsTextMode(t *testing.T) {
	a := newMockAdapter("relayA", provider.KindImage)
	a.On("Submit", mock.Anything, mock.Anything).
		Return(provider.Submission{}, errors.New("Incorrect API key provided")).Once()

	_, err := New(nil).Execute(context.Background(), []Candidate{{Adapter: a, Model: "A"}},
		provider.Payload{Kind: provider.KindImage, Prompt: "p", Reference: &provider.ReferenceAsset{URL: "u"}})

	assert.ErrorIs(t, err, classify.ErrAuthFailed)
	a.AssertNumberOfCalls(t, "Submit", 1)
}
