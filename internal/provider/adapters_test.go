package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/genjob/internal/classify"
	"github.com/maauso/genjob/internal/multimodal"
	"github.com/maauso/genjob/internal/native"
	"github.com/maauso/genjob/internal/relaya"
	"github.com/maauso/genjob/internal/relayb"
)

var allKinds = Capabilities{Kinds: []Kind{KindImage, KindVideo}, ReferenceKinds: []Kind{KindImage, KindVideo}}

// mockNativeClient is a simple mock for testing NativeAdapter.
type mockNativeClient struct {
	mock.Mock
}

func (m *mockNativeClient) GenerateImage(ctx context.Context, req native.ImageRequest) (native.ImageResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(native.ImageResult), args.Error(1)
}

func (m *mockNativeClient) SubmitVideo(ctx context.Context, req native.VideoRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockNativeClient) Poll(ctx context.Context, taskID string) (native.PollResult, error) {
	args := m.Called(ctx, taskID)
	return args.Get(0).(native.PollResult), args.Error(1)
}

type mockRelayAClient struct {
	mock.Mock
}

func (m *mockRelayAClient) GenerateImage(ctx context.Context, req relaya.ImageRequest) (relaya.ImageResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(relaya.ImageResult), args.Error(1)
}

func (m *mockRelayAClient) SubmitVideo(ctx context.Context, req relaya.VideoRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockRelayAClient) PollVideo(ctx context.Context, taskID string) (relaya.PollResult, error) {
	args := m.Called(ctx, taskID)
	return args.Get(0).(relaya.PollResult), args.Error(1)
}

type mockRelayBClient struct {
	mock.Mock
}

func (m *mockRelayBClient) GenerateImage(ctx context.Context, req relayb.ImageRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockRelayBClient) SubmitVideo(ctx context.Context, req relayb.VideoRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockRelayBClient) Poll(ctx context.Context, taskID string) (relayb.PollResult, error) {
	args := m.Called(ctx, taskID)
	return args.Get(0).(relayb.PollResult), args.Error(1)
}

func (m *mockRelayBClient) Balance(ctx context.Context) (relayb.Balance, error) {
	args := m.Called(ctx)
	return args.Get(0).(relayb.Balance), args.Error(1)
}

type mockMultimodalClient struct {
	mock.Mock
}

func (m *mockMultimodalClient) GenerateImage(ctx context.Context, req multimodal.ImageRequest) (multimodal.InlineImage, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(multimodal.InlineImage), args.Error(1)
}

func (m *mockMultimodalClient) SubmitVideo(ctx context.Context, req multimodal.VideoRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockMultimodalClient) GetOperation(ctx context.Context, name string) (multimodal.Operation, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(multimodal.Operation), args.Error(1)
}

func TestNativeAdapter_SubmitImageIsSynchronous(t *testing.T) {
	client := &mockNativeClient{}
	adapter := NewNativeAdapter(client, allKinds)

	client.On("GenerateImage", mock.Anything, mock.MatchedBy(func(r native.ImageRequest) bool {
		return r.Model == "cogview-4" && r.Size == "1536x1024"
	})).Return(native.ImageResult{URL: "https://cdn/x.png"}, nil)

	sub, err := adapter.Submit(context.Background(), Payload{
		Kind:    KindImage,
		Model:   "cogview-4",
		Prompt:  "p",
		Options: Options{AspectRatio: "16:9"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sub.TaskID, "sync-"))
	assert.Equal(t, StateSucceeded, sub.Status.State)
	assert.Equal(t, "https://cdn/x.png", sub.Status.ResultRef)
	client.AssertExpectations(t)
}

func TestNativeAdapter_ImageReferenceNotSupported(t *testing.T) {
	adapter := NewNativeAdapter(&mockNativeClient{}, allKinds)

	_, err := adapter.Submit(context.Background(), Payload{
		Kind:      KindImage,
		Model:     "m",
		Reference: &ReferenceAsset{URL: "https://x/ref.png"},
	})
	assert.ErrorIs(t, err, ErrReferenceNotSupported)
	assert.ErrorIs(t, err, classify.ErrBadRequest)
}

func TestNativeAdapter_SubmitVideo(t *testing.T) {
	client := &mockNativeClient{}
	adapter := NewNativeAdapter(client, allKinds)

	client.On("SubmitVideo", mock.Anything, mock.MatchedBy(func(r native.VideoRequest) bool {
		return r.ImageURL == "https://x/ref.png" && r.Duration == 5
	})).Return("task-1", nil)

	sub, err := adapter.Submit(context.Background(), Payload{
		Kind:      KindVideo,
		Model:     "cogvideox-3",
		Prompt:    "p",
		Reference: &ReferenceAsset{URL: "https://x/ref.png"},
		Options:   Options{DurationSec: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, "task-1", sub.TaskID)
	assert.Equal(t, StateQueued, sub.Status.State)
}

func TestNativeAdapter_Submit_Error(t *testing.T) {
	client := &mockNativeClient{}
	adapter := NewNativeAdapter(client, allKinds)

	client.On("SubmitVideo", mock.Anything, mock.Anything).Return("", errors.New("submit failed"))

	_, err := adapter.Submit(context.Background(), Payload{Kind: KindVideo, Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "native adapter submit")
}

func TestNativeAdapter_Poll_StatusMapping(t *testing.T) {
	tests := []struct {
		in   native.Status
		want State
	}{
		{native.StatusProcessing, StateRunning},
		{native.StatusSuccess, StateSucceeded},
		{native.StatusFail, StateFailed},
		{native.Status("SOMETHING_NEW"), StateRunning},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			client := &mockNativeClient{}
			adapter := NewNativeAdapter(client, allKinds)
			client.On("Poll", mock.Anything, "task-1").Return(native.PollResult{Status: tt.in}, nil)

			st, err := adapter.Poll(context.Background(), "task-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.State)
		})
	}
}

func TestNativeAdapter_PollSyncHandle(t *testing.T) {
	adapter := NewNativeAdapter(&mockNativeClient{}, allKinds)

	_, err := adapter.Poll(context.Background(), newSyncTaskID())
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestNativeAdapter_QuotaNotSupported(t *testing.T) {
	adapter := NewNativeAdapter(&mockNativeClient{}, allKinds)

	_, err := adapter.Quota(context.Background())
	assert.ErrorIs(t, err, ErrQuotaNotSupported)
}

func TestAdapter_KindNotSupported(t *testing.T) {
	adapter := NewNativeAdapter(&mockNativeClient{}, Capabilities{Kinds: []Kind{KindImage}})

	_, err := adapter.Submit(context.Background(), Payload{Kind: KindVideo, Model: "m"})
	assert.ErrorIs(t, err, ErrKindNotSupported)
}

func TestAdapter_RequestTimeoutBoundsCall(t *testing.T) {
	client := &mockNativeClient{}
	adapter := NewNativeAdapter(client, Capabilities{RequestTimeout: 50 * time.Millisecond})

	client.On("Poll", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= 50*time.Millisecond
	}), "t").Return(native.PollResult{Status: native.StatusProcessing}, nil)

	_, err := adapter.Poll(context.Background(), "t")
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestRelayAAdapter_ImageWithReference(t *testing.T) {
	client := &mockRelayAClient{}
	adapter := NewRelayAAdapter(client, allKinds)

	client.On("GenerateImage", mock.Anything, mock.MatchedBy(func(r relaya.ImageRequest) bool {
		return r.ReferenceURL == "data:image/jpeg;base64,AQI="
	})).Return(relaya.ImageResult{B64JSON: "QUJD"}, nil)

	sub, err := adapter.Submit(context.Background(), Payload{
		Kind:      KindImage,
		Model:     "gpt-image-1",
		Prompt:    "p",
		Reference: &ReferenceAsset{Data: []byte{1, 2}, MIMEType: "image/jpeg"},
	})
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, sub.Status.State)
	assert.Equal(t, "data:image/png;base64,QUJD", sub.Status.ResultRef)
}

func TestRelayAAdapter_Poll_StatusMapping(t *testing.T) {
	tests := []struct {
		in   relaya.Status
		want State
	}{
		{relaya.StatusQueued, StateQueued},
		{relaya.StatusInProgress, StateRunning},
		{relaya.StatusCompleted, StateSucceeded},
		{relaya.StatusFailed, StateFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			client := &mockRelayAClient{}
			adapter := NewRelayAAdapter(client, allKinds)
			client.On("PollVideo", mock.Anything, "v").Return(relaya.PollResult{Status: tt.in, Progress: 30}, nil)

			st, err := adapter.Poll(context.Background(), "v")
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.State)
			assert.Equal(t, 30, st.Progress)
		})
	}
}

func TestRelayBAdapter_Poll_StatusMapping(t *testing.T) {
	tests := []struct {
		in   relayb.Status
		want State
	}{
		{relayb.StatusNotStart, StateQueued},
		{relayb.StatusSubmitted, StateQueued},
		{relayb.StatusQueued, StateQueued},
		{relayb.StatusInProgress, StateRunning},
		{relayb.StatusSuccess, StateSucceeded},
		{relayb.StatusFailure, StateFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			client := &mockRelayBClient{}
			adapter := NewRelayBAdapter(client, allKinds)
			client.On("Poll", mock.Anything, "t").Return(relayb.PollResult{Status: tt.in}, nil)

			st, err := adapter.Poll(context.Background(), "t")
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.State)
		})
	}
}

func TestRelayBAdapter_Quota(t *testing.T) {
	client := &mockRelayBClient{}
	adapter := NewRelayBAdapter(client, allKinds)
	client.On("Balance", mock.Anything).Return(relayb.Balance{Total: 20, Used: 7.5}, nil)

	q, err := adapter.Quota(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Quota{Total: 20, Used: 7.5, Remaining: 12.5}, q)
}

func TestRelayBAdapter_QuotaNeverNegative(t *testing.T) {
	client := &mockRelayBClient{}
	adapter := NewRelayBAdapter(client, allKinds)
	client.On("Balance", mock.Anything).Return(relayb.Balance{Total: 5, Used: 9}, nil)

	q, err := adapter.Quota(context.Background())
	require.NoError(t, err)
	assert.Zero(t, q.Remaining)
}

func TestRelayBAdapter_ImageReferenceNotSupported(t *testing.T) {
	adapter := NewRelayBAdapter(&mockRelayBClient{}, allKinds)

	_, err := adapter.Submit(context.Background(), Payload{
		Kind:      KindImage,
		Model:     "m",
		Reference: &ReferenceAsset{URL: "https://x/r.png"},
	})
	assert.ErrorIs(t, err, ErrReferenceNotSupported)
	assert.ErrorIs(t, err, classify.ErrBadRequest)
}

func TestMultimodalAdapter_ImageReturnsDataURI(t *testing.T) {
	client := &mockMultimodalClient{}
	adapter := NewMultimodalAdapter(client, allKinds)

	client.On("GenerateImage", mock.Anything, mock.MatchedBy(func(r multimodal.ImageRequest) bool {
		return r.Reference != nil && r.Reference.MIMEType == "image/png" && r.Reference.Data == "AAAA"
	})).Return(multimodal.InlineImage{MIMEType: "image/webp", Data: "UklG"}, nil)

	sub, err := adapter.Submit(context.Background(), Payload{
		Kind:      KindImage,
		Model:     "gemini-2.5-flash-image",
		Prompt:    "p",
		Reference: &ReferenceAsset{URL: "data:image/png;base64,AAAA"},
	})
	require.NoError(t, err)
	assert.Equal(t, "data:image/webp;base64,UklG", sub.Status.ResultRef)
}

func TestMultimodalAdapter_RemoteReferenceNotSupported(t *testing.T) {
	adapter := NewMultimodalAdapter(&mockMultimodalClient{}, allKinds)

	_, err := adapter.Submit(context.Background(), Payload{
		Kind:      KindVideo,
		Model:     "veo",
		Reference: &ReferenceAsset{URL: "https://x/r.png"},
	})
	assert.ErrorIs(t, err, ErrReferenceNotSupported)
	assert.ErrorIs(t, err, classify.ErrBadRequest)
}

func TestMultimodalAdapter_Poll(t *testing.T) {
	tests := []struct {
		name string
		op   multimodal.Operation
		want JobStatus
	}{
		{"running", multimodal.Operation{Done: false}, JobStatus{State: StateRunning}},
		{"failed", multimodal.Operation{Done: true, Error: "boom"}, JobStatus{State: StateFailed, RawFailure: "boom"}},
		{"done", multimodal.Operation{Done: true, URI: "https://f/v.mp4"}, JobStatus{State: StateSucceeded, ResultRef: "https://f/v.mp4", Progress: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockMultimodalClient{}
			adapter := NewMultimodalAdapter(client, allKinds)
			client.On("GetOperation", mock.Anything, "models/veo/operations/1").Return(tt.op, nil)

			st, err := adapter.Poll(context.Background(), "models/veo/operations/1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, st)
		})
	}
}

func TestReferenceAsset_Link(t *testing.T) {
	var nilRef *ReferenceAsset
	assert.Empty(t, nilRef.Link())
	assert.Equal(t, "https://x/a.png", (&ReferenceAsset{URL: "https://x/a.png", Data: []byte{1}}).Link())
	assert.Equal(t, "data:image/png;base64,AQ==", (&ReferenceAsset{Data: []byte{1}}).Link())
	assert.Empty(t, (&ReferenceAsset{}).Link())
}

func TestSplitDataURI(t *testing.T) {
	mime, data, ok := splitDataURI("data:image/gif;base64,R0lG")
	require.True(t, ok)
	assert.Equal(t, "image/gif", mime)
	assert.Equal(t, "R0lG", data)

	_, _, ok = splitDataURI("https://example.com/a.png")
	assert.False(t, ok)

	_, _, ok = splitDataURI("data:text/plain,hello")
	assert.False(t, ok)
}
