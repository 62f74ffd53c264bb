package relayb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/genjob/internal/transport"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)
	return client
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("https://relay.example.com", "")
	assert.ErrorIs(t, err, ErrAPIKeyRequired)

	_, err = NewClient("", "key")
	assert.ErrorIs(t, err, ErrBaseURLRequired)
}

func TestGenerateImage(t *testing.T) {
	t.Run("url", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/images/generations", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"created":1,"data":[{"url":"https://cdn.example/x.png"}]}`))
		})

		ref, err := client.GenerateImage(context.Background(), ImageRequest{Model: "flux", Prompt: "p"})
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example/x.png", ref)
	})

	t.Run("base64", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"created":1,"data":[{"b64_json":"QUJD"}]}`))
		})

		ref, err := client.GenerateImage(context.Background(), ImageRequest{Model: "flux", Prompt: "p"})
		require.NoError(t, err)
		assert.Equal(t, "data:image/png;base64,QUJD", ref)
	})

	t.Run("empty", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"created":1,"data":[]}`))
		})

		_, err := client.GenerateImage(context.Background(), ImageRequest{Model: "flux", Prompt: "p"})
		assert.ErrorIs(t, err, ErrNoImageReturned)
	})
}

func TestSubmitVideo(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/video/generations", r.URL.Path)

		var body videoRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "kling-v2", body.Model)
		assert.Equal(t, "https://example.com/ref.png", body.Image)

		_, _ = w.Write([]byte(`{"task_id":"t-1","status":"SUBMITTED"}`))
	})

	id, err := client.SubmitVideo(context.Background(), VideoRequest{
		Model:  "kling-v2",
		Prompt: "p",
		Image:  "https://example.com/ref.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "t-1", id)
}

func TestSubmitVideo_QuotaError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"user quota is not enough"}}`))
	})

	_, err := client.SubmitVideo(context.Background(), VideoRequest{Model: "m", Prompt: "p"})
	var se *transport.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
}

func TestPoll(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   Status
		progress int
		url      string
		errText  string
	}{
		{"queued", `{"code":"success","data":{"task_id":"t","status":"QUEUED","progress":"0%"}}`, StatusQueued, 0, "", ""},
		{"in progress", `{"code":"success","data":{"task_id":"t","status":"IN_PROGRESS","progress":"55%"}}`, StatusInProgress, 55, "", ""},
		{"success", `{"code":"success","data":{"task_id":"t","status":"SUCCESS","progress":"100%","result_url":"https://cdn.example/v.mp4"}}`, StatusSuccess, 100, "https://cdn.example/v.mp4", ""},
		{"success without url", `{"code":"success","data":{"task_id":"t","status":"SUCCESS"}}`, StatusFailure, 100, "", "incomplete response: task succeeded without result URL"},
		{"failure", `{"code":"success","data":{"task_id":"t","status":"FAILURE","fail_reason":"prompt contains sensitive words"}}`, StatusFailure, 0, "", "prompt contains sensitive words"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/video/generations/t", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})

			res, err := client.Poll(context.Background(), "t")
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.progress, res.Progress)
			assert.Equal(t, tt.url, res.URL)
			assert.Equal(t, tt.errText, res.Error)
		})
	}
}

func TestPoll_ErrorEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"task_not_exist","message":"task not found"}`))
	})

	_, err := client.Poll(context.Background(), "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task not found")
}

func TestBalance(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/dashboard/billing/subscription":
			_, _ = w.Write([]byte(`{"object":"billing_subscription","hard_limit_usd":50}`))
		case "/v1/dashboard/billing/usage":
			_, _ = w.Write([]byte(`{"object":"list","total_usage":1250}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	b, err := client.Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50.0, b.Total, 0.0001)
	assert.InDelta(t, 12.5, b.Used, 0.0001)
}

func TestParseProgress(t *testing.T) {
	assert.Equal(t, 30, parseProgress("30%"))
	assert.Equal(t, 7, parseProgress(" 7 "))
	assert.Equal(t, 0, parseProgress(""))
	assert.Equal(t, 0, parseProgress("abc"))
	assert.Equal(t, 100, parseProgress("150%"))
}
