package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct {
	code int
	body string
}

func (e *statusErr) Error() string   { return fmt.Sprintf("svc: status %d: %s", e.code, e.body) }
func (e *statusErr) HTTPStatus() int { return e.code }

func TestClassify(t *testing.T) {
	tests := []struct {
		raw  string
		want Kind
	}{
		{"The prompt depicts a real person and cannot be generated", KindContentModerationPerson},
		{"Your request was rejected as a result of our safety system", KindContentModerationPolicy},
		{"output blocked by content moderation", KindContentModerationPolicy},
		{"This image may infringe copyright of a protected character", KindContentModerationCopyright},
		{"The request was blocked because it may infringe copyright.", KindContentModerationCopyright},
		{"Your prompt violates copyright of a protected work", KindContentModerationCopyright},
		{"Generation prohibited due to trademark infringement", KindContentModerationCopyright},
		{"Your prompt violates our usage policies", KindContentModerationPolicy},
		{"prompt contains sensitive words", KindContentModerationPolicy},
		{"人物描述不能为空", KindUnknown},
		{"parameter 'size' is case-sensitive", KindUnknown},
		{"request blocked by upstream proxy", KindUnknown},
		{"Incorrect API key provided: sk-****", KindAuthFailed},
		{"API key not valid. Please pass a valid API key.", KindAuthFailed},
		{"You exceeded your current quota, please check your plan", KindQuotaExhausted},
		{"insufficient_balance", KindQuotaExhausted},
		{"Rate limit reached for requests", KindRateLimited},
		{"RESOURCE_EXHAUSTED", KindRateLimited},
		{"dial tcp: connection refused", KindUnreachable},
		{"transport: malformed response: svc: unexpected end of JSON input", KindUnreachable},
		{"the dragon refused to fly", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := Classify(tt.raw)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, tt.raw, got.Raw)
		})
	}
}

func TestClassify_UnknownKeepsRawText(t *testing.T) {
	got := Classify("  something odd happened\n")
	assert.Equal(t, KindUnknown, got.Kind)
	assert.Equal(t, "something odd happened", got.Message)
	assert.Equal(t, "  something odd happened\n", got.Raw)
}

func TestClassify_MatchedKeepsRawText(t *testing.T) {
	got := Classify(" rate limit reached \n")
	assert.Equal(t, KindRateLimited, got.Kind)
	assert.Equal(t, " rate limit reached \n", got.Raw)
}

func TestClassify_ModerationTemplatesRoundTrip(t *testing.T) {
	for _, kind := range []Kind{
		KindContentModerationPerson,
		KindContentModerationPolicy,
		KindContentModerationCopyright,
	} {
		t.Run(string(kind), func(t *testing.T) {
			assert.Equal(t, kind, Classify(New(kind, "").Message).Kind)
		})
	}
}

func TestClassify_Empty(t *testing.T) {
	got := Classify("")
	assert.Equal(t, KindUnknown, got.Kind)
	assert.Equal(t, "unknown provider failure", got.Message)
}

func TestClassify_MethodNotAllowedIsNotModeration(t *testing.T) {
	got := Classify("method not allowed")
	assert.Equal(t, KindUnknown, got.Kind)
}

func TestFromError_StatusCodes(t *testing.T) {
	tests := []struct {
		code int
		want Kind
	}{
		{401, KindAuthFailed},
		{403, KindAuthFailed},
		{400, KindBadRequest},
		{404, KindBadRequest},
		{422, KindBadRequest},
		{402, KindQuotaExhausted},
		{429, KindRateLimited},
		{500, KindUnreachable},
		{503, KindUnreachable},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			got := FromError(&statusErr{code: tt.code, body: "{}"})
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestFromError_TextBeatsStatus(t *testing.T) {
	got := FromError(&statusErr{code: 400, body: `{"error":"content_policy_violation"}`})
	assert.Equal(t, KindContentModerationPolicy, got.Kind)
}

func TestFromError_Context(t *testing.T) {
	assert.Equal(t, KindCancelled, FromError(context.Canceled).Kind)
	assert.Equal(t, KindUnreachable, FromError(fmt.Errorf("poll: %w", context.DeadlineExceeded)).Kind)
}

func TestFromError_PassThrough(t *testing.T) {
	orig := New(KindQuotaExhausted, "no money")
	got := FromError(fmt.Errorf("wrapped: %w", orig))
	assert.Same(t, orig, got)
}

func TestFromError_Nil(t *testing.T) {
	assert.Nil(t, FromError(nil))
}

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("ctx: %w", New(KindRateLimited, "slow down"))
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.False(t, errors.Is(err, ErrAuthFailed))
}

func TestError_UnwrapAndCode(t *testing.T) {
	cause := errors.New("boom")
	ce := FromError(cause)
	require.NotNil(t, ce)
	assert.ErrorIs(t, ce, cause)
	assert.Equal(t, "UNKNOWN", ce.Code())
}

func TestKind_Predicates(t *testing.T) {
	assert.False(t, KindAuthFailed.IsRetriable())
	assert.False(t, KindCancelled.IsRetriable())
	assert.True(t, KindQuotaExhausted.IsRetriable())
	assert.True(t, KindContentModerationPolicy.IsRetriable())

	assert.True(t, KindUnreachable.IsTransient())
	assert.True(t, KindRateLimited.IsTransient())
	assert.False(t, KindBadRequest.IsTransient())
}
