// Package classify maps raw provider failures into the closed error taxonomy
// surfaced to callers of the orchestrator.
package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// Kind identifies a class of failure.
type Kind string

// Failure kinds surfaced to callers.
const (
	KindAuthFailed                 Kind = "AUTH_FAILED"
	KindBadRequest                 Kind = "BAD_REQUEST"
	KindUnreachable                Kind = "UNREACHABLE"
	KindContentModerationPerson    Kind = "CONTENT_MODERATION_PERSON"
	KindContentModerationPolicy    Kind = "CONTENT_MODERATION_POLICY"
	KindContentModerationCopyright Kind = "CONTENT_MODERATION_COPYRIGHT"
	KindQuotaExhausted             Kind = "QUOTA_EXHAUSTED"
	KindRateLimited                Kind = "RATE_LIMITED"
	KindTimedOut                   Kind = "TIMED_OUT"
	KindCancelled                  Kind = "CANCELLED"
	KindUnknown                    Kind = "UNKNOWN"
)

// messages holds the human-readable template for each kind.
var messages = map[Kind]string{
	KindAuthFailed:                 "The provider rejected the credentials. Check the API key.",
	KindBadRequest:                 "The provider rejected the request as invalid.",
	KindUnreachable:                "The provider could not be reached or returned an incomplete response.",
	KindContentModerationPerson:    "The request was blocked because it depicts a real person.",
	KindContentModerationPolicy:    "The request was blocked by the provider's content policy.",
	KindContentModerationCopyright: "The request was blocked because it may infringe copyright.",
	KindQuotaExhausted:             "The account has no remaining quota or balance.",
	KindRateLimited:                "The provider is rate limiting requests. Try again shortly.",
	KindTimedOut:                   "The job did not finish within its time budget.",
	KindCancelled:                  "The job was cancelled.",
}

// Error is a classified failure. Raw always carries the provider text verbatim.
type Error struct {
	Kind    Kind
	Message string
	Raw     string
	Err     error
}

// Sentinels for errors.Is comparisons against a kind.
var (
	ErrAuthFailed                 = &Error{Kind: KindAuthFailed}
	ErrBadRequest                 = &Error{Kind: KindBadRequest}
	ErrUnreachable                = &Error{Kind: KindUnreachable}
	ErrContentModerationPerson    = &Error{Kind: KindContentModerationPerson}
	ErrContentModerationPolicy    = &Error{Kind: KindContentModerationPolicy}
	ErrContentModerationCopyright = &Error{Kind: KindContentModerationCopyright}
	ErrQuotaExhausted             = &Error{Kind: KindQuotaExhausted}
	ErrRateLimited                = &Error{Kind: KindRateLimited}
	ErrTimedOut                   = &Error{Kind: KindTimedOut}
	ErrCancelled                  = &Error{Kind: KindCancelled}
	ErrUnknown                    = &Error{Kind: KindUnknown}
)

// Code returns the stable machine code for the error.
func (e *Error) Code() string {
	return string(e.Kind)
}

func (e *Error) Error() string {
	if e.Raw != "" && e.Raw != e.Message {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Raw)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a classified error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a classified error of the given kind with the kind's message template.
func New(kind Kind, raw string) *Error {
	msg, ok := messages[kind]
	if !ok {
		msg = raw
	}
	return &Error{Kind: kind, Message: msg, Raw: raw}
}

type rule struct {
	kind    Kind
	pattern *regexp.Regexp
}

// rules are evaluated in order; the first match wins. Copyright is checked
// before policy because rejections often say "blocked" alongside the reason.
var rules = []rule{
	{KindContentModerationPerson, regexp.MustCompile(`(?i)real[ _-]?person|public figure|celebrit|likeness|portrait right|photorealistic (face|person)|person_generation|真人|公众人物`)},
	{KindContentModerationCopyright, regexp.MustCompile(`(?i)copyright|trademark|intellectual property|protected (work|character|content)|版权|商标`)},
	{KindContentModerationPolicy, regexp.MustCompile(`(?i)content[ _-]?policy|(usage|safety) polic|safety (system|filter|check)|moderation|nsfw|inappropriate|sensitive (word|content|material|information)|prohibited (content|material)|violat\w* (of )?(our |the )?(content |usage |safety )?(polic|guideline|terms)|blocked (by|for) (the )?(safety|moderation|content|policy)|审核|违规|敏感(词|内容|信息)`)},
	{KindAuthFailed, regexp.MustCompile(`(?i)unauthori[sz]ed|invalid[ _-]?(api[ _-]?key|token|credential)|incorrect api key|api key not valid|authentication|permission[ _-]denied|forbidden|\b401\b|\b403\b`)},
	{KindQuotaExhausted, regexp.MustCompile(`(?i)insufficient[ _-]?(quota|balance|credit|fund)|quota (exceeded|exhausted)|exceeded your (current )?quota|billing|payment required|out of credits|\b402\b|余额不足|额度`)},
	{KindRateLimited, regexp.MustCompile(`(?i)rate[ _-]?limit|too many requests|throttl|concurrency limit|resource[ _-]exhausted|\b429\b`)},
	{KindUnreachable, regexp.MustCompile(`(?i)time[d ]?out|deadline exceeded|connection (refused|reset)|no such host|unreachable|bad gateway|service unavailable|\b50[234]\b|unexpected eof|malformed response|incomplete response|network`)},
}

// Classify maps raw provider failure text into the taxonomy.
// Text that matches no rule becomes KindUnknown; Raw keeps the input as given.
func Classify(raw string) *Error {
	text := strings.TrimSpace(raw)
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			return New(r.kind, raw)
		}
	}
	if text == "" {
		text = "unknown provider failure"
	}
	return &Error{Kind: KindUnknown, Message: text, Raw: raw}
}

// statusCoder is implemented by transport errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// FromError converts any error into a classified error.
// Already classified errors are returned unchanged.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	if errors.Is(err, context.Canceled) {
		return wrap(KindCancelled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return wrap(KindUnreachable, err)
	}

	// Provider text takes precedence so that e.g. a 400 carrying a moderation
	// message is reported as moderation rather than a bad request.
	textual := Classify(err.Error())
	textual.Err = err
	if textual.Kind != KindUnknown && textual.Kind != KindUnreachable {
		return textual
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		if kind, ok := kindForStatus(sc.HTTPStatus()); ok {
			return wrap(kind, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return wrap(KindUnreachable, err)
	}

	return textual
}

func wrap(kind Kind, err error) *Error {
	ce := New(kind, err.Error())
	ce.Err = err
	return ce
}

func kindForStatus(status int) (Kind, bool) {
	switch {
	case status == 401 || status == 403:
		return KindAuthFailed, true
	case status == 402:
		return KindQuotaExhausted, true
	case status == 429:
		return KindRateLimited, true
	case status == 400 || status == 404 || status == 405 || status == 409 || status == 413 || status == 415 || status == 422:
		return KindBadRequest, true
	case status >= 500:
		return KindUnreachable, true
	default:
		return "", false
	}
}

// IsRetriable reports whether a failure of this kind may be retried against
// another fallback candidate.
func (k Kind) IsRetriable() bool {
	switch k {
	case KindAuthFailed, KindCancelled:
		return false
	default:
		return true
	}
}

// IsTransient reports whether a failure is expected to clear on its own,
// so that polling the same task again is worthwhile.
func (k Kind) IsTransient() bool {
	return k == KindUnreachable || k == KindRateLimited
}
