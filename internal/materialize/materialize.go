// Package materialize turns a provider result reference, usually a short-lived
// URL, into durable bytes the caller can keep after the provider URL expires.
package materialize

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/maauso/genjob/internal/storage"
	"github.com/maauso/genjob/internal/transport"
)

// Defaults for materialization.
const (
	DefaultTimeout    = 20 * time.Second
	DefaultRetries    = 2
	DefaultRetryDelay = time.Second

	// maxAssetBytes bounds a single download.
	maxAssetBytes = 512 << 20
)

// Static errors for fetch strategies.
var (
	ErrEmptyAsset    = errors.New("materialize: fetched asset is empty")
	ErrAssetTooLarge = errors.New("materialize: asset exceeds size limit")
	ErrBadDataURI    = errors.New("materialize: malformed data URI")
)

// Strategy names the way an asset was obtained.
type Strategy string

// Strategies, in the order they are attempted.
const (
	StrategyInline Strategy = "inline" // data URI decoded in place
	StrategyProxy  Strategy = "proxy"  // fetched and encoded by the intermediary
	StrategyDirect Strategy = "direct" // fetched directly
	StrategyNone   Strategy = "none"   // every strategy failed; Ref is returned as-is
)

// Asset is the outcome of materialization. When Materialized is false only
// Ref is meaningful.
type Asset struct {
	Data         []byte
	MIMEType     string
	Ref          string
	URL          string // durable location, when a sink is configured
	Materialized bool
	Strategy     Strategy
}

// Fetcher retrieves the bytes behind a reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (data []byte, mimeType string, err error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, ref string) ([]byte, string, error)

// Fetch calls f(ctx, ref).
func (f FetcherFunc) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	return f(ctx, ref)
}

// Materializer runs the fetch strategies. It is safe for concurrent use.
type Materializer struct {
	primary    Fetcher // optional
	secondary  Fetcher
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	sink       storage.Storage // optional
	logger     *slog.Logger
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithProxy sets the intermediary that fetches and encodes assets server-side.
func WithProxy(proxyURL string, hc *http.Client) Option {
	return func(m *Materializer) {
		if proxyURL != "" {
			m.primary = NewProxyFetcher(proxyURL, hc)
		}
	}
}

// WithHTTPClient sets the HTTP client of the direct fetcher.
func WithHTTPClient(hc *http.Client) Option {
	return func(m *Materializer) {
		m.secondary = NewDirectFetcher(hc)
	}
}

// WithPrimary overrides the primary strategy.
func WithPrimary(f Fetcher) Option {
	return func(m *Materializer) {
		m.primary = f
	}
}

// WithSecondary overrides the secondary (direct) strategy.
func WithSecondary(f Fetcher) Option {
	return func(m *Materializer) {
		m.secondary = f
	}
}

// WithTimeout sets the per-strategy timeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Materializer) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithRetries sets how many times the secondary strategy is retried, and the
// fixed delay between tries.
func WithRetries(n int, delay time.Duration) Option {
	return func(m *Materializer) {
		if n >= 0 {
			m.retries = n
		}
		if delay >= 0 {
			m.retryDelay = delay
		}
	}
}

// WithSink uploads materialized bytes to durable storage.
func WithSink(s storage.Storage) Option {
	return func(m *Materializer) {
		m.sink = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Materializer) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Materializer. Without options there is no proxy, the direct
// fetcher uses a default HTTP client, and there is no sink.
func New(opts ...Option) *Materializer {
	m := &Materializer{
		secondary:  NewDirectFetcher(nil),
		timeout:    DefaultTimeout,
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Materialize resolves ref into bytes. It never fails: when every strategy
// fails the returned asset carries ref unchanged with Materialized false.
// key names the asset in the sink, e.g. the job ID.
func (m *Materializer) Materialize(ctx context.Context, key, ref string) Asset {
	logger := m.logger.With(slog.String("key", key))

	if ref == "" {
		logger.Warn("nothing to materialize")
		return Asset{Strategy: StrategyNone}
	}

	if strings.HasPrefix(ref, "data:") {
		data, mime, err := DecodeDataURI(ref)
		if err != nil {
			logger.Warn("inline asset could not be decoded", slog.String("error", err.Error()))
			return Asset{Ref: ref, Strategy: StrategyNone}
		}
		return m.finish(ctx, logger, key, ref, data, mime, StrategyInline)
	}

	if m.primary != nil {
		data, mime, err := m.try(ctx, m.primary, ref)
		if err == nil {
			return m.finish(ctx, logger, key, ref, data, mime, StrategyProxy)
		}
		logger.Warn("materialization strategy failed",
			slog.String("strategy", string(StrategyProxy)),
			slog.String("error", err.Error()),
		)
	}

	for attempt := 0; attempt <= m.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				logger.Warn("materialization abandoned", slog.String("error", ctx.Err().Error()))
				return Asset{Ref: ref, Strategy: StrategyNone}
			case <-time.After(m.retryDelay):
			}
		}

		data, mime, err := m.try(ctx, m.secondary, ref)
		if err == nil {
			return m.finish(ctx, logger, key, ref, data, mime, StrategyDirect)
		}
		logger.Warn("materialization strategy failed",
			slog.String("strategy", string(StrategyDirect)),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		if ctx.Err() != nil {
			break
		}
	}

	logger.Warn("returning unmaterialized reference", slog.String("ref", ref))
	return Asset{Ref: ref, Strategy: StrategyNone}
}

// try runs one strategy under its own timeout.
func (m *Materializer) try(ctx context.Context, f Fetcher, ref string) ([]byte, string, error) {
	if f == nil {
		return nil, "", errors.New("materialize: strategy not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	data, mime, err := f.Fetch(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyAsset
	}
	return data, mime, nil
}

func (m *Materializer) finish(ctx context.Context, logger *slog.Logger, key, ref string, data []byte, mime string, strategy Strategy) Asset {
	asset := Asset{
		Data:         data,
		MIMEType:     detectMIME(data, mime),
		Ref:          ref,
		Materialized: true,
		Strategy:     strategy,
	}

	if m.sink != nil && key != "" {
		objectKey := "assets/" + key + extension(asset.MIMEType)
		u, err := m.sink.Put(ctx, objectKey, bytes.NewReader(data), asset.MIMEType)
		if err != nil {
			logger.Warn("asset upload failed", slog.String("object_key", objectKey), slog.String("error", err.Error()))
		} else {
			asset.URL = u
		}
	}

	logger.Info("asset materialized",
		slog.String("strategy", string(strategy)),
		slog.String("mime_type", asset.MIMEType),
		slog.Int("bytes", len(data)),
	)
	return asset
}

// detectMIME returns the declared type, sniffing the bytes when the
// declaration is missing or generic.
func detectMIME(data []byte, declared string) string {
	declared, _, _ = strings.Cut(declared, ";")
	declared = strings.TrimSpace(declared)
	switch declared {
	case "", "application/octet-stream", "binary/octet-stream":
		mime, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
		return mime
	default:
		return declared
	}
}

func extension(mime string) string {
	if mt := mimetype.Lookup(mime); mt != nil {
		return mt.Extension()
	}
	return ""
}

// DecodeDataURI decodes "data:[<mime>][;base64],<payload>".
func DecodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", ErrBadDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", ErrBadDataURI
	}

	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrBadDataURI, err)
		}
		return data, mime, nil
	}

	text, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBadDataURI, err)
	}
	return []byte(text), mime, nil
}

// NewDirectFetcher fetches assets with a plain GET.
func NewDirectFetcher(hc *http.Client) Fetcher {
	if hc == nil {
		hc = &http.Client{}
	}
	return FetcherFunc(func(ctx context.Context, ref string) ([]byte, string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, "", fmt.Errorf("materialize: create request: %w", err)
		}

		resp, err := hc.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("materialize: fetch: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, "", &transport.StatusError{Service: "asset", StatusCode: resp.StatusCode}
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes+1))
		if err != nil {
			return nil, "", fmt.Errorf("materialize: read: %w", err)
		}
		if len(data) > maxAssetBytes {
			return nil, "", ErrAssetTooLarge
		}

		return data, resp.Header.Get("Content-Type"), nil
	})
}

type proxyRequest struct {
	URL string `json:"url"`
}

type proxyResponse struct {
	Data     string `json:"data"`
	MIMEType string `json:"mime_type"`
	Error    string `json:"error,omitempty"`
}

// NewProxyFetcher asks an intermediary at proxyURL to fetch and base64-encode
// the asset: POST {"url": ref} -> {"data": "<base64>", "mime_type": "..."}.
func NewProxyFetcher(proxyURL string, hc *http.Client) Fetcher {
	api := transport.New("materialize-proxy", proxyURL, hc, nil)
	return FetcherFunc(func(ctx context.Context, ref string) ([]byte, string, error) {
		var resp proxyResponse
		if err := api.Do(ctx, http.MethodPost, "", proxyRequest{URL: ref}, &resp); err != nil {
			return nil, "", err
		}
		if resp.Error != "" {
			return nil, "", fmt.Errorf("materialize-proxy: %s", resp.Error)
		}

		payload := resp.Data
		mime := resp.MIMEType
		if strings.HasPrefix(payload, "data:") {
			return DecodeDataURI(payload)
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("materialize-proxy: decode: %w", err)
		}
		return data, mime, nil
	})
}
