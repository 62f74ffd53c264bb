package provider

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/genjob/internal/classify"
	"github.com/maauso/genjob/internal/multimodal"
	"github.com/maauso/genjob/internal/native"
	"github.com/maauso/genjob/internal/relaya"
	"github.com/maauso/genjob/internal/relayb"
)

// Config is a resolved provider configuration. Credentials are attached to
// requests as-is; they are never stored.
type Config struct {
	Provider       string `json:"provider" validate:"required,oneof=native relayA relayB multimodal"`
	BaseURL        string `json:"baseUrl,omitempty" validate:"omitempty,url"`
	APIKey         string `json:"apiKey"`
	PreferredModel string `json:"preferredModel,omitempty"`
}

var validate = validator.New()

// Validate checks the structural validity of the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("provider: invalid config: %w", err)
	}
	return nil
}

// Option configures adapter construction.
type Option func(*factoryConfig)

type factoryConfig struct {
	httpClient *http.Client
}

// WithHTTPClient sets the HTTP client used by the underlying provider client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *factoryConfig) {
		f.httpClient = hc
	}
}

// New builds the adapter for cfg. The provider is selected here, once; the
// returned adapter never branches on the provider name again.
// Construction failures are returned as classified errors.
func New(cfg Config, caps Capabilities, opts ...Option) (Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, classify.New(classify.KindBadRequest, err.Error())
	}

	f := factoryConfig{}
	for _, opt := range opts {
		opt(&f)
	}

	var (
		adapter Adapter
		err     error
	)
	switch cfg.Provider {
	case NameNative:
		nopts := []native.ClientOption{native.WithBaseURL(cfg.BaseURL)}
		if f.httpClient != nil {
			nopts = append(nopts, native.WithHTTPClient(f.httpClient))
		}
		var c *native.HTTPClient
		if c, err = native.NewClient(cfg.APIKey, nopts...); err == nil {
			adapter = NewNativeAdapter(c, caps)
		}
	case NameRelayA:
		var ropts []relaya.ClientOption
		if f.httpClient != nil {
			ropts = append(ropts, relaya.WithHTTPClient(f.httpClient))
		}
		var c *relaya.SDKClient
		if c, err = relaya.NewClient(cfg.BaseURL, cfg.APIKey, ropts...); err == nil {
			adapter = NewRelayAAdapter(c, caps)
		}
	case NameRelayB:
		var ropts []relayb.ClientOption
		if f.httpClient != nil {
			ropts = append(ropts, relayb.WithHTTPClient(f.httpClient))
		}
		var c *relayb.HTTPClient
		if c, err = relayb.NewClient(cfg.BaseURL, cfg.APIKey, ropts...); err == nil {
			adapter = NewRelayBAdapter(c, caps)
		}
	case NameMultimodal:
		mopts := []multimodal.ClientOption{multimodal.WithBaseURL(cfg.BaseURL)}
		if f.httpClient != nil {
			mopts = append(mopts, multimodal.WithHTTPClient(f.httpClient))
		}
		var c *multimodal.HTTPClient
		if c, err = multimodal.NewClient(cfg.APIKey, mopts...); err == nil {
			adapter = NewMultimodalAdapter(c, caps)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, constructionError(err)
	}

	return adapter, nil
}

func constructionError(err error) error {
	switch {
	case errors.Is(err, native.ErrAPIKeyRequired),
		errors.Is(err, relaya.ErrAPIKeyRequired),
		errors.Is(err, relayb.ErrAPIKeyRequired),
		errors.Is(err, multimodal.ErrAPIKeyRequired):
		ce := classify.New(classify.KindAuthFailed, err.Error())
		ce.Err = err
		return ce
	default:
		ce := classify.New(classify.KindBadRequest, err.Error())
		ce.Err = err
		return ce
	}
}
