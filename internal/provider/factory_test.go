package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/genjob/internal/classify"
)

func TestNew_SelectsAdapterByName(t *testing.T) {
	tests := []struct {
		cfg  Config
		want any
	}{
		{Config{Provider: NameNative, APIKey: "k"}, &NativeAdapter{}},
		{Config{Provider: NameRelayA, APIKey: "k", BaseURL: "https://relay.example.com/v1"}, &RelayAAdapter{}},
		{Config{Provider: NameRelayB, APIKey: "k", BaseURL: "https://relay.example.com"}, &RelayBAdapter{}},
		{Config{Provider: NameMultimodal, APIKey: "k"}, &MultimodalAdapter{}},
	}

	for _, tt := range tests {
		t.Run(tt.cfg.Provider, func(t *testing.T) {
			a, err := New(tt.cfg, allKinds)
			require.NoError(t, err)
			assert.IsType(t, tt.want, a)
			assert.Equal(t, tt.cfg.Provider, a.Name())
			assert.Equal(t, allKinds, a.Capabilities())
		})
	}
}

func TestNew_MissingKeyIsAuthFailed(t *testing.T) {
	_, err := New(Config{Provider: NameNative}, allKinds)
	require.Error(t, err)
	assert.ErrorIs(t, err, classify.ErrAuthFailed)
}

func TestNew_RelayWithoutBaseURLIsBadRequest(t *testing.T) {
	_, err := New(Config{Provider: NameRelayA, APIKey: "k"}, allKinds)
	require.Error(t, err)
	assert.ErrorIs(t, err, classify.ErrBadRequest)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "acme", APIKey: "k"}, allKinds)
	require.Error(t, err)
	assert.ErrorIs(t, err, classify.ErrBadRequest)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{Provider: NameNative}.Validate())
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Provider: NameNative, BaseURL: "not a url"}.Validate())
}
