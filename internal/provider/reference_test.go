package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/genjob/internal/catalog"
	"github.com/maauso/genjob/internal/classify"
	"github.com/maauso/genjob/internal/fallback"
	"github.com/maauso/genjob/internal/native"
	"github.com/maauso/genjob/internal/provider"
	"github.com/maauso/genjob/internal/relayb"
)

type nativeImages struct {
	native.Client
	calls int
}

func (c *nativeImages) GenerateImage(ctx context.Context, req native.ImageRequest) (native.ImageResult, error) {
	c.calls++
	return native.ImageResult{URL: "https://cdn/native.png"}, nil
}

type relayBImages struct {
	relayb.Client
	calls int
}

func (c *relayBImages) GenerateImage(ctx context.Context, req relayb.ImageRequest) (string, error) {
	c.calls++
	return "https://cdn/relayb.png", nil
}

// Native and relayB only take a reference for video; their image endpoints
// are text-only, and the default catalog must say so.
func TestDefaultCatalog_ImageReferenceMatchesAdapters(t *testing.T) {
	cat := catalog.Default()
	ref := &provider.ReferenceAsset{URL: "https://x/ref.png", Description: "a red fox"}

	tests := []struct {
		name  string
		build func(caps provider.Capabilities) (provider.Adapter, func() int)
	}{
		{provider.NameNative, func(caps provider.Capabilities) (provider.Adapter, func() int) {
			c := &nativeImages{}
			return provider.NewNativeAdapter(c, caps), func() int { return c.calls }
		}},
		{provider.NameRelayB, func(caps provider.Capabilities) (provider.Adapter, func() int) {
			c := &relayBImages{}
			return provider.NewRelayBAdapter(c, caps), func() int { return c.calls }
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps, err := cat.Capabilities(tt.name)
			require.NoError(t, err)
			assert.False(t, caps.SupportsReference(provider.KindImage))
			assert.True(t, caps.SupportsReference(provider.KindVideo))

			adapter, calls := tt.build(caps)

			_, err = adapter.Submit(context.Background(), provider.Payload{
				Kind:      provider.KindImage,
				Model:     "m",
				Prompt:    "p",
				Reference: ref,
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, provider.ErrReferenceNotSupported)
			assert.Equal(t, classify.KindBadRequest, classify.FromError(err).Kind)
			assert.Zero(t, calls())

			res, err := fallback.New(nil).Execute(context.Background(),
				[]fallback.Candidate{{Adapter: adapter, Model: "m"}},
				provider.Payload{Kind: provider.KindImage, Prompt: "p", Reference: ref})
			require.NoError(t, err)
			require.Len(t, res.Attempts, 1)
			assert.Equal(t, fallback.ModeText, res.Attempts[0].Mode)
			assert.True(t, res.Attempts[0].Succeeded)
			assert.True(t, res.Degraded)
			assert.Equal(t, 1, calls())
		})
	}
}

func TestDefaultCatalog_ImageReferenceProviders(t *testing.T) {
	cat := catalog.Default()
	for _, name := range []string{provider.NameRelayA, provider.NameMultimodal} {
		caps, err := cat.Capabilities(name)
		require.NoError(t, err, name)
		assert.True(t, caps.SupportsReference(provider.KindImage), name)
	}
}
