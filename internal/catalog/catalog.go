// Package catalog holds the static capabilities of every provider: supported
// kinds, reference support, ordered fallback models and request timeouts.
// Built-in defaults can be overridden from a YAML file.
package catalog

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/maauso/genjob/internal/provider"
)

// Static errors for catalog operations.
var (
	ErrUnknownProvider = errors.New("catalog: unknown provider")
	ErrNoCandidates    = errors.New("catalog: no candidate models")
)

// Entry is the YAML form of a provider's capabilities.
type Entry struct {
	Kinds          []provider.Kind            `yaml:"kinds"`
	ReferenceKinds *[]provider.Kind           `yaml:"reference_kinds"`
	FallbackModels map[provider.Kind][]string `yaml:"fallback_models"`
	RequestTimeout time.Duration              `yaml:"request_timeout"`
}

type file struct {
	Providers map[string]Entry `yaml:"providers"`
}

// Catalog maps provider names to capabilities.
type Catalog struct {
	entries map[string]provider.Capabilities
}

// Default returns the built-in catalog.
func Default() *Catalog {
	both := []provider.Kind{provider.KindImage, provider.KindVideo}
	videoOnly := []provider.Kind{provider.KindVideo}
	return &Catalog{entries: map[string]provider.Capabilities{
		provider.NameNative: {
			Kinds:          both,
			ReferenceKinds: videoOnly,
			FallbackModels: map[provider.Kind][]string{
				provider.KindImage: {"cogview-4-250304", "cogview-3-flash"},
				provider.KindVideo: {"cogvideox-3", "cogvideox-flash"},
			},
			RequestTimeout: 60 * time.Second,
		},
		provider.NameRelayA: {
			Kinds:          both,
			ReferenceKinds: both,
			FallbackModels: map[provider.Kind][]string{
				provider.KindImage: {"gpt-image-1", "dall-e-3"},
				provider.KindVideo: {"sora-2", "sora-2-pro"},
			},
			RequestTimeout: 120 * time.Second,
		},
		provider.NameRelayB: {
			Kinds:          both,
			ReferenceKinds: videoOnly,
			FallbackModels: map[provider.Kind][]string{
				provider.KindImage: {"flux-1.1-pro", "gpt-image-1"},
				provider.KindVideo: {"kling-v2-1", "veo3"},
			},
			RequestTimeout: 60 * time.Second,
		},
		provider.NameMultimodal: {
			Kinds:          both,
			ReferenceKinds: both,
			FallbackModels: map[provider.Kind][]string{
				provider.KindImage: {"gemini-2.5-flash-image", "gemini-2.0-flash-preview-image-generation"},
				provider.KindVideo: {"veo-3.0-generate-001", "veo-3.0-fast-generate-001"},
			},
			RequestTimeout: 120 * time.Second,
		},
	}}
}

// Load returns the built-in catalog with the entries of the YAML file at path
// layered on top. Only fields present in the file override the defaults.
// An empty path returns the defaults.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	if err := c.merge(data); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return c, nil
}

func (c *Catalog) merge(data []byte) error {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}

	for name, e := range f.Providers {
		caps := c.entries[name]
		if len(e.Kinds) > 0 {
			for _, k := range e.Kinds {
				if !k.Valid() {
					return fmt.Errorf("provider %s: invalid kind %q", name, k)
				}
			}
			caps.Kinds = e.Kinds
		}
		if e.ReferenceKinds != nil {
			for _, k := range *e.ReferenceKinds {
				if !k.Valid() {
					return fmt.Errorf("provider %s: invalid reference kind %q", name, k)
				}
			}
			caps.ReferenceKinds = *e.ReferenceKinds
		}
		if len(e.FallbackModels) > 0 {
			merged := maps.Clone(caps.FallbackModels)
			if merged == nil {
				merged = make(map[provider.Kind][]string)
			}
			maps.Copy(merged, e.FallbackModels)
			caps.FallbackModels = merged
		}
		if e.RequestTimeout > 0 {
			caps.RequestTimeout = e.RequestTimeout
		}
		c.entries[name] = caps
	}
	return nil
}

// Capabilities returns a copy of the capabilities registered for name.
func (c *Catalog) Capabilities(name string) (provider.Capabilities, error) {
	caps, ok := c.entries[name]
	if !ok {
		return provider.Capabilities{}, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	out := caps
	out.Kinds = slices.Clone(caps.Kinds)
	out.ReferenceKinds = slices.Clone(caps.ReferenceKinds)
	out.FallbackModels = make(map[provider.Kind][]string, len(caps.FallbackModels))
	for k, v := range caps.FallbackModels {
		out.FallbackModels[k] = slices.Clone(v)
	}
	return out, nil
}

// Models returns the ordered, de-duplicated model list for one request: an
// explicit override wins outright; otherwise the preferred model comes first,
// followed by the catalog's fallback models for kind.
func Models(caps provider.Capabilities, preferred string, kind provider.Kind, override []string) ([]string, error) {
	var ordered []string
	if len(override) > 0 {
		ordered = override
	} else {
		ordered = append([]string{preferred}, caps.FallbackModels[kind]...)
	}

	seen := make(map[string]bool, len(ordered))
	out := make([]string, 0, len(ordered))
	for _, m := range ordered {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, ErrNoCandidates
	}
	return out, nil
}
