package provider

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mrviduus/ReplyMate-sub000/internal/modelload"
)

// Metadata describes a registered provider type without instantiating it.
type Metadata struct {
	DisplayName    string
	RequiresAPIKey bool
	DefaultModel   string
	KeyPrefix      string
	MinKeyLen      int
}

// keyFormatOK mirrors the per-provider ValidateAPIKey checks so callers
// can reject malformed keys before paying construction cost.
func (m Metadata) keyFormatOK(key string) bool {
	if !m.RequiresAPIKey {
		return true
	}
	return strings.HasPrefix(key, m.KeyPrefix) && len(key) >= m.MinKeyLen
}

type factory func(cfg Config) (Provider, error)

// Registry maps provider types to construction functions. Construction is
// cheap and offline; network work happens in Initialize.
type Registry struct {
	factories map[Type]factory
	meta      map[Type]Metadata
	order     []Type
	validate  *validator.Validate
}

// NewRegistry builds the registry with all supported provider types. The
// loader backs the local provider; progress, when non-nil, receives model
// acquisition updates.
func NewRegistry(loader *modelload.Loader, progress modelload.ProgressFunc) *Registry {
	r := &Registry{
		factories: make(map[Type]factory),
		meta:      make(map[Type]Metadata),
		validate:  validator.New(),
	}

	r.register(TypeLocal, Metadata{
		DisplayName:  "Local model",
		DefaultModel: modelload.PickModel(),
	}, func(cfg Config) (Provider, error) {
		return NewLocalProvider(loader, cfg, progress)
	})

	r.register(TypeOpenAI, Metadata{
		DisplayName:    "OpenAI",
		RequiresAPIKey: true,
		DefaultModel:   "gpt-4o-mini",
		KeyPrefix:      "sk-",
		MinKeyLen:      20,
	}, func(cfg Config) (Provider, error) {
		return NewOpenAIProvider(cfg)
	})

	r.register(TypeAnthropic, Metadata{
		DisplayName:    "Anthropic Claude",
		RequiresAPIKey: true,
		DefaultModel:   "claude-sonnet-4-20250514",
		KeyPrefix:      "sk-ant-",
		MinKeyLen:      20,
	}, func(cfg Config) (Provider, error) {
		return NewAnthropicProvider(cfg)
	})

	r.register(TypeGemini, Metadata{
		DisplayName:    "Google Gemini",
		RequiresAPIKey: true,
		DefaultModel:   "gemini-2.0-flash",
		KeyPrefix:      "AIza",
		MinKeyLen:      30,
	}, func(cfg Config) (Provider, error) {
		return NewGeminiProvider(cfg)
	})

	return r
}

func (r *Registry) register(t Type, m Metadata, f factory) {
	r.factories[t] = f
	r.meta[t] = m
	r.order = append(r.order, t)
}

// Create instantiates a provider of the given type. Types that require an
// API key are rejected up front when the key fails the offline format
// check, and the config is checked against its declared constraints, so a
// misconfigured provider never reaches the network.
func (r *Registry) Create(t Type, cfg Config) (Provider, error) {
	f, ok := r.factories[t]
	if !ok {
		return nil, Errorf(t, KindProviderDown, "unknown provider type %q", t)
	}
	if m := r.meta[t]; !m.keyFormatOK(cfg.APIKey) {
		return nil, Errorf(t, KindInvalidKey, "API key is missing or malformed for %s", m.DisplayName)
	}
	if err := r.validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid %s provider config: %w", t, err)
	}
	return f(cfg)
}

// Describe returns the metadata for a registered type.
func (r *Registry) Describe(t Type) (Metadata, bool) {
	m, ok := r.meta[t]
	return m, ok
}

// Types lists registered provider types in registration order.
func (r *Registry) Types() []Type {
	out := make([]Type, len(r.order))
	copy(out, r.order)
	return out
}
