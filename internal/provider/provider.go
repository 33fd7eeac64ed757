// Package provider defines the unified contract for reply-generation
// backends and the concrete implementations behind it: a local on-device
// runtime plus the OpenAI, Anthropic and Gemini APIs.
package provider

import (
	"context"
	"time"
)

// Type identifies a backend implementation.
type Type string

const (
	TypeLocal     Type = "local"
	TypeOpenAI    Type = "openai"
	TypeAnthropic Type = "anthropic"
	TypeGemini    Type = "gemini"
)

// Config holds construction-time settings for a provider.
// It is read-only after the provider is created.
type Config struct {
	APIKey      string        `validate:"omitempty,min=8"`
	Model       string        ``
	BaseURL     string        `validate:"omitempty,url"`
	MaxTokens   int           `validate:"omitempty,gt=0"`
	Temperature float64       `validate:"gte=0,lte=1"`
	TopP        float64       `validate:"gte=0,lte=1"`
	Timeout     time.Duration ``
}

// GenerateOptions are per-call sampling overrides. Zero values fall back to
// the provider's configured defaults.
type GenerateOptions struct {
	MaxTokens int
	// Temperature nil falls back to the configured or built-in default.
	// A pointer to 0 is a deliberate setting (greedy sampling).
	Temperature *float64
	TopP        float64
}

// Reply is the result of a single generation call. Ownership transfers to
// the caller; it is never mutated after return.
type Reply struct {
	Text         string
	Provider     Type
	Model        string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
}

// TokensUsed returns the combined token count, zero if the backend did not
// report usage.
func (r *Reply) TokensUsed() int {
	return r.InputTokens + r.OutputTokens
}

// Provider is the contract every backend implements.
type Provider interface {
	// Initialize prepares the backend for generation. It is idempotent: a
	// second call on an initialized provider returns immediately. Remote
	// providers verify their API key with a minimal round-trip; a
	// rate-limited answer counts as a recognized key.
	Initialize(ctx context.Context) error

	// GenerateReply produces a reply for the given prompt pair. It fails
	// with KindNotInitialized before a successful Initialize.
	GenerateReply(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOptions) (*Reply, error)

	// ValidateAPIKey is an offline format check (prefix plus length).
	// It does not guarantee the key is live.
	ValidateAPIKey(key string) bool

	// Ready reports whether Initialize has completed successfully.
	Ready() bool

	Name() string
	Model() string
	Type() Type

	// Close releases any held client or engine handle and clears the ready
	// state. Safe to call multiple times.
	Close() error
}

// StreamChunk is one fragment of a streamed reply. The final chunk carries
// Done=true and, when the backend reports it, token usage.
type StreamChunk struct {
	Text         string
	Done         bool
	Err          error
	InputTokens  int
	OutputTokens int
}

// Streamer is implemented by providers that can deliver a reply as a lazy,
// cancellable sequence of fragments. The channel is finite and closed when
// the stream ends or ctx is cancelled; it is not restartable.
type Streamer interface {
	GenerateStream(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOptions) (<-chan StreamChunk, error)
}

const (
	defaultMaxTokens   = 150
	defaultTemperature = 0.7
	defaultTopP        = 0.9
	defaultTimeout     = 30 * time.Second

	// maxReplyChars bounds the cleaned reply each provider hands back.
	maxReplyChars = 600
)

// resolveOptions merges per-call options over config defaults.
func resolveOptions(cfg Config, opts GenerateOptions) GenerateOptions {
	out := opts
	if out.MaxTokens <= 0 {
		out.MaxTokens = cfg.MaxTokens
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = defaultMaxTokens
	}
	t := float64(defaultTemperature)
	switch {
	case out.Temperature != nil:
		t = *out.Temperature
	case cfg.Temperature > 0:
		t = cfg.Temperature
	}
	if t > 1 {
		t = 1
	}
	out.Temperature = &t
	if out.TopP <= 0 {
		out.TopP = cfg.TopP
	}
	if out.TopP <= 0 {
		out.TopP = defaultTopP
	}
	return out
}
