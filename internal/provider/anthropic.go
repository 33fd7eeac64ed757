package provider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mrviduus/ReplyMate-sub000/internal/cleaner"
	"github.com/mrviduus/ReplyMate-sub000/internal/logger"
)

// AnthropicProvider wraps the Anthropic SDK.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
	cfg    Config

	mu    sync.Mutex
	ready bool
}

// NewAnthropicProvider creates an Anthropic-backed provider.
func NewAnthropicProvider(cfg Config) (*AnthropicProvider, error) {
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
		cfg:    cfg,
	}, nil
}

// Initialize verifies the API key with a models listing. Idempotent; a
// rate-limited answer counts as a recognized key.
func (p *AnthropicProvider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ready {
		return nil
	}
	if !p.ValidateAPIKey(p.cfg.APIKey) {
		return Errorf(TypeAnthropic, KindInvalidKey, "API key is missing or malformed")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	if _, err := p.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		mapped := mapAnthropicError(err)
		switch KindOf(mapped) {
		case KindRateLimit:
			logger.Debug("anthropic key check rate limited, accepting key")
		case KindInvalidKey:
			return mapped
		default:
			return NewError(TypeAnthropic, KindInitializationFailed, err)
		}
	}

	p.ready = true
	return nil
}

// GenerateReply sends a messages request and returns the trimmed reply.
func (p *AnthropicProvider) GenerateReply(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOptions) (*Reply, error) {
	if !p.Ready() {
		return nil, Errorf(TypeAnthropic, KindNotInitialized, "provider not initialized")
	}
	opts = resolveOptions(p.cfg, opts)

	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(opts.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
		Temperature: anthropic.Float(*opts.Temperature),
		TopP:        anthropic.Float(opts.TopP),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	start := time.Now()
	resp, err := p.client.Messages.New(ctx, params)
	latency := time.Since(start)

	if err != nil {
		return nil, mapAnthropicError(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(b.Text)
		}
	}
	text := cleaner.TrimReply(sb.String(), maxReplyChars)
	if text == "" {
		return nil, Errorf(TypeAnthropic, KindInvalidResponse, "response contained no text content")
	}

	return &Reply{
		Text:         text,
		Provider:     TypeAnthropic,
		Model:        string(resp.Model),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		Latency:      latency,
	}, nil
}

// ValidateAPIKey checks the vendor key format offline.
func (p *AnthropicProvider) ValidateAPIKey(key string) bool {
	return strings.HasPrefix(key, "sk-ant-") && len(key) >= 20
}

func (p *AnthropicProvider) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *AnthropicProvider) Name() string { return "Anthropic Claude" }

func (p *AnthropicProvider) Model() string { return p.model }

func (p *AnthropicProvider) Type() Type { return TypeAnthropic }

// Close clears the ready state. Safe to call multiple times.
func (p *AnthropicProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = false
	return nil
}

func (p *AnthropicProvider) timeout() time.Duration {
	if p.cfg.Timeout > 0 {
		return p.cfg.Timeout
	}
	return defaultTimeout
}

func mapAnthropicError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return classifyStatus(TypeAnthropic, apierr.StatusCode, err)
	}
	return classify(TypeAnthropic, err)
}
