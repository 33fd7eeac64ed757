package provider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mrviduus/ReplyMate-sub000/internal/cleaner"
	"github.com/mrviduus/ReplyMate-sub000/internal/logger"
)

// OpenAIProvider wraps the OpenAI SDK.
type OpenAIProvider struct {
	client openai.Client
	model  string
	cfg    Config

	mu    sync.Mutex
	ready bool
}

// NewOpenAIProvider creates an OpenAI-backed provider. The key is verified
// on Initialize, not here.
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	opts := []option.RequestOption{
		// The pipeline owns retry policy; the SDK must not add its own.
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
		model = string(openai.ChatModelGPT4oMini)
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
		cfg:    cfg,
	}, nil
}

// Initialize verifies the API key with a models listing. Idempotent; a
// rate-limited answer proves the key is recognized and counts as success.
func (p *OpenAIProvider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ready {
		return nil
	}
	if !p.ValidateAPIKey(p.cfg.APIKey) {
		return Errorf(TypeOpenAI, KindInvalidKey, "API key is missing or malformed")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	if _, err := p.client.Models.List(ctx); err != nil {
		mapped := mapOpenAIError(err)
		switch KindOf(mapped) {
		case KindRateLimit:
			logger.Debug("openai key check rate limited, accepting key")
		case KindInvalidKey:
			return mapped
		default:
			return NewError(TypeOpenAI, KindInitializationFailed, err)
		}
	}

	p.ready = true
	return nil
}

// GenerateReply sends a chat completion and returns the trimmed reply.
func (p *OpenAIProvider) GenerateReply(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOptions) (*Reply, error) {
	if !p.Ready() {
		return nil, Errorf(TypeOpenAI, KindNotInitialized, "provider not initialized")
	}
	opts = resolveOptions(p.cfg, opts)

	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		MaxTokens:   openai.Int(int64(opts.MaxTokens)),
		Temperature: openai.Float(*opts.Temperature),
		TopP:        openai.Float(opts.TopP),
	})
	latency := time.Since(start)

	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, Errorf(TypeOpenAI, KindInvalidResponse, "no choices in response")
	}

	text := cleaner.TrimReply(resp.Choices[0].Message.Content, maxReplyChars)
	if text == "" {
		return nil, Errorf(TypeOpenAI, KindInvalidResponse, "empty completion content")
	}

	return &Reply{
		Text:         text,
		Provider:     TypeOpenAI,
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		Latency:      latency,
	}, nil
}

// ValidateAPIKey checks the vendor key format offline.
func (p *OpenAIProvider) ValidateAPIKey(key string) bool {
	return strings.HasPrefix(key, "sk-") && len(key) >= 20
}

func (p *OpenAIProvider) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *OpenAIProvider) Name() string { return "OpenAI" }

func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) Type() Type { return TypeOpenAI }

// Close clears the ready state. Safe to call multiple times.
func (p *OpenAIProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = false
	return nil
}

func (p *OpenAIProvider) timeout() time.Duration {
	if p.cfg.Timeout > 0 {
		return p.cfg.Timeout
	}
	return defaultTimeout
}

func mapOpenAIError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return classifyStatus(TypeOpenAI, apierr.StatusCode, err)
	}
	return classify(TypeOpenAI, err)
}
