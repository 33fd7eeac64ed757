package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mrviduus/ReplyMate-sub000/internal/cleaner"
	"github.com/mrviduus/ReplyMate-sub000/internal/modelload"
)

// LocalProvider serves replies from an on-device model. Unlike the remote
// providers its Initialize is a long-running, retryable operation: model
// acquisition goes through the loader's retry/fallback/health-check path.
type LocalProvider struct {
	loader   *modelload.Loader
	cfg      Config
	chain    []string
	progress modelload.ProgressFunc

	mu     sync.Mutex
	handle *modelload.Handle
}

// NewLocalProvider creates a provider backed by the given loader. An
// explicit cfg.Model becomes the primary candidate, followed by the
// device-capability fallback chain.
func NewLocalProvider(loader *modelload.Loader, cfg Config, progress modelload.ProgressFunc) (*LocalProvider, error) {
	if loader == nil {
		return nil, errors.New("local provider requires a model loader")
	}

	chain := modelload.FallbackChain()
	if cfg.Model != "" {
		merged := []string{cfg.Model}
		for _, m := range chain {
			if m != cfg.Model {
				merged = append(merged, m)
			}
		}
		chain = merged
	}

	return &LocalProvider{
		loader:   loader,
		cfg:      cfg,
		chain:    chain,
		progress: progress,
	}, nil
}

// Initialize acquires a model through the loader. Idempotent: once a
// handle is held, subsequent calls return immediately.
func (p *LocalProvider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != nil {
		return nil
	}

	h, err := p.loader.LoadAny(ctx, p.chain, p.progress)
	if err != nil {
		return NewError(TypeLocal, KindInitializationFailed, err)
	}
	p.handle = h
	return nil
}

// GenerateReply runs a unary generation on the loaded model.
func (p *LocalProvider) GenerateReply(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOptions) (*Reply, error) {
	h := p.currentHandle()
	if h == nil {
		return nil, Errorf(TypeLocal, KindNotInitialized, "no model loaded")
	}
	opts = resolveOptions(p.cfg, opts)

	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	start := time.Now()
	res, err := h.Generate(ctx, systemPrompt, userPrompt, modelload.ChatOptions{
		Temperature: *opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
	})
	latency := time.Since(start)

	if err != nil {
		return nil, mapLocalError(err)
	}

	text := cleaner.TrimReply(res.Text, maxReplyChars)
	if text == "" {
		return nil, Errorf(TypeLocal, KindInvalidResponse, "model produced no text")
	}

	return &Reply{
		Text:         text,
		Provider:     TypeLocal,
		Model:        h.Model(),
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		Latency:      latency,
	}, nil
}

// GenerateStream exposes the model's token stream as a lazy, cancellable
// sequence of fragments.
func (p *LocalProvider) GenerateStream(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOptions) (<-chan StreamChunk, error) {
	h := p.currentHandle()
	if h == nil {
		return nil, Errorf(TypeLocal, KindNotInitialized, "no model loaded")
	}
	opts = resolveOptions(p.cfg, opts)

	raw, err := h.GenerateStream(ctx, systemPrompt, userPrompt, modelload.ChatOptions{
		Temperature: *opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return nil, mapLocalError(err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		for chunk := range raw {
			sc := StreamChunk{
				Text:         chunk.Text,
				Done:         chunk.Done,
				InputTokens:  chunk.InputTokens,
				OutputTokens: chunk.OutputTokens,
			}
			if chunk.Err != nil {
				sc.Err = mapLocalError(chunk.Err)
			}
			select {
			case out <- sc:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ValidateAPIKey always succeeds: the local backend needs no credentials.
func (p *LocalProvider) ValidateAPIKey(string) bool { return true }

func (p *LocalProvider) Ready() bool {
	return p.currentHandle() != nil
}

func (p *LocalProvider) Name() string { return "Local model" }

// Model returns the loaded model, or the primary candidate before load.
func (p *LocalProvider) Model() string {
	if h := p.currentHandle(); h != nil {
		return h.Model()
	}
	if len(p.chain) > 0 {
		return p.chain[0]
	}
	return ""
}

func (p *LocalProvider) Type() Type { return TypeLocal }

// Close drops the handle reference. The loader keeps its cache so a later
// provider instance reuses the loaded model without another download.
func (p *LocalProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handle = nil
	return nil
}

func (p *LocalProvider) currentHandle() *modelload.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

func (p *LocalProvider) timeout() time.Duration {
	if p.cfg.Timeout > 0 {
		return p.cfg.Timeout
	}
	return defaultTimeout
}

func mapLocalError(err error) error {
	var se *modelload.StatusError
	if errors.As(err, &se) {
		return classifyStatus(TypeLocal, se.Code, err)
	}
	return classify(TypeLocal, err)
}
