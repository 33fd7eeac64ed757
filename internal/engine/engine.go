// Package engine runs the reply generation pipeline: admission control,
// provider resolution, prompt construction, generation, cleanup, and the
// quality gate.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/mrviduus/ReplyMate-sub000/internal/cleaner"
	"github.com/mrviduus/ReplyMate-sub000/internal/logger"
	"github.com/mrviduus/ReplyMate-sub000/internal/metrics"
	"github.com/mrviduus/ReplyMate-sub000/internal/provider"
	"github.com/mrviduus/ReplyMate-sub000/internal/quality"
	"github.com/mrviduus/ReplyMate-sub000/internal/ratelimit"
)

// ErrRateLimited is returned when admission control rejects a request.
var ErrRateLimited = provider.Errorf("", provider.KindRateLimit, "too many requests, slow down")

// retryBaseTemperature stands in for the provider default when the
// request leaves temperature unset and a quality retry needs to bump it.
const retryBaseTemperature = 0.7

// Config tunes the pipeline.
type Config struct {
	// CallTimeout bounds a single provider invocation.
	CallTimeout time.Duration
	// RetryTempDelta is added to the sampling temperature on the single
	// quality-triggered regeneration. The result is capped at 1.0.
	RetryTempDelta float64
	// RetryBelowScore triggers the regeneration when an invalid reply
	// scores under this threshold.
	RetryBelowScore int
	// LimiterMax and LimiterRefillPerSec shape the admission bucket.
	LimiterMax          float64
	LimiterRefillPerSec float64
	// ExtraCleanRules are applied to raw model output after the built-in
	// cleanup rules.
	ExtraCleanRules []cleaner.Rule
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		CallTimeout:         30 * time.Second,
		RetryTempDelta:      0.15,
		RetryBelowScore:     60,
		LimiterMax:          3,
		LimiterRefillPerSec: 0.2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.RetryTempDelta <= 0 {
		c.RetryTempDelta = d.RetryTempDelta
	}
	if c.RetryBelowScore <= 0 {
		c.RetryBelowScore = d.RetryBelowScore
	}
	if c.LimiterMax <= 0 {
		c.LimiterMax = d.LimiterMax
	}
	if c.LimiterRefillPerSec < 0 {
		c.LimiterRefillPerSec = d.LimiterRefillPerSec
	}
	return c
}

// Request is one reply generation request.
type Request struct {
	// SourceText is the post being replied to.
	SourceText string `validate:"required,min=1"`
	// Context holds optional prior-thread lines, oldest first.
	Context []string
	// Sampling overrides. Unset values use the provider defaults; a
	// non-nil Temperature of 0 requests greedy sampling.
	MaxTokens   int      `validate:"omitempty,gt=0"`
	Temperature *float64 `validate:"omitempty,gte=0,lte=1"`
	TopP        float64  `validate:"gte=0,lte=1"`
}

// Result is a completed generation.
type Result struct {
	RequestID    string          `json:"request_id" yaml:"request_id"`
	Text         string          `json:"text" yaml:"text"`
	Provider     provider.Type   `json:"provider" yaml:"provider"`
	Model        string          `json:"model" yaml:"model"`
	InputTokens  int             `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int             `json:"output_tokens" yaml:"output_tokens"`
	Latency      time.Duration   `json:"latency" yaml:"latency"`
	Quality      quality.Verdict `json:"quality" yaml:"quality"`
	Retried      bool            `json:"retried" yaml:"retried"`
}

// Engine owns the single active provider and runs the pipeline around it.
type Engine struct {
	registry *provider.Registry
	bucket   *ratelimit.Bucket
	metrics  *metrics.Metrics
	cfg      Config
	validate *validator.Validate
	clean    *cleaner.Cleaner

	mu        sync.Mutex
	active    provider.Provider
	initGroup singleflight.Group
}

// New builds an engine. metrics may be nil.
func New(registry *provider.Registry, m *metrics.Metrics, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		registry: registry,
		bucket:   ratelimit.New(cfg.LimiterMax, cfg.LimiterRefillPerSec),
		metrics:  m,
		cfg:      cfg,
		validate: validator.New(),
		clean:    cleaner.New(cfg.ExtraCleanRules...),
	}
}

// SetProvider makes t the active provider, disposing the previous one.
// The new provider is stored uninitialized; the first generation call
// initializes it.
func (e *Engine) SetProvider(t provider.Type, cfg provider.Config) error {
	p, err := e.registry.Create(t, cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	old := e.active
	e.active = p
	e.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			logger.Warn("closing previous provider", "provider", old.Type(), "error", err)
		}
	}
	logger.Info("active provider changed", "provider", t, "model", p.Model())
	return nil
}

// Active returns the current provider, or nil when none is selected.
func (e *Engine) Active() provider.Provider {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// GenerateReply runs the full pipeline for one request.
func (e *Engine) GenerateReply(ctx context.Context, req Request) (*Result, error) {
	if err := e.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	if !e.bucket.Allow() {
		e.metrics.RecordRateLimited()
		return nil, ErrRateLimited
	}

	p := e.Active()
	if p == nil {
		return nil, provider.Errorf("", provider.KindNotInitialized, "no provider selected")
	}

	if err := e.ensureReady(ctx, p); err != nil {
		e.metrics.RecordRequest(string(p.Type()), p.Model(), "error", 0)
		return nil, err
	}

	system := systemPrompt
	user := buildUserPrompt(req.SourceText, req.Context)
	opts := provider.GenerateOptions{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}

	start := time.Now()
	reply, err := e.generate(ctx, p, system, user, opts)
	if err != nil {
		e.metrics.RecordRequest(string(p.Type()), p.Model(), "error", time.Since(start).Seconds())
		return nil, err
	}

	text := e.clean.Clean(reply.Text)
	verdict := quality.Evaluate(text)
	retried := false

	if !verdict.Valid && verdict.Score < e.cfg.RetryBelowScore {
		retried = true
		e.metrics.RecordQualityRetry()
		logger.Debug("quality check failed, regenerating",
			"reason", verdict.Reason, "score", verdict.Score)

		if r2, t2, v2, err2 := e.regenerate(ctx, p, system, user, opts); err2 == nil {
			// Keep the regenerated reply only when it is an improvement.
			if v2.Valid || v2.Score > verdict.Score {
				reply, text, verdict = r2, t2, v2
			}
		} else {
			logger.Debug("regeneration failed, keeping first reply", "error", err2)
		}
	}

	latency := time.Since(start)
	e.metrics.RecordRequest(string(reply.Provider), reply.Model, "success", latency.Seconds())
	e.metrics.RecordTokens(string(reply.Provider), reply.InputTokens, reply.OutputTokens)

	return &Result{
		RequestID:    uuid.NewString(),
		Text:         text,
		Provider:     reply.Provider,
		Model:        reply.Model,
		InputTokens:  reply.InputTokens,
		OutputTokens: reply.OutputTokens,
		Latency:      latency,
		Quality:      verdict,
		Retried:      retried,
	}, nil
}

// ensureReady initializes p once, coalescing concurrent callers.
func (e *Engine) ensureReady(ctx context.Context, p provider.Provider) error {
	if p.Ready() {
		return nil
	}
	_, err, _ := e.initGroup.Do(string(p.Type()), func() (any, error) {
		if p.Ready() {
			return nil, nil
		}
		return nil, p.Initialize(ctx)
	})
	if err == nil {
		return nil
	}
	if provider.KindOf(err) != "" {
		return err
	}
	return provider.NewError(p.Type(), provider.KindInitializationFailed, err)
}

// regenerate performs the single quality retry with a bumped temperature.
func (e *Engine) regenerate(ctx context.Context, p provider.Provider, system, user string, opts provider.GenerateOptions) (*provider.Reply, string, quality.Verdict, error) {
	base := float64(retryBaseTemperature)
	if opts.Temperature != nil {
		base = *opts.Temperature
	}
	bumped := base + e.cfg.RetryTempDelta
	if bumped > 1.0 {
		bumped = 1.0
	}
	opts.Temperature = &bumped

	reply, err := e.generate(ctx, p, system, user, opts)
	if err != nil {
		return nil, "", quality.Verdict{}, err
	}
	text := e.clean.Clean(reply.Text)
	return reply, text, quality.Evaluate(text), nil
}

// generate invokes the provider under the call timeout, preferring the
// streaming path when available so partial output is not lost to a
// mid-stream disconnect.
func (e *Engine) generate(ctx context.Context, p provider.Provider, system, user string, opts provider.GenerateOptions) (*provider.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	if s, ok := p.(provider.Streamer); ok {
		return accumulateStream(ctx, p, s, system, user, opts)
	}
	return p.GenerateReply(ctx, system, user, opts)
}

// accumulateStream drains a streaming generation into a single reply.
func accumulateStream(ctx context.Context, p provider.Provider, s provider.Streamer, system, user string, opts provider.GenerateOptions) (*provider.Reply, error) {
	start := time.Now()
	ch, err := s.GenerateStream(ctx, system, user, opts)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	var inTokens, outTokens int
	var done bool
	for chunk := range ch {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		sb.WriteString(chunk.Text)
		if chunk.Done {
			done = true
			inTokens = chunk.InputTokens
			outTokens = chunk.OutputTokens
		}
	}
	if !done {
		if err := ctx.Err(); err != nil {
			return nil, provider.NewError(p.Type(), provider.KindTimeout, err)
		}
		// A close without the terminal chunk means the reply was cut off
		// mid-stream; partial text must not pass for a complete one.
		return nil, provider.Errorf(p.Type(), provider.KindInvalidResponse, "stream ended without a terminal chunk")
	}
	if sb.Len() == 0 {
		return nil, provider.Errorf(p.Type(), provider.KindInvalidResponse, "stream produced no text")
	}

	return &provider.Reply{
		Text:         sb.String(),
		Provider:     p.Type(),
		Model:        p.Model(),
		InputTokens:  inTokens,
		OutputTokens: outTokens,
		Latency:      time.Since(start),
	}, nil
}
