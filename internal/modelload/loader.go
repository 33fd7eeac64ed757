// Package modelload acquires, caches and health-checks models on the local
// runtime. It retries transient failures with a fixed backoff, falls back
// through an ordered candidate list, and coalesces concurrent load requests
// for the same model into a single underlying attempt.
package modelload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mrviduus/ReplyMate-sub000/internal/logger"
)

// Stage labels a phase of model acquisition for progress reporting.
type Stage string

const (
	StageInitializing Stage = "initializing"
	StageDownloading  Stage = "downloading"
	StageLoading      Stage = "loading"
	StageFinalizing   Stage = "finalizing"
	StageComplete     Stage = "complete"
)

// Progress is one model-load milestone. Fraction is within [0,1].
type Progress struct {
	Stage    Stage
	Fraction float64
	Text     string
	Attempt  int
}

// ProgressFunc receives load milestones. It is called from the loading
// goroutine and must not block.
type ProgressFunc func(Progress)

// Config holds loader policy. Zero values take the defaults.
type Config struct {
	// MaxRetries is the attempt budget per model identifier.
	MaxRetries int
	// LoadTimeout bounds a single load attempt (download + health check).
	LoadTimeout time.Duration
	// RetryBackoff is the fixed wait between attempts on one identifier.
	RetryBackoff time.Duration
	// WaitTimeout bounds how long a coalesced caller waits for an
	// in-flight load started by another caller.
	WaitTimeout time.Duration
	// BaseURL overrides the runtime endpoint.
	BaseURL string
	// OnAttempt, when set, observes the outcome of every load attempt.
	// Called from the loading goroutine; must not block.
	OnAttempt func(model string, ok bool)
}

// DefaultConfig returns the canonical loader policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		LoadTimeout:  120 * time.Second,
		RetryBackoff: 3 * time.Second,
		WaitTimeout:  60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = d.LoadTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = d.WaitTimeout
	}
	return c
}

// Handle is a loaded, health-checked model. At most one handle exists per
// model identifier; it stays valid until Unload or process teardown.
type Handle struct {
	model  string
	client *Client
}

// Model returns the model identifier this handle serves.
func (h *Handle) Model() string { return h.model }

// Generate runs a unary generation on the loaded model.
func (h *Handle) Generate(ctx context.Context, system, user string, opts ChatOptions) (*ChatResult, error) {
	return h.client.Chat(ctx, h.model, system, user, opts)
}

// GenerateStream runs a streaming generation on the loaded model.
func (h *Handle) GenerateStream(ctx context.Context, system, user string, opts ChatOptions) (<-chan Chunk, error) {
	return h.client.ChatStream(ctx, h.model, system, user, opts)
}

// flight is one in-progress load. The goroutine that created the record
// runs the attempt sequence and closes done; joiners wait on done.
type flight struct {
	done chan struct{}
	h    *Handle
	err  error
}

// Loader owns the handle cache. Construct one per process and inject it;
// there is no package-level singleton.
type Loader struct {
	cfg    Config
	client *Client

	mu      sync.Mutex
	cache   map[string]*Handle
	flights map[string]*flight

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Loader with the given policy.
func New(cfg Config) *Loader {
	cfg = cfg.withDefaults()
	return &Loader{
		cfg:     cfg,
		client:  NewClient(cfg.BaseURL),
		cache:   make(map[string]*Handle),
		flights: make(map[string]*flight),
		sleep:   sleepCtx,
	}
}

// Client exposes the underlying runtime client (model listing, ping).
func (l *Loader) Client() *Client { return l.client }

// Load returns a ready handle for the model, loading it if necessary.
// Concurrent calls for the same identifier share one underlying attempt
// sequence and resolve to the same handle or the same failure.
func (l *Loader) Load(ctx context.Context, model string, progress ProgressFunc) (*Handle, error) {
	if model == "" {
		return nil, errors.New("model identifier is empty")
	}

	l.mu.Lock()
	if h, ok := l.cache[model]; ok {
		l.mu.Unlock()
		return h, nil
	}
	fl, joining := l.flights[model]
	if !joining {
		fl = &flight{done: make(chan struct{})}
		l.flights[model] = fl
	}
	l.mu.Unlock()

	// WaitTimeout bounds only callers joining someone else's flight. The
	// owner's attempt sequence is already bounded by LoadTimeout and the
	// retry budget.
	if joining {
		timer := time.NewTimer(l.cfg.WaitTimeout)
		defer timer.Stop()
		select {
		case <-fl.done:
			return fl.h, fl.err
		case <-timer.C:
			return nil, fmt.Errorf("timed out after %s waiting for in-flight load of %q", l.cfg.WaitTimeout, model)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	fl.h, fl.err = l.loadModel(ctx, model, progress)
	l.mu.Lock()
	delete(l.flights, model)
	l.mu.Unlock()
	close(fl.done)
	return fl.h, fl.err
}

// LoadAny tries each candidate in order, moving on only after a candidate
// exhausts its retry budget. The returned error references the last
// attempted identifier.
func (l *Loader) LoadAny(ctx context.Context, models []string, progress ProgressFunc) (*Handle, error) {
	if len(models) == 0 {
		return nil, errors.New("no candidate models")
	}

	var lastErr error
	var lastModel string
	for _, model := range models {
		h, err := l.Load(ctx, model, progress)
		if err == nil {
			return h, nil
		}
		lastErr = err
		lastModel = model

		if ctx.Err() != nil {
			break
		}
		logger.Warn("model candidate failed, trying next",
			"model", model,
			"error", err)
	}
	return nil, fmt.Errorf("all %d candidate models failed, last %q: %w", len(models), lastModel, lastErr)
}

// Unload evicts the handle for a model, if present.
func (l *Loader) Unload(model string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, model)
}

// UnloadAll evicts every cached handle.
func (l *Loader) UnloadAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]*Handle)
}

// Loaded returns the identifiers of currently cached handles.
func (l *Loader) Loaded() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.cache))
	for m := range l.cache {
		out = append(out, m)
	}
	return out
}

// loadModel runs the retry loop for one identifier. The flight map in
// Load guarantees only one goroutine executes this per identifier.
func (l *Loader) loadModel(ctx context.Context, model string, progress ProgressFunc) (*Handle, error) {
	var lastErr error

	for attempt := 1; attempt <= l.cfg.MaxRetries; attempt++ {
		emit(progress, Progress{
			Stage:    StageInitializing,
			Fraction: 0,
			Text:     fmt.Sprintf("loading %s (attempt %d/%d)", model, attempt, l.cfg.MaxRetries),
			Attempt:  attempt,
		})

		attemptCtx, cancel := context.WithTimeout(ctx, l.cfg.LoadTimeout)
		h, err := l.attemptLoad(attemptCtx, model, progress, attempt)
		cancel()

		if l.cfg.OnAttempt != nil {
			l.cfg.OnAttempt(model, err == nil)
		}

		if err == nil {
			l.mu.Lock()
			l.cache[model] = h
			l.mu.Unlock()

			emit(progress, Progress{
				Stage:    StageComplete,
				Fraction: 1,
				Text:     fmt.Sprintf("%s ready", model),
				Attempt:  attempt,
			})
			logger.Info("model loaded", "model", model, "attempt", attempt)
			return h, nil
		}

		// A timed-out attempt counts like any other failure.
		lastErr = err
		logger.Warn("model load attempt failed",
			"model", model,
			"attempt", attempt,
			"error", err)

		if ctx.Err() != nil {
			return nil, fmt.Errorf("load %q cancelled: %w", model, ctx.Err())
		}
		if attempt < l.cfg.MaxRetries {
			if err := l.sleep(ctx, l.cfg.RetryBackoff); err != nil {
				return nil, fmt.Errorf("load %q cancelled during backoff: %w", model, err)
			}
		}
	}

	return nil, fmt.Errorf("load %q failed after %d attempts: %w", model, l.cfg.MaxRetries, lastErr)
}

// attemptLoad performs one download-and-verify pass.
func (l *Loader) attemptLoad(ctx context.Context, model string, progress ProgressFunc, attempt int) (*Handle, error) {
	present, err := l.client.HasModel(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("check local models: %w", err)
	}

	if !present {
		emit(progress, Progress{
			Stage:    StageDownloading,
			Fraction: 0.05,
			Text:     fmt.Sprintf("downloading %s", model),
			Attempt:  attempt,
		})
		err := l.client.Pull(ctx, model, func(p PullProgress) {
			// Downloads occupy the 5%..80% band of the overall load.
			emit(progress, Progress{
				Stage:    StageDownloading,
				Fraction: 0.05 + 0.75*p.Fraction(),
				Text:     p.Status,
				Attempt:  attempt,
			})
		})
		if err != nil {
			return nil, fmt.Errorf("download %q: %w", model, err)
		}
	}

	emit(progress, Progress{
		Stage:    StageLoading,
		Fraction: 0.85,
		Text:     fmt.Sprintf("loading %s into memory", model),
		Attempt:  attempt,
	})

	h := &Handle{model: model, client: l.client}

	emit(progress, Progress{
		Stage:    StageFinalizing,
		Fraction: 0.95,
		Text:     "verifying model output",
		Attempt:  attempt,
	})

	// A handle is never served without passing the health check: a trivial
	// generation that must produce non-empty output.
	res, err := h.Generate(ctx, "", "Reply with the single word OK.", ChatOptions{MaxTokens: 8})
	if err != nil {
		return nil, fmt.Errorf("health check %q: %w", model, err)
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, fmt.Errorf("health check %q: empty response", model)
	}

	return h, nil
}

func emit(fn ProgressFunc, p Progress) {
	if fn != nil {
		fn(p)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
