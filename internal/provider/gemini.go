package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mrviduus/ReplyMate-sub000/internal/cleaner"
	"github.com/mrviduus/ReplyMate-sub000/internal/logger"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider talks to the Gemini generateContent API over plain HTTP;
// there is no official Go SDK dependency to wrap.
type GeminiProvider struct {
	client  *http.Client
	baseURL string
	model   string
	cfg     Config

	mu    sync.Mutex
	ready bool
}

// NewGeminiProvider creates a Gemini-backed provider.
func NewGeminiProvider(cfg Config) (*GeminiProvider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	return &GeminiProvider{
		client:  &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		cfg:     cfg,
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"system_instruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Initialize verifies the API key with a one-item models listing.
// Idempotent; a rate-limited answer counts as a recognized key.
func (p *GeminiProvider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ready {
		return nil
	}
	if !p.ValidateAPIKey(p.cfg.APIKey) {
		return Errorf(TypeGemini, KindInvalidKey, "API key is missing or malformed")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	url := fmt.Sprintf("%s/models?pageSize=1&key=%s", p.baseURL, p.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return NewError(TypeGemini, KindInitializationFailed, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return NewError(TypeGemini, KindInitializationFailed, classify(TypeGemini, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		mapped := p.statusError(resp)
		switch KindOf(mapped) {
		case KindRateLimit:
			logger.Debug("gemini key check rate limited, accepting key")
		case KindInvalidKey:
			return mapped
		default:
			return NewError(TypeGemini, KindInitializationFailed, mapped)
		}
	}

	p.ready = true
	return nil
}

// GenerateReply sends a generateContent request and returns the trimmed
// reply.
func (p *GeminiProvider) GenerateReply(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOptions) (*Reply, error) {
	if !p.Ready() {
		return nil, Errorf(TypeGemini, KindNotInitialized, "provider not initialized")
	}
	opts = resolveOptions(p.cfg, opts)

	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	body := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: userPrompt}}},
		},
		GenerationConfig: &geminiGenConfig{
			Temperature:     *opts.Temperature,
			TopP:            opts.TopP,
			MaxOutputTokens: opts.MaxTokens,
		},
	}
	if systemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, Errorf(TypeGemini, KindInvalidResponse, "marshal request: %v", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, p.model, p.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, classify(TypeGemini, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		return nil, classify(TypeGemini, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError(resp)
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, Errorf(TypeGemini, KindInvalidResponse, "decode response: %v", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, Errorf(TypeGemini, KindInvalidResponse, "no candidates in response")
	}

	var sb strings.Builder
	for _, part := range gr.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := cleaner.TrimReply(sb.String(), maxReplyChars)
	if text == "" {
		return nil, Errorf(TypeGemini, KindInvalidResponse, "candidate contained no text")
	}

	return &Reply{
		Text:         text,
		Provider:     TypeGemini,
		Model:        p.model,
		InputTokens:  gr.UsageMetadata.PromptTokenCount,
		OutputTokens: gr.UsageMetadata.CandidatesTokenCount,
		Latency:      latency,
	}, nil
}

// ValidateAPIKey checks the vendor key format offline.
func (p *GeminiProvider) ValidateAPIKey(key string) bool {
	return strings.HasPrefix(key, "AIza") && len(key) >= 30
}

func (p *GeminiProvider) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *GeminiProvider) Name() string { return "Google Gemini" }

func (p *GeminiProvider) Model() string { return p.model }

func (p *GeminiProvider) Type() Type { return TypeGemini }

// Close clears the ready state. Safe to call multiple times.
func (p *GeminiProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = false
	return nil
}

func (p *GeminiProvider) timeout() time.Duration {
	if p.cfg.Timeout > 0 {
		return p.cfg.Timeout
	}
	return defaultTimeout
}

func (p *GeminiProvider) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("gemini API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	return classifyStatus(TypeGemini, resp.StatusCode, err)
}
