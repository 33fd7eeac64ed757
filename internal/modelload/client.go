package modelload

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultBaseURL is the local runtime endpoint.
const DefaultBaseURL = "http://localhost:11434"

// StatusError is a non-2xx answer from the runtime. Callers map it onto
// the provider error taxonomy; this package stays vendor-vocabulary free.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("runtime returned status %d: %s", e.Code, e.Body)
}

// Client talks to a local Ollama-compatible runtime.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a runtime client. An empty baseURL uses the default
// localhost endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// ChatOptions are the sampling knobs forwarded to the runtime.
type ChatOptions struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// ChatResult is a completed generation.
type ChatResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Chunk is one fragment of a streaming generation. The final chunk has
// Done=true and carries token counts when the runtime reports them.
type Chunk struct {
	Text         string
	Done         bool
	Err          error
	InputTokens  int
	OutputTokens int
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	// temperature is always sent; 0 is a deliberate greedy setting, not
	// an absent one.
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options,omitempty"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

// Chat sends a unary generation request.
func (c *Client) Chat(ctx context.Context, model, system, user string, opts ChatOptions) (*ChatResult, error) {
	body, err := c.postChat(ctx, model, system, user, opts, false)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp chatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}

	return &ChatResult{
		Text:         resp.Message.Content,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
	}, nil
}

// ChatStream sends a streaming generation request. The returned channel is
// closed when the stream ends or ctx is cancelled.
func (c *Client) ChatStream(ctx context.Context, model, system, user string, opts ChatOptions) (<-chan Chunk, error) {
	body, err := c.postChat(ctx, model, system, user, opts, true)
	if err != nil {
		return nil, err
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var resp chatResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				c.emit(ctx, out, Chunk{Err: fmt.Errorf("decode stream chunk: %w", err), Done: true})
				return
			}

			chunk := Chunk{Text: resp.Message.Content, Done: resp.Done}
			if resp.Done {
				chunk.InputTokens = resp.PromptEvalCount
				chunk.OutputTokens = resp.EvalCount
			}
			if !c.emit(ctx, out, chunk) {
				return
			}
			if resp.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			c.emit(ctx, out, Chunk{Err: fmt.Errorf("read stream: %w", err), Done: true})
		}
	}()

	return out, nil
}

func (c *Client) emit(ctx context.Context, out chan<- Chunk, chunk Chunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) postChat(ctx context.Context, model, system, user string, opts ChatOptions, stream bool) (io.ReadCloser, error) {
	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	req := chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
		Options: chatOptions{
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			NumPredict:  opts.MaxTokens,
		},
	}

	return c.post(ctx, "/api/chat", req)
}

// PullProgress is one milestone of a model download.
type PullProgress struct {
	Status    string
	Total     int64
	Completed int64
}

// Fraction is the completed share of the download, or 0 when the runtime
// has not reported sizes yet.
func (p PullProgress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Completed) / float64(p.Total)
	if f > 1 {
		f = 1
	}
	return f
}

type pullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

type pullResponse struct {
	Status    string `json:"status"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Error     string `json:"error"`
}

// Pull downloads a model into the runtime, invoking fn for each reported
// milestone.
func (c *Client) Pull(ctx context.Context, model string, fn func(PullProgress)) error {
	body, err := c.post(ctx, "/api/pull", pullRequest{Model: model, Stream: true})
	if err != nil {
		return err
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var resp pullResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return fmt.Errorf("decode pull progress: %w", err)
		}
		if resp.Error != "" {
			return fmt.Errorf("pull %q: %s", model, resp.Error)
		}
		if fn != nil {
			fn(PullProgress{Status: resp.Status, Total: resp.Total, Completed: resp.Completed})
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read pull stream: %w", err)
	}
	return nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// HasModel reports whether the runtime already holds the model locally.
func (c *Client) HasModel(ctx context.Context, model string) (bool, error) {
	body, err := c.get(ctx, "/api/tags")
	if err != nil {
		return false, err
	}
	defer body.Close()

	var resp tagsResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return false, fmt.Errorf("decode tags response: %w", err)
	}

	for _, m := range resp.Models {
		if m.Name == model || strings.TrimSuffix(m.Name, ":latest") == model {
			return true, nil
		}
	}
	return false, nil
}

// ListModels returns the names of locally available models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, "/api/tags")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp tagsResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}

	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Ping verifies the runtime is reachable.
func (c *Client) Ping(ctx context.Context) error {
	body, err := c.get(ctx, "/api/version")
	if err != nil {
		return err
	}
	return body.Close()
}

func (c *Client) post(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (io.ReadCloser, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runtime request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp.Body, nil
}
