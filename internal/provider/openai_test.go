package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const testOpenAIKey = "sk-test-0123456789abcdef"

type fakeOpenAI struct {
	mu        sync.Mutex
	status    int
	body      string
	listCalls int
	genCalls  int
}

func (f *fakeOpenAI) server(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/models"):
			f.listCalls++
			w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4o-mini","object":"model","created":0,"owned_by":"openai"}]}`))
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			f.genCalls++
			if f.status != 0 {
				w.WriteHeader(f.status)
				w.Write([]byte(f.body))
				return
			}
			w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":0,"model":"gpt-4o-mini",` +
				`"choices":[{"index":0,"message":{"role":"assistant","content":"Well deserved, congrats!"},"finish_reason":"stop"}],` +
				`"usage":{"prompt_tokens":30,"completion_tokens":8,"total_tokens":38}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newReadyOpenAI(t *testing.T, f *fakeOpenAI) *OpenAIProvider {
	t.Helper()
	ts := f.server(t)
	p, err := NewOpenAIProvider(Config{APIKey: testOpenAIKey, BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return p
}

func TestOpenAI_GenerateReply(t *testing.T) {
	p := newReadyOpenAI(t, &fakeOpenAI{})

	reply, err := p.GenerateReply(context.Background(), "Be concise.", "Great milestone!", GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if reply.Text != "Well deserved, congrats!" {
		t.Errorf("unexpected text %q", reply.Text)
	}
	if reply.Provider != TypeOpenAI {
		t.Errorf("provider = %s, want openai", reply.Provider)
	}
	if reply.InputTokens != 30 || reply.OutputTokens != 8 {
		t.Errorf("tokens = %d/%d, want 30/8", reply.InputTokens, reply.OutputTokens)
	}
}

func TestOpenAI_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{"unauthorized", 401, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`, KindInvalidKey},
		{"rate limited", 429, `{"error":{"message":"Rate limit reached for gpt-4o-mini","type":"requests"}}`, KindRateLimit},
		{"quota wording", 429, `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`, KindQuotaExceeded},
		{"server down", 503, `{"error":{"message":"The server is overloaded"}}`, KindProviderDown},
		{"context too long", 400, `{"error":{"message":"This model's maximum context length is 128000 tokens"}}`, KindContextTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newReadyOpenAI(t, &fakeOpenAI{status: tt.status, body: tt.body})
			_, err := p.GenerateReply(context.Background(), "", "Hello", GenerateOptions{})
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := KindOf(err); got != tt.want {
				t.Errorf("kind = %s, want %s (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestOpenAI_InitializeIdempotent(t *testing.T) {
	f := &fakeOpenAI{}
	p := newReadyOpenAI(t, f)

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("repeat Initialize: %v", err)
	}
	if f.listCalls != 1 {
		t.Errorf("key check ran %d times, want 1", f.listCalls)
	}
}

func TestOpenAI_NotInitialized(t *testing.T) {
	p, err := NewOpenAIProvider(Config{APIKey: testOpenAIKey})
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}
	_, err = p.GenerateReply(context.Background(), "", "Hello", GenerateOptions{})
	if !IsKind(err, KindNotInitialized) {
		t.Fatalf("got %v, want NOT_INITIALIZED", err)
	}
}

func TestOpenAI_ValidateAPIKey(t *testing.T) {
	p := &OpenAIProvider{}
	tests := []struct {
		key  string
		want bool
	}{
		{testOpenAIKey, true},
		{"sk-short", false},
		{"pk-test-0123456789abcdef", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := p.ValidateAPIKey(tt.key); got != tt.want {
			t.Errorf("ValidateAPIKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
