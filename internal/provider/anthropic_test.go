package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const testAnthropicKey = "sk-ant-test-0123456789"

type fakeAnthropic struct {
	mu       sync.Mutex
	status   int
	body     string
	genCalls int
}

func (f *fakeAnthropic) server(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/models"):
			w.Write([]byte(`{"data":[{"id":"claude-sonnet-4-20250514","type":"model","display_name":"Claude Sonnet 4","created_at":"2025-05-14T00:00:00Z"}],"has_more":false,"first_id":null,"last_id":null}`))
		case strings.HasSuffix(r.URL.Path, "/messages"):
			f.genCalls++
			if f.status != 0 {
				w.WriteHeader(f.status)
				w.Write([]byte(f.body))
				return
			}
			w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514",` +
				`"content":[{"type":"text","text":"Fantastic news, well done!"}],` +
				`"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":25,"output_tokens":7}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newReadyAnthropic(t *testing.T, f *fakeAnthropic) *AnthropicProvider {
	t.Helper()
	ts := f.server(t)
	p, err := NewAnthropicProvider(Config{APIKey: testAnthropicKey, BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return p
}

func TestAnthropic_GenerateReply(t *testing.T) {
	p := newReadyAnthropic(t, &fakeAnthropic{})

	reply, err := p.GenerateReply(context.Background(), "Be concise.", "We shipped!", GenerateOptions{})
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if reply.Text != "Fantastic news, well done!" {
		t.Errorf("unexpected text %q", reply.Text)
	}
	if reply.InputTokens != 25 || reply.OutputTokens != 7 {
		t.Errorf("tokens = %d/%d, want 25/7", reply.InputTokens, reply.OutputTokens)
	}
}

func TestAnthropic_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{"unauthorized", 401, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, KindInvalidKey},
		{"rate limited", 429, `{"type":"error","error":{"type":"rate_limit_error","message":"Number of requests has exceeded your rate limit"}}`, KindRateLimit},
		{"overloaded", 529, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, KindProviderDown},
		{"prompt too long", 400, `{"type":"error","error":{"type":"invalid_request_error","message":"prompt is too long: 250000 tokens"}}`, KindContextTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newReadyAnthropic(t, &fakeAnthropic{status: tt.status, body: tt.body})
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

func TestAnthropic_ValidateAPIKey(t *testing.T) {
	p := &AnthropicProvider{}
	tests := []struct {
		key  string
		want bool
	}{
		{testAnthropicKey, true},
		{"sk-test-0123456789abcdef", false},
		{"sk-ant-x", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := p.ValidateAPIKey(tt.key); got != tt.want {
			t.Errorf("ValidateAPIKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestAnthropic_NotInitialized(t *testing.T) {
	p, err := NewAnthropicProvider(Config{APIKey: testAnthropicKey})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	_, err = p.GenerateReply(context.Background(), "", "Hello", GenerateOptions{})
	if !IsKind(err, KindNotInitialized) {
		t.Fatalf("got %v, want NOT_INITIALIZED", err)
	}
}
