package modelload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestChatStream_AccumulatesChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Impressive "},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"growth!"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":12,"eval_count":4}`)
	}))
	defer server.Close()

	c := NewClient(server.URL)
	ch, err := c.ChatStream(context.Background(), "llama3.2:1b", "sys", "user", ChatOptions{})
	if err != nil {
		t.Fatalf("ChatStream() error: %v", err)
	}

	var sb strings.Builder
	var final Chunk
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("chunk error: %v", chunk.Err)
		}
		sb.WriteString(chunk.Text)
		if chunk.Done {
			final = chunk
		}
	}

	if got := sb.String(); got != "Impressive growth!" {
		t.Errorf("accumulated = %q", got)
	}
	if !final.Done || final.InputTokens != 12 || final.OutputTokens != 4 {
		t.Errorf("final chunk = %+v", final)
	}
}

func TestChatStream_ChannelClosesOnCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"first"},"done":false}`)
		w.(http.Flusher).Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(server.URL)
	ch, err := c.ChatStream(ctx, "llama3.2:1b", "", "user", ChatOptions{})
	if err != nil {
		t.Fatalf("ChatStream() error: %v", err)
	}

	<-ch // first chunk
	cancel()

	// The channel must close rather than hang once the context is gone.
	for range ch {
	}
}

func TestClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(server.URL)
	_, err := c.Chat(context.Background(), "missing", "", "hi", ChatOptions{})
	if err == nil {
		t.Fatal("Chat() should fail")
	}

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error should be *StatusError, got %T: %v", err, err)
	}
	if se.Code != http.StatusNotFound {
		t.Errorf("Code = %d", se.Code)
	}
}

func TestHasModel_MatchesLatestSuffix(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[{"name":"llama3.2:latest"}]}`)
	}))
	defer server.Close()

	c := NewClient(server.URL)
	ok, err := c.HasModel(context.Background(), "llama3.2")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("HasModel should match the :latest alias")
	}
}
