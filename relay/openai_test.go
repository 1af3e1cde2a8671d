package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vitwit/x402-chat/types"
)

func sseBody(lines ...string) string {
	return strings.Join(lines, "\n\n") + "\n\n"
}

func drain(t *testing.T, s Stream) []string {
	t.Helper()
	var chunks []string
	for {
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			return chunks
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		chunks = append(chunks, chunk)
	}
}

func TestOpenAIStreamer_Stream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Expected bearer auth, got %q", auth)
		}
		if accept := r.Header.Get("Accept"); accept != "text/event-stream" {
			t.Errorf("Expected event-stream accept header, got %q", accept)
		}

		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode completion request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("Expected model gpt-4o-mini, got %q", req.Model)
		}
		if !req.Stream {
			t.Error("Expected stream mode to be requested")
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "Say hello" {
			t.Errorf("Unexpected messages: %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, sseBody(
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			`data: [DONE]`,
		))
	}))
	defer upstream.Close()

	// The trailing slash must not produce a double slash in the URL.
	s := NewOpenAIStreamer(upstream.URL+"/", "sk-test", nil)
	stream, err := s.Stream(context.Background(), "gpt-4o-mini", []types.ChatMessage{
		{Role: types.RoleUser, Content: "Say hello"},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer stream.Close()

	chunks := drain(t, stream)
	if got := strings.Join(chunks, ""); got != "Hello" {
		t.Errorf("Expected chunks to spell Hello, got %q", got)
	}
}

func TestOpenAIStreamer_SkipsNoise(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sseBody(
			`: keepalive`,
			`event: ping`,
			`data:`,
			`data: {not json`,
			`data: {"choices":[]}`,
			`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
			`data: {"choices":[{"delta":{"content":"useful"}}]}`,
			`data: [DONE]`,
		))
	}))
	defer upstream.Close()

	s := NewOpenAIStreamer(upstream.URL, "", nil)
	stream, err := s.Stream(context.Background(), "gpt-4o-mini", []types.ChatMessage{
		{Role: types.RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer stream.Close()

	chunks := drain(t, stream)
	if len(chunks) != 1 || chunks[0] != "useful" {
		t.Errorf("Expected only the content chunk, got %v", chunks)
	}
}

func TestOpenAIStreamer_NoAuthWithoutKey(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("Expected no auth header, got %q", auth)
		}
		io.WriteString(w, sseBody(`data: [DONE]`))
	}))
	defer upstream.Close()

	s := NewOpenAIStreamer(upstream.URL, "", nil)
	stream, err := s.Stream(context.Background(), "gpt-4o-mini", []types.ChatMessage{
		{Role: types.RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	stream.Close()
}

func TestOpenAIStreamer_UpstreamRefusal(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"invalid api key"}`)
	}))
	defer upstream.Close()

	s := NewOpenAIStreamer(upstream.URL, "sk-wrong", nil)
	_, err := s.Stream(context.Background(), "gpt-4o-mini", []types.ChatMessage{
		{Role: types.RoleUser, Content: "hi"},
	})
	if err == nil {
		t.Fatal("Expected error for refused upstream request")
	}
	if !strings.Contains(err.Error(), "status 401") {
		t.Errorf("Expected the status in the error, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("Expected the upstream body in the error, got %v", err)
	}
}

func TestOpenAIStreamer_TruncatedStream(t *testing.T) {
	// An upstream that never sends [DONE] still terminates the stream when
	// the body ends.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sseBody(`data: {"choices":[{"delta":{"content":"cut "}}]}`))
	}))
	defer upstream.Close()

	s := NewOpenAIStreamer(upstream.URL, "", nil)
	stream, err := s.Stream(context.Background(), "gpt-4o-mini", []types.ChatMessage{
		{Role: types.RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer stream.Close()

	chunks := drain(t, stream)
	if len(chunks) != 1 || chunks[0] != "cut " {
		t.Errorf("Expected the partial content then EOF, got %v", chunks)
	}
}
