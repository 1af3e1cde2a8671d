package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vitwit/x402-chat/logger"
	"github.com/vitwit/x402-chat/types"
)

// OpenAIStreamer speaks the OpenAI-compatible chat completion protocol with
// stream mode on, decoding server-sent events into text chunks.
type OpenAIStreamer struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     logger.Logger
}

// NewOpenAIStreamer targets an OpenAI-compatible endpoint. baseURL is the
// API root (e.g. "https://api.openai.com/v1"); apiKey may be empty for
// upstreams that do not authenticate.
func NewOpenAIStreamer(baseURL, apiKey string, log logger.Logger) *OpenAIStreamer {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &OpenAIStreamer{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{},
		log:     log,
	}
}

type chatCompletionRequest struct {
	Model    string              `json:"model"`
	Messages []types.ChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream opens the upstream completion. The returned Stream owns the
// response body until Close.
func (s *OpenAIStreamer) Stream(ctx context.Context, model string, messages []types.ChatMessage) (Stream, error) {
	payload, err := json.Marshal(chatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		s.log.Warn("completion upstream refused request", map[string]any{
			"status": resp.StatusCode,
			"model":  model,
		})
		return nil, fmt.Errorf("completion upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &sseStream{body: resp.Body, scanner: scanner}, nil
}

// sseStream decodes "data:" lines into delta text. Lines that are not data,
// carry no content, or fail to parse are skipped; "[DONE]" ends the stream.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (s *sseStream) Next() (string, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			return "", io.EOF
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
	}

	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
