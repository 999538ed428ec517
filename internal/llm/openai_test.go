package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
)

func newOpenAIServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != openai.ChatMessageRoleSystem {
			t.Errorf("Expected system + user messages, got %d", len(req.Messages))
		}

		resp := openai.ChatCompletionResponse{
			ID:     "chatcmpl-123",
			Object: "chat.completion",
			Model:  "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{
					Message: openai.ChatCompletionMessage{
						Role:    openai.ChatMessageRoleAssistant,
						Content: content,
					},
					FinishReason: "stop",
				},
			},
			Usage: openai.Usage{TotalTokens: 100},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIProvider_Summarize_Success(t *testing.T) {
	server := newOpenAIServer(t, "The hostname uses a hyphen and login keywords. See http://secure-login.example.com/account")
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	resp, err := provider.Summarize(context.Background(), SummarizeRequest{Result: *sampleResult()})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if !strings.HasPrefix(resp.Summary, "The hostname uses a hyphen") {
		t.Errorf("Unexpected summary: %s", resp.Summary)
	}
	if resp.Model != openai.GPT4oMini {
		t.Errorf("Expected default model %s, got %s", openai.GPT4oMini, resp.Model)
	}
	if resp.TokensUsed != 100 {
		t.Errorf("Expected 100 tokens, got %d", resp.TokensUsed)
	}
	if len(resp.CitedURLs) != 1 {
		t.Errorf("Expected one cited URL, got %v", resp.CitedURLs)
	}
}

func TestOpenAIProvider_Summarize_ForeignCitation(t *testing.T) {
	server := newOpenAIServer(t, "Log in at https://paypal.com.evil.test/ to fix your account.")
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	_, err = provider.Summarize(context.Background(), SummarizeRequest{Result: *sampleResult()})
	if err == nil {
		t.Fatal("Expected citation error")
	}
	if !strings.Contains(err.Error(), "outside the scanned host") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestOpenAIProvider_Summarize_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "Internal Server Error", "type": "server_error"}}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	_, err = provider.Summarize(context.Background(), SummarizeRequest{Result: *sampleResult()})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(Config{}); err == nil {
		t.Fatal("Expected error without API key")
	}
}

func TestExtractURLs(t *testing.T) {
	urls := extractURLs("a https://x.test/a, b (https://x.test/b) and https://x.test/a.")
	if len(urls) != 2 {
		t.Fatalf("Expected 2 distinct URLs, got %v", urls)
	}
	if urls[0] != "https://x.test/a" || urls[1] != "https://x.test/b" {
		t.Errorf("Unexpected URLs: %v", urls)
	}
}
