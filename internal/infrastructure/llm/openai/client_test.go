package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

func TestGeneratorSendsSeedAndMaxTokens(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  1 "},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	gen := NewGenerator(Config{APIKey: "test-key", BaseURL: server.URL, Model: "med-llm"})
	out, err := gen.Generate(context.Background(), "rate it", 5)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "1" {
		t.Fatalf("expected trimmed output, got %q", out)
	}
	if body["model"] != "med-llm" || body["max_tokens"].(float64) != 5 || body["seed"].(float64) != DefaultSeed {
		t.Fatalf("unexpected request body %#v", body)
	}
	temperature, ok := body["temperature"].(float64)
	if !ok {
		t.Fatalf("temperature must be sent, got %#v", body["temperature"])
	}
	if temperature <= 0 || temperature > 1e-6 {
		t.Fatalf("expected near-zero temperature, got %v", temperature)
	}
	messages := body["messages"].([]any)
	if msg := messages[0].(map[string]any); msg["content"] != "rate it" || msg["role"] != "user" {
		t.Fatalf("unexpected message %#v", msg)
	}
}

func TestEmbedderOrdersVectorsByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"emb","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		]}`))
	}))
	defer server.Close()

	emb := NewEmbedder(Config{APIKey: "k", BaseURL: server.URL, Model: "emb"})
	vectors, err := emb.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Fatalf("vectors not ordered by index: %v", vectors)
	}
}

func TestGeneratorMarksServerErrorsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	_, err := NewGenerator(Config{APIKey: "k", BaseURL: server.URL, Model: "m"}).Generate(context.Background(), "p", 10)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestGeneratorKeepsClientErrorsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	_, err := NewGenerator(Config{APIKey: "k", BaseURL: server.URL, Model: "m"}).Generate(context.Background(), "p", 10)
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}
