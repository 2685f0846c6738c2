// Package openai adapts OpenAI-compatible chat and embedding endpoints (vLLM, LM Studio,
// hosted providers) to the generator and embedder ports.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/resilience"
)

const DefaultSeed = 42

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Seed pins sampling together with the near-zero temperature sent on every request.
	Seed int
}

func newClient(cfg Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return openai.NewClientWithConfig(clientCfg)
}

type Generator struct {
	client *openai.Client
	model  string
	seed   int
}

func NewGenerator(cfg Config) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = DefaultSeed
	}
	return &Generator{client: newClient(cfg), model: cfg.Model, seed: seed}
}

func (g *Generator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	seed := g.seed
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		// go-openai drops a zero temperature (omitempty); the smallest positive value is greedy.
		Temperature: math.SmallestNonzeroFloat32,
		Seed:        &seed,
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", parseAPIError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type Embedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewEmbedder(cfg Config) *Embedder {
	return &Embedder{client: newClient(cfg), model: openai.EmbeddingModel(cfg.Model)}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, parseAPIError("embeddings", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, 0, len(data))
	for _, d := range data {
		out = append(out, d.Embedding)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// parseAPIError keeps the provider detail and marks transient statuses as temporary.
func parseAPIError(operation string, err error) error {
	status := 0
	detail := ""

	var reqErr *openai.RequestError
	var apiErr *openai.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		detail = apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
		detail = extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
	}

	if status == 0 {
		if resilience.Classify(err).Retryable {
			return domain.WrapError(domain.ErrTemporary, operation, err)
		}
		return fmt.Errorf("%s request failed: %w", operation, err)
	}

	wrapped := fmt.Errorf("%s API error %d: %s: %w", operation, status, strings.TrimSpace(detail), err)
	if resilience.IsRetryableHTTPStatus(status) {
		return domain.WrapError(domain.ErrTemporary, operation, wrapped)
	}
	return wrapped
}

func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
