package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/resilience"
)

// DefaultSeed pins Ollama sampling so that repeated prompts decode identically.
const DefaultSeed = 42

type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

// New returns an Ollama HTTP client. A nil executor sends every request exactly once.
func New(baseURL string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
	model  string
}

func NewEmbedder(client *Client, model string) *Embedder {
	return &Embedder{client: client, model: model}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.model,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Generator decodes greedily: temperature 0 and a fixed seed.
type Generator struct {
	client *Client
	model  string
	seed   int
}

func NewGenerator(client *Client, model string) *Generator {
	return &Generator{client: client, model: model, seed: DefaultSeed}
}

// WithSeed overrides the sampling seed.
func (g *Generator) WithSeed(seed int) *Generator {
	g.seed = seed
	return g
}

func (g *Generator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	options := map[string]any{
		"temperature": 0,
		"seed":        g.seed,
	}
	if maxTokens > 0 {
		options["num_predict"] = maxTokens
	}
	reqBody := map[string]any{
		"model":   g.model,
		"prompt":  prompt,
		"stream":  false,
		"options": options,
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := g.client.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
