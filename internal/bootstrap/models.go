package bootstrap

import (
	"fmt"
	"time"

	"github.com/kirillkom/medical-rag-assistant/internal/config"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/llm/guard"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/llm/openai"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/resilience"
)

// models hands out guarded model clients. Roles that share a model name share one
// limiter, so a single local model is never driven by two roles at once.
type models struct {
	embedder  ports.Embedder
	newRaw    func(model string) ports.Generator
	limiters  map[string]*guard.Limiter
	maxPerKey int
	timeout   time.Duration
}

func newModels(cfg config.Config, executor *resilience.Executor) (*models, error) {
	m := &models{
		limiters:  make(map[string]*guard.Limiter),
		maxPerKey: cfg.LLMMaxConcurrencyPerModel,
		timeout:   cfg.LLMCallTimeout,
	}

	var rawEmbedder ports.Embedder
	switch cfg.LLMProvider {
	case "", "ollama":
		client := ollama.New(cfg.OllamaURL, executor)
		rawEmbedder = ollama.NewEmbedder(client, cfg.EmbeddingModel)
		m.newRaw = func(model string) ports.Generator {
			return ollama.NewGenerator(client, model).WithSeed(cfg.LLMSeed)
		}
	case "openai":
		base := openai.Config{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL, Seed: cfg.LLMSeed}
		embedCfg := base
		embedCfg.Model = cfg.EmbeddingModel
		rawEmbedder = openai.NewEmbedder(embedCfg)
		m.newRaw = func(model string) ports.Generator {
			genCfg := base
			genCfg.Model = model
			return openai.NewGenerator(genCfg)
		}
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}

	m.embedder = guard.NewEmbedder(rawEmbedder, m.limiter(cfg.EmbeddingModel))
	return m, nil
}

func (m *models) generator(model string) ports.Generator {
	return guard.NewGenerator(m.newRaw(model), m.limiter(model))
}

func (m *models) limiter(model string) *guard.Limiter {
	if l, ok := m.limiters[model]; ok {
		return l
	}
	l := guard.NewLimiter(m.maxPerKey, m.timeout)
	m.limiters[model] = l
	return l
}
