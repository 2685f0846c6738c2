package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

// Pipeline is the ready state of the service: models and built indexes. It is immutable
// once constructed and safe for concurrent Retrieve calls.
type Pipeline struct {
	router      *Router
	embedder    ports.Embedder
	indexes     map[string]ports.DomainIndex
	hypothesis  *HypothesisGenerator
	reranker    *Reranker
	synthesizer *Synthesizer
}

func NewPipeline(
	router *Router,
	embedder ports.Embedder,
	indexes map[string]ports.DomainIndex,
	hypothesis *HypothesisGenerator,
	reranker *Reranker,
	synthesizer *Synthesizer,
) *Pipeline {
	copied := make(map[string]ports.DomainIndex, len(indexes))
	for name, idx := range indexes {
		copied[name] = idx
	}
	return &Pipeline{
		router:      router,
		embedder:    embedder,
		indexes:     copied,
		hypothesis:  hypothesis,
		reranker:    reranker,
		synthesizer: synthesizer,
	}
}

// ValidateQuery rejects malformed input before any pipeline work.
func ValidateQuery(q domain.Query) error {
	if strings.TrimSpace(q.RawText) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate query", errors.New("query is required"))
	}
	if q.TopK <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate query", fmt.Errorf("top_k must be positive, got %d", q.TopK))
	}
	return nil
}

func (p *Pipeline) Retrieve(ctx context.Context, q domain.Query) (*domain.RetrievalResult, error) {
	start := time.Now()
	result := &domain.RetrievalResult{}

	queryText := q.RawText
	if q.UseHypothesis {
		hypothesis, err := p.hypothesis.Generate(ctx, q.RawText)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			slog.Warn("hypothesis_fallback", "error", err)
			result.HypothesisFallback = true
		} else {
			queryText = hypothesis
			result.HypothesisUsed = true
		}
	}

	// Routing always uses the raw query, never the hypothesis.
	domains := p.router.Route(q.RawText)

	queryVector, err := p.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := p.collectCandidates(ctx, domains, queryVector, q.TopK)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		texts = append(texts, c.Text)
	}

	ranked, degraded, err := p.reranker.Rerank(ctx, q.RawText, texts)
	if err != nil {
		return nil, fmt.Errorf("rerank candidates: %w", err)
	}

	passages := make([]string, 0, domain.SynthesisPassages)
	for _, r := range ranked {
		if len(passages) == domain.SynthesisPassages {
			break
		}
		passages = append(passages, r.Answer)
	}

	finalAnswer, err := p.synthesizer.Synthesize(ctx, q.RawText, passages)
	if err != nil {
		return nil, err
	}

	result.Domain = domains[0]
	result.FinalAnswer = finalAnswer
	result.RankedResults = ranked
	result.DegradedScores = degraded
	result.Duration = time.Since(start)
	return result, nil
}

// collectCandidates searches every routed domain in order and flattens the answers,
// preserving per-domain and per-result order.
func (p *Pipeline) collectCandidates(
	ctx context.Context,
	domains []string,
	queryVector []float32,
	topK int,
) ([]domain.CandidateAnswer, error) {
	out := make([]domain.CandidateAnswer, 0, len(domains)*topK)
	for _, name := range domains {
		index, ok := p.indexes[name]
		if !ok {
			return nil, domain.WrapError(domain.ErrDomainNotFound, "search domain index", fmt.Errorf("domain=%s", name))
		}
		docs, err := index.Search(ctx, queryVector, topK)
		if err != nil {
			return nil, fmt.Errorf("search %s index: %w", name, err)
		}
		for _, doc := range docs {
			out = append(out, domain.CandidateAnswer{Text: doc.Answer, SourceDomain: name})
		}
	}
	return out, nil
}

// DomainSizes reports the number of indexed documents per domain.
func (p *Pipeline) DomainSizes() map[string]int {
	out := make(map[string]int, len(p.indexes))
	for name, idx := range p.indexes {
		out[name] = idx.Len()
	}
	return out
}
