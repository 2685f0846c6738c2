package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

const DefaultRerankMaxTokens = 5

// Relevance rubric levels accepted from the scoring model.
const (
	ScoreIrrelevant = 0.0
	ScorePartial    = 0.5
	ScoreRelevant   = 1.0
)

// Reranker scores every candidate once, in input order, with a generative rubric model
// and returns them stably sorted by score descending.
type Reranker struct {
	generator ports.Generator
	maxTokens int
}

func NewReranker(generator ports.Generator, maxTokens int) *Reranker {
	if maxTokens <= 0 {
		maxTokens = DefaultRerankMaxTokens
	}
	return &Reranker{generator: generator, maxTokens: maxTokens}
}

// Rerank never fails because of a model response: a failed call or unparsable output
// scores that candidate 0. Only context cancellation aborts the run. The second return
// value counts degraded candidates.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []string) ([]domain.RankedResult, int, error) {
	out := make([]domain.RankedResult, 0, len(candidates))
	degraded := 0
	for idx, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, degraded, err
		}

		score, ok := r.score(ctx, query, candidate, idx)
		if !ok {
			degraded++
		}
		out = append(out, domain.RankedResult{Answer: candidate, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, degraded, nil
}

func (r *Reranker) score(ctx context.Context, query, candidate string, idx int) (float64, bool) {
	raw, err := r.generator.Generate(ctx, buildRerankPrompt(query, candidate), r.maxTokens)
	if err != nil {
		slog.Warn("rerank_score_degraded", "candidate", idx, "reason", "generation_error", "error", err)
		return ScoreIrrelevant, false
	}
	score, ok := parseRubricScore(raw)
	if !ok {
		slog.Warn("rerank_score_degraded", "candidate", idx, "reason", "unparsable", "output", truncateForLog(raw, 64))
		return ScoreIrrelevant, false
	}
	return score, true
}

// parseRubricScore accepts only the three rubric levels.
func parseRubricScore(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return ScoreIrrelevant, false
	}
	switch v {
	case ScoreIrrelevant, ScorePartial, ScoreRelevant:
		return v, true
	default:
		return ScoreIrrelevant, false
	}
}

func truncateForLog(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
