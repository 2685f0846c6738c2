package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

const DefaultHypothesisMaxTokens = 120

// Delimiters some biomedical causal models leave in decoded text.
var hypothesisArtifacts = []string{
	"< / FREETEXT >",
	"< / ABSTRACT >",
	"< FREETEXT >",
	"< ABSTRACT >",
	"</s>",
}

// HypothesisGenerator writes a synthetic structured answer used as the retrieval query.
type HypothesisGenerator struct {
	generator ports.Generator
	maxTokens int
}

func NewHypothesisGenerator(generator ports.Generator, maxTokens int) *HypothesisGenerator {
	if maxTokens <= 0 {
		maxTokens = DefaultHypothesisMaxTokens
	}
	return &HypothesisGenerator{generator: generator, maxTokens: maxTokens}
}

func (h *HypothesisGenerator) Generate(ctx context.Context, query string) (string, error) {
	raw, err := h.generator.Generate(ctx, buildHypothesisPrompt(query), h.maxTokens)
	if err != nil {
		return "", domain.WrapError(domain.ErrGeneration, "generate hypothesis", err)
	}
	hypothesis := stripArtifacts(raw)
	if hypothesis == "" {
		return "", domain.WrapError(domain.ErrGeneration, "generate hypothesis", fmt.Errorf("empty hypothesis"))
	}
	return hypothesis, nil
}

func stripArtifacts(text string) string {
	for _, token := range hypothesisArtifacts {
		text = strings.ReplaceAll(text, token, "")
	}
	return strings.TrimSpace(text)
}
