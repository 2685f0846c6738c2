package usecase

import (
	"context"
	"strings"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

const DefaultSynthesisMaxTokens = 350

// Synthesizer composes the final structured answer from the query and top passages.
// The model output is returned as-is after trimming; its structure is not validated.
type Synthesizer struct {
	generator ports.Generator
	maxTokens int
}

func NewSynthesizer(generator ports.Generator, maxTokens int) *Synthesizer {
	if maxTokens <= 0 {
		maxTokens = DefaultSynthesisMaxTokens
	}
	return &Synthesizer{generator: generator, maxTokens: maxTokens}
}

func (s *Synthesizer) Synthesize(ctx context.Context, query string, passages []string) (string, error) {
	answer, err := s.generator.Generate(ctx, buildSynthesisPrompt(query, passages), s.maxTokens)
	if err != nil {
		return "", domain.WrapError(domain.ErrGeneration, "synthesize answer", err)
	}
	return strings.TrimSpace(answer), nil
}
