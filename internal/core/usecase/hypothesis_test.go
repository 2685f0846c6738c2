package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

func TestHypothesisGeneratorStripsArtifactsAndUsesTemplate(t *testing.T) {
	gen := &recordingGenerator{reply: func(string) (string, error) {
		return "  Causes:\n- x < / FREETEXT >\nSummary:\ny < / ABSTRACT >  ", nil
	}}
	h := NewHypothesisGenerator(gen, 0)

	out, err := h.Generate(context.Background(), "why does my chest hurt?")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Contains(out, "FREETEXT") || strings.Contains(out, "ABSTRACT") {
		t.Fatalf("artifacts not stripped: %q", out)
	}
	if out != "Causes:\n- x \nSummary:\ny" {
		t.Fatalf("unexpected hypothesis %q", out)
	}
	prompt := gen.prompts[0]
	for _, section := range []string{"Causes:", "Treatments:", "Follow-up:", "Summary:", "Question: why does my chest hurt?"} {
		if !strings.Contains(prompt, section) {
			t.Fatalf("prompt missing %q: %s", section, prompt)
		}
	}
	if gen.maxTokens[0] != DefaultHypothesisMaxTokens {
		t.Fatalf("expected max tokens %d, got %d", DefaultHypothesisMaxTokens, gen.maxTokens[0])
	}
}

func TestHypothesisGeneratorWrapsFailures(t *testing.T) {
	h := NewHypothesisGenerator(generatorFunc(func(context.Context, string, int) (string, error) {
		return "", errors.New("boom")
	}), 50)
	if _, err := h.Generate(context.Background(), "q"); !domain.IsKind(err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}

	empty := NewHypothesisGenerator(staticGenerator(" < / ABSTRACT > "), 50)
	if _, err := empty.Generate(context.Background(), "q"); !domain.IsKind(err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration for empty hypothesis, got %v", err)
	}
}

func TestSynthesizerJoinsPassagesInOrder(t *testing.T) {
	gen := &recordingGenerator{reply: func(string) (string, error) { return "\n  " + structuredAnswer + "  \n", nil }}
	s := NewSynthesizer(gen, 0)

	out, err := s.Synthesize(context.Background(), "q?", []string{"first passage", "second passage"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if out != structuredAnswer {
		t.Fatalf("expected trimmed answer, got %q", out)
	}
	if !strings.Contains(gen.prompts[0], "first passage\nsecond passage") {
		t.Fatalf("passages not newline-joined in order: %s", gen.prompts[0])
	}
	if gen.maxTokens[0] != DefaultSynthesisMaxTokens {
		t.Fatalf("expected max tokens %d, got %d", DefaultSynthesisMaxTokens, gen.maxTokens[0])
	}
}

func TestSynthesizerFailureIsGenerationError(t *testing.T) {
	s := NewSynthesizer(generatorFunc(func(context.Context, string, int) (string, error) {
		return "", errors.New("down")
	}), 0)
	if _, err := s.Synthesize(context.Background(), "q", nil); !domain.IsKind(err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
}
