package usecase

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

type generatorFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

func staticGenerator(out string) generatorFunc {
	return func(context.Context, string, int) (string, error) { return out, nil }
}

type recordingGenerator struct {
	mu        sync.Mutex
	prompts   []string
	maxTokens []int
	reply     func(prompt string) (string, error)
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string, maxTokens int) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.maxTokens = append(g.maxTokens, maxTokens)
	g.mu.Unlock()
	return g.reply(prompt)
}

const structuredAnswer = "Causes:\n- a\n\nTreatments:\n- b\n\nFollow-up:\n- c\n\nSummary:\nd"

type hashEmbedder struct {
	dim     int
	err     error
	queries []string
	mu      sync.Mutex
}

func (e *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, e.vector(text))
	}
	return out, nil
}

func (e *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.queries = append(e.queries, text)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *hashEmbedder) vector(text string) []float32 {
	dim := e.dim
	if dim <= 0 {
		dim = 8
	}
	vec := make([]float32, dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[h.Sum32()%uint32(dim)]++
	}
	return vec
}

type sliceIndex struct {
	name string
	docs []domain.Document
	dim  int
	err  error
}

func (i *sliceIndex) Name() string   { return i.name }
func (i *sliceIndex) Len() int       { return len(i.docs) }
func (i *sliceIndex) Dimension() int { return i.dim }
func (i *sliceIndex) Search(_ context.Context, vec []float32, k int) ([]domain.Document, error) {
	if i.err != nil {
		return nil, i.err
	}
	if len(vec) != i.dim {
		return nil, domain.ErrDimensionMismatch
	}
	if k > len(i.docs) {
		k = len(i.docs)
	}
	return append([]domain.Document(nil), i.docs[:k]...), nil
}

type sliceIndexBuilder struct {
	builds atomic.Int32
}

func (b *sliceIndexBuilder) Build(_ context.Context, name string, docs []domain.Document, vectors [][]float32) (ports.DomainIndex, error) {
	b.builds.Add(1)
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	return &sliceIndex{name: name, docs: docs, dim: dim}, nil
}

type mapCorpus struct {
	docs  map[string][]domain.Document
	err   error
	loads atomic.Int32
	// gate blocks LoadDomain until closed when non-nil.
	gate chan struct{}
}

func (c *mapCorpus) LoadDomain(ctx context.Context, name string) ([]domain.Document, error) {
	c.loads.Add(1)
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	docs, ok := c.docs[name]
	if !ok {
		return nil, errors.New("no corpus for " + name)
	}
	return docs, nil
}

func testCorpus() map[string][]domain.Document {
	return map[string][]domain.Document{
		domain.DomainCardiology: {
			{Question: "What causes chest pain?", Answer: "Angina from reduced coronary flow."},
			{Question: "How is heart failure treated?", Answer: "Diuretics and ACE inhibitors."},
			{Question: "What is atrial fibrillation?", Answer: "An irregular heart rhythm."},
			{Question: "Why am I short of breath?", Answer: "Possible heart failure or lung disease."},
		},
		domain.DomainDermatology: {
			{Question: "What causes an itchy rash?", Answer: "Contact dermatitis or eczema."},
			{Question: "How is acne treated?", Answer: "Topical retinoids."},
			{Question: "What is psoriasis?", Answer: "A chronic immune skin disease."},
		},
		domain.DomainGeneral: {
			{Question: "Why do I feel tired?", Answer: "Fatigue has many causes including anemia."},
			{Question: "What causes headaches?", Answer: "Tension, migraine or dehydration."},
		},
	}
}

// scriptedGenerator answers each of the three prompt templates.
func scriptedGenerator(rerankScores map[string]string) *recordingGenerator {
	return &recordingGenerator{reply: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "create a hypothetical but medically valid answer"):
			return "< / FREETEXT > hypothetical: " + structuredAnswer, nil
		case strings.Contains(prompt, "Respond ONLY with a number"):
			for fragment, score := range rerankScores {
				if strings.Contains(prompt, fragment) {
					return score, nil
				}
			}
			return "0.5", nil
		case strings.Contains(prompt, "Using the retrieved passages"):
			return "  " + structuredAnswer + "\n", nil
		default:
			return "", errors.New("unexpected prompt")
		}
	}}
}
