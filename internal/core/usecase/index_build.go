package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

const DefaultEmbedBatchSize = 64

// IndexBuildStep embeds document questions and hands them to an IndexBuilder.
type IndexBuildStep struct {
	embedder  ports.Embedder
	builder   ports.IndexBuilder
	batchSize int
}

func NewIndexBuildStep(embedder ports.Embedder, builder ports.IndexBuilder, batchSize int) *IndexBuildStep {
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatchSize
	}
	return &IndexBuildStep{embedder: embedder, builder: builder, batchSize: batchSize}
}

// Build encodes questions (never answers) in input order. Any embedding failure or
// inconsistent vector dimension fails the whole build.
func (s *IndexBuildStep) Build(ctx context.Context, name string, docs []domain.Document) (ports.DomainIndex, error) {
	if len(docs) == 0 {
		return nil, domain.WrapError(domain.ErrIndexBuild, "build index "+name, errors.New("empty corpus"))
	}
	start := time.Now()

	vectors, err := s.embedQuestions(ctx, docs)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexBuild, "build index "+name, err)
	}

	index, err := s.builder.Build(ctx, name, docs, vectors)
	if err != nil {
		if domain.IsKind(err, domain.ErrIndexBuild) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrIndexBuild, "build index "+name, err)
	}

	slog.Info("domain_index_built",
		"domain", name,
		"vectors", index.Len(),
		"dimension", index.Dimension(),
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return index, nil
}

func (s *IndexBuildStep) embedQuestions(ctx context.Context, docs []domain.Document) ([][]float32, error) {
	vectors := make([][]float32, 0, len(docs))
	dim := -1
	for start := 0; start < len(docs); start += s.batchSize {
		end := start + s.batchSize
		if end > len(docs) {
			end = len(docs)
		}

		texts := make([]string, 0, end-start)
		for _, doc := range docs[start:end] {
			texts = append(texts, doc.Question)
		}

		batch, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed questions [%d:%d]: %w", start, end, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("vectors/questions mismatch: %d/%d", len(batch), len(texts))
		}
		for i, vec := range batch {
			if dim < 0 {
				dim = len(vec)
			}
			if len(vec) == 0 || len(vec) != dim {
				return nil, domain.WrapError(
					domain.ErrDimensionMismatch,
					"embed questions",
					fmt.Errorf("document %d: got %d, want %d", start+i, len(vec), dim),
				)
			}
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}
