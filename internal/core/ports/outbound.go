package ports

import (
	"context"
	"io"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

// Embedder maps text to fixed-dimension dense vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator is a generative model capability. Implementations decode deterministically.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// DomainIndex is a read-only nearest-neighbour index over the questions of one domain.
// Search returns up to k documents ordered by ascending squared L2 distance.
type DomainIndex interface {
	Name() string
	Len() int
	Dimension() int
	Search(ctx context.Context, queryVector []float32, k int) ([]domain.Document, error)
}

// IndexBuilder creates a DomainIndex from documents and their question vectors.
type IndexBuilder interface {
	Build(ctx context.Context, name string, docs []domain.Document, vectors [][]float32) (DomainIndex, error)
}

// CorpusSource yields the ordered documents of a domain.
type CorpusSource interface {
	LoadDomain(ctx context.Context, name string) ([]domain.Document, error)
}

// CorpusStore persists domain corpora.
type CorpusStore interface {
	CorpusSource
	ReplaceDomain(ctx context.Context, name string, docs []domain.Document) error
	CountByDomain(ctx context.Context) (map[string]int, error)
}

// ObjectStorage stores corpus source files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// QueryBus delivers raw query requests to a worker and carries the reply back.
type QueryBus interface {
	Request(ctx context.Context, payload []byte) ([]byte, error)
	ServeQueries(ctx context.Context, handler func(context.Context, []byte) ([]byte, error)) error
}
