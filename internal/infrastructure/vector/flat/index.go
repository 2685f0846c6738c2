// Package flat is an exact in-process nearest-neighbour index using squared
// Euclidean distance over every stored vector.
package flat

import (
	"context"
	"fmt"
	"sort"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Build(_ context.Context, name string, docs []domain.Document, vectors [][]float32) (ports.DomainIndex, error) {
	if len(docs) == 0 {
		return nil, domain.WrapError(domain.ErrIndexBuild, "build flat index", fmt.Errorf("domain %s has no documents", name))
	}
	if len(docs) != len(vectors) {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "build flat index",
			fmt.Errorf("domain %s: %d documents but %d vectors", name, len(docs), len(vectors)))
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "build flat index", fmt.Errorf("domain %s: zero-length vector", name))
	}

	data := make([]float32, 0, dim*len(vectors))
	for i, vec := range vectors {
		if len(vec) != dim {
			return nil, domain.WrapError(domain.ErrDimensionMismatch, "build flat index",
				fmt.Errorf("domain %s: vector %d has dimension %d, want %d", name, i, len(vec), dim))
		}
		data = append(data, vec...)
	}

	return &Index{
		name: name,
		dim:  dim,
		docs: append([]domain.Document(nil), docs...),
		data: data,
	}, nil
}

// Index is immutable after Build and safe for concurrent Search calls.
type Index struct {
	name string
	dim  int
	docs []domain.Document
	// data holds len(docs) rows of dim values, row i belongs to docs[i].
	data []float32
}

func (idx *Index) Name() string   { return idx.name }
func (idx *Index) Len() int       { return len(idx.docs) }
func (idx *Index) Dimension() int { return idx.dim }

type hit struct {
	pos  int
	dist float32
}

// Search returns min(k, Len()) documents ordered by ascending squared L2 distance.
// Equal distances keep insertion order.
func (idx *Index) Search(ctx context.Context, queryVector []float32, k int) ([]domain.Document, error) {
	if len(queryVector) != idx.dim {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "search flat index",
			fmt.Errorf("domain %s: query dimension %d, want %d", idx.name, len(queryVector), idx.dim))
	}
	if k <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search flat index", fmt.Errorf("k must be positive, got %d", k))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hits := make([]hit, len(idx.docs))
	for i := range idx.docs {
		row := idx.data[i*idx.dim : (i+1)*idx.dim]
		hits[i] = hit{pos: i, dist: squaredL2(row, queryVector)}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].dist < hits[b].dist
	})

	if k > len(hits) {
		k = len(hits)
	}
	out := make([]domain.Document, 0, k)
	for _, h := range hits[:k] {
		out = append(out, idx.docs[h.pos])
	}
	return out, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
