package ports

import (
	"context"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

// MedicalQueryService is the inbound contract shared by every transport.
type MedicalQueryService interface {
	Initialize(ctx context.Context) error
	Retrieve(ctx context.Context, query domain.Query) (*domain.RetrievalResult, error)
	Status() domain.ServiceStatus
	Route(query string) []string
}

// CorpusImporter is the inbound contract for loading manifest sources into the corpus store.
type CorpusImporter interface {
	ImportAll(ctx context.Context) (map[string]int, error)
}
