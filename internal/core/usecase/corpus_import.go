package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

// CorpusImportUseCase copies every domain from a source (manifest files, datasets)
// into the corpus store, replacing each domain wholesale.
type CorpusImportUseCase struct {
	source  ports.CorpusSource
	store   ports.CorpusStore
	domains []string
}

func NewCorpusImportUseCase(source ports.CorpusSource, store ports.CorpusStore, domains []string) *CorpusImportUseCase {
	return &CorpusImportUseCase{
		source:  source,
		store:   store,
		domains: domains,
	}
}

func (uc *CorpusImportUseCase) ImportAll(ctx context.Context) (map[string]int, error) {
	if len(uc.domains) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "import corpus", errors.New("no domains configured"))
	}

	counts := make(map[string]int, len(uc.domains))
	for _, name := range uc.domains {
		docs, err := uc.source.LoadDomain(ctx, name)
		if err != nil {
			return counts, fmt.Errorf("load %s corpus: %w", name, err)
		}
		if len(docs) == 0 {
			return counts, domain.WrapError(domain.ErrInvalidInput, "import corpus", fmt.Errorf("domain %s has no documents", name))
		}
		if err := uc.store.ReplaceDomain(ctx, name, docs); err != nil {
			return counts, fmt.Errorf("store %s corpus: %w", name, err)
		}
		counts[name] = len(docs)
		slog.Info("corpus_imported", "domain", name, "documents", len(docs))
	}
	return counts, nil
}
