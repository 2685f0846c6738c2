package corpus

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

type decodeFunc func(io.Reader, domain.CorpusSource) ([]domain.Document, error)

var decoders = map[string]decodeFunc{
	FormatJSONL: decodeJSONL,
	FormatJSON:  decodeJSON,
	FormatXLSX:  decodeXLSX,
	FormatPDF:   decodePDF,
}

// ManifestSource resolves domains through a manifest. File sources are read from
// object storage by path; dataset sources go through the Hugging Face client.
type ManifestSource struct {
	manifest Manifest
	storage  ports.ObjectStorage
	hf       *HuggingFaceClient
}

func NewManifestSource(manifest Manifest, storage ports.ObjectStorage, hf *HuggingFaceClient) *ManifestSource {
	return &ManifestSource{manifest: manifest, storage: storage, hf: hf}
}

func (s *ManifestSource) LoadDomain(ctx context.Context, name string) ([]domain.Document, error) {
	dc, ok := s.manifest.domain(name)
	if !ok {
		return nil, domain.WrapError(domain.ErrDomainNotFound, "load corpus", fmt.Errorf("domain %s is not in the manifest", name))
	}

	var docs []domain.Document
	for _, src := range dc.Sources {
		loaded, err := s.loadSource(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("domain %s: %w", name, err)
		}
		slog.Info("corpus_source_loaded",
			"domain", name,
			"format", src.Format,
			"source", sourceLabel(src),
			"documents", len(loaded),
		)
		docs = append(docs, loaded...)
	}
	return docs, nil
}

func (s *ManifestSource) loadSource(ctx context.Context, src domain.CorpusSource) ([]domain.Document, error) {
	if src.Format == FormatHuggingFace {
		if s.hf == nil {
			return nil, fmt.Errorf("huggingface source %s: client not configured", src.Dataset)
		}
		return s.hf.Load(ctx, src)
	}

	decode, ok := decoders[src.Format]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "load corpus source", fmt.Errorf("unsupported format %q", src.Format))
	}
	if s.storage == nil {
		return nil, fmt.Errorf("%s source %s: storage not configured", src.Format, src.Path)
	}
	rc, err := s.storage.Open(ctx, src.Path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	docs, err := decode(rc, src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.Path, err)
	}
	return docs, nil
}

func sourceLabel(src domain.CorpusSource) string {
	if src.Format == FormatHuggingFace {
		return src.Dataset + "/" + src.Split
	}
	return src.Path
}
