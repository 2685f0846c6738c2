package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

// WriteSnapshot stores docs as <domain>.jsonl so later runs can use a jsonl source
// instead of re-downloading datasets.
func WriteSnapshot(ctx context.Context, storage ports.ObjectStorage, name string, docs []domain.Document) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			return "", fmt.Errorf("encode snapshot row: %w", err)
		}
	}
	key := name + ".jsonl"
	if err := storage.Save(ctx, key, &buf); err != nil {
		return "", fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return key, nil
}

// SnapshotStore writes a jsonl snapshot of every domain it persists before delegating.
type SnapshotStore struct {
	ports.CorpusStore
	storage ports.ObjectStorage
}

func NewSnapshotStore(next ports.CorpusStore, storage ports.ObjectStorage) *SnapshotStore {
	return &SnapshotStore{CorpusStore: next, storage: storage}
}

func (s *SnapshotStore) ReplaceDomain(ctx context.Context, name string, docs []domain.Document) error {
	key, err := WriteSnapshot(ctx, s.storage, name, docs)
	if err != nil {
		return err
	}
	slog.Info("corpus_snapshot_written", "domain", name, "key", key, "documents", len(docs))
	return s.CorpusStore.ReplaceDomain(ctx, name, docs)
}
