package localfs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

func TestSaveAndOpenNestedKey(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Save(context.Background(), "snapshots/cardiology.jsonl", strings.NewReader("line\n")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rc, err := s.Open(context.Background(), "snapshots/cardiology.jsonl")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "line\n" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestRejectsKeysOutsideBase(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, key := range []string{"../escape.jsonl", "/etc/passwd", "", "a/../../b"} {
		if _, err := s.Open(context.Background(), key); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("key %q: expected ErrInvalidInput, got %v", key, err)
		}
	}
}

func TestOpenMissingFile(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := s.Open(context.Background(), "missing.jsonl"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
