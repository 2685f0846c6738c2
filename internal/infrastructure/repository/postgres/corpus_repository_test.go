package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*CorpusRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &CorpusRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(int64(2026101901)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS medical_documents").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoadDomainReturnsDocumentsInPositionOrder(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT question, answer").
		WithArgs("cardiology").
		WillReturnRows(sqlmock.NewRows([]string{"question", "answer"}).
			AddRow("What is angina?", "Chest pain from reduced blood flow.").
			AddRow("What is AFib?", "An irregular heart rhythm."))

	docs, err := repo.LoadDomain(context.Background(), "cardiology")
	if err != nil {
		t.Fatalf("LoadDomain() error = %v", err)
	}
	if len(docs) != 2 || docs[1].Question != "What is AFib?" {
		t.Fatalf("unexpected docs %+v", docs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoadDomainWithoutRowsIsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT question, answer").
		WithArgs("oncology").
		WillReturnRows(sqlmock.NewRows([]string{"question", "answer"}))

	_, err := repo.LoadDomain(context.Background(), "oncology")
	if !domain.IsKind(err, domain.ErrDomainNotFound) {
		t.Fatalf("expected ErrDomainNotFound, got %v", err)
	}
}

func TestReplaceDomainRunsInOneTransaction(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM medical_documents").WithArgs("dermatology").WillReturnResult(sqlmock.NewResult(0, 7))
	prep := mock.ExpectPrepare("INSERT INTO medical_documents")
	prep.ExpectExec().WithArgs("dermatology", 0, "q0", "a0").WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("dermatology", 1, "q1", "a1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ReplaceDomain(context.Background(), "dermatology", []domain.Document{
		{Question: "q0", Answer: "a0"},
		{Question: "q1", Answer: "a1"},
	})
	if err != nil {
		t.Fatalf("ReplaceDomain() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceDomainRollsBackOnInsertFailure(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM medical_documents").WithArgs("general").WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO medical_documents")
	prep.ExpectExec().WithArgs("general", 0, "q0", "a0").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.ReplaceDomain(context.Background(), "general", []domain.Document{{Question: "q0", Answer: "a0"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCountByDomain(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT domain, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"domain", "count"}).
			AddRow("cardiology", 120).
			AddRow("general", 80))

	counts, err := repo.CountByDomain(context.Background())
	if err != nil {
		t.Fatalf("CountByDomain() error = %v", err)
	}
	if counts["cardiology"] != 120 || counts["general"] != 80 {
		t.Fatalf("unexpected counts %v", counts)
	}
}
