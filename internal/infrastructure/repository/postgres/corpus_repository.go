package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
)

// CorpusRepository stores domain corpora in medical_documents. Document order within a
// domain is the position column.
type CorpusRepository struct {
	db *sql.DB
}

func NewCorpusRepository(db *sql.DB) *CorpusRepository {
	return &CorpusRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *CorpusRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker/ingest startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS medical_documents (
	domain TEXT NOT NULL,
	position INTEGER NOT NULL,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	imported_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (domain, position)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *CorpusRepository) LoadDomain(ctx context.Context, name string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT question, answer
FROM medical_documents
WHERE domain = $1
ORDER BY position ASC
`, name)
	if err != nil {
		return nil, fmt.Errorf("query domain documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var doc domain.Document
		if err := rows.Scan(&doc.Question, &doc.Answer); err != nil {
			return nil, fmt.Errorf("scan domain document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domain documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, domain.WrapError(domain.ErrDomainNotFound, "load corpus", fmt.Errorf("no documents stored for domain %s", name))
	}
	return docs, nil
}

// ReplaceDomain swaps the whole domain corpus in one transaction.
func (r *CorpusRepository) ReplaceDomain(ctx context.Context, name string, docs []domain.Document) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM medical_documents WHERE domain = $1`, name); err != nil {
		return fmt.Errorf("delete domain documents: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO medical_documents (domain, position, question, answer)
VALUES ($1, $2, $3, $4)
`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, doc := range docs {
		if _, err := stmt.ExecContext(ctx, name, i, doc.Question, doc.Answer); err != nil {
			return fmt.Errorf("insert document %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}
	return nil
}

func (r *CorpusRepository) CountByDomain(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT domain, COUNT(*)
FROM medical_documents
GROUP BY domain
ORDER BY domain
`)
	if err != nil {
		return nil, fmt.Errorf("count domain documents: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan domain count: %w", err)
		}
		out[name] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domain counts: %w", err)
	}
	return out, nil
}
