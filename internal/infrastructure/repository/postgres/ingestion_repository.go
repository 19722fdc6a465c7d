package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
)

// IngestionRepository keeps the latest ingestion run per source document.
type IngestionRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewIngestionRepository(db *sql.DB) *IngestionRepository {
	return &IngestionRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
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

func (r *IngestionRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}

func (r *IngestionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS ingestion_runs (
	document_id TEXT PRIMARY KEY,
	bucket TEXT NOT NULL,
	object_key TEXT NOT NULL,
	state TEXT NOT NULL,
	failed_step TEXT,
	error_message TEXT,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ingestion_runs_state ON ingestion_runs(state);
CREATE INDEX IF NOT EXISTS idx_ingestion_runs_updated_at ON ingestion_runs(updated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// SaveRun upserts the run for its document. created_at is kept from the first insert.
func (r *IngestionRepository) SaveRun(ctx context.Context, run domain.IngestionRun) error {
	if run.DocumentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save ingestion run", fmt.Errorf("document id is empty"))
	}
	now := r.now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO ingestion_runs (
	document_id, bucket, object_key, state, failed_step, error_message, chunk_count, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (document_id) DO UPDATE SET
	bucket = EXCLUDED.bucket,
	object_key = EXCLUDED.object_key,
	state = EXCLUDED.state,
	failed_step = EXCLUDED.failed_step,
	error_message = EXCLUDED.error_message,
	chunk_count = EXCLUDED.chunk_count,
	updated_at = EXCLUDED.updated_at
`,
		run.DocumentID, run.Bucket, run.ObjectKey, string(run.State), nullableString(string(run.FailedStep)),
		nullableString(run.Error), run.ChunkCount, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert ingestion run: %w", err)
	}
	return nil
}

func (r *IngestionRepository) GetRun(ctx context.Context, documentID string) (*domain.IngestionRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT document_id, bucket, object_key, state, failed_step, error_message, chunk_count, created_at, updated_at
FROM ingestion_runs
WHERE document_id = $1
`, documentID)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get ingestion run", fmt.Errorf("document %s", documentID))
		}
		return nil, fmt.Errorf("scan ingestion run: %w", err)
	}
	return &run, nil
}

// ListRuns returns the most recently updated runs first.
func (r *IngestionRepository) ListRuns(ctx context.Context, limit int) ([]domain.IngestionRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT document_id, bucket, object_key, state, failed_step, error_message, chunk_count, created_at, updated_at
FROM ingestion_runs
ORDER BY updated_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list ingestion runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.IngestionRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ingestion run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingestion runs: %w", err)
	}
	return out, nil
}

type runScanner interface {
	Scan(dest ...any) error
}

func scanRun(row runScanner) (domain.IngestionRun, error) {
	var (
		run        domain.IngestionRun
		state      string
		failedStep sql.NullString
		errMessage sql.NullString
	)
	if err := row.Scan(
		&run.DocumentID, &run.Bucket, &run.ObjectKey, &state, &failedStep, &errMessage,
		&run.ChunkCount, &run.CreatedAt, &run.UpdatedAt,
	); err != nil {
		return domain.IngestionRun{}, err
	}
	run.State = domain.IngestionState(state)
	run.FailedStep = domain.IngestionState(failedStep.String)
	run.Error = errMessage.String
	return run, nil
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
