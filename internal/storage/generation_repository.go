package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"growth_quest/internal/models"
)

// RecordWriter persists batches of generation records.
// Implementations must accept the same batch more than once without duplicating it
// when that is possible for the backend.
type RecordWriter interface {
	// Name identifies the writer in logs
	Name() string

	// WriteBatch persists all records or returns an error
	WriteBatch(ctx context.Context, records []models.GenerationRecord) error
}

const generationSchema = `
CREATE TABLE IF NOT EXISTS generation_records (
	id                UUID PRIMARY KEY,
	request_id        UUID NOT NULL,
	provider          TEXT NOT NULL,
	model             TEXT NOT NULL,
	status            TEXT NOT NULL,
	failed_provider   TEXT,
	fallback          BOOLEAN NOT NULL DEFAULT FALSE,
	prompt_sha256     TEXT NOT NULL,
	prompt_chars      INTEGER NOT NULL DEFAULT 0,
	response_chars    INTEGER NOT NULL DEFAULT 0,
	input_tokens      INTEGER NOT NULL DEFAULT 0,
	output_tokens     INTEGER NOT NULL DEFAULT 0,
	latency_ms        BIGINT NOT NULL DEFAULT 0,
	error_message     TEXT,
	encrypted_payload TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_generation_records_created_at ON generation_records (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_generation_records_request_id ON generation_records (request_id);
CREATE INDEX IF NOT EXISTS idx_generation_records_provider ON generation_records (provider, created_at DESC);
`

const insertGenerationRecord = `
	INSERT INTO generation_records (
		id, request_id, provider, model, status, failed_provider, fallback,
		prompt_sha256, prompt_chars, response_chars, input_tokens, output_tokens,
		latency_ms, error_message, encrypted_payload, created_at
	) VALUES (
		:id, :request_id, :provider, :model, :status, :failed_provider, :fallback,
		:prompt_sha256, :prompt_chars, :response_chars, :input_tokens, :output_tokens,
		:latency_ms, :error_message, :encrypted_payload, :created_at
	)
	ON CONFLICT (id) DO NOTHING
`

const selectGenerationRecord = `
	SELECT id, request_id, provider, model, status, failed_provider, fallback,
	       prompt_sha256, prompt_chars, response_chars, input_tokens, output_tokens,
	       latency_ms, error_message, encrypted_payload, created_at
	FROM generation_records
`

// GenerationRepository handles generation record database operations
type GenerationRepository struct {
	db *DB
}

// NewGenerationRepository creates a new generation repository
func NewGenerationRepository(db *DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

// Name implements RecordWriter
func (r *GenerationRepository) Name() string {
	return "postgres"
}

// EnsureSchema creates the generation_records table and its indexes
func (r *GenerationRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.conn.ExecContext(ctx, generationSchema); err != nil {
		return fmt.Errorf("failed to create generation schema: %w", err)
	}
	return nil
}

// Create inserts a single generation record.
// A record whose ID already exists is ignored, so retries are safe.
func (r *GenerationRepository) Create(ctx context.Context, record *models.GenerationRecord) error {
	prepareRecord(record)

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.conn.NamedExecContext(ctx, insertGenerationRecord, record); err != nil {
		return fmt.Errorf("failed to create generation record: %w", err)
	}
	return nil
}

// CreateBatch inserts records in a single transaction
func (r *GenerationRepository) CreateBatch(ctx context.Context, records []models.GenerationRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertAll(ctx, tx, records); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertAll(ctx context.Context, tx *sqlx.Tx, records []models.GenerationRecord) error {
	stmt, err := tx.PrepareNamedContext(ctx, insertGenerationRecord)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		record := records[i]
		prepareRecord(&record)
		if _, err := stmt.ExecContext(ctx, &record); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", record.RequestID, err)
		}
	}
	return nil
}

// WriteBatch implements RecordWriter
func (r *GenerationRepository) WriteBatch(ctx context.Context, records []models.GenerationRecord) error {
	return r.CreateBatch(ctx, records)
}

// GetByRequestID retrieves the record written for a gateway request
func (r *GenerationRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*models.GenerationRecord, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var record models.GenerationRecord
	query := selectGenerationRecord + ` WHERE request_id = $1 ORDER BY created_at DESC LIMIT 1`

	err := r.db.conn.GetContext(ctx, &record, query, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get generation record: %w", err)
	}

	return &record, nil
}

// ListRecent returns the newest records, optionally for one provider
func (r *GenerationRepository) ListRecent(ctx context.Context, provider string, limit int) ([]models.GenerationRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		records []models.GenerationRecord
		err     error
	)
	if provider == "" {
		err = r.db.conn.SelectContext(ctx, &records,
			selectGenerationRecord+` ORDER BY created_at DESC LIMIT $1`, limit)
	} else {
		err = r.db.conn.SelectContext(ctx, &records,
			selectGenerationRecord+` WHERE provider = $1 ORDER BY created_at DESC LIMIT $2`, provider, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list generation records: %w", err)
	}

	return records, nil
}

// SummarizeByProvider aggregates records created at or after since
func (r *GenerationRepository) SummarizeByProvider(ctx context.Context, since time.Time) ([]models.ProviderSummary, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT provider,
		       COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE status IN ('ok', 'fallback')) AS succeeded,
		       COUNT(*) FILTER (WHERE fallback) AS fallbacks,
		       COUNT(*) FILTER (WHERE status = 'failed') AS failed,
		       COALESCE(AVG(latency_ms), 0)::float8 AS avg_latency_ms,
		       COALESCE(SUM(input_tokens), 0) AS input_tokens,
		       COALESCE(SUM(output_tokens), 0) AS output_tokens
		FROM generation_records
		WHERE created_at >= $1
		GROUP BY provider
		ORDER BY provider
	`

	var summaries []models.ProviderSummary
	if err := r.db.conn.SelectContext(ctx, &summaries, query, since); err != nil {
		return nil, fmt.Errorf("failed to summarize generation records: %w", err)
	}

	return summaries, nil
}

func prepareRecord(record *models.GenerationRecord) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
}
