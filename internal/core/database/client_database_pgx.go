package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/nexdesk-ai/nexdesk/internal/config"
	"github.com/nexdesk-ai/nexdesk/internal/core"
	"github.com/nexdesk-ai/nexdesk/internal/logger"
	"github.com/nexdesk-ai/nexdesk/internal/models"
)

// DatabaseClient implements core.DbClient on Postgres + pgvector.
type DatabaseClient struct {
	db              *sql.DB
	maxOpsPerCommit int
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	maxOps := cfg.MaxOpsPerCommit
	if maxOps <= 0 {
		maxOps = 450
	}

	return &DatabaseClient{db: db, maxOpsPerCommit: maxOps}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Implementing the store interface for businesses

func (c *DatabaseClient) CreateBusiness(ctx context.Context, b *models.Business) error {
	if b == nil {
		return errors.New("nil business")
	}
	const q = `
		INSERT INTO businesses
			(id, name, category, description, owner_email, password_hash, max_documents, max_session_msg, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		b.ID, b.Name, b.Category, b.Description, b.OwnerEmail, b.PasswordHash, b.MaxDocuments, b.MaxSessionMsg)
	return err
}

func (c *DatabaseClient) GetBusinessByID(ctx context.Context, id string) (*models.Business, error) {
	const q = `
		SELECT id, name, category, description, owner_email, password_hash, max_documents, max_session_msg, created_at, updated_at
		FROM businesses WHERE id = $1
	`
	var b models.Business
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&b.ID, &b.Name, &b.Category, &b.Description, &b.OwnerEmail, &b.PasswordHash,
		&b.MaxDocuments, &b.MaxSessionMsg, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *DatabaseClient) GetBusinessByEmail(ctx context.Context, email string) (*models.Business, error) {
	const q = `
		SELECT id, name, category, description, owner_email, password_hash, max_documents, max_session_msg, created_at, updated_at
		FROM businesses WHERE owner_email = $1
	`
	var b models.Business
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&b.ID, &b.Name, &b.Category, &b.Description, &b.OwnerEmail, &b.PasswordHash,
		&b.MaxDocuments, &b.MaxSessionMsg, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Implementing the store interface for knowledge documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.KnowledgeDocument) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO knowledge_documents
			(id, business_id, source_type, source_name, storage_url, status, chunk_count, content_hash, error_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.BusinessID, doc.SourceType, doc.SourceName, doc.StorageURL,
		doc.Status, doc.ChunkCount, doc.ContentHash, doc.ErrorCode)
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, businessID, id string) (*models.KnowledgeDocument, error) {
	const q = `
		SELECT id, business_id, source_type, source_name, storage_url, status, chunk_count, content_hash, error_code, created_at, updated_at
		FROM knowledge_documents
		WHERE business_id = $1 AND id = $2
	`
	return c.scanDocument(c.db.QueryRowContext(ctx, q, businessID, id))
}

func (c *DatabaseClient) GetDocumentByContentHash(ctx context.Context, businessID, hash string) (*models.KnowledgeDocument, error) {
	const q = `
		SELECT id, business_id, source_type, source_name, storage_url, status, chunk_count, content_hash, error_code, created_at, updated_at
		FROM knowledge_documents
		WHERE business_id = $1 AND content_hash = $2
		ORDER BY created_at ASC
		LIMIT 1
	`
	return c.scanDocument(c.db.QueryRowContext(ctx, q, businessID, hash))
}

func (c *DatabaseClient) scanDocument(row *sql.Row) (*models.KnowledgeDocument, error) {
	var d models.KnowledgeDocument
	err := row.Scan(
		&d.ID, &d.BusinessID, &d.SourceType, &d.SourceName, &d.StorageURL,
		&d.Status, &d.ChunkCount, &d.ContentHash, &d.ErrorCode, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocumentsByBusiness(ctx context.Context, businessID string) ([]models.KnowledgeDocument, error) {
	const q = `
		SELECT id, business_id, source_type, source_name, storage_url, status, chunk_count, content_hash, error_code, created_at, updated_at
		FROM knowledge_documents
		WHERE business_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.KnowledgeDocument
	for rows.Next() {
		var d models.KnowledgeDocument
		if err := rows.Scan(
			&d.ID, &d.BusinessID, &d.SourceType, &d.SourceName, &d.StorageURL,
			&d.Status, &d.ChunkCount, &d.ContentHash, &d.ErrorCode, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountDocumentsByBusiness(ctx context.Context, businessID string) (int, error) {
	const q = `SELECT COUNT(*) FROM knowledge_documents WHERE business_id = $1 AND status <> 'failed'`
	var n int
	if err := c.db.QueryRowContext(ctx, q, businessID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *DatabaseClient) MarkDocumentFailed(ctx context.Context, id, errorCode string) error {
	const q = `
		UPDATE knowledge_documents
		SET status = 'failed', error_code = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, errorCode)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// FinalizeDocument flips the document to active once every chunk is durable.
// Phase 1 reads the stored chunk rollup, phase 2 writes the status; both run
// in one transaction so the active invariant cannot be observed half-applied.
func (c *DatabaseClient) FinalizeDocument(ctx context.Context, id string, chunkCount int) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var stored int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM knowledge_chunks WHERE document_id = $1 AND status = 'active'`, id,
	).Scan(&stored)
	if err != nil {
		return err
	}
	if stored != chunkCount {
		return fmt.Errorf("chunk rollup mismatch for document %s: stored %d, expected %d", id, stored, chunkCount)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE knowledge_documents
		SET status = 'active', chunk_count = $2, error_code = '', updated_at = now()
		WHERE id = $1
	`, id, chunkCount)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return tx.Commit()
}

// SetDocumentStatus changes the document status and cascades it to all child
// chunks in the same transaction, so chunk status always mirrors the parent.
func (c *DatabaseClient) SetDocumentStatus(ctx context.Context, businessID, id, status string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE knowledge_documents
		SET status = $3, updated_at = now()
		WHERE business_id = $1 AND id = $2
	`, businessID, id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}

	chunkStatus := models.ChunkStatusDisabled
	if status == models.DocStatusActive {
		chunkStatus = models.ChunkStatusActive
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE knowledge_chunks SET status = $2 WHERE document_id = $1
	`, id, chunkStatus); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logger.Debug("document status cascaded",
		zap.String("business_id", businessID),
		zap.String("document_id", id),
		zap.String("status", status),
	)
	return nil
}
