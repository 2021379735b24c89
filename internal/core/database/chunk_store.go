package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/nexdesk-ai/nexdesk/internal/models"
)

// UpsertChunks writes chunk rows keyed by their deterministic content hash.
// A conflicting id means the identical text was already ingested: the row's
// ordinal and status are refreshed but the embedding is left untouched
// (embeddings are immutable once written). Slices larger than the per-commit
// ceiling spill into multiple sequential transactions.
func (c *DatabaseClient) UpsertChunks(ctx context.Context, chunks []models.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return WriteChunked(ctx, chunks, c.maxOpsPerCommit, c.upsertChunkBatch)
}

func (c *DatabaseClient) upsertChunkBatch(ctx context.Context, chunks []models.KnowledgeChunk) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO knowledge_chunks
			(id, business_id, document_id, ordinal, text, embedding, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE
			SET ordinal = EXCLUDED.ordinal, status = EXCLUDED.status
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.BusinessID, ch.DocumentID, ch.Ordinal, ch.Text, vec, ch.Status,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string, limit int) ([]models.KnowledgeChunk, error) {
	q := `
		SELECT id, business_id, document_id, ordinal, text, status, created_at
		FROM knowledge_chunks
		WHERE document_id = $1
		ORDER BY ordinal ASC
	`
	args := []any{documentID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.KnowledgeChunk
	for rows.Next() {
		var ch models.KnowledgeChunk
		if err := rows.Scan(
			&ch.ID, &ch.BusinessID, &ch.DocumentID, &ch.Ordinal, &ch.Text, &ch.Status, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// SearchChunks finds the limit nearest active chunks across all of one
// business's documents, by cosine distance. Results come back in ascending
// distance order; ties keep the index's return order.
func (c *DatabaseClient) SearchChunks(ctx context.Context, businessID string, queryVec []float32, limit int) ([]models.RetrievedChunk, error) {
	const q = `
		SELECT ch.id, ch.business_id, ch.document_id, ch.ordinal, ch.text, ch.status,
		       d.source_name, (ch.embedding <=> $2) AS score
		FROM knowledge_chunks ch
		JOIN knowledge_documents d ON d.id = ch.document_id
		WHERE ch.business_id = $1 AND ch.status = 'active'
		ORDER BY ch.embedding <=> $2
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, businessID, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var out []models.RetrievedChunk
	for rows.Next() {
		var r models.RetrievedChunk
		if err := rows.Scan(
			&r.Chunk.ID, &r.Chunk.BusinessID, &r.Chunk.DocumentID, &r.Chunk.Ordinal,
			&r.Chunk.Text, &r.Chunk.Status, &r.SourceName, &r.Score,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
