package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/nexdesk-ai/nexdesk/internal/core"
	"github.com/nexdesk-ai/nexdesk/internal/models"
)

// CreateInboundIdempotent relies on the primary key on message_sid: the
// insert either lands or silently collides, never overwrites. The second
// caller gets created=false and the original receipt unchanged.
func (c *DatabaseClient) CreateInboundIdempotent(ctx context.Context, m *models.InboundMessage) (bool, *models.InboundMessage, error) {
	if m == nil {
		return false, nil, errors.New("nil inbound message")
	}
	const q = `
		INSERT INTO inbound_messages
			(message_sid, business_id, from_addr, to_addr, body, media_urls, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'queued', now(), now())
		ON CONFLICT (message_sid) DO NOTHING
	`
	var mediaJSON []byte
	if len(m.MediaURLs) > 0 {
		var err error
		mediaJSON, err = json.Marshal(m.MediaURLs)
		if err != nil {
			return false, nil, err
		}
	}
	res, err := c.db.ExecContext(ctx, q,
		m.MessageSid, m.BusinessID, m.From, m.To, m.Body, mediaJSON)
	if err != nil {
		return false, nil, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		m.Status = models.InboundStatusQueued
		return true, m, nil
	}

	existing, err := c.getInboundBySid(ctx, m.MessageSid)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (c *DatabaseClient) getInboundBySid(ctx context.Context, sid string) (*models.InboundMessage, error) {
	const q = `
		SELECT message_sid, business_id, from_addr, to_addr, body, media_urls, status, created_at, updated_at
		FROM inbound_messages WHERE message_sid = $1
	`
	var (
		m         models.InboundMessage
		mediaJSON []byte
	)
	err := c.db.QueryRowContext(ctx, q, sid).Scan(
		&m.MessageSid, &m.BusinessID, &m.From, &m.To, &m.Body, &mediaJSON,
		&m.Status, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(mediaJSON) > 0 {
		if err := json.Unmarshal(mediaJSON, &m.MediaURLs); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// MarkInboundProcessing is a conditional transition: only one caller can ever
// move a sid out of 'queued', so the side effects behind it run once.
func (c *DatabaseClient) MarkInboundProcessing(ctx context.Context, messageSid string) (bool, error) {
	const q = `
		UPDATE inbound_messages
		SET status = 'processing', updated_at = now()
		WHERE message_sid = $1 AND status = 'queued'
	`
	res, err := c.db.ExecContext(ctx, q, messageSid)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (c *DatabaseClient) SetInboundStatus(ctx context.Context, messageSid, status string) error {
	const q = `
		UPDATE inbound_messages
		SET status = $2, updated_at = now()
		WHERE message_sid = $1
	`
	res, err := c.db.ExecContext(ctx, q, messageSid, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ReserveOutboundKey claims the idempotency key with an insert-only write on
// the unique key column. At most one reservation ever succeeds.
func (c *DatabaseClient) ReserveOutboundKey(ctx context.Context, key string) (bool, error) {
	const q = `
		INSERT INTO outbound_messages (id, idempotency_key, business_id, to_addr, body, status, created_at)
		VALUES ($1, $2, '', '', '', 'reserved', now())
		ON CONFLICT (idempotency_key) DO NOTHING
	`
	res, err := c.db.ExecContext(ctx, q, uuid.NewString(), key)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// CreateOutboundMessage fills in the reserved row. If the row was already
// filled by a previous attempt, the original message is returned unchanged,
// so repeated creates under one key yield the same message id.
func (c *DatabaseClient) CreateOutboundMessage(ctx context.Context, m *models.OutboundMessage) (*models.OutboundMessage, error) {
	if m == nil {
		return nil, errors.New("nil outbound message")
	}
	const q = `
		UPDATE outbound_messages
		SET business_id = $2, to_addr = $3, body = $4, status = 'queued'
		WHERE idempotency_key = $1 AND status = 'reserved'
	`
	if _, err := c.db.ExecContext(ctx, q, m.IdempotencyKey, m.BusinessID, m.To, m.Body); err != nil {
		return nil, err
	}
	return c.GetOutboundByKey(ctx, m.IdempotencyKey)
}

func (c *DatabaseClient) GetOutboundByKey(ctx context.Context, key string) (*models.OutboundMessage, error) {
	const q = `
		SELECT id, idempotency_key, business_id, to_addr, body, provider_sid, status, created_at
		FROM outbound_messages WHERE idempotency_key = $1
	`
	var m models.OutboundMessage
	err := c.db.QueryRowContext(ctx, q, key).Scan(
		&m.ID, &m.IdempotencyKey, &m.BusinessID, &m.To, &m.Body, &m.ProviderSid, &m.Status, &m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *DatabaseClient) SetOutboundSent(ctx context.Context, id, providerSid string) error {
	const q = `
		UPDATE outbound_messages
		SET status = 'sent', provider_sid = $2
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, providerSid)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}
