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

func (c *DatabaseClient) CreateChatSession(ctx context.Context, s *models.ChatSession) error {
	if s == nil {
		return errors.New("nil session")
	}
	if (s.VisitorID == "") == (s.UserID == "") {
		return errors.New("session needs exactly one owner identity")
	}
	const q = `
		INSERT INTO chat_sessions
			(id, business_id, kind, visitor_id, user_id, status, message_count, last_message, lead_captured, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, '', false, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, s.ID, s.BusinessID, s.Kind, s.VisitorID, s.UserID, s.Status)
	return err
}

func (c *DatabaseClient) GetChatSession(ctx context.Context, businessID, id string) (*models.ChatSession, error) {
	const q = `
		SELECT id, business_id, kind, visitor_id, user_id, status, message_count, last_message, lead_captured, created_at, updated_at
		FROM chat_sessions
		WHERE business_id = $1 AND id = $2
	`
	var s models.ChatSession
	err := c.db.QueryRowContext(ctx, q, businessID, id).Scan(
		&s.ID, &s.BusinessID, &s.Kind, &s.VisitorID, &s.UserID, &s.Status,
		&s.MessageCount, &s.LastMessage, &s.LeadCaptured, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetOpenSessionByVisitor finds the visitor's current open session, newest
// first when several exist.
func (c *DatabaseClient) GetOpenSessionByVisitor(ctx context.Context, businessID, visitorID string) (*models.ChatSession, error) {
	const q = `
		SELECT id, business_id, kind, visitor_id, user_id, status, message_count, last_message, lead_captured, created_at, updated_at
		FROM chat_sessions
		WHERE business_id = $1 AND visitor_id = $2 AND status = 'open'
		ORDER BY created_at DESC
		LIMIT 1
	`
	var s models.ChatSession
	err := c.db.QueryRowContext(ctx, q, businessID, visitorID).Scan(
		&s.ID, &s.BusinessID, &s.Kind, &s.VisitorID, &s.UserID, &s.Status,
		&s.MessageCount, &s.LastMessage, &s.LeadCaptured, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// AppendMessage is the sole writer path for session messages. The row lock
// taken by SELECT ... FOR UPDATE serializes concurrent appenders, so the
// counter can never increment without the message being written or vice
// versa. Cap-reached returns Allowed=false with nothing written.
func (c *DatabaseClient) AppendMessage(ctx context.Context, p core.AppendParams) (*core.AppendResult, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		visitorID, userID, status string
		count                     int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT visitor_id, user_id, status, message_count
		FROM chat_sessions
		WHERE id = $1
		FOR UPDATE
	`, p.SessionID).Scan(&visitorID, &userID, &status, &count)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if p.CallerID != "" {
		owner := visitorID
		if owner == "" {
			owner = userID
		}
		if p.CallerID != owner {
			return nil, core.ErrAccessDenied
		}
	}
	if status == models.SessionStatusClosed {
		return nil, core.ErrSessionClosed
	}
	if p.CapacityLimit > 0 && count >= p.CapacityLimit {
		// Nothing written; the rollback is a no-op.
		return &core.AppendResult{Allowed: false, NewCount: count}, nil
	}

	var sourcesJSON []byte
	if len(p.Sources) > 0 {
		sourcesJSON, err = json.Marshal(p.Sources)
		if err != nil {
			return nil, err
		}
	}

	msgID := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, session_id, role, text, sources, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, msgID, p.SessionID, p.Role, p.Text, sourcesJSON); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE chat_sessions
		SET message_count = message_count + 1, last_message = $2, updated_at = now()
		WHERE id = $1
	`, p.SessionID, preview(p.Text)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &core.AppendResult{Allowed: true, NewCount: count + 1, MessageID: msgID}, nil
}

func (c *DatabaseClient) ListMessagesBySession(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	q := `
		SELECT id, session_id, role, text, sources, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC
	`
	args := []any{sessionID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var (
			m           models.ChatMessage
			sourcesJSON []byte
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Text, &sourcesJSON, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(sourcesJSON) > 0 {
			if err := json.Unmarshal(sourcesJSON, &m.Sources); err != nil {
				return nil, err
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CloseChatSession(ctx context.Context, businessID, id string) error {
	const q = `
		UPDATE chat_sessions
		SET status = 'closed', updated_at = now()
		WHERE business_id = $1 AND id = $2
	`
	res, err := c.db.ExecContext(ctx, q, businessID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// MarkLeadCaptured flips the flag once; it never reverts.
func (c *DatabaseClient) MarkLeadCaptured(ctx context.Context, businessID, id string) error {
	const q = `
		UPDATE chat_sessions
		SET lead_captured = true, updated_at = now()
		WHERE business_id = $1 AND id = $2
	`
	res, err := c.db.ExecContext(ctx, q, businessID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// preview truncates message text for the session's last-message column.
func preview(text string) string {
	const max = 120
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
