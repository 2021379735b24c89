package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexdesk-ai/nexdesk/internal/core"
	"github.com/nexdesk-ai/nexdesk/internal/logger"
	"github.com/nexdesk-ai/nexdesk/internal/metrics"
	"github.com/nexdesk-ai/nexdesk/internal/models"
)

// MessagingService bridges the messaging provider and the chat loop. Inbound
// callbacks are deduplicated by provider sid, outbound sends by idempotency
// key; provider retries therefore never double-process or double-send.
type MessagingService struct {
	db     core.DbClient
	chat   *ChatService
	sender core.MessageSender
}

func NewMessagingService(db core.DbClient, chat *ChatService, sender core.MessageSender) *MessagingService {
	return &MessagingService{db: db, chat: chat, sender: sender}
}

// HandleInbound processes one provider callback. The receipt insert and the
// queued->processing transition together guarantee the chat turn and the
// reply run at most once per sid, no matter how often the provider retries.
func (s *MessagingService) HandleInbound(ctx context.Context, in *models.InboundMessage) (string, error) {
	created, existing, err := s.db.CreateInboundIdempotent(ctx, in)
	if err != nil {
		return "", err
	}
	if !created {
		metrics.InboundMessages.WithLabelValues("duplicate").Inc()
		logger.Info("inbound duplicate ignored",
			zap.String("message_sid", in.MessageSid),
			zap.String("status", existing.Status),
		)
		return existing.Status, nil
	}

	claimed, err := s.db.MarkInboundProcessing(ctx, in.MessageSid)
	if err != nil {
		return "", err
	}
	if !claimed {
		// Raced with another worker between insert and claim.
		metrics.InboundMessages.WithLabelValues("duplicate").Inc()
		return models.InboundStatusProcessing, nil
	}

	if err := s.processInbound(ctx, in); err != nil {
		if serr := s.db.SetInboundStatus(ctx, in.MessageSid, models.InboundStatusFailed); serr != nil {
			logger.Error("mark inbound failed", zap.String("message_sid", in.MessageSid), zap.Error(serr))
		}
		metrics.InboundMessages.WithLabelValues(models.InboundStatusFailed).Inc()
		return models.InboundStatusFailed, err
	}

	if err := s.db.SetInboundStatus(ctx, in.MessageSid, models.InboundStatusProcessed); err != nil {
		return "", err
	}
	metrics.InboundMessages.WithLabelValues(models.InboundStatusProcessed).Inc()
	return models.InboundStatusProcessed, nil
}

func (s *MessagingService) processInbound(ctx context.Context, in *models.InboundMessage) error {
	session, err := s.sessionFor(ctx, in.BusinessID, in.From)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}

	turn, err := s.chat.HandleTurn(ctx, in.BusinessID, session.ID, in.From, in.Body)
	if err != nil {
		return err
	}

	// The reply key derives from the inbound sid, so reprocessing an already
	// answered message can never dispatch a second copy.
	_, err = s.SendOutbound(ctx, in.BusinessID, "reply-"+in.MessageSid, in.From, turn.Reply)
	return err
}

// sessionFor reuses the sender's open conversation or starts a fresh one.
func (s *MessagingService) sessionFor(ctx context.Context, businessID, from string) (*models.ChatSession, error) {
	session, err := s.db.GetOpenSessionByVisitor(ctx, businessID, from)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	return s.chat.CreateSession(ctx, businessID, "messaging", from, "")
}

// SendOutbound dispatches one message at most once per idempotency key. A
// repeated key returns the original row without touching the provider.
func (s *MessagingService) SendOutbound(ctx context.Context, businessID, key, to, body string) (*models.OutboundMessage, error) {
	if key == "" {
		key = uuid.NewString()
	}

	reserved, err := s.db.ReserveOutboundKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if !reserved {
		msg, err := s.db.GetOutboundByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		metrics.OutboundSends.WithLabelValues("deduped").Inc()
		return msg, nil
	}

	msg, err := s.db.CreateOutboundMessage(ctx, &models.OutboundMessage{
		IdempotencyKey: key,
		BusinessID:     businessID,
		To:             to,
		Body:           body,
	})
	if err != nil {
		return nil, err
	}

	sid, err := s.sender.Send(ctx, to, body)
	if err != nil {
		metrics.OutboundSends.WithLabelValues("failed").Inc()
		return msg, err
	}
	if err := s.db.SetOutboundSent(ctx, msg.ID, sid); err != nil {
		return msg, err
	}
	msg.ProviderSid = sid
	msg.Status = "sent"

	metrics.OutboundSends.WithLabelValues("sent").Inc()
	return msg, nil
}
