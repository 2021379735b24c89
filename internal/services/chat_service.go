package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexdesk-ai/nexdesk/internal/core"
	"github.com/nexdesk-ai/nexdesk/internal/core/prompt"
	"github.com/nexdesk-ai/nexdesk/internal/core/retrieval"
	"github.com/nexdesk-ai/nexdesk/internal/logger"
	"github.com/nexdesk-ai/nexdesk/internal/metrics"
	"github.com/nexdesk-ai/nexdesk/internal/models"
)

// Retriever assembles the knowledge context for one question.
type Retriever interface {
	Retrieve(ctx context.Context, businessID, question string) (*retrieval.Result, error)
}

// ChatService owns the conversation lifecycle: session creation, the
// append-retrieve-generate-append turn, and session bookkeeping.
type ChatService struct {
	db          core.DbClient
	retriever   Retriever
	llm         core.GenerationProvider
	maxMessages int // tenant default when the business has no plan value
	genTimeout  time.Duration
}

func NewChatService(db core.DbClient, retriever Retriever, llm core.GenerationProvider, maxMessages int, genTimeout time.Duration) *ChatService {
	if genTimeout <= 0 {
		genTimeout = 30 * time.Second
	}
	return &ChatService{db: db, retriever: retriever, llm: llm, maxMessages: maxMessages, genTimeout: genTimeout}
}

// TurnResult is the outcome of one full chat turn.
type TurnResult struct {
	Reply        string          `json:"reply"`
	Sources      []models.Source `json:"sources,omitempty"`
	MessageCount int             `json:"message_count"`
}

// CreateSession opens a conversation for exactly one owner identity.
func (s *ChatService) CreateSession(ctx context.Context, businessID, kind, visitorID, userID string) (*models.ChatSession, error) {
	if (visitorID == "") == (userID == "") {
		return nil, fmt.Errorf("%w: exactly one of visitor_id or user_id required", core.ErrInvalidSource)
	}
	if _, err := s.db.GetBusinessByID(ctx, businessID); err != nil {
		return nil, err
	}
	if kind == "" {
		kind = "widget"
	}

	session := &models.ChatSession{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		Kind:       kind,
		VisitorID:  visitorID,
		UserID:     userID,
		Status:     models.SessionStatusOpen,
	}
	if err := s.db.CreateChatSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) GetSession(ctx context.Context, businessID, id string) (*models.ChatSession, error) {
	return s.db.GetChatSession(ctx, businessID, id)
}

func (s *ChatService) ListMessages(ctx context.Context, businessID, sessionID string, limit int) ([]models.ChatMessage, error) {
	if _, err := s.db.GetChatSession(ctx, businessID, sessionID); err != nil {
		return nil, err
	}
	return s.db.ListMessagesBySession(ctx, sessionID, limit)
}

// HandleTurn runs one question through the full loop: append the user
// message (owner and cap enforced atomically), retrieve context, generate the
// reply, then append the assistant message with its citations. The user
// append keeps one slot of headroom under the cap and the assistant append
// skips the check, so an admitted question always gets its answer recorded
// and the count never passes the cap.
func (s *ChatService) HandleTurn(ctx context.Context, businessID, sessionID, callerID, text string) (*TurnResult, error) {
	business, err := s.db.GetBusinessByID(ctx, businessID)
	if err != nil {
		return nil, err
	}

	userLimit := s.messageCapFor(business)
	if userLimit > 0 {
		userLimit--
		if userLimit == 0 {
			// A turn writes two messages; a one-message cap admits none.
			metrics.ChatTurns.WithLabelValues("cap_reached").Inc()
			return nil, fmt.Errorf("%w: cap leaves no room for a reply", core.ErrMessageCapReached)
		}
	}

	userAppend, err := s.db.AppendMessage(ctx, core.AppendParams{
		SessionID:     sessionID,
		CallerID:      callerID,
		Role:          models.RoleUser,
		Text:          text,
		CapacityLimit: userLimit,
	})
	if err != nil {
		metrics.ChatTurns.WithLabelValues("error").Inc()
		return nil, err
	}
	if !userAppend.Allowed {
		metrics.ChatTurns.WithLabelValues("cap_reached").Inc()
		return nil, fmt.Errorf("%w: session holds %d messages", core.ErrMessageCapReached, userAppend.NewCount)
	}

	answer, sources, err := s.answer(ctx, business, text)
	if err != nil {
		metrics.ChatTurns.WithLabelValues("error").Inc()
		return nil, err
	}

	assistantAppend, err := s.db.AppendMessage(ctx, core.AppendParams{
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Text:      answer,
		Sources:   sources,
	})
	if err != nil {
		metrics.ChatTurns.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.ChatTurns.WithLabelValues("ok").Inc()
	return &TurnResult{
		Reply:        answer,
		Sources:      sources,
		MessageCount: assistantAppend.NewCount,
	}, nil
}

// PreviewAnswer answers a question against the knowledge base without
// touching any session, so owners can sanity-check their content.
func (s *ChatService) PreviewAnswer(ctx context.Context, businessID, question string) (string, int, error) {
	business, err := s.db.GetBusinessByID(ctx, businessID)
	if err != nil {
		return "", 0, err
	}
	answer, sources, err := s.answer(ctx, business, question)
	if err != nil {
		return "", 0, err
	}
	return answer, len(sources), nil
}

func (s *ChatService) CloseSession(ctx context.Context, businessID, id string) error {
	return s.db.CloseChatSession(ctx, businessID, id)
}

func (s *ChatService) MarkLeadCaptured(ctx context.Context, businessID, id string) error {
	return s.db.MarkLeadCaptured(ctx, businessID, id)
}

// answer retrieves context and generates the reply text.
func (s *ChatService) answer(ctx context.Context, business *models.Business, question string) (string, []models.Source, error) {
	start := time.Now()
	res, err := s.retriever.Retrieve(ctx, business.ID, question)
	metrics.RetrievalDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", nil, err
	}
	if res.HasContext {
		metrics.RetrievalResults.WithLabelValues("context").Inc()
	} else {
		metrics.RetrievalResults.WithLabelValues("empty").Inc()
	}

	systemPrompt := prompt.BuildSystemPrompt(business)
	userPrompt := prompt.BuildUserPrompt(res.ContextText, question, business)

	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()

	answer, err := s.llm.Generate(genCtx, systemPrompt, userPrompt)
	if err != nil {
		logger.Error("generation failed",
			zap.String("business_id", business.ID),
			zap.Error(err),
		)
		return "", nil, fmt.Errorf("%w: generate: %v", core.ErrProviderFailure, err)
	}
	return answer, res.Sources, nil
}

func (s *ChatService) messageCapFor(b *models.Business) int {
	if b.MaxSessionMsg > 0 {
		return b.MaxSessionMsg
	}
	return s.maxMessages
}
