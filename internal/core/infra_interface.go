package core

import (
	"context"
	"io"

	"github.com/nexdesk-ai/nexdesk/internal/models"
)

// AppendParams drives the atomic append protocol on a chat session.
// CallerID is matched against the session owner when non-empty; server-side
// appends (assistant replies) pass an empty CallerID. CapacityLimit zero
// disables the cap check.
type AppendParams struct {
	SessionID     string
	CallerID      string
	Role          string
	Text          string
	Sources       []models.Source
	CapacityLimit int
}

// AppendResult reports the outcome of an append. Allowed=false means the cap
// was already reached and nothing was written.
type AppendResult struct {
	Allowed   bool
	NewCount  int
	MessageID string
}

type BusinessStore interface {
	CreateBusiness(ctx context.Context, b *models.Business) error
	GetBusinessByID(ctx context.Context, id string) (*models.Business, error)
	GetBusinessByEmail(ctx context.Context, email string) (*models.Business, error)
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.KnowledgeDocument) error
	GetDocumentByID(ctx context.Context, businessID, id string) (*models.KnowledgeDocument, error)
	GetDocumentByContentHash(ctx context.Context, businessID, hash string) (*models.KnowledgeDocument, error)
	ListDocumentsByBusiness(ctx context.Context, businessID string) ([]models.KnowledgeDocument, error)
	CountDocumentsByBusiness(ctx context.Context, businessID string) (int, error)

	// MarkDocumentFailed is best-effort terminal bookkeeping for a broken ingestion.
	MarkDocumentFailed(ctx context.Context, id, errorCode string) error

	// FinalizeDocument flips the document to active and records the chunk
	// rollup; it verifies the stored chunk count matches before committing.
	FinalizeDocument(ctx context.Context, id string, chunkCount int) error

	// SetDocumentStatus updates the document status and cascades it to every
	// child chunk in the same transaction.
	SetDocumentStatus(ctx context.Context, businessID, id, status string) error
}

type ChunkStore interface {
	// UpsertChunks writes chunks keyed by their content hash; identical text
	// is a no-op. Large slices spill into multiple bounded commits.
	UpsertChunks(ctx context.Context, chunks []models.KnowledgeChunk) error
	GetChunksByDocument(ctx context.Context, documentID string, limit int) ([]models.KnowledgeChunk, error)

	// SearchChunks runs tenant-scoped nearest-neighbor search over active
	// chunks, ordered by ascending distance.
	SearchChunks(ctx context.Context, businessID string, queryVec []float32, limit int) ([]models.RetrievedChunk, error)
}

type SessionStore interface {
	CreateChatSession(ctx context.Context, s *models.ChatSession) error
	GetChatSession(ctx context.Context, businessID, id string) (*models.ChatSession, error)
	GetOpenSessionByVisitor(ctx context.Context, businessID, visitorID string) (*models.ChatSession, error)

	// AppendMessage executes the atomic read-modify-write protocol: owner
	// check, cap check, message insert, count increment and preview update
	// happen all-or-nothing in one transaction.
	AppendMessage(ctx context.Context, p AppendParams) (*AppendResult, error)

	ListMessagesBySession(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
	CloseChatSession(ctx context.Context, businessID, id string) error
	MarkLeadCaptured(ctx context.Context, businessID, id string) error
}

type MessagingStore interface {
	// CreateInboundIdempotent inserts the receipt unless one already exists
	// for the sid; the second caller gets created=false and the original row.
	CreateInboundIdempotent(ctx context.Context, m *models.InboundMessage) (created bool, existing *models.InboundMessage, err error)

	// MarkInboundProcessing transitions queued->processing and returns true
	// exactly once per sid.
	MarkInboundProcessing(ctx context.Context, messageSid string) (bool, error)

	SetInboundStatus(ctx context.Context, messageSid, status string) error

	// ReserveOutboundKey claims an idempotency key; at most one caller ever
	// gets true for a given key.
	ReserveOutboundKey(ctx context.Context, key string) (bool, error)

	// CreateOutboundMessage fills in the reserved row; repeated creation under
	// the same key returns the originally created message.
	CreateOutboundMessage(ctx context.Context, m *models.OutboundMessage) (*models.OutboundMessage, error)

	GetOutboundByKey(ctx context.Context, key string) (*models.OutboundMessage, error)
	SetOutboundSent(ctx context.Context, id, providerSid string) error
}

// DbClient aggregates every persistence concern behind one dependency so
// higher layers never touch Postgres/pgvector directly.
type DbClient interface {
	BusinessStore
	DocumentStore
	ChunkStore
	SessionStore
	MessagingStore

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
