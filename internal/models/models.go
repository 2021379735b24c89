package models

import (
	"time"
)

// Document lifecycle statuses.
const (
	DocStatusProcessing = "processing"
	DocStatusActive     = "active"
	DocStatusDisabled   = "disabled"
	DocStatusFailed     = "failed"
)

// Chunk statuses. A chunk mirrors its parent document after a cascade.
const (
	ChunkStatusActive   = "active"
	ChunkStatusDisabled = "disabled"
)

// Knowledge source types.
const (
	SourceTypeText  = "text"
	SourceTypeURL   = "url"
	SourceTypePDF   = "pdf"
	SourceTypeImage = "image"
)

// Chat session statuses.
const (
	SessionStatusOpen   = "open"
	SessionStatusClosed = "closed"
)

// Inbound message statuses. Transitions are monotonic:
// queued -> processing -> processed | failed.
const (
	InboundStatusQueued     = "queued"
	InboundStatusProcessing = "processing"
	InboundStatusProcessed  = "processed"
	InboundStatusFailed     = "failed"
)

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Business is the tenant. Every document, chunk, session and message hangs
// off exactly one business.
type Business struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Category      string    `db:"category" json:"category"`
	Description   string    `db:"description" json:"description"`
	OwnerEmail    string    `db:"owner_email" json:"owner_email"`
	PasswordHash  string    `db:"password_hash" json:"-"`
	MaxDocuments  int       `db:"max_documents" json:"max_documents"`
	MaxSessionMsg int       `db:"max_session_msg" json:"max_session_msg"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// KnowledgeDocument represents one ingested source (pasted text, fetched URL
// or uploaded file). Status only reaches "active" once every derived chunk is
// written and ChunkCount matches.
type KnowledgeDocument struct {
	ID          string    `db:"id" json:"id"`
	BusinessID  string    `db:"business_id" json:"business_id"`
	SourceType  string    `db:"source_type" json:"source_type"`
	SourceName  string    `db:"source_name" json:"source_name"`
	StorageURL  string    `db:"storage_url" json:"storage_url,omitempty"`
	Status      string    `db:"status" json:"status"`
	ChunkCount  int       `db:"chunk_count" json:"chunk_count"`
	ContentHash string    `db:"content_hash" json:"content_hash"`
	ErrorCode   string    `db:"error_code" json:"error_code,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// KnowledgeChunk is one embedded text segment of a document. The ID is a
// deterministic hash of document id + text, so re-ingesting identical text
// never creates a duplicate row. Embeddings are immutable once written.
type KnowledgeChunk struct {
	ID         string    `db:"id" json:"id"`
	BusinessID string    `db:"business_id" json:"business_id"` // denormalized for cross-document search
	DocumentID string    `db:"document_id" json:"document_id"`
	Ordinal    int       `db:"ordinal" json:"ordinal"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// RetrievedChunk is a search hit: a chunk plus its vector distance to the
// query (lower is better).
type RetrievedChunk struct {
	Chunk      KnowledgeChunk
	SourceName string
	Score      float64
}

// ChatSession is one conversation thread. Exactly one of VisitorID (anonymous
// widget visitor) or UserID (authenticated end user) is set; ownership never
// changes after creation. MessageCount strictly mirrors the stored messages.
type ChatSession struct {
	ID           string    `db:"id" json:"id"`
	BusinessID   string    `db:"business_id" json:"business_id"`
	Kind         string    `db:"kind" json:"kind"`
	VisitorID    string    `db:"visitor_id" json:"visitor_id,omitempty"`
	UserID       string    `db:"user_id" json:"user_id,omitempty"`
	Status       string    `db:"status" json:"status"`
	MessageCount int       `db:"message_count" json:"message_count"`
	LastMessage  string    `db:"last_message" json:"last_message"`
	LeadCaptured bool      `db:"lead_captured" json:"lead_captured"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Owner returns whichever owner identity the session was created with.
func (s *ChatSession) Owner() string {
	if s.VisitorID != "" {
		return s.VisitorID
	}
	return s.UserID
}

// ChatMessage is an append-only child of a session.
type ChatMessage struct {
	ID        string    `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"session_id"`
	Role      string    `db:"role" json:"role"`
	Text      string    `db:"text" json:"text"`
	Sources   []Source  `db:"sources" json:"sources,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Source is one citation attached to an assistant message.
type Source struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	SourceName string  `json:"source_name"`
	Score      float64 `json:"score"`
}

// InboundMessage is a provider callback receipt, keyed by the provider's
// message sid. Creation is idempotent on that sid.
type InboundMessage struct {
	MessageSid string    `db:"message_sid" json:"message_sid"`
	BusinessID string    `db:"business_id" json:"business_id"`
	From       string    `db:"from_addr" json:"from"`
	To         string    `db:"to_addr" json:"to"`
	Body       string    `db:"body" json:"body"`
	MediaURLs  []string  `db:"media_urls" json:"media_urls,omitempty"`
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// OutboundMessage is a reply we dispatch through the messaging provider.
// IdempotencyKey is unique; at most one row may ever exist per key.
type OutboundMessage struct {
	ID             string    `db:"id" json:"id"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key"`
	BusinessID     string    `db:"business_id" json:"business_id"`
	To             string    `db:"to_addr" json:"to"`
	Body           string    `db:"body" json:"body"`
	ProviderSid    string    `db:"provider_sid" json:"provider_sid,omitempty"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
