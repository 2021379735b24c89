package core

import "errors"

// Error taxonomy. Store errors are translated into one of these before they
// reach handlers; idempotency conflicts are deliberately NOT errors.
var (
	// Validation: rejected before any state change.
	ErrInvalidSource = errors.New("invalid knowledge source")

	// Capacity: deterministic rejection, caller may act.
	ErrDocumentCapReached = errors.New("document cap reached")
	ErrMessageCapReached  = errors.New("message cap reached")

	// Ownership/access: fail-closed, never leak cross-tenant data.
	ErrAccessDenied = errors.New("access denied")

	// Lookup.
	ErrNotFound = errors.New("not found")

	// Provider: embedding/generation timeout or failure.
	ErrProviderFailure = errors.New("provider failure")

	// Session already closed; no further appends.
	ErrSessionClosed = errors.New("session closed")
)

// Document failure codes, persisted on KnowledgeDocument.ErrorCode.
const (
	ErrCodeEmbedFailed = "embed_failed"
	ErrCodeStoreFailed = "store_failed"
)
