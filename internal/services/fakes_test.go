package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/nexdesk-ai/nexdesk/internal/core"
	"github.com/nexdesk-ai/nexdesk/internal/core/ingestion"
	"github.com/nexdesk-ai/nexdesk/internal/core/retrieval"
	"github.com/nexdesk-ai/nexdesk/internal/models"
)

// fakeDB is an in-memory core.DbClient that mirrors the store's transactional
// semantics closely enough to drive the services. Methods a test never
// touches panic through the embedded nil interface.
type fakeDB struct {
	core.DbClient

	mu         sync.Mutex
	businesses map[string]*models.Business
	sessions   map[string]*models.ChatSession
	messages   map[string][]models.ChatMessage
	inbound    map[string]*models.InboundMessage
	outbound   map[string]*models.OutboundMessage // by idempotency key
	documents  map[string]*models.KnowledgeDocument
	chunks     map[string][]models.KnowledgeChunk // by document id
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		businesses: map[string]*models.Business{},
		sessions:   map[string]*models.ChatSession{},
		messages:   map[string][]models.ChatMessage{},
		inbound:    map[string]*models.InboundMessage{},
		outbound:   map[string]*models.OutboundMessage{},
		documents:  map[string]*models.KnowledgeDocument{},
		chunks:     map[string][]models.KnowledgeChunk{},
	}
}

func (f *fakeDB) GetDocumentByID(_ context.Context, businessID, id string) (*models.KnowledgeDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[id]
	if !ok || d.BusinessID != businessID {
		return nil, core.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDB) ListDocumentsByBusiness(_ context.Context, businessID string) ([]models.KnowledgeDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.KnowledgeDocument
	for _, d := range f.documents {
		if d.BusinessID == businessID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDB) GetChunksByDocument(_ context.Context, documentID string, limit int) ([]models.KnowledgeChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chunks := f.chunks[documentID]
	if limit > 0 && limit < len(chunks) {
		chunks = chunks[:limit]
	}
	return append([]models.KnowledgeChunk(nil), chunks...), nil
}

func (f *fakeDB) SetDocumentStatus(_ context.Context, businessID, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[id]
	if !ok || d.BusinessID != businessID {
		return core.ErrNotFound
	}
	d.Status = status
	chunkStatus := models.ChunkStatusDisabled
	if status == models.DocStatusActive {
		chunkStatus = models.ChunkStatusActive
	}
	for i := range f.chunks[id] {
		f.chunks[id][i].Status = chunkStatus
	}
	return nil
}

func (f *fakeDB) GetBusinessByID(_ context.Context, id string) (*models.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.businesses[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeDB) CreateChatSession(_ context.Context, s *models.ChatSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeDB) GetChatSession(_ context.Context, businessID, id string) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.BusinessID != businessID {
		return nil, core.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeDB) GetOpenSessionByVisitor(_ context.Context, businessID, visitorID string) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.BusinessID == businessID && s.VisitorID == visitorID && s.Status == models.SessionStatusOpen {
			cp := *s
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeDB) AppendMessage(_ context.Context, p core.AppendParams) (*core.AppendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[p.SessionID]
	if !ok {
		return nil, core.ErrNotFound
	}
	if p.CallerID != "" && p.CallerID != s.Owner() {
		return nil, core.ErrAccessDenied
	}
	if s.Status == models.SessionStatusClosed {
		return nil, core.ErrSessionClosed
	}
	if p.CapacityLimit > 0 && s.MessageCount >= p.CapacityLimit {
		return &core.AppendResult{Allowed: false, NewCount: s.MessageCount}, nil
	}

	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: p.SessionID,
		Role:      p.Role,
		Text:      p.Text,
		Sources:   p.Sources,
	}
	f.messages[p.SessionID] = append(f.messages[p.SessionID], msg)
	s.MessageCount++
	s.LastMessage = p.Text
	return &core.AppendResult{Allowed: true, NewCount: s.MessageCount, MessageID: msg.ID}, nil
}

func (f *fakeDB) ListMessagesBySession(_ context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[sessionID]
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	return append([]models.ChatMessage(nil), msgs...), nil
}

func (f *fakeDB) CloseChatSession(_ context.Context, businessID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.BusinessID != businessID {
		return core.ErrNotFound
	}
	s.Status = models.SessionStatusClosed
	return nil
}

func (f *fakeDB) CreateInboundIdempotent(_ context.Context, m *models.InboundMessage) (bool, *models.InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.inbound[m.MessageSid]; ok {
		cp := *existing
		return false, &cp, nil
	}
	cp := *m
	cp.Status = models.InboundStatusQueued
	f.inbound[m.MessageSid] = &cp
	out := cp
	return true, &out, nil
}

func (f *fakeDB) MarkInboundProcessing(_ context.Context, messageSid string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.inbound[messageSid]
	if !ok || m.Status != models.InboundStatusQueued {
		return false, nil
	}
	m.Status = models.InboundStatusProcessing
	return true, nil
}

func (f *fakeDB) SetInboundStatus(_ context.Context, messageSid, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.inbound[messageSid]
	if !ok {
		return core.ErrNotFound
	}
	m.Status = status
	return nil
}

func (f *fakeDB) ReserveOutboundKey(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.outbound[key]; ok {
		return false, nil
	}
	f.outbound[key] = &models.OutboundMessage{
		ID:             uuid.NewString(),
		IdempotencyKey: key,
		Status:         "reserved",
	}
	return true, nil
}

func (f *fakeDB) CreateOutboundMessage(_ context.Context, m *models.OutboundMessage) (*models.OutboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.outbound[m.IdempotencyKey]
	if !ok {
		return nil, errors.New("key not reserved")
	}
	if row.Status == "reserved" {
		row.BusinessID = m.BusinessID
		row.To = m.To
		row.Body = m.Body
		row.Status = "queued"
	}
	cp := *row
	return &cp, nil
}

func (f *fakeDB) GetOutboundByKey(_ context.Context, key string) (*models.OutboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.outbound[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeDB) SetOutboundSent(_ context.Context, id, providerSid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.outbound {
		if row.ID == id {
			row.Status = "sent"
			row.ProviderSid = providerSid
			return nil
		}
	}
	return core.ErrNotFound
}

// fakeIngestor records the sources handed to the pipeline.
type fakeIngestor struct {
	sources []ingestion.Source
	maxDocs int
	docID   string
	err     error
}

func (f *fakeIngestor) Ingest(_ context.Context, _ string, src ingestion.Source, maxDocs int) (string, error) {
	f.sources = append(f.sources, src)
	f.maxDocs = maxDocs
	if f.err != nil {
		return "", f.err
	}
	if f.docID != "" {
		return f.docID, nil
	}
	return "doc-" + src.Name, nil
}

// fakeObjectStore records uploads in memory.
type fakeObjectStore struct {
	uploads map[string][]byte // by key
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{uploads: map[string][]byte{}}
}

func (f *fakeObjectStore) UploadFile(_ context.Context, bucket, key string, data []byte, _ string) (string, error) {
	f.uploads[key] = data
	return "https://" + bucket + ".s3.amazonaws.com/" + key, nil
}

func (f *fakeObjectStore) DeleteFile(_ context.Context, _, key string) error {
	delete(f.uploads, key)
	return nil
}

func (f *fakeObjectStore) GetFile(_ context.Context, _, key string) ([]byte, error) {
	data, ok := f.uploads[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	return data, nil
}

func (f *fakeObjectStore) GetObjectReader(_ context.Context, _, _ string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

// fakeRetriever returns a canned context.
type fakeRetriever struct {
	result *retrieval.Result
	err    error
	calls  int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, _ string) (*retrieval.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &retrieval.Result{HasContext: false}, nil
}

// fakeLLM echoes the prompts it saw.
type fakeLLM struct {
	reply string
	err   error
	calls int

	lastSystem string
	lastUser   string
}

func (f *fakeLLM) Generate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

// fakeSender counts provider dispatches.
type fakeSender struct {
	sends int
	err   error
}

func (f *fakeSender) Send(_ context.Context, _, _ string) (string, error) {
	f.sends++
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("SM-fake-%d", f.sends), nil
}
