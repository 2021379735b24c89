package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nexdesk-ai/nexdesk/internal/api/middlewares"
	"github.com/nexdesk-ai/nexdesk/internal/services"
)

type ChatHandler struct {
	chat *services.ChatService
}

func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type createSessionRequest struct {
	BusinessID string `json:"business_id"`
	Kind       string `json:"kind,omitempty"`
	VisitorID  string `json:"visitor_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
}

// CreateSession is a public widget endpoint: anonymous visitors open their
// own sessions, no auth token involved.
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.BusinessID == "" {
		http.Error(w, "business_id is required", http.StatusBadRequest)
		return
	}

	session, err := h.chat.CreateSession(r.Context(), req.BusinessID, req.Kind, req.VisitorID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

type postMessageRequest struct {
	BusinessID string `json:"business_id"`
	VisitorID  string `json:"visitor_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	Text       string `json:"text"`
}

// PostMessage runs one full chat turn. The caller identity must match the
// session owner; the append protocol rejects everything else.
func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.BusinessID == "" || req.Text == "" {
		http.Error(w, "business_id and text are required", http.StatusBadRequest)
		return
	}
	callerID := req.VisitorID
	if callerID == "" {
		callerID = req.UserID
	}
	if callerID == "" {
		http.Error(w, "caller identity is required", http.StatusBadRequest)
		return
	}

	turn, err := h.chat.HandleTurn(r.Context(), req.BusinessID, chi.URLParam(r, "sessionID"), callerID, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	businessID := r.URL.Query().Get("business_id")
	if id, ok := middleware.BusinessID(r); ok {
		businessID = id
	}
	if businessID == "" {
		http.Error(w, "business_id is required", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	msgs, err := h.chat.ListMessages(r.Context(), businessID, chi.URLParam(r, "sessionID"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type previewRequest struct {
	Question string `json:"question"`
}

// Preview answers against the knowledge base without a session, so owners
// can check what their customers would see.
func (h *ChatHandler) Preview(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	answer, chunkCount, err := h.chat.PreviewAnswer(r.Context(), businessID, req.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"answer":      answer,
		"chunk_count": chunkCount,
	})
}

func (h *ChatHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.chat.CloseSession(r.Context(), businessID, chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

type leadRequest struct {
	BusinessID string `json:"business_id"`
}

func (h *ChatHandler) MarkLead(w http.ResponseWriter, r *http.Request) {
	var req leadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BusinessID == "" {
		http.Error(w, "business_id is required", http.StatusBadRequest)
		return
	}

	if err := h.chat.MarkLeadCaptured(r.Context(), req.BusinessID, chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"lead_captured": true})
}
