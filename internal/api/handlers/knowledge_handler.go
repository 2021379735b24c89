package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nexdesk-ai/nexdesk/internal/api/middlewares"
	"github.com/nexdesk-ai/nexdesk/internal/models"
	"github.com/nexdesk-ai/nexdesk/internal/services"
)

const maxUploadBytes = 32 << 20 // 32 MB

type KnowledgeHandler struct {
	knowledge *services.KnowledgeService
}

func NewKnowledgeHandler(knowledge *services.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{knowledge: knowledge}
}

type ingestRequest struct {
	Type string `json:"type"` // "text" | "url"
	Name string `json:"name"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Ingest accepts either a JSON body (text/url sources) or a multipart form
// with a "file" field (pdf/image sources).
func (h *KnowledgeHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		h.ingestUpload(w, r, businessID)
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	var (
		docID string
		err   error
	)
	switch req.Type {
	case models.SourceTypeText:
		docID, err = h.knowledge.IngestText(r.Context(), businessID, req.Name, req.Text)
	case models.SourceTypeURL:
		docID, err = h.knowledge.IngestURL(r.Context(), businessID, req.Name, req.URL)
	default:
		http.Error(w, "type must be text or url", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"document_id": docID})
}

func (h *KnowledgeHandler) ingestUpload(w http.ResponseWriter, r *http.Request, businessID string) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		http.Error(w, "could not read file", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	filename := filepath.Base(header.Filename)

	docID, err := h.knowledge.IngestUpload(r.Context(), businessID, filename, contentType, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"document_id": docID})
}

func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	docs, err := h.knowledge.ListDocuments(r.Context(), businessID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *KnowledgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	doc, err := h.knowledge.GetDocument(r.Context(), businessID, chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type statusRequest struct {
	Status string `json:"status"` // "active" | "disabled"
}

func (h *KnowledgeHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.knowledge.SetDocumentStatus(r.Context(), businessID, chi.URLParam(r, "documentID"), req.Status); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}
