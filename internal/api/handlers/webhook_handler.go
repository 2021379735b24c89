package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nexdesk-ai/nexdesk/internal/api/middlewares"
	"github.com/nexdesk-ai/nexdesk/internal/models"
	"github.com/nexdesk-ai/nexdesk/internal/services"
)

type WebhookHandler struct {
	messaging *services.MessagingService
}

func NewWebhookHandler(messaging *services.MessagingService) *WebhookHandler {
	return &WebhookHandler{messaging: messaging}
}

// Inbound receives the provider's form-encoded callback. Whatever the
// processing outcome, a 2xx tells the provider to stop retrying; the sid
// dedup makes any retry that does arrive harmless.
func (h *WebhookHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	sid := r.PostFormValue("MessageSid")
	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	if sid == "" || from == "" {
		http.Error(w, "MessageSid and From are required", http.StatusBadRequest)
		return
	}

	in := &models.InboundMessage{
		MessageSid: sid,
		BusinessID: chi.URLParam(r, "businessID"),
		From:       from,
		To:         r.PostFormValue("To"),
		Body:       body,
		MediaURLs:  r.PostForm["MediaUrl"],
	}

	status, err := h.messaging.HandleInbound(r.Context(), in)
	if err != nil {
		// Processed status is already persisted as failed; acknowledge anyway.
		writeJSON(w, http.StatusOK, map[string]string{"status": models.InboundStatusFailed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Send dispatches an outbound message. The Idempotency-Key header makes
// client retries safe: the same key always resolves to the same message.
func (h *WebhookHandler) Send(w http.ResponseWriter, r *http.Request) {
	businessID, ok := middleware.BusinessID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req sendRequest
	if err := decodeJSON(r, &req); err != nil || req.To == "" || req.Body == "" {
		http.Error(w, "to and body are required", http.StatusBadRequest)
		return
	}

	msg, err := h.messaging.SendOutbound(r.Context(), businessID, r.Header.Get("Idempotency-Key"), req.To, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}
