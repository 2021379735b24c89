package messaging

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexdesk-ai/nexdesk/internal/core"
)

// WebhookSender posts outbound messages to the upstream provider's send
// endpoint as a form payload and returns the sid assigned by the provider.
type WebhookSender struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewWebhookSender(endpoint, token string) *WebhookSender {
	return &WebhookSender{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *WebhookSender) Send(ctx context.Context, to, body string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: provider send: %v", core.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: provider send: status %d", core.ErrProviderFailure, resp.StatusCode)
	}

	sid := resp.Header.Get("X-Message-Sid")
	if sid == "" {
		sid = "SM" + uuid.NewString()
	}
	return sid, nil
}

var _ core.MessageSender = (*WebhookSender)(nil)
