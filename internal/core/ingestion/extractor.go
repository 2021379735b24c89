package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"code.sajari.com/docconv"
	"github.com/PuerkitoBio/goquery"

	"github.com/nexdesk-ai/nexdesk/internal/core"
	"github.com/nexdesk-ai/nexdesk/internal/models"
)

// SourceExtractor resolves a raw source into plain text.
type SourceExtractor interface {
	Extract(ctx context.Context, src Source) (string, error)
}

// Extractor handles all four source types: pasted text passes through,
// URLs are fetched and stripped of markup, uploaded pdf/image files are
// pulled from object storage and run through docconv (OCR for images).
type Extractor struct {
	obj        core.ObjectClient
	httpClient *http.Client
}

func NewExtractor(obj core.ObjectClient) *Extractor {
	return &Extractor{
		obj:        obj,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *Extractor) Extract(ctx context.Context, src Source) (string, error) {
	switch src.Type {
	case models.SourceTypeText:
		return strings.TrimSpace(src.Text), nil
	case models.SourceTypeURL:
		return e.extractURL(ctx, src.URL)
	case models.SourceTypePDF, models.SourceTypeImage:
		return e.extractFile(ctx, src)
	default:
		return "", fmt.Errorf("%w: unsupported source type %q", core.ErrInvalidSource, src.Type)
	}
}

func (e *Extractor) extractURL(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrInvalidSource, err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch url: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, nav, header, footer, iframe, noscript").Remove()
	text := doc.Find("body").Text()
	return normalizeWhitespace(text), nil
}

func (e *Extractor) extractFile(ctx context.Context, src Source) (string, error) {
	data, err := e.obj.GetFile(ctx, src.Bucket, src.StorageKey)
	if err != nil {
		return "", fmt.Errorf("get source object: %w", err)
	}

	contentType := src.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	res, err := docconv.Convert(bytes.NewReader(data), contentType, false)
	if err != nil {
		return "", fmt.Errorf("docconv %s: %w", src.Type, err)
	}
	return normalizeWhitespace(res.Body), nil
}

var multiSpace = regexp.MustCompile(`[ \t]+`)

func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = multiSpace.ReplaceAllString(strings.TrimSpace(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

var _ SourceExtractor = (*Extractor)(nil)
