package ingestion

import (
	"fmt"
	"strings"

	"github.com/nexdesk-ai/nexdesk/internal/core"
	"github.com/nexdesk-ai/nexdesk/internal/models"
)

// Source is one raw knowledge input: pasted text, a URL to fetch, or an
// uploaded file already sitting in object storage.
type Source struct {
	Type        string
	Name        string
	Text        string // text sources
	URL         string // url sources
	Bucket      string // pdf/image sources
	StorageKey  string
	StorageURL  string
	ContentType string
}

// Validate rejects malformed sources before any state is written.
func (s Source) Validate() error {
	switch s.Type {
	case models.SourceTypeText:
		if strings.TrimSpace(s.Text) == "" {
			return fmt.Errorf("%w: text source requires non-empty text", core.ErrInvalidSource)
		}
	case models.SourceTypeURL:
		if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
			return fmt.Errorf("%w: url source requires an http(s) url", core.ErrInvalidSource)
		}
	case models.SourceTypePDF, models.SourceTypeImage:
		if s.Bucket == "" || s.StorageKey == "" {
			return fmt.Errorf("%w: %s source requires an uploaded file reference", core.ErrInvalidSource, s.Type)
		}
	default:
		return fmt.Errorf("%w: unsupported source type %q", core.ErrInvalidSource, s.Type)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: source name is required", core.ErrInvalidSource)
	}
	return nil
}
