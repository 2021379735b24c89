package services

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/nexdesk-ai/nexdesk/internal/core"
	"github.com/nexdesk-ai/nexdesk/internal/core/ingestion"
	"github.com/nexdesk-ai/nexdesk/internal/metrics"
	"github.com/nexdesk-ai/nexdesk/internal/models"
)

// Ingestor runs one source through the chunk/embed/store pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, businessID string, src ingestion.Source, maxDocs int) (string, error)
}

// KnowledgeService fronts the knowledge base: it accepts raw sources, hands
// them to the ingestion pipeline and serves document listings back to the
// owning business.
type KnowledgeService struct {
	db       core.DbClient
	storage  core.ObjectClient
	pipeline Ingestor
	bucket   string
	maxDocs  int // tenant default when the business has no plan value
}

func NewKnowledgeService(db core.DbClient, storage core.ObjectClient, pipeline Ingestor, bucket string, maxDocs int) *KnowledgeService {
	return &KnowledgeService{db: db, storage: storage, pipeline: pipeline, bucket: bucket, maxDocs: maxDocs}
}

// DocumentSummary is a listing row: the document plus a short preview built
// from its first chunks.
type DocumentSummary struct {
	models.KnowledgeDocument
	Preview string `json:"preview,omitempty"`
}

func (s *KnowledgeService) IngestText(ctx context.Context, businessID, name, text string) (string, error) {
	return s.ingest(ctx, businessID, ingestion.Source{
		Type: models.SourceTypeText,
		Name: name,
		Text: text,
	})
}

func (s *KnowledgeService) IngestURL(ctx context.Context, businessID, name, rawURL string) (string, error) {
	if name == "" {
		name = rawURL
	}
	return s.ingest(ctx, businessID, ingestion.Source{
		Type: models.SourceTypeURL,
		Name: name,
		URL:  rawURL,
	})
}

// IngestUpload stores the uploaded file in object storage first, then feeds
// the stored object through the pipeline so extraction can stream it back.
func (s *KnowledgeService) IngestUpload(ctx context.Context, businessID, filename, contentType string, data []byte) (string, error) {
	sourceType, err := sourceTypeForContent(contentType, filename)
	if err != nil {
		return "", err
	}

	key := s.objectKey(businessID, filename)
	url, err := s.storage.UploadFile(ctx, s.bucket, key, data, contentType)
	if err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}

	return s.ingest(ctx, businessID, ingestion.Source{
		Type:        sourceType,
		Name:        filename,
		Bucket:      s.bucket,
		StorageKey:  key,
		StorageURL:  url,
		ContentType: contentType,
	})
}

func (s *KnowledgeService) ingest(ctx context.Context, businessID string, src ingestion.Source) (string, error) {
	maxDocs, err := s.docCapFor(ctx, businessID)
	if err != nil {
		return "", err
	}

	docID, err := s.pipeline.Ingest(ctx, businessID, src, maxDocs)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.DocumentsIngested.WithLabelValues(src.Type, outcome).Inc()
	return docID, err
}

// ListDocuments returns the business's documents with a preview assembled
// from each document's leading chunks.
func (s *KnowledgeService) ListDocuments(ctx context.Context, businessID string) ([]DocumentSummary, error) {
	docs, err := s.db.ListDocumentsByBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}

	out := make([]DocumentSummary, 0, len(docs))
	for _, d := range docs {
		summary := DocumentSummary{KnowledgeDocument: d}
		if d.Status == models.DocStatusActive {
			chunks, err := s.db.GetChunksByDocument(ctx, d.ID, 2)
			if err != nil {
				return nil, err
			}
			summary.Preview = buildPreview(chunks)
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *KnowledgeService) GetDocument(ctx context.Context, businessID, id string) (*models.KnowledgeDocument, error) {
	return s.db.GetDocumentByID(ctx, businessID, id)
}

// SetDocumentStatus toggles a document between active and disabled, cascading
// to its chunks so disabled content drops out of retrieval immediately.
func (s *KnowledgeService) SetDocumentStatus(ctx context.Context, businessID, id, status string) error {
	if status != models.DocStatusActive && status != models.DocStatusDisabled {
		return fmt.Errorf("%w: status must be active or disabled", core.ErrInvalidSource)
	}
	return s.db.SetDocumentStatus(ctx, businessID, id, status)
}

func (s *KnowledgeService) docCapFor(ctx context.Context, businessID string) (int, error) {
	b, err := s.db.GetBusinessByID(ctx, businessID)
	if err != nil {
		return 0, err
	}
	if b.MaxDocuments > 0 {
		return b.MaxDocuments, nil
	}
	return s.maxDocs, nil
}

func (s *KnowledgeService) objectKey(businessID, filename string) string {
	filename = strings.ReplaceAll(strings.TrimSpace(filename), " ", "_")
	return path.Join("businesses", businessID, "sources", uuid.NewString(), filename)
}

func sourceTypeForContent(contentType, filename string) (string, error) {
	switch {
	case strings.HasPrefix(contentType, "application/pdf"):
		return models.SourceTypePDF, nil
	case strings.HasPrefix(contentType, "image/"):
		return models.SourceTypeImage, nil
	case strings.HasSuffix(strings.ToLower(filename), ".pdf"):
		return models.SourceTypePDF, nil
	default:
		return "", fmt.Errorf("%w: unsupported upload content type %q", core.ErrInvalidSource, contentType)
	}
}

func buildPreview(chunks []models.KnowledgeChunk) string {
	var sb strings.Builder
	for _, ch := range chunks {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(ch.Text)
	}
	const max = 240
	runes := []rune(sb.String())
	if len(runes) <= max {
		return sb.String()
	}
	return string(runes[:max]) + "…"
}
