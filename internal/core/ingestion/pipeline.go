package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nexdesk-ai/nexdesk/internal/core"
	"github.com/nexdesk-ai/nexdesk/internal/logger"
	"github.com/nexdesk-ai/nexdesk/internal/metrics"
	"github.com/nexdesk-ai/nexdesk/internal/models"
	"github.com/nexdesk-ai/nexdesk/pkg/retry"
	"github.com/nexdesk-ai/nexdesk/pkg/utils"
)

// Store is the slice of persistence the pipeline needs.
type Store interface {
	CreateDocument(ctx context.Context, doc *models.KnowledgeDocument) error
	GetDocumentByContentHash(ctx context.Context, businessID, hash string) (*models.KnowledgeDocument, error)
	CountDocumentsByBusiness(ctx context.Context, businessID string) (int, error)
	UpsertChunks(ctx context.Context, chunks []models.KnowledgeChunk) error
	FinalizeDocument(ctx context.Context, id string, chunkCount int) error
	MarkDocumentFailed(ctx context.Context, id, errorCode string) error
}

// Config tunes the pipeline.
//
// TargetTokens:  approximate tokens per chunk.
// EmbedBatch:    chunks embedded and written per batch.
// Timeout:       overall deadline for one ingestion run.
type Config struct {
	TargetTokens int
	EmbedBatch   int
	Timeout      time.Duration
}

// Pipeline turns a raw source into embedded, searchable chunks. It runs to
// completion within the calling request; there is no background scheduler.
type Pipeline struct {
	store     Store
	extractor SourceExtractor
	embedder  core.EmbeddingProvider
	cfg       Config
}

func NewPipeline(store Store, extractor SourceExtractor, embedder core.EmbeddingProvider, cfg Config) *Pipeline {
	if cfg.TargetTokens <= 0 {
		cfg.TargetTokens = 400
	}
	if cfg.EmbedBatch <= 0 {
		cfg.EmbedBatch = 16
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Pipeline{store: store, extractor: extractor, embedder: embedder, cfg: cfg}
}

// Ingest validates and extracts the source, creates (or reuses) the document,
// then splits, embeds and persists its chunks. maxDocs caps the tenant's
// document count; the check is best-effort check-then-create, a concurrent
// pair of ingests can momentarily exceed the cap.
func (p *Pipeline) Ingest(ctx context.Context, businessID string, src Source, maxDocs int) (string, error) {
	if err := src.Validate(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if maxDocs > 0 {
		n, err := p.store.CountDocumentsByBusiness(ctx, businessID)
		if err != nil {
			return "", err
		}
		if n >= maxDocs {
			return "", core.ErrDocumentCapReached
		}
	}

	text, err := p.extractor.Extract(ctx, src)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrInvalidSource, err)
	}
	if text == "" {
		return "", fmt.Errorf("%w: source produced no text", core.ErrInvalidSource)
	}
	contentHash := utils.HashString(text)

	// Re-ingestion of identical content lands on the same document: an
	// already-active one is a no-op, a failed one gets reprocessed.
	docID := ""
	existing, err := p.store.GetDocumentByContentHash(ctx, businessID, contentHash)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return "", err
	}
	if existing != nil {
		if existing.Status == models.DocStatusActive {
			return existing.ID, nil
		}
		docID = existing.ID
	}

	if docID == "" {
		docID = uuid.NewString()
		doc := &models.KnowledgeDocument{
			ID:          docID,
			BusinessID:  businessID,
			SourceType:  src.Type,
			SourceName:  src.Name,
			StorageURL:  src.StorageURL,
			Status:      models.DocStatusProcessing,
			ContentHash: contentHash,
		}
		if err := p.store.CreateDocument(ctx, doc); err != nil {
			return "", err
		}
	}

	segments := dedupeSegments(SplitText(text, p.cfg.TargetTokens))

	if err := p.embedAndPersist(ctx, businessID, docID, segments); err != nil {
		code := core.ErrCodeStoreFailed
		if errors.Is(err, core.ErrProviderFailure) {
			code = core.ErrCodeEmbedFailed
		}
		if ferr := p.store.MarkDocumentFailed(ctx, docID, code); ferr != nil {
			logger.Error("mark document failed",
				zap.String("business_id", businessID),
				zap.String("document_id", docID),
				zap.Error(ferr),
			)
		}
		return docID, err
	}

	if err := p.store.FinalizeDocument(ctx, docID, len(segments)); err != nil {
		_ = p.store.MarkDocumentFailed(ctx, docID, core.ErrCodeStoreFailed)
		return docID, err
	}

	metrics.ChunksWritten.Add(float64(len(segments)))
	logger.Info("document ingested",
		zap.String("business_id", businessID),
		zap.String("document_id", docID),
		zap.Int("chunks", len(segments)),
	)
	return docID, nil
}

// dedupeSegments drops repeated segment text, keeping the first occurrence.
// Chunk ids derive from the text, so duplicate segments (boilerplate lines,
// recurring pdf headers) would collapse into one stored row and the
// chunk-count rollup would never match.
func dedupeSegments(segments []string) []string {
	seen := make(map[string]struct{}, len(segments))
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// embedAndPersist ties the embed and persist stages together with an
// errgroup: batches flow through an ordered channel, so ordinals preserve
// source order and each write commits before the next batch lands.
func (p *Pipeline) embedAndPersist(ctx context.Context, businessID, docID string, segments []string) error {
	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan []models.KnowledgeChunk, 2)

	retryCfg := retry.DefaultConfig()
	retryCfg.Logger = logger.Log

	g.Go(func() error {
		defer close(batches)

		for start := 0; start < len(segments); start += p.cfg.EmbedBatch {
			end := start + p.cfg.EmbedBatch
			if end > len(segments) {
				end = len(segments)
			}
			texts := segments[start:end]

			vecs, err := retry.DoWithResult(gctx, retryCfg, func() ([][]float32, error) {
				return p.embedder.EmbedTexts(gctx, texts)
			})
			if err != nil {
				return fmt.Errorf("%w: embed batch [%d:%d]: %v", core.ErrProviderFailure, start, end, err)
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("%w: embed size mismatch: got %d want %d", core.ErrProviderFailure, len(vecs), len(texts))
			}

			rows := make([]models.KnowledgeChunk, len(texts))
			for k := range texts {
				rows[k] = models.KnowledgeChunk{
					ID:         utils.ChunkKey(docID, texts[k]),
					BusinessID: businessID,
					DocumentID: docID,
					Ordinal:    start + k,
					Text:       texts[k],
					Embedding:  vecs[k],
					Status:     models.ChunkStatusActive,
				}
			}

			select {
			case batches <- rows:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for rows := range batches {
			if err := p.store.UpsertChunks(gctx, rows); err != nil {
				return fmt.Errorf("persist chunks: %w", err)
			}
		}
		return nil
	})

	return g.Wait()
}
