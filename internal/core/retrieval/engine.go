package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nexdesk-ai/nexdesk/internal/core"
	"github.com/nexdesk-ai/nexdesk/internal/logger"
	"github.com/nexdesk-ai/nexdesk/internal/models"
	"github.com/nexdesk-ai/nexdesk/pkg/utils"
)

// Searcher is the nearest-neighbor slice of the store the engine needs.
type Searcher interface {
	SearchChunks(ctx context.Context, businessID string, queryVec []float32, limit int) ([]models.RetrievedChunk, error)
}

// EmbeddingCache avoids re-embedding repeated questions. Implementations may
// be nil'd out entirely; the engine treats a miss and no cache the same way.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

// Config carries the retrieval tunables.
//
// Breadth:        how many candidates the vector search returns (top-K-retrieve).
// ReturnCap:      how many chunks the context may contain (top-N-return).
// PerDocCap:      max accepted chunks per source document (diversity cap).
// ScoreThreshold: max admissible distance; lower score = better match.
// EmbedDim:       expected vector dimensionality; 0 skips the check.
type Config struct {
	Breadth        int
	ReturnCap      int
	PerDocCap      int
	ScoreThreshold float64
	EmbedDim       int
}

func DefaultConfig() Config {
	return Config{
		Breadth:        20,
		ReturnCap:      8,
		PerDocCap:      2,
		ScoreThreshold: 0.7,
	}
}

// Result is a bounded, ordered context for one question. HasContext=false
// means nothing qualified; callers must not fabricate an answer from it.
type Result struct {
	HasContext  bool
	ContextText string
	Sources     []models.Source
}

const cacheTTL = 15 * time.Minute

// Engine embeds a question and turns tenant-scoped vector search results
// into a ranked, diversified, budget-capped context.
type Engine struct {
	searcher Searcher
	embedder core.EmbeddingProvider
	cache    EmbeddingCache // optional
	cfg      Config
}

func NewEngine(searcher Searcher, embedder core.EmbeddingProvider, cache EmbeddingCache, cfg Config) *Engine {
	if cfg.Breadth <= 0 {
		cfg.Breadth = 20
	}
	if cfg.ReturnCap <= 0 {
		cfg.ReturnCap = 8
	}
	if cfg.PerDocCap <= 0 {
		cfg.PerDocCap = 2
	}
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = 0.7
	}
	return &Engine{searcher: searcher, embedder: embedder, cache: cache, cfg: cfg}
}

func (e *Engine) Retrieve(ctx context.Context, businessID, question string) (*Result, error) {
	queryVec, err := e.embedQuestion(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: embed question: %v", core.ErrProviderFailure, err)
	}
	if e.cfg.EmbedDim > 0 && len(queryVec) != e.cfg.EmbedDim {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d want %d", len(queryVec), e.cfg.EmbedDim)
	}

	candidates, err := e.searcher.SearchChunks(ctx, businessID, queryVec, e.cfg.Breadth)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	accepted := e.selectCandidates(candidates)
	if len(accepted) == 0 {
		return &Result{HasContext: false}, nil
	}

	var sb strings.Builder
	sources := make([]models.Source, 0, len(accepted))
	for i, r := range accepted {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s", i+1, r.Chunk.Text)
		sources = append(sources, models.Source{
			DocumentID: r.Chunk.DocumentID,
			ChunkID:    r.Chunk.ID,
			SourceName: r.SourceName,
			Score:      r.Score,
		})
	}

	logger.Debug("context assembled",
		zap.String("business_id", businessID),
		zap.Int("candidates", len(candidates)),
		zap.Int("accepted", len(accepted)),
	)
	return &Result{HasContext: true, ContextText: sb.String(), Sources: sources}, nil
}

// selectCandidates walks the score-ordered candidates, drops anything past
// the distance threshold, admits at most PerDocCap chunks per source
// document (skipping a capped document but continuing to lower-ranked
// candidates from others), and stops at ReturnCap accepted chunks. Ties keep
// the search's return order; there is no re-sort.
func (e *Engine) selectCandidates(candidates []models.RetrievedChunk) []models.RetrievedChunk {
	perDoc := make(map[string]int)
	accepted := make([]models.RetrievedChunk, 0, e.cfg.ReturnCap)

	for _, r := range candidates {
		if r.Score > e.cfg.ScoreThreshold {
			continue
		}
		if perDoc[r.Chunk.DocumentID] >= e.cfg.PerDocCap {
			continue
		}
		perDoc[r.Chunk.DocumentID]++
		accepted = append(accepted, r)
		if len(accepted) >= e.cfg.ReturnCap {
			break
		}
	}
	return accepted
}

func (e *Engine) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	key := utils.HashString(question)
	if e.cache != nil {
		if vec, ok, err := e.cache.GetEmbedding(ctx, key); err == nil && ok {
			return vec, nil
		}
	}

	vecs, err := e.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}

	if e.cache != nil {
		if err := e.cache.SetEmbedding(ctx, key, vecs[0], cacheTTL); err != nil {
			logger.Warn("embedding cache write failed", zap.Error(err))
		}
	}
	return vecs[0], nil
}
