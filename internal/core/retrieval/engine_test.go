package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexdesk-ai/nexdesk/internal/models"
)

type fakeSearcher struct {
	results []models.RetrievedChunk
	err     error
	gotK    int
}

func (f *fakeSearcher) SearchChunks(_ context.Context, _ string, _ []float32, limit int) ([]models.RetrievedChunk, error) {
	f.gotK = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type memCache struct {
	store map[string][]float32
}

func (m *memCache) GetEmbedding(_ context.Context, key string) ([]float32, bool, error) {
	v, ok := m.store[key]
	return v, ok, nil
}

func (m *memCache) SetEmbedding(_ context.Context, key string, vec []float32, _ time.Duration) error {
	m.store[key] = vec
	return nil
}

func hit(doc, chunk, text string, score float64) models.RetrievedChunk {
	return models.RetrievedChunk{
		Chunk:      models.KnowledgeChunk{ID: chunk, DocumentID: doc, Text: text, Status: models.ChunkStatusActive},
		SourceName: doc + ".txt",
		Score:      score,
	}
}

func newTestEngine(s Searcher, cache EmbeddingCache) *Engine {
	return NewEngine(s, &fakeEmbedder{}, cache, DefaultConfig())
}

func TestRetrieve_ThresholdFilterHolds(t *testing.T) {
	searcher := &fakeSearcher{results: []models.RetrievedChunk{
		hit("d1", "c1", "good", 0.3),
		hit("d2", "c2", "acceptable", 0.69),
		hit("d3", "c3", "poor", 0.9),
	}}
	res, err := newTestEngine(searcher, nil).Retrieve(context.Background(), "biz-1", "q")
	require.NoError(t, err)

	require.True(t, res.HasContext)
	require.Len(t, res.Sources, 2)
	for _, s := range res.Sources {
		assert.LessOrEqual(t, s.Score, 0.7)
		assert.NotEqual(t, "c3", s.ChunkID)
	}
}

func TestRetrieve_DiversityCapHolds(t *testing.T) {
	// One document holds all the top scores; it still may contribute at
	// most two chunks, and lower-ranked chunks from other docs fill in.
	var results []models.RetrievedChunk
	for i := 0; i < 9; i++ {
		results = append(results, hit("dominant", fmt.Sprintf("dom-%d", i), "t", 0.1+float64(i)*0.01))
	}
	results = append(results,
		hit("other-a", "a1", "t", 0.5),
		hit("other-b", "b1", "t", 0.6),
	)
	res, err := newTestEngine(&fakeSearcher{results: results}, nil).Retrieve(context.Background(), "biz-1", "q")
	require.NoError(t, err)

	perDoc := map[string]int{}
	for _, s := range res.Sources {
		perDoc[s.DocumentID]++
	}
	assert.Equal(t, 2, perDoc["dominant"])
	assert.Equal(t, 1, perDoc["other-a"])
	assert.Equal(t, 1, perDoc["other-b"])
	assert.Len(t, res.Sources, 4)
}

func TestRetrieve_ReturnCapStopsAcceptance(t *testing.T) {
	var results []models.RetrievedChunk
	for i := 0; i < 20; i++ {
		results = append(results, hit(fmt.Sprintf("d%d", i), fmt.Sprintf("c%d", i), "t", 0.2))
	}
	res, err := newTestEngine(&fakeSearcher{results: results}, nil).Retrieve(context.Background(), "biz-1", "q")
	require.NoError(t, err)
	assert.Len(t, res.Sources, 8)
}

func TestRetrieve_RequestsBreadthK(t *testing.T) {
	searcher := &fakeSearcher{}
	_, err := newTestEngine(searcher, nil).Retrieve(context.Background(), "biz-1", "q")
	require.NoError(t, err)
	assert.Equal(t, 20, searcher.gotK)
}

func TestRetrieve_ContextFormatting(t *testing.T) {
	searcher := &fakeSearcher{results: []models.RetrievedChunk{
		hit("d1", "c1", "first chunk text", 0.1),
		hit("d2", "c2", "second chunk text", 0.2),
	}}
	res, err := newTestEngine(searcher, nil).Retrieve(context.Background(), "biz-1", "q")
	require.NoError(t, err)

	assert.Equal(t, "[1] first chunk text\n\n[2] second chunk text", res.ContextText)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, "c1", res.Sources[0].ChunkID)
	assert.Equal(t, "c2", res.Sources[1].ChunkID)
}

func TestRetrieve_TiesKeepReturnOrder(t *testing.T) {
	searcher := &fakeSearcher{results: []models.RetrievedChunk{
		hit("d1", "c1", "alpha", 0.4),
		hit("d2", "c2", "beta", 0.4),
		hit("d3", "c3", "gamma", 0.4),
	}}
	res, err := newTestEngine(searcher, nil).Retrieve(context.Background(), "biz-1", "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2", "c3"},
		[]string{res.Sources[0].ChunkID, res.Sources[1].ChunkID, res.Sources[2].ChunkID})
}

func TestRetrieve_EmptyContextFallback(t *testing.T) {
	searcher := &fakeSearcher{results: []models.RetrievedChunk{
		hit("d1", "c1", "poor match", 0.95),
	}}
	res, err := newTestEngine(searcher, nil).Retrieve(context.Background(), "biz-1", "q")
	require.NoError(t, err)

	assert.False(t, res.HasContext)
	assert.Empty(t, res.ContextText)
	assert.Empty(t, res.Sources)
}

func TestRetrieve_SearchErrorPropagates(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("index offline")}
	_, err := newTestEngine(searcher, nil).Retrieve(context.Background(), "biz-1", "q")
	assert.Error(t, err)
}

func TestRetrieve_EmbeddingCacheAvoidsSecondCall(t *testing.T) {
	emb := &fakeEmbedder{}
	engine := NewEngine(&fakeSearcher{}, emb, &memCache{store: map[string][]float32{}}, DefaultConfig())

	_, err := engine.Retrieve(context.Background(), "biz-1", "same question")
	require.NoError(t, err)
	_, err = engine.Retrieve(context.Background(), "biz-1", "same question")
	require.NoError(t, err)

	assert.Equal(t, 1, emb.calls)
}

func TestRetrieve_DimensionMismatchRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EmbedDim = 768 // fake embedder emits 3-dim vectors
	engine := NewEngine(&fakeSearcher{}, &fakeEmbedder{}, nil, cfg)

	_, err := engine.Retrieve(context.Background(), "biz-1", "q")
	assert.ErrorContains(t, err, "dimension mismatch")
}
