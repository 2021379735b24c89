package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexdesk-ai/nexdesk/internal/core"
	"github.com/nexdesk-ai/nexdesk/internal/models"
	"github.com/nexdesk-ai/nexdesk/pkg/utils"
)

// fakeStore records pipeline writes in memory.
type fakeStore struct {
	docs      map[string]*models.KnowledgeDocument
	chunks    map[string]models.KnowledgeChunk
	docCount  int
	upserts   int
	failUpser error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:   map[string]*models.KnowledgeDocument{},
		chunks: map[string]models.KnowledgeChunk{},
	}
}

func (f *fakeStore) CreateDocument(_ context.Context, doc *models.KnowledgeDocument) error {
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeStore) GetDocumentByContentHash(_ context.Context, businessID, hash string) (*models.KnowledgeDocument, error) {
	for _, d := range f.docs {
		if d.BusinessID == businessID && d.ContentHash == hash {
			cp := *d
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeStore) CountDocumentsByBusiness(_ context.Context, _ string) (int, error) {
	return f.docCount, nil
}

func (f *fakeStore) UpsertChunks(_ context.Context, chunks []models.KnowledgeChunk) error {
	if f.failUpser != nil {
		return f.failUpser
	}
	f.upserts++
	for _, ch := range chunks {
		f.chunks[ch.ID] = ch
	}
	return nil
}

func (f *fakeStore) FinalizeDocument(_ context.Context, id string, chunkCount int) error {
	d, ok := f.docs[id]
	if !ok {
		return core.ErrNotFound
	}
	active := 0
	for _, ch := range f.chunks {
		if ch.DocumentID == id && ch.Status == models.ChunkStatusActive {
			active++
		}
	}
	if active != chunkCount {
		return errors.New("chunk rollup mismatch")
	}
	d.Status = models.DocStatusActive
	d.ChunkCount = chunkCount
	return nil
}

func (f *fakeStore) MarkDocumentFailed(_ context.Context, id, errorCode string) error {
	d, ok := f.docs[id]
	if !ok {
		return core.ErrNotFound
	}
	d.Status = models.DocStatusFailed
	d.ErrorCode = errorCode
	return nil
}

// fakeEmbedder returns deterministic unit vectors, or an error after N calls.
type fakeEmbedder struct {
	calls     int
	failAfter int // 0 = never fail
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.failAfter > 0 && f.calls > f.failAfter {
		return nil, errors.New("embedding unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type passthroughExtractor struct{}

func (passthroughExtractor) Extract(_ context.Context, src Source) (string, error) {
	return strings.TrimSpace(src.Text), nil
}

func newTestPipeline(store Store, emb core.EmbeddingProvider) *Pipeline {
	return NewPipeline(store, passthroughExtractor{}, emb, Config{
		TargetTokens: 10,
		EmbedBatch:   2,
		Timeout:      time.Minute,
	})
}

func textSource(text string) Source {
	return Source{Type: models.SourceTypeText, Name: "faq", Text: text}
}

func TestIngest_HappyPath(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{})

	docID, err := p.Ingest(context.Background(), "biz-1", textSource("our opening hours are nine to five"), 0)
	require.NoError(t, err)

	doc := store.docs[docID]
	require.NotNil(t, doc)
	assert.Equal(t, models.DocStatusActive, doc.Status)
	assert.Equal(t, len(store.chunks), doc.ChunkCount)
	assert.NotEmpty(t, doc.ContentHash)
}

func TestIngest_RejectsInvalidSource(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{})

	_, err := p.Ingest(context.Background(), "biz-1", Source{Type: "spreadsheet", Name: "x"}, 0)
	assert.ErrorIs(t, err, core.ErrInvalidSource)
	assert.Empty(t, store.docs, "nothing written before validation")

	_, err = p.Ingest(context.Background(), "biz-1", Source{Type: models.SourceTypeText, Name: "x", Text: "   "}, 0)
	assert.ErrorIs(t, err, core.ErrInvalidSource)
}

func TestIngest_DocumentCap(t *testing.T) {
	store := newFakeStore()
	store.docCount = 3
	p := newTestPipeline(store, &fakeEmbedder{})

	_, err := p.Ingest(context.Background(), "biz-1", textSource("hello"), 3)
	assert.ErrorIs(t, err, core.ErrDocumentCapReached)
	assert.Empty(t, store.docs)
}

func TestIngest_IdempotentChunkHashing(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{})
	text := "line one\nline two\nline three and more words here"

	docID1, err := p.Ingest(context.Background(), "biz-1", textSource(text), 0)
	require.NoError(t, err)
	countAfterFirst := len(store.chunks)
	require.Greater(t, countAfterFirst, 0)

	docID2, err := p.Ingest(context.Background(), "biz-1", textSource(text), 0)
	require.NoError(t, err)

	assert.Equal(t, docID1, docID2, "identical content resolves to the same document")
	assert.Equal(t, countAfterFirst, len(store.chunks), "re-ingestion adds no chunks")
}

func TestIngest_ChunkKeyDeterministic(t *testing.T) {
	assert.Equal(t, utils.ChunkKey("d1", "same text"), utils.ChunkKey("d1", "same text"))
	assert.NotEqual(t, utils.ChunkKey("d1", "same text"), utils.ChunkKey("d2", "same text"))
}

func TestIngest_RepeatedSegmentsActivate(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{})

	// Two identical full-size lines split into two identical segments that
	// share one chunk key; the rollup must count stored rows, not raw splits.
	boiler := "standard opening hours apply weekdays"
	text := strings.Join([]string{boiler, boiler, "we are closed on public holidays yearly"}, "\n")

	docID, err := p.Ingest(context.Background(), "biz-1", textSource(text), 0)
	require.NoError(t, err)

	doc := store.docs[docID]
	require.NotNil(t, doc)
	assert.Equal(t, models.DocStatusActive, doc.Status)
	assert.Equal(t, 2, doc.ChunkCount, "duplicate segment stored once")
	assert.Len(t, store.chunks, 2)
}

func TestIngest_EmbedFailureMarksFailed(t *testing.T) {
	store := newFakeStore()
	// First batch embeds fine, retries of the second keep failing.
	emb := &fakeEmbedder{failAfter: 1}
	p := newTestPipeline(store, emb)

	long := strings.Repeat("some words about the business\n", 10)
	docID, err := p.Ingest(context.Background(), "biz-1", textSource(long), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrProviderFailure)

	doc := store.docs[docID]
	require.NotNil(t, doc)
	assert.Equal(t, models.DocStatusFailed, doc.Status)
	assert.Equal(t, core.ErrCodeEmbedFailed, doc.ErrorCode)
}

func TestIngest_ReingestAfterFailureSucceeds(t *testing.T) {
	store := newFakeStore()
	emb := &fakeEmbedder{failAfter: 1}
	p := newTestPipeline(store, emb)

	long := strings.Repeat("some words about the business\n", 10)
	failedID, err := p.Ingest(context.Background(), "biz-1", textSource(long), 0)
	require.Error(t, err)

	emb.failAfter = 0
	docID, err := p.Ingest(context.Background(), "biz-1", textSource(long), 0)
	require.NoError(t, err)

	assert.Equal(t, failedID, docID, "failed document is reused, not duplicated")
	assert.Equal(t, models.DocStatusActive, store.docs[docID].Status)
	assert.Equal(t, store.docs[docID].ChunkCount, len(store.chunks))
}

func TestIngest_StoreFailureMarksFailed(t *testing.T) {
	store := newFakeStore()
	store.failUpser = errors.New("disk full")
	p := newTestPipeline(store, &fakeEmbedder{})

	docID, err := p.Ingest(context.Background(), "biz-1", textSource("hello there business"), 0)
	require.Error(t, err)

	doc := store.docs[docID]
	require.NotNil(t, doc)
	assert.Equal(t, models.DocStatusFailed, doc.Status)
	assert.Equal(t, core.ErrCodeStoreFailed, doc.ErrorCode)
}

func TestIngest_OrdinalsPreserveSourceOrder(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{})

	lines := []string{
		"first paragraph with enough words to fill a segment boundary",
		"second paragraph with enough words to fill a segment boundary",
		"third paragraph with enough words to fill a segment boundary",
	}
	docID, err := p.Ingest(context.Background(), "biz-1", textSource(strings.Join(lines, "\n")), 0)
	require.NoError(t, err)

	byOrdinal := map[int]string{}
	for _, ch := range store.chunks {
		require.Equal(t, docID, ch.DocumentID)
		byOrdinal[ch.Ordinal] = ch.Text
	}
	for i := 0; i < len(byOrdinal); i++ {
		_, ok := byOrdinal[i]
		assert.True(t, ok, "ordinal %d missing", i)
	}
}
