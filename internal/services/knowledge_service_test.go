package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexdesk-ai/nexdesk/internal/core"
	"github.com/nexdesk-ai/nexdesk/internal/models"
)

func newKnowledgeFixture(ing *fakeIngestor) (*KnowledgeService, *fakeDB, *fakeObjectStore) {
	db := newFakeDB()
	seedBusiness(db, 0)
	obj := newFakeObjectStore()
	return NewKnowledgeService(db, obj, ing, "test-bucket", 50), db, obj
}

func TestIngestText_PassesSourceAndCap(t *testing.T) {
	ing := &fakeIngestor{}
	svc, _, _ := newKnowledgeFixture(ing)

	docID, err := svc.IngestText(context.Background(), "biz-1", "faq", "we open at nine")
	require.NoError(t, err)
	assert.Equal(t, "doc-faq", docID)

	require.Len(t, ing.sources, 1)
	assert.Equal(t, models.SourceTypeText, ing.sources[0].Type)
	assert.Equal(t, 50, ing.maxDocs, "tenant default cap applies")
}

func TestIngestText_BusinessCapOverridesDefault(t *testing.T) {
	ing := &fakeIngestor{}
	svc, db, _ := newKnowledgeFixture(ing)
	db.businesses["biz-1"].MaxDocuments = 5

	_, err := svc.IngestText(context.Background(), "biz-1", "faq", "text")
	require.NoError(t, err)
	assert.Equal(t, 5, ing.maxDocs)
}

func TestIngestURL_NameDefaultsToURL(t *testing.T) {
	ing := &fakeIngestor{}
	svc, _, _ := newKnowledgeFixture(ing)

	_, err := svc.IngestURL(context.Background(), "biz-1", "", "https://example.com/menu")
	require.NoError(t, err)
	require.Len(t, ing.sources, 1)
	assert.Equal(t, "https://example.com/menu", ing.sources[0].Name)
}

func TestIngestUpload_StoresObjectBeforePipeline(t *testing.T) {
	ing := &fakeIngestor{}
	svc, _, obj := newKnowledgeFixture(ing)

	_, err := svc.IngestUpload(context.Background(), "biz-1", "menu.pdf", "application/pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	require.Len(t, ing.sources, 1)
	src := ing.sources[0]
	assert.Equal(t, models.SourceTypePDF, src.Type)
	assert.Equal(t, "test-bucket", src.Bucket)
	assert.True(t, strings.HasPrefix(src.StorageKey, "businesses/biz-1/sources/"))
	assert.Contains(t, obj.uploads, src.StorageKey)
}

func TestIngestUpload_ImageContentType(t *testing.T) {
	ing := &fakeIngestor{}
	svc, _, _ := newKnowledgeFixture(ing)

	_, err := svc.IngestUpload(context.Background(), "biz-1", "board.jpg", "image/jpeg", []byte{0xff, 0xd8})
	require.NoError(t, err)
	assert.Equal(t, models.SourceTypeImage, ing.sources[0].Type)
}

func TestIngestUpload_RejectsUnsupportedType(t *testing.T) {
	ing := &fakeIngestor{}
	svc, _, obj := newKnowledgeFixture(ing)

	_, err := svc.IngestUpload(context.Background(), "biz-1", "data.xlsx", "application/vnd.ms-excel", []byte("x"))
	assert.ErrorIs(t, err, core.ErrInvalidSource)
	assert.Empty(t, ing.sources)
	assert.Empty(t, obj.uploads, "nothing stored for a rejected upload")
}

func TestListDocuments_PreviewOnlyForActive(t *testing.T) {
	svc, db, _ := newKnowledgeFixture(&fakeIngestor{})
	db.documents["d1"] = &models.KnowledgeDocument{ID: "d1", BusinessID: "biz-1", Status: models.DocStatusActive}
	db.documents["d2"] = &models.KnowledgeDocument{ID: "d2", BusinessID: "biz-1", Status: models.DocStatusProcessing}
	db.chunks["d1"] = []models.KnowledgeChunk{
		{ID: "c1", DocumentID: "d1", Text: "we open at nine", Status: models.ChunkStatusActive},
		{ID: "c2", DocumentID: "d1", Text: "we close at five", Status: models.ChunkStatusActive},
		{ID: "c3", DocumentID: "d1", Text: "never shown", Status: models.ChunkStatusActive},
	}

	docs, err := svc.ListDocuments(context.Background(), "biz-1")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	byID := map[string]DocumentSummary{}
	for _, d := range docs {
		byID[d.ID] = d
	}
	assert.Equal(t, "we open at nine we close at five", byID["d1"].Preview)
	assert.Empty(t, byID["d2"].Preview)
}

func TestSetDocumentStatus_ValidatesAndCascades(t *testing.T) {
	svc, db, _ := newKnowledgeFixture(&fakeIngestor{})
	db.documents["d1"] = &models.KnowledgeDocument{ID: "d1", BusinessID: "biz-1", Status: models.DocStatusActive}
	db.chunks["d1"] = []models.KnowledgeChunk{{ID: "c1", DocumentID: "d1", Status: models.ChunkStatusActive}}

	err := svc.SetDocumentStatus(context.Background(), "biz-1", "d1", "archived")
	assert.ErrorIs(t, err, core.ErrInvalidSource)

	require.NoError(t, svc.SetDocumentStatus(context.Background(), "biz-1", "d1", models.DocStatusDisabled))
	assert.Equal(t, models.DocStatusDisabled, db.documents["d1"].Status)
	assert.Equal(t, models.ChunkStatusDisabled, db.chunks["d1"][0].Status)
}

func TestSetDocumentStatus_WrongTenant(t *testing.T) {
	svc, db, _ := newKnowledgeFixture(&fakeIngestor{})
	db.documents["d1"] = &models.KnowledgeDocument{ID: "d1", BusinessID: "other-biz", Status: models.DocStatusActive}

	err := svc.SetDocumentStatus(context.Background(), "biz-1", "d1", models.DocStatusDisabled)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
