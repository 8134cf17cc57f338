package detector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/lineage-engine/internal/models"
	"github.com/feichai0017/lineage-engine/internal/store/memory"
	"github.com/feichai0017/lineage-engine/pkg/logger"
)

func newDetector(t *testing.T) (*Detector, *memory.Store) {
	t.Helper()
	s := memory.NewStore()
	return NewDetector(s, s, logger.NewTestLogger()), s
}

func seed(t *testing.T, s *memory.Store, doc *models.Document) {
	t.Helper()
	_, err := s.PutDocument(context.Background(), doc)
	require.NoError(t, err)
}

func TestDetectFindsBestCandidate(t *testing.T) {
	ctx := context.Background()
	d, s := newDetector(t)
	seed(t, s, &models.Document{ID: "old", Name: "Policy v1.pdf", Folder: "hr"})
	seed(t, s, &models.Document{ID: "other", Name: "Holiday Schedule.pdf", Folder: "hr"})
	seed(t, s, &models.Document{ID: "new", Name: "Policy v2.pdf", Folder: "hr"})

	candidate, err := d.Detect(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, candidate)
	assert.Equal(t, "new", candidate.NewID)
	assert.Equal(t, "old", candidate.OldID)
	assert.GreaterOrEqual(t, candidate.Score, Threshold)
	assert.Equal(t, models.CandidatePending, candidate.Status)
}

func TestDetectNoCandidateBelowThreshold(t *testing.T) {
	ctx := context.Background()
	d, s := newDetector(t)
	seed(t, s, &models.Document{ID: "a", Name: "NDA.docx", Folder: "legal"})
	seed(t, s, &models.Document{ID: "new", Name: "Sales Agreement.docx", Folder: "legal"})

	candidate, err := d.Detect(ctx, "new")
	require.NoError(t, err)
	assert.Nil(t, candidate)
}

func TestDetectScopedToFolder(t *testing.T) {
	ctx := context.Background()
	d, s := newDetector(t)
	seed(t, s, &models.Document{ID: "elsewhere", Name: "Policy v1.pdf", Folder: "archive"})
	seed(t, s, &models.Document{ID: "new", Name: "Policy v2.pdf", Folder: "hr"})

	candidate, err := d.Detect(ctx, "new")
	require.NoError(t, err)
	assert.Nil(t, candidate)
}

func TestDetectIgnoresArchivedDocuments(t *testing.T) {
	ctx := context.Background()
	d, s := newDetector(t)
	seed(t, s, &models.Document{ID: "old", Name: "Policy v1.pdf", Folder: "hr", Status: models.StatusArchived})
	seed(t, s, &models.Document{ID: "new", Name: "Policy v2.pdf", Folder: "hr"})

	candidate, err := d.Detect(ctx, "new")
	require.NoError(t, err)
	assert.Nil(t, candidate)
}

func TestDetectTieBreaksOnRecency(t *testing.T) {
	ctx := context.Background()
	d, s := newDetector(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Both normalize to "contract" and score 1.0 against the new document;
	// the newer modification wins.
	seed(t, s, &models.Document{ID: "stale", Name: "Contract v1.pdf", Folder: "legal", ModifiedAt: base})
	seed(t, s, &models.Document{ID: "fresh", Name: "Contract draft.pdf", Folder: "legal", ModifiedAt: base.Add(time.Hour)})
	seed(t, s, &models.Document{ID: "new", Name: "Contract v2.pdf", Folder: "legal"})

	candidate, err := d.Detect(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, candidate)
	assert.Equal(t, "fresh", candidate.OldID)
}

func TestDetectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d, s := newDetector(t)
	seed(t, s, &models.Document{ID: "old", Name: "Report 2023.pdf", Folder: "finance"})
	seed(t, s, &models.Document{ID: "new", Name: "Report updated.pdf", Folder: "finance"})

	first, err := d.Detect(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := d.Detect(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
}

func TestDetectMissingDocument(t *testing.T) {
	d, _ := newDetector(t)
	_, err := d.Detect(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDetectWithoutExtractedText(t *testing.T) {
	// Detection is name-based; documents with no extracted text still
	// detect fine.
	ctx := context.Background()
	d, s := newDetector(t)
	seed(t, s, &models.Document{ID: "old", Name: "Manual v1.pdf", Folder: "docs"})
	seed(t, s, &models.Document{ID: "new", Name: "Manual v2.pdf", Folder: "docs", FullText: nil})

	candidate, err := d.Detect(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, candidate)
}
