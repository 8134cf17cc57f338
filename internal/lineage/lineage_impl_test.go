package lineage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/lineage-engine/internal/detector"
	"github.com/feichai0017/lineage-engine/internal/models"
	"github.com/feichai0017/lineage-engine/internal/store"
	"github.com/feichai0017/lineage-engine/internal/store/memory"
	"github.com/feichai0017/lineage-engine/pkg/logger"
	"github.com/feichai0017/lineage-engine/pkg/queue"
)

type fakeQueue struct {
	mu       sync.Mutex
	tasks    []*queue.Task
	statuses map[string]*queue.TaskStatus
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{statuses: make(map[string]*queue.TaskStatus)}
}

func (q *fakeQueue) Enqueue(ctx context.Context, task *queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) GetTaskStatus(ctx context.Context, taskID string) (*queue.TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	status, ok := q.statuses[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	return status, nil
}

func (q *fakeQueue) SaveFinalStatus(ctx context.Context, status *queue.TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[status.TaskID] = status
	return nil
}

type fakeExtractor struct {
	texts map[string]string
	calls int32
}

func (e *fakeExtractor) Extract(ctx context.Context, storagePath string) (string, error) {
	atomic.AddInt32(&e.calls, 1)
	text, ok := e.texts[storagePath]
	if !ok {
		return "", errors.New("blob missing")
	}
	return text, nil
}

// countingDiffCache wraps a real cache to observe recomputation behavior.
type countingDiffCache struct {
	inner store.DiffCache
	gets  int32
	puts  int32
}

func (c *countingDiffCache) GetDiff(ctx context.Context, oldID, newID string) (*models.DiffEntry, error) {
	atomic.AddInt32(&c.gets, 1)
	return c.inner.GetDiff(ctx, oldID, newID)
}

func (c *countingDiffCache) PutDiff(ctx context.Context, entry *models.DiffEntry) error {
	atomic.AddInt32(&c.puts, 1)
	return c.inner.PutDiff(ctx, entry)
}

type fixture struct {
	svc   *Service
	mem   *memory.Store
	queue *fakeQueue
	cache *countingDiffCache
	ext   *fakeExtractor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memory.NewStore()
	log := logger.NewTestLogger()
	fq := newFakeQueue()
	dc := &countingDiffCache{inner: mem}
	ext := &fakeExtractor{texts: make(map[string]string)}

	svc := NewService(&Deps{
		Registrar:  mem,
		Documents:  mem,
		Candidates: mem,
		Edges:      mem,
		DiffCache:  dc,
		Detector:   detector.NewDetector(mem, mem, log),
		Extractor:  ext,
		Queue:      fq,
		Logger:     log,
	})
	return &fixture{svc: svc, mem: mem, queue: fq, cache: dc, ext: ext}
}

func (f *fixture) seed(t *testing.T, doc *models.Document) *models.Document {
	t.Helper()
	stored, err := f.mem.PutDocument(context.Background(), doc)
	require.NoError(t, err)
	return stored
}

func strPtr(s string) *string { return &s }

func TestConfirmPromotesAndArchives(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, &models.Document{ID: "old", Name: "Policy v1.pdf", Folder: "hr", Version: 1})
	f.seed(t, &models.Document{ID: "new", Name: "Policy v2.pdf", Folder: "hr"})

	cand, err := f.svc.DetectCandidate(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, cand)

	link, err := f.svc.Confirm(ctx, cand.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusArchived, link.Archived.Status)
	assert.Equal(t, 2, link.Promoted.Version)
	assert.Equal(t, models.StatusActive, link.Promoted.Status)
	// Operator confirmation records full confidence.
	assert.Equal(t, 1.0, link.Edge.Confidence)

	got, err := f.mem.GetCandidate(ctx, cand.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CandidateConfirmed, got.Status)

	chain, err := f.svc.GetVersionChain(ctx, "new")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "old", chain[0].ID)
	assert.Equal(t, "new", chain[1].ID)
}

func TestAutoConfirmRecordsDetectorScore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, &models.Document{ID: "old", Name: "Quarterly Report.pdf", Folder: "ops"})
	f.seed(t, &models.Document{ID: "new", Name: "Quartery Report v2.pdf", Folder: "ops"})

	cand, err := f.svc.DetectCandidate(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, cand)
	require.Less(t, cand.Score, 1.0)

	link, err := f.svc.AutoConfirm(ctx, cand.ID)
	require.NoError(t, err)
	assert.Equal(t, cand.Score, link.Edge.Confidence)
}

func TestConfirmPrecomputesDiffWhenTextPresent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, &models.Document{ID: "old", Name: "Terms v1.pdf", Folder: "legal", FullText: strPtr("a\nb")})
	f.seed(t, &models.Document{ID: "new", Name: "Terms v2.pdf", Folder: "legal", FullText: strPtr("a\nc")})

	cand, err := f.svc.DetectCandidate(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, cand)

	_, err = f.svc.Confirm(ctx, cand.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.cache.puts))

	// The later read is a pure cache hit.
	hunks, err := f.svc.GetDiff(ctx, "old", "new")
	require.NoError(t, err)
	assert.NotEmpty(t, hunks)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.cache.puts))
}

func TestConfirmSkipsDiffWhenTextMissing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, &models.Document{ID: "old", Name: "Memo v1.pdf", Folder: "ops"})
	f.seed(t, &models.Document{ID: "new", Name: "Memo v2.pdf", Folder: "ops", FullText: strPtr("text")})

	cand, err := f.svc.DetectCandidate(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, cand)

	// Missing text on one side: the confirm still succeeds and no diff is
	// written.
	_, err = f.svc.Confirm(ctx, cand.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.cache.puts))
}

func TestConfirmTerminalCandidateConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, &models.Document{ID: "old", Name: "Plan v1.pdf", Folder: "ops"})
	f.seed(t, &models.Document{ID: "new", Name: "Plan v2.pdf", Folder: "ops"})

	cand, err := f.svc.DetectCandidate(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, cand)

	require.NoError(t, f.svc.Dismiss(ctx, cand.ID))

	_, err = f.svc.Confirm(ctx, cand.ID)
	assert.ErrorIs(t, err, models.ErrConflict)

	err = f.svc.Dismiss(ctx, cand.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestConfirmMissingCandidate(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Confirm(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestConfirmLeavesCandidatePendingWhenOldNotLive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, &models.Document{ID: "old", Name: "Spec v1.pdf", Folder: "eng"})
	f.seed(t, &models.Document{ID: "new", Name: "Spec v2.pdf", Folder: "eng"})

	cand, err := f.svc.DetectCandidate(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, cand)

	// The old document gets archived out from under the candidate.
	f.seed(t, &models.Document{ID: "other", Name: "Spec draft.pdf", Folder: "eng"})
	_, err = f.svc.ManualLink(ctx, "other", "old")
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, cand.ID)
	assert.ErrorIs(t, err, models.ErrConflict)

	got, err := f.mem.GetCandidate(ctx, cand.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CandidatePending, got.Status)
}

func TestConcurrentConfirmsExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, &models.Document{ID: "old", Name: "Deck v1.pdf", Folder: "sales"})
	f.seed(t, &models.Document{ID: "new", Name: "Deck v2.pdf", Folder: "sales"})

	cand, err := f.svc.DetectCandidate(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, cand)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Confirm(ctx, cand.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, models.ErrConflict)
		}
	}
	assert.Equal(t, 1, wins)

	doc, err := f.mem.GetDocument(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Version)
}

func TestManualLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, &models.Document{ID: "old", Name: "Anything.pdf", Folder: "misc", Version: 4})
	f.seed(t, &models.Document{ID: "new", Name: "Unrelated name.pdf", Folder: "misc"})

	link, err := f.svc.ManualLink(ctx, "new", "old")
	require.NoError(t, err)
	assert.Equal(t, 5, link.Promoted.Version)
	assert.Equal(t, 1.0, link.Edge.Confidence)
}

func TestManualLinkSelfReference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, &models.Document{ID: "doc", Name: "Doc.pdf", Folder: "misc"})

	_, err := f.svc.ManualLink(ctx, "doc", "doc")
	assert.ErrorIs(t, err, models.ErrSelfReference)
}

func TestManualLinkMissingDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, &models.Document{ID: "doc", Name: "Doc.pdf", Folder: "misc"})

	_, err := f.svc.ManualLink(ctx, "doc", "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetDiffComputesAndPersistsOnMiss(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, &models.Document{ID: "old", Name: "A", FullText: strPtr("one\ntwo\nthree")})
	f.seed(t, &models.Document{ID: "new", Name: "B", FullText: strPtr("one\nTWO\nthree")})

	hunks, err := f.svc.GetDiff(ctx, "old", "new")
	require.NoError(t, err)
	require.Len(t, hunks, 4)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.cache.puts))

	again, err := f.svc.GetDiff(ctx, "old", "new")
	require.NoError(t, err)
	assert.Equal(t, hunks, again)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.cache.puts), "cache hit must not recompute")
}

func TestGetDiffExtractionFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, &models.Document{ID: "old", Name: "A", StoragePath: "blobs/a.txt"})
	f.seed(t, &models.Document{ID: "new", Name: "B", FullText: strPtr("x\ny")})
	f.ext.texts["blobs/a.txt"] = "x\nz"

	hunks, err := f.svc.GetDiff(ctx, "old", "new")
	require.NoError(t, err)
	assert.NotEmpty(t, hunks)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.ext.calls))

	// Extraction back-fills the stored text.
	text, err := f.mem.GetFullText(ctx, "old")
	require.NoError(t, err)
	require.NotNil(t, text)
	assert.Equal(t, "x\nz", *text)

	_, err = f.svc.GetDiff(ctx, "old", "new")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.ext.calls), "second read must not re-extract")
}

func TestGetDiffUnprocessable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, &models.Document{ID: "old", Name: "A", StoragePath: "blobs/missing.txt"})
	f.seed(t, &models.Document{ID: "new", Name: "B", FullText: strPtr("x")})

	// Extraction collaborator can't produce the text either.
	_, err := f.svc.GetDiff(ctx, "old", "new")
	assert.ErrorIs(t, err, models.ErrUnprocessable)

	// No storage path at all behaves the same.
	f.seed(t, &models.Document{ID: "bare", Name: "C"})
	_, err = f.svc.GetDiff(ctx, "bare", "new")
	assert.ErrorIs(t, err, models.ErrUnprocessable)
}

func TestGetDiffMissingDocument(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetDiff(context.Background(), "ghost", "ghost2")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// cyclicEdges simulates corrupted lineage data: A version_of B, B version_of A.
type cyclicEdges struct{}

func (cyclicEdges) EdgeFrom(ctx context.Context, newerID string) (*models.LineageEdge, error) {
	other := "a"
	if newerID == "a" {
		other = "b"
	}
	return &models.LineageEdge{NewerID: newerID, OlderID: other, Kind: models.RelationVersionOf}, nil
}

func (cyclicEdges) EdgeTo(ctx context.Context, olderID string) (*models.LineageEdge, error) {
	return nil, nil
}

func TestGetVersionChainDetectsCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, &models.Document{ID: "a", Name: "A"})
	f.seed(t, &models.Document{ID: "b", Name: "B"})

	corrupt := NewService(&Deps{
		Registrar:  f.mem,
		Documents:  f.mem,
		Candidates: f.mem,
		Edges:      cyclicEdges{},
		DiffCache:  f.cache,
		Detector:   detector.NewDetector(f.mem, f.mem, logger.NewTestLogger()),
		Extractor:  f.ext,
		Queue:      f.queue,
		Logger:     logger.NewTestLogger(),
	})

	_, err := corrupt.GetVersionChain(ctx, "a")
	assert.ErrorIs(t, err, models.ErrInvariantViolation)
}

func TestGetVersionChainLong(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, &models.Document{ID: "v1", Name: "Doc v1.pdf", Folder: "x"})
	for i := 2; i <= 5; i++ {
		f.seed(t, &models.Document{ID: fmt.Sprintf("v%d", i), Name: fmt.Sprintf("Doc v%d.pdf", i), Folder: "x"})
		_, err := f.svc.ManualLink(ctx, fmt.Sprintf("v%d", i), fmt.Sprintf("v%d", i-1))
		require.NoError(t, err)
	}

	// Any member of the chain yields the same oldest-first ordering.
	for _, anchor := range []string{"v1", "v3", "v5"} {
		chain, err := f.svc.GetVersionChain(ctx, anchor)
		require.NoError(t, err)
		require.Len(t, chain, 5)
		for i, doc := range chain {
			assert.Equal(t, fmt.Sprintf("v%d", i+1), doc.ID)
			assert.Equal(t, i+1, doc.Version)
		}
	}
}

func TestIngestEnqueuesDetection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	doc, task, err := f.svc.Ingest(ctx, &models.Document{Name: "Handbook.pdf", Folder: "hr"})
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, queue.TaskTypeLineageDetect, task.Type)
	assert.Equal(t, doc.ID, task.DocumentID)

	status, err := f.svc.GetTaskStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", status.Status)
}

func TestHandleDetectTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, &models.Document{ID: "old", Name: "Guide v1.pdf", Folder: "docs"})
	f.seed(t, &models.Document{ID: "new", Name: "Guide v2.pdf", Folder: "docs"})

	task := &queue.Task{ID: "t1", Type: queue.TaskTypeLineageDetect, DocumentID: "new"}
	require.NoError(t, f.svc.HandleDetectTask(ctx, task))

	status, err := f.svc.GetTaskStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)
	assert.NotEmpty(t, status.CandidateID)
}

func TestEndToEndPolicyRevision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t1 := "section one\nold clause\nsection three"
	t2 := "section one\nnew clause\nsection three"

	v1, _, err := f.svc.Ingest(ctx, &models.Document{Name: "Policy v1.pdf", Folder: "hr", FullText: strPtr(t1)})
	require.NoError(t, err)
	v2, _, err := f.svc.Ingest(ctx, &models.Document{Name: "Policy v2.pdf", Folder: "hr", FullText: strPtr(t2)})
	require.NoError(t, err)

	cand, err := f.svc.DetectCandidate(ctx, v2.ID)
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, v1.ID, cand.OldID)
	assert.GreaterOrEqual(t, cand.Score, 0.55)

	link, err := f.svc.Confirm(ctx, cand.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, link.Archived.Status)
	assert.Equal(t, 2, link.Promoted.Version)

	hunks, err := f.svc.GetDiff(ctx, v1.ID, v2.ID)
	require.NoError(t, err)
	require.Len(t, hunks, 4)
	assert.Equal(t, models.HunkUnchanged, hunks[0].Kind)
	assert.Equal(t, models.HunkRemoved, hunks[1].Kind)
	assert.Equal(t, []string{"old clause"}, hunks[1].Lines)
	assert.Equal(t, models.HunkAdded, hunks[2].Kind)
	assert.Equal(t, []string{"new clause"}, hunks[2].Lines)
	assert.Equal(t, models.HunkUnchanged, hunks[3].Kind)
}
