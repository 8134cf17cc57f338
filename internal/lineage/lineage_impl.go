package lineage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/lineage-engine/internal/detector"
	"github.com/feichai0017/lineage-engine/internal/diff"
	"github.com/feichai0017/lineage-engine/internal/models"
	"github.com/feichai0017/lineage-engine/internal/store"
	"github.com/feichai0017/lineage-engine/pkg/extract"
	"github.com/feichai0017/lineage-engine/pkg/logger"
	"github.com/feichai0017/lineage-engine/pkg/queue"
)

// maxChainLength bounds version chain traversal. Chains are linear, so
// hitting the bound means the edge data is corrupt (a cycle); the walk fails
// loudly instead of looping.
const maxChainLength = 1000

// DocumentRegistrar is the ingestion boundary: the one write the engine
// accepts on behalf of the external pipeline.
type DocumentRegistrar interface {
	PutDocument(ctx context.Context, doc *models.Document) (*models.Document, error)
}

type Deps struct {
	Registrar  DocumentRegistrar
	Documents  store.DocumentStore
	Candidates store.CandidateStore
	Edges      store.EdgeStore
	DiffCache  store.DiffCache
	Detector   *detector.Detector
	Extractor  extract.Extractor
	Queue      queue.Queue
	Logger     logger.Logger
}

type Service struct {
	registrar  DocumentRegistrar
	documents  store.DocumentStore
	candidates store.CandidateStore
	edges      store.EdgeStore
	diffCache  store.DiffCache
	detector   *detector.Detector
	extractor  extract.Extractor
	queue      queue.Queue
	logger     logger.Logger

	// transitions on the same candidate or document pair serialize here;
	// unrelated pairs proceed concurrently.
	locks sync.Map // string -> *sync.Mutex
}

func NewService(deps *Deps) *Service {
	return &Service{
		registrar:  deps.Registrar,
		documents:  deps.Documents,
		candidates: deps.Candidates,
		edges:      deps.Edges,
		diffCache:  deps.DiffCache,
		detector:   deps.Detector,
		extractor:  deps.Extractor,
		queue:      deps.Queue,
		logger:     deps.Logger,
	}
}

var _ LineageManager = (*Service)(nil)

func (s *Service) lock(key string) func() {
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Ingest registers the document and queues a detection run for it.
func (s *Service) Ingest(ctx context.Context, doc *models.Document) (*models.Document, *queue.Task, error) {
	stored, err := s.registrar.PutDocument(ctx, doc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register document: %w", err)
	}

	task := &queue.Task{
		ID:         uuid.New().String(),
		Type:       queue.TaskTypeLineageDetect,
		Priority:   2,
		DocumentID: stored.ID,
		CreatedAt:  time.Now(),
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return nil, nil, fmt.Errorf("failed to enqueue detection: %w", err)
	}

	if err := s.queue.SaveFinalStatus(ctx, &queue.TaskStatus{
		TaskID:    task.ID,
		Status:    "pending",
		StartedAt: task.CreatedAt,
	}); err != nil {
		s.logger.Error("Failed to save initial task status",
			logger.String("taskId", task.ID),
			logger.Error(err),
		)
	}

	s.logger.Info("Document ingested",
		logger.String("documentId", stored.ID),
		logger.String("taskId", task.ID),
	)
	return stored, task, nil
}

func (s *Service) DetectCandidate(ctx context.Context, newDocumentID string) (*models.PendingCandidate, error) {
	return s.detector.Detect(ctx, newDocumentID)
}

func (s *Service) Confirm(ctx context.Context, candidateID string) (*models.VersionLink, error) {
	// Operator confirmation: full confidence on the recorded edge.
	return s.confirm(ctx, candidateID, func(*models.PendingCandidate) float64 { return 1.0 })
}

func (s *Service) AutoConfirm(ctx context.Context, candidateID string) (*models.VersionLink, error) {
	return s.confirm(ctx, candidateID, func(c *models.PendingCandidate) float64 { return c.Score })
}

func (s *Service) confirm(ctx context.Context, candidateID string, confidence func(*models.PendingCandidate) float64) (*models.VersionLink, error) {
	unlock := s.lock("candidate:" + candidateID)
	defer unlock()

	cand, err := s.candidates.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("load candidate: %w", err)
	}
	if cand.Status.Terminal() {
		// Re-confirming a terminal candidate signals a caller bug or a
		// lost race, never a no-op.
		return nil, fmt.Errorf("candidate %s is already %s: %w", candidateID, cand.Status, models.ErrConflict)
	}

	// Re-validate both sides before touching anything; failure leaves the
	// candidate pending.
	if _, err := s.documents.GetDocument(ctx, cand.NewID); err != nil {
		return nil, fmt.Errorf("new document %s: %w", cand.NewID, err)
	}
	oldDoc, err := s.documents.GetDocument(ctx, cand.OldID)
	if err != nil {
		return nil, fmt.Errorf("old document %s: %w", cand.OldID, err)
	}
	if !oldDoc.Status.Live() {
		return nil, fmt.Errorf("old document %s is no longer live: %w", cand.OldID, models.ErrConflict)
	}

	// Reserve the candidate first: the storage-level CAS makes this the
	// point where racing confirms lose, even across processes.
	if _, err := s.candidates.ResolveCandidate(ctx, candidateID, models.CandidateConfirmed); err != nil {
		return nil, fmt.Errorf("resolve candidate: %w", err)
	}

	link, err := s.documents.ApplyVersionTransition(ctx, store.VersionTransition{
		NewID:      cand.NewID,
		OldID:      cand.OldID,
		Confidence: confidence(cand),
	})
	if err != nil {
		// Undo the reservation so the candidate is pending again, exactly
		// as if validation had failed up front.
		if reopenErr := s.candidates.ReopenCandidate(ctx, candidateID); reopenErr != nil {
			s.logger.Error("Failed to reopen candidate after failed transition",
				logger.String("candidateId", candidateID),
				logger.Error(reopenErr),
			)
		}
		return nil, fmt.Errorf("apply version transition: %w", err)
	}

	s.cacheDiffBestEffort(ctx, cand.OldID, cand.NewID)

	s.logger.Info("Version link confirmed",
		logger.String("candidateId", candidateID),
		logger.String("newDocumentId", cand.NewID),
		logger.String("oldDocumentId", cand.OldID),
		logger.Float64("confidence", link.Edge.Confidence),
	)
	return link, nil
}

func (s *Service) Dismiss(ctx context.Context, candidateID string) error {
	unlock := s.lock("candidate:" + candidateID)
	defer unlock()

	cand, err := s.candidates.GetCandidate(ctx, candidateID)
	if err != nil {
		return fmt.Errorf("load candidate: %w", err)
	}
	if cand.Status.Terminal() {
		return fmt.Errorf("candidate %s is already %s: %w", candidateID, cand.Status, models.ErrConflict)
	}

	if _, err := s.candidates.ResolveCandidate(ctx, candidateID, models.CandidateDismissed); err != nil {
		return fmt.Errorf("resolve candidate: %w", err)
	}

	s.logger.Info("Candidate dismissed",
		logger.String("candidateId", candidateID),
	)
	return nil
}

func (s *Service) ManualLink(ctx context.Context, newDocumentID, oldDocumentID string) (*models.VersionLink, error) {
	if newDocumentID == oldDocumentID {
		return nil, fmt.Errorf("document %s cannot replace itself: %w", newDocumentID, models.ErrSelfReference)
	}

	unlock := s.lock("pair:" + newDocumentID)
	defer unlock()

	if _, err := s.documents.GetDocument(ctx, newDocumentID); err != nil {
		return nil, fmt.Errorf("new document %s: %w", newDocumentID, err)
	}
	oldDoc, err := s.documents.GetDocument(ctx, oldDocumentID)
	if err != nil {
		return nil, fmt.Errorf("old document %s: %w", oldDocumentID, err)
	}
	if !oldDoc.Status.Live() {
		return nil, fmt.Errorf("old document %s is no longer live: %w", oldDocumentID, models.ErrConflict)
	}

	link, err := s.documents.ApplyVersionTransition(ctx, store.VersionTransition{
		NewID:      newDocumentID,
		OldID:      oldDocumentID,
		Confidence: 1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("apply version transition: %w", err)
	}

	s.cacheDiffBestEffort(ctx, oldDocumentID, newDocumentID)

	s.logger.Info("Manual version link applied",
		logger.String("newDocumentId", newDocumentID),
		logger.String("oldDocumentId", oldDocumentID),
	)
	return link, nil
}

// cacheDiffBestEffort precomputes the diff when both texts are already
// stored. Missing text is fine; the diff gets computed lazily on first read.
func (s *Service) cacheDiffBestEffort(ctx context.Context, oldID, newID string) {
	oldText, err := s.documents.GetFullText(ctx, oldID)
	if err != nil || oldText == nil {
		return
	}
	newText, err := s.documents.GetFullText(ctx, newID)
	if err != nil || newText == nil {
		return
	}

	entry := &models.DiffEntry{
		OldID:     oldID,
		NewID:     newID,
		Hunks:     diff.Compute(*oldText, *newText),
		CreatedAt: time.Now(),
	}
	if err := s.diffCache.PutDiff(ctx, entry); err != nil {
		s.logger.Warn("Failed to cache diff",
			logger.String("oldDocumentId", oldID),
			logger.String("newDocumentId", newID),
			logger.Error(err),
		)
	}
}

func (s *Service) GetDiff(ctx context.Context, oldDocumentID, newDocumentID string) ([]models.DiffHunk, error) {
	entry, err := s.diffCache.GetDiff(ctx, oldDocumentID, newDocumentID)
	if err != nil {
		return nil, fmt.Errorf("read diff cache: %w", err)
	}
	if entry != nil {
		return entry.Hunks, nil
	}

	oldText, err := s.fullText(ctx, oldDocumentID)
	if err != nil {
		return nil, err
	}
	newText, err := s.fullText(ctx, newDocumentID)
	if err != nil {
		return nil, err
	}

	entry = &models.DiffEntry{
		OldID:     oldDocumentID,
		NewID:     newDocumentID,
		Hunks:     diff.Compute(oldText, newText),
		CreatedAt: time.Now(),
	}
	if err := s.diffCache.PutDiff(ctx, entry); err != nil {
		return nil, fmt.Errorf("persist diff: %w", err)
	}
	return entry.Hunks, nil
}

// fullText returns the document's extracted text, falling back to the
// extraction collaborator and back-filling the store when the text was never
// cached.
func (s *Service) fullText(ctx context.Context, documentID string) (string, error) {
	text, err := s.documents.GetFullText(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("document %s: %w", documentID, err)
	}
	if text != nil {
		return *text, nil
	}

	doc, err := s.documents.GetDocument(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("document %s: %w", documentID, err)
	}
	if s.extractor == nil || doc.StoragePath == "" {
		return "", fmt.Errorf("no text for document %s: %w", documentID, models.ErrUnprocessable)
	}

	extracted, err := s.extractor.Extract(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("extract document %s: %w", documentID, models.ErrUnprocessable)
	}

	// Back-fill so the next diff skips extraction. Best-effort.
	if err := s.documents.CacheFullText(ctx, documentID, extracted); err != nil {
		s.logger.Warn("Failed to cache extracted text",
			logger.String("documentId", documentID),
			logger.Error(err),
		)
	}
	return extracted, nil
}

func (s *Service) GetVersionChain(ctx context.Context, documentID string) ([]*models.Document, error) {
	if _, err := s.documents.GetDocument(ctx, documentID); err != nil {
		return nil, fmt.Errorf("document %s: %w", documentID, err)
	}

	visited := map[string]bool{documentID: true}

	// Ancestors: follow outgoing version_of edges.
	var ancestors []string
	cur := documentID
	for {
		edge, err := s.edges.EdgeFrom(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("walk ancestors of %s: %w", documentID, err)
		}
		if edge == nil {
			break
		}
		if visited[edge.OlderID] || len(ancestors) >= maxChainLength {
			return nil, fmt.Errorf("lineage cycle at document %s: %w", edge.OlderID, models.ErrInvariantViolation)
		}
		visited[edge.OlderID] = true
		ancestors = append(ancestors, edge.OlderID)
		cur = edge.OlderID
	}

	// Descendants: follow incoming version_of edges.
	var descendants []string
	cur = documentID
	for {
		edge, err := s.edges.EdgeTo(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("walk descendants of %s: %w", documentID, err)
		}
		if edge == nil {
			break
		}
		if visited[edge.NewerID] || len(descendants) >= maxChainLength {
			return nil, fmt.Errorf("lineage cycle at document %s: %w", edge.NewerID, models.ErrInvariantViolation)
		}
		visited[edge.NewerID] = true
		descendants = append(descendants, edge.NewerID)
		cur = edge.NewerID
	}

	// Oldest first: reversed ancestors, the document, then descendants.
	ids := make([]string, 0, len(ancestors)+1+len(descendants))
	for i := len(ancestors) - 1; i >= 0; i-- {
		ids = append(ids, ancestors[i])
	}
	ids = append(ids, documentID)
	ids = append(ids, descendants...)

	chain := make([]*models.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.documents.GetDocument(ctx, id)
		if err != nil {
			// An edge pointing at a missing document is corruption: the
			// engine never deletes documents.
			return nil, fmt.Errorf("chain references missing document %s: %w", id, models.ErrInvariantViolation)
		}
		chain = append(chain, doc)
	}
	return chain, nil
}

func (s *Service) GetTaskStatus(ctx context.Context, taskID string) (*queue.TaskStatus, error) {
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}
	return status, nil
}

// HandleDetectTask runs a queued detection and records the outcome.
func (s *Service) HandleDetectTask(ctx context.Context, task *queue.Task) error {
	if task == nil || task.DocumentID == "" {
		return fmt.Errorf("invalid task: missing document id")
	}

	s.logger.Info("Running queued detection",
		logger.String("taskId", task.ID),
		logger.String("documentId", task.DocumentID),
	)

	candidate, err := s.detector.Detect(ctx, task.DocumentID)

	status := &queue.TaskStatus{
		TaskID:     task.ID,
		Status:     "completed",
		StartedAt:  task.CreatedAt,
		FinishedAt: time.Now(),
	}
	if err != nil {
		status.Status = "failed"
		status.Error = err.Error()
	} else if candidate != nil {
		status.CandidateID = candidate.ID
	}

	if saveErr := s.queue.SaveFinalStatus(ctx, status); saveErr != nil {
		s.logger.Error("Failed to save final task status",
			logger.String("taskId", task.ID),
			logger.Error(saveErr),
		)
	}
	return err
}
