package lineage

import (
	"context"
	"fmt"

	"github.com/feichai0017/lineage-engine/internal/detector"
	"github.com/feichai0017/lineage-engine/internal/models"
	"github.com/feichai0017/lineage-engine/internal/store/memory"
	"github.com/feichai0017/lineage-engine/pkg/cache"
	"github.com/feichai0017/lineage-engine/pkg/extract"
	"github.com/feichai0017/lineage-engine/pkg/logger"
	"github.com/feichai0017/lineage-engine/pkg/queue"
	"github.com/feichai0017/lineage-engine/pkg/storage"

	"github.com/feichai0017/lineage-engine/config"
)

// LineageManager is the version lineage engine's exposed surface: the thin
// HTTP layer and the detection worker both talk to this.
type LineageManager interface {
	// Ingest registers an externally produced document and enqueues a
	// detection task for it.
	Ingest(ctx context.Context, doc *models.Document) (*models.Document, *queue.Task, error)

	// DetectCandidate runs replacement-candidate detection for a newly
	// ingested document. A nil candidate means "no suggestion".
	DetectCandidate(ctx context.Context, newDocumentID string) (*models.PendingCandidate, error)

	// Confirm applies an operator-confirmed pending candidate: archive the
	// old version, promote the new one, append the lineage edge with
	// confidence 1.0, cache the diff best-effort.
	Confirm(ctx context.Context, candidateID string) (*models.VersionLink, error)

	// AutoConfirm is Confirm for policy-driven confirmation; the edge
	// carries the detector's score instead of 1.0.
	AutoConfirm(ctx context.Context, candidateID string) (*models.VersionLink, error)

	// Dismiss terminates a pending candidate with no other state changes.
	Dismiss(ctx context.Context, candidateID string) error

	// ManualLink applies the version transition for an operator-named pair
	// without a pre-existing candidate. The two documents must differ.
	ManualLink(ctx context.Context, newDocumentID, oldDocumentID string) (*models.VersionLink, error)

	// GetDiff returns the line diff between two document versions, from
	// cache or computed (and then persisted) on demand.
	GetDiff(ctx context.Context, oldDocumentID, newDocumentID string) ([]models.DiffHunk, error)

	// GetVersionChain returns the document's full version chain, oldest
	// first.
	GetVersionChain(ctx context.Context, documentID string) ([]*models.Document, error)

	// GetTaskStatus reports a queued detection run.
	GetTaskStatus(ctx context.Context, taskID string) (*queue.TaskStatus, error)

	// HandleDetectTask is the worker-side entry for queued detection.
	HandleDetectTask(ctx context.Context, task *queue.Task) error
}

// GetService wires the default deployment: in-memory document/candidate/edge
// stores, Redis-backed diff cache and task queue, blob storage behind the
// extraction fallback.
func GetService(log logger.Logger) (LineageManager, error) {
	engineCfg := config.GetEngineConfig()
	redisCfg := config.GetRedisConfig()

	mem := memory.NewStore()

	diffCache := cache.NewRedisDiffCache(&cache.Config{
		Addr: redisCfg.Addr,
		DB:   redisCfg.DB,
		TTL:  engineCfg.DiffCacheTTL,
	})

	blobs, err := storage.NewStorage(storage.StorageType(engineCfg.StorageBackend), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	q, err := queue.GetQueue()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	det := detector.NewDetector(mem, mem, log)
	extractor := extract.NewStorageExtractor(blobs, log)

	return NewService(&Deps{
		Registrar:  mem,
		Documents:  mem,
		Candidates: mem,
		Edges:      mem,
		DiffCache:  diffCache,
		Detector:   det,
		Extractor:  extractor,
		Queue:      q,
		Logger:     log,
	}), nil
}
