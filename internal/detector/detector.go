package detector

import (
	"context"
	"fmt"

	"github.com/feichai0017/lineage-engine/internal/models"
	"github.com/feichai0017/lineage-engine/internal/similarity"
	"github.com/feichai0017/lineage-engine/internal/store"
	"github.com/feichai0017/lineage-engine/pkg/logger"
)

// Threshold is the single acceptance score for a replacement candidate.
// Tunable, but it lives here and nowhere else.
const Threshold = 0.55

// Detector finds, for a newly ingested document, the most plausible prior
// version among live documents in the same folder.
type Detector struct {
	documents  store.DocumentStore
	candidates store.CandidateStore
	logger     logger.Logger
}

func NewDetector(documents store.DocumentStore, candidates store.CandidateStore, log logger.Logger) *Detector {
	return &Detector{
		documents:  documents,
		candidates: candidates,
		logger:     log,
	}
}

// Detect scans live documents in the new document's folder and records a
// pending replacement candidate for the best name match at or above
// Threshold. Finding nothing is the normal "no suggestion" result, not an
// error, and a detection run never creates a second pending candidate for
// the same document. Missing or empty extracted text does not fail
// detection; scoring is name-based.
func (d *Detector) Detect(ctx context.Context, newDocumentID string) (*models.PendingCandidate, error) {
	newDoc, err := d.documents.GetDocument(ctx, newDocumentID)
	if err != nil {
		return nil, fmt.Errorf("load new document: %w", err)
	}

	others, err := d.documents.ListLiveDocuments(ctx, store.Scope{Folder: newDoc.Folder})
	if err != nil {
		return nil, fmt.Errorf("scan live documents: %w", err)
	}

	var best *models.Document
	var bestScore float64
	for _, other := range others {
		if other.ID == newDoc.ID {
			continue
		}
		score := similarity.Score(newDoc.Name, other.Name)
		if score < Threshold {
			continue
		}
		// Deterministic tie-break: prefer the most recently modified.
		if best == nil || score > bestScore ||
			(score == bestScore && other.ModifiedAt.After(best.ModifiedAt)) {
			best = other
			bestScore = score
		}
	}

	if best == nil {
		d.logger.Debug("No replacement candidate found",
			logger.String("documentId", newDoc.ID),
			logger.String("name", newDoc.Name),
		)
		return nil, nil
	}

	candidate, created, err := d.candidates.CreateCandidate(ctx, &models.PendingCandidate{
		NewID: newDoc.ID,
		OldID: best.ID,
		Score: bestScore,
	})
	if err != nil {
		return nil, fmt.Errorf("create candidate: %w", err)
	}

	if created {
		d.logger.Info("Replacement candidate detected",
			logger.String("newDocumentId", newDoc.ID),
			logger.String("oldDocumentId", best.ID),
			logger.Float64("score", bestScore),
		)
	}
	return candidate, nil
}
