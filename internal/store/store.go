package store

import (
	"context"

	"github.com/feichai0017/lineage-engine/internal/models"
)

// Scope narrows a live-document scan. The detector scans the new document's
// folder; an empty scope means the whole store.
type Scope struct {
	Folder string
}

// VersionTransition is the single logical transaction behind a confirmed or
// manual version link: archive the old document, promote the new one, append
// the lineage edge. It is applied all-or-nothing; a partially applied
// transition would make two live versions observable in one chain.
type VersionTransition struct {
	NewID      string
	OldID      string
	Confidence float64
}

// DocumentStore is the document-side contract the engine consumes. Documents
// are created elsewhere; the engine reads them and applies version
// transitions.
type DocumentStore interface {
	// GetDocument returns the document or models.ErrNotFound.
	GetDocument(ctx context.Context, id string) (*models.Document, error)

	// ListLiveDocuments returns documents with live status in scope.
	ListLiveDocuments(ctx context.Context, scope Scope) ([]*models.Document, error)

	// ApplyVersionTransition atomically archives the old document, sets the
	// new one to old.Version+1 and active, and appends the version_of edge.
	// Fails with models.ErrNotFound if either side is missing and
	// models.ErrConflict if the old document is no longer live, leaving all
	// state untouched.
	ApplyVersionTransition(ctx context.Context, t VersionTransition) (*models.VersionLink, error)

	// GetFullText returns the stored extracted text, nil when the document
	// has not been processed yet.
	GetFullText(ctx context.Context, id string) (*string, error)

	// CacheFullText back-fills extracted text onto the document.
	// Best-effort: failures are logged by callers, never fatal.
	CacheFullText(ctx context.Context, id string, text string) error
}

// CandidateStore holds pending replacement candidates. Uniqueness of the
// pending row per new document and the status compare-and-swap both live
// here, so racing detectors and racing confirms are resolved at the storage
// layer.
type CandidateStore interface {
	// CreateCandidate inserts a pending candidate. If a pending candidate
	// already exists for the same new document it returns that one with
	// created=false instead of inserting a duplicate.
	CreateCandidate(ctx context.Context, c *models.PendingCandidate) (existing *models.PendingCandidate, created bool, err error)

	// GetCandidate returns the candidate or models.ErrNotFound.
	GetCandidate(ctx context.Context, id string) (*models.PendingCandidate, error)

	// ResolveCandidate compare-and-swaps the candidate from pending to the
	// given terminal status. models.ErrConflict if it is already terminal.
	ResolveCandidate(ctx context.Context, id string, to models.CandidateStatus) (*models.PendingCandidate, error)

	// ReopenCandidate swings a candidate back from confirmed to pending.
	// Used only to undo the reservation when the version transition behind
	// a confirm fails validation.
	ReopenCandidate(ctx context.Context, id string) error
}

// EdgeStore holds the lineage graph. Edges are immutable once appended.
type EdgeStore interface {
	// EdgeFrom returns the outgoing version_of edge of the document, nil
	// when it has none.
	EdgeFrom(ctx context.Context, newerID string) (*models.LineageEdge, error)

	// EdgeTo returns the incoming version_of edge pointing at the document,
	// nil when it has none.
	EdgeTo(ctx context.Context, olderID string) (*models.LineageEdge, error)
}

// DiffCache memoizes computed diffs keyed by the (old, new) pair. Entries
// are derived data: safe to overwrite or drop and recompute on demand.
type DiffCache interface {
	// GetDiff returns the cached entry, nil on miss.
	GetDiff(ctx context.Context, oldID, newID string) (*models.DiffEntry, error)

	// PutDiff stores an entry. The write is all-or-nothing.
	PutDiff(ctx context.Context, entry *models.DiffEntry) error
}
