package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/lineage-engine/internal/models"
	"github.com/feichai0017/lineage-engine/internal/store"
)

// Store is an in-memory implementation of all four store ports, guarded by a
// single mutex so the version transition and the candidate CAS are atomic
// with respect to every other operation. It is the default backend; the
// ports are where a database-backed implementation would plug in.
type Store struct {
	mu           sync.RWMutex
	documents    map[string]*models.Document
	candidates   map[string]*models.PendingCandidate
	pendingByNew map[string]string // new document id -> pending candidate id
	edgeByNewer  map[string]*models.LineageEdge
	edgeByOlder  map[string]*models.LineageEdge
	diffs        map[string]*models.DiffEntry
}

func NewStore() *Store {
	return &Store{
		documents:    make(map[string]*models.Document),
		candidates:   make(map[string]*models.PendingCandidate),
		pendingByNew: make(map[string]string),
		edgeByNewer:  make(map[string]*models.LineageEdge),
		edgeByOlder:  make(map[string]*models.LineageEdge),
		diffs:        make(map[string]*models.DiffEntry),
	}
}

var _ store.DocumentStore = (*Store)(nil)
var _ store.CandidateStore = (*Store)(nil)
var _ store.EdgeStore = (*Store)(nil)
var _ store.DiffCache = (*Store)(nil)

// PutDocument registers a document produced by the ingestion pipeline.
// Zero-valued version/status/timestamps get ingestion defaults.
func (s *Store) PutDocument(ctx context.Context, doc *models.Document) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := cloneDocument(doc)
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Version == 0 {
		d.Version = 1
	}
	if d.Status == "" {
		d.Status = models.StatusActive
	}
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.ModifiedAt.IsZero() {
		d.ModifiedAt = now
	}
	s.documents[d.ID] = d
	return cloneDocument(d), nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (s *Store) ListLiveDocuments(ctx context.Context, scope store.Scope) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Document
	for _, doc := range s.documents {
		if !doc.Status.Live() {
			continue
		}
		if scope.Folder != "" && doc.Folder != scope.Folder {
			continue
		}
		out = append(out, cloneDocument(doc))
	}
	return out, nil
}

func (s *Store) ApplyVersionTransition(ctx context.Context, t store.VersionTransition) (*models.VersionLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	newDoc, ok := s.documents[t.NewID]
	if !ok {
		return nil, models.ErrNotFound
	}
	oldDoc, ok := s.documents[t.OldID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if !oldDoc.Status.Live() {
		return nil, models.ErrConflict
	}
	if _, exists := s.edgeByNewer[t.NewID]; exists {
		// One outgoing version_of edge per document: the chain never
		// branches.
		return nil, models.ErrConflict
	}

	now := time.Now()
	oldDoc.Status = models.StatusArchived
	oldDoc.ModifiedAt = now
	newDoc.Version = oldDoc.Version + 1
	newDoc.Status = models.StatusActive
	newDoc.ModifiedAt = now

	edge := &models.LineageEdge{
		ID:         uuid.New().String(),
		NewerID:    t.NewID,
		OlderID:    t.OldID,
		Kind:       models.RelationVersionOf,
		Confidence: t.Confidence,
		CreatedAt:  now,
	}
	s.edgeByNewer[t.NewID] = edge
	s.edgeByOlder[t.OldID] = edge

	return &models.VersionLink{
		Archived: cloneDocument(oldDoc),
		Promoted: cloneDocument(newDoc),
		Edge:     cloneEdge(edge),
	}, nil
}

func (s *Store) GetFullText(ctx context.Context, id string) (*string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if doc.FullText == nil {
		return nil, nil
	}
	text := *doc.FullText
	return &text, nil
}

func (s *Store) CacheFullText(ctx context.Context, id string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return models.ErrNotFound
	}
	doc.FullText = &text
	return nil
}

func (s *Store) CreateCandidate(ctx context.Context, c *models.PendingCandidate) (*models.PendingCandidate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Storage-level uniqueness: a second detection run for the same new
	// document returns the existing pending row instead of duplicating it.
	if existingID, ok := s.pendingByNew[c.NewID]; ok {
		return cloneCandidate(s.candidates[existingID]), false, nil
	}

	stored := cloneCandidate(c)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	stored.Status = models.CandidatePending
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.candidates[stored.ID] = stored
	s.pendingByNew[stored.NewID] = stored.ID
	return cloneCandidate(stored), true, nil
}

func (s *Store) GetCandidate(ctx context.Context, id string) (*models.PendingCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.candidates[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneCandidate(c), nil
}

func (s *Store) ResolveCandidate(ctx context.Context, id string, to models.CandidateStatus) (*models.PendingCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.candidates[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if c.Status != models.CandidatePending {
		return nil, models.ErrConflict
	}
	c.Status = to
	c.ResolvedAt = time.Now()
	delete(s.pendingByNew, c.NewID)
	return cloneCandidate(c), nil
}

func (s *Store) ReopenCandidate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.candidates[id]
	if !ok {
		return models.ErrNotFound
	}
	if c.Status != models.CandidateConfirmed {
		return models.ErrConflict
	}
	if _, taken := s.pendingByNew[c.NewID]; taken {
		// Detection slipped in a fresh pending candidate; keep uniqueness
		// and leave this one terminal.
		return models.ErrConflict
	}
	c.Status = models.CandidatePending
	c.ResolvedAt = time.Time{}
	s.pendingByNew[c.NewID] = c.ID
	return nil
}

func (s *Store) EdgeFrom(ctx context.Context, newerID string) (*models.LineageEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edge, ok := s.edgeByNewer[newerID]
	if !ok {
		return nil, nil
	}
	return cloneEdge(edge), nil
}

func (s *Store) EdgeTo(ctx context.Context, olderID string) (*models.LineageEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edge, ok := s.edgeByOlder[olderID]
	if !ok {
		return nil, nil
	}
	return cloneEdge(edge), nil
}

func (s *Store) GetDiff(ctx context.Context, oldID, newID string) (*models.DiffEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.diffs[diffKey(oldID, newID)]
	if !ok {
		return nil, nil
	}
	return entry, nil
}

func (s *Store) PutDiff(ctx context.Context, entry *models.DiffEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.diffs[diffKey(entry.OldID, entry.NewID)] = entry
	return nil
}

func diffKey(oldID, newID string) string {
	return oldID + ":" + newID
}

func cloneDocument(d *models.Document) *models.Document {
	out := *d
	if d.FullText != nil {
		text := *d.FullText
		out.FullText = &text
	}
	return &out
}

func cloneCandidate(c *models.PendingCandidate) *models.PendingCandidate {
	out := *c
	return &out
}

func cloneEdge(e *models.LineageEdge) *models.LineageEdge {
	out := *e
	return &out
}
