package models

import (
	"time"
)

// LifecycleStatus defines document lifecycle states
type LifecycleStatus string

const (
	StatusActive     LifecycleStatus = "active"
	StatusArchived   LifecycleStatus = "archived"
	StatusSuperseded LifecycleStatus = "superseded"
)

// Live reports whether a document in this status is the current version of
// its chain. At most one document per chain may be live.
func (s LifecycleStatus) Live() bool {
	return s == StatusActive
}

// Document is the engine's view of a stored document. It is created by the
// external ingestion pipeline; the engine only ever mutates Version and
// Status, and never deletes one.
type Document struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	StoragePath string          `json:"storagePath"`
	FullText    *string         `json:"fullText,omitempty"`
	Version     int             `json:"version"`
	Status      LifecycleStatus `json:"status"`
	Folder      string          `json:"folder"`
	Category    string          `json:"category"`
	CreatedAt   time.Time       `json:"createdAt"`
	ModifiedAt  time.Time       `json:"modifiedAt"`
}

// RelationKind defines the lineage edge relation type
type RelationKind string

const (
	RelationVersionOf RelationKind = "version_of"
)

// LineageEdge is a directed, immutable relation from a newer document to the
// older one it replaces. A document has at most one outgoing version_of edge,
// so version history is a chain, never a DAG.
type LineageEdge struct {
	ID         string       `json:"id"`
	NewerID    string       `json:"newerId"`
	OlderID    string       `json:"olderId"`
	Kind       RelationKind `json:"kind"`
	Confidence float64      `json:"confidence"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// CandidateStatus defines replacement candidate states
type CandidateStatus string

const (
	CandidatePending   CandidateStatus = "pending"
	CandidateConfirmed CandidateStatus = "confirmed"
	CandidateDismissed CandidateStatus = "dismissed"
)

// Terminal reports whether the candidate has been confirmed or dismissed.
// Terminal candidates are kept for audit but are inert.
func (s CandidateStatus) Terminal() bool {
	return s == CandidateConfirmed || s == CandidateDismissed
}

// PendingCandidate records a detected "document N looks like a new version of
// document O" suggestion awaiting confirmation. At most one pending candidate
// exists per new document at a time.
type PendingCandidate struct {
	ID         string          `json:"id"`
	NewID      string          `json:"newId"`
	OldID      string          `json:"oldId"`
	Score      float64         `json:"score"`
	Status     CandidateStatus `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
	ResolvedAt time.Time       `json:"resolvedAt,omitempty"`
}

// VersionLink is the result of a confirmed or manual replacement.
type VersionLink struct {
	Archived *Document    `json:"archived"`
	Promoted *Document    `json:"promoted"`
	Edge     *LineageEdge `json:"edge"`
}
