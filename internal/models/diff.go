package models

import (
	"time"
)

// HunkKind defines diff hunk operation kinds
type HunkKind string

const (
	HunkAdded     HunkKind = "added"
	HunkRemoved   HunkKind = "removed"
	HunkUnchanged HunkKind = "unchanged"
)

// DiffHunk is one run of consecutive lines sharing an operation. A full diff
// is an ordered hunk sequence: filtering to unchanged+removed reconstructs
// the old text, unchanged+added the new one.
type DiffHunk struct {
	Kind  HunkKind `json:"kind"`
	Lines []string `json:"lines"`
}

// DiffEntry is a cached diff between two document versions, keyed by the
// (old, new) id pair. It is derived data: safe to drop and recompute.
type DiffEntry struct {
	OldID     string     `json:"oldId"`
	NewID     string     `json:"newId"`
	Hunks     []DiffHunk `json:"hunks"`
	CreatedAt time.Time  `json:"createdAt"`
}
