// Package schema has the models shared by all parts of fromcvs.
package schema

import (
	"sort"
	"time"
)

// BranchState is the lifecycle state of a branch point.
type BranchState int

// Branch lifecycle states.
const (
	Holdoff  BranchState = iota // known, not yet created in the destination
	Merging                     // created, parent revisions still owed
	Branched                    // created, nothing owed
)

// String implements fmt.Stringer.
func (s BranchState) String() string {
	switch s {
	case Holdoff:
		return "holdoff"
	case Merging:
		return "merging"
	case Branched:
		return "branched"
	default:
		return "unknown"
	}
}

// Changeset is a reconstructed atomic commit.
type Changeset struct {
	Author    string
	LogDigest LogDigest
	MinDate   time.Time
	MaxDate   time.Time
	Branch    string // canonical branch name, empty for trunk
	Ignore    bool
	CommitID  string // externally supplied id, authoritative when set
	Revisions []*RevisionRecord
}

// NewChangeset builds a changeset from its members and derives the summary fields.
func NewChangeset(revs []*RevisionRecord) *Changeset {
	cs := &Changeset{Revisions: revs}
	cs.Refresh()
	return cs
}

// Refresh recomputes author, digest, date span, commit id and ignore flag from the members.
func (cs *Changeset) Refresh() {
	cs.Ignore = len(cs.Revisions) > 0
	for i, r := range cs.Revisions {
		if i == 0 {
			cs.Author = r.Author
			cs.LogDigest = r.LogDigest
			cs.CommitID = r.CommitID
			cs.MinDate = r.Date
			cs.MaxDate = r.Date
		}
		if r.Date.Before(cs.MinDate) {
			cs.MinDate = r.Date
		}
		if r.Date.After(cs.MaxDate) {
			cs.MaxDate = r.Date
		}
		if r.Action != ActionIgnore {
			cs.Ignore = false
		}
	}
}

// SortByDate orders members by date, then path.
func (cs *Changeset) SortByDate() {
	sort.SliceStable(cs.Revisions, func(i, j int) bool {
		a, b := cs.Revisions[i], cs.Revisions[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.File < b.File
	})
}

// SortByFile orders members by path for deterministic replay.
func (cs *Changeset) SortByFile() {
	sort.SliceStable(cs.Revisions, func(i, j int) bool {
		return cs.Revisions[i].File < cs.Revisions[j].File
	})
}

// Len returns the number of members.
func (cs *Changeset) Len() int {
	return len(cs.Revisions)
}

// HasMerges reports whether any member must also land on the mainline.
func (cs *Changeset) HasMerges() bool {
	for _, r := range cs.Revisions {
		if r.Action.IsMerge() {
			return true
		}
	}
	return false
}

// IsVendorImport reports whether the changeset carries vendor branch revisions.
func (cs *Changeset) IsVendorImport() bool {
	for _, r := range cs.Revisions {
		if r.Action.IsVendor() {
			return true
		}
	}
	return false
}
