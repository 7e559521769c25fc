package schema

import (
	"crypto/md5"
	"os"
	"time"
)

// LogDigest is the fixed-size hash of a commit log message.
type LogDigest [md5.Size]byte

// DigestLog hashes a log message.
func DigestLog(log string) LogDigest {
	return md5.Sum([]byte(log))
}

// RawRevision is one revision as reported by the revision-file parser.
type RawRevision struct {
	Rev      string
	Date     time.Time
	Author   string
	State    RevState
	Next     string   // content predecessor on trunk, successor on branches
	Branches []string // first revisions of branches sprouting here
	CommitID string   // externally supplied commit id, if the source kept one
	Log      string
}

// FileHistory is the parsed revision table of one file.
type FileHistory struct {
	Path       string // path of the revision file as found on disk
	Head       string
	Branch     string // default branch number, empty for trunk
	Symbols    map[string]string
	ExpandMode ExpandMode
	Revisions  map[string]*RawRevision
}

// Classification holds the fields BranchClassifier assigns to a revision.
type Classification struct {
	Action Action
	Syms   []string // branch names bound to the revision's branch, sorted
	Link   string   // revision this one continues from across a branch boundary
	Origin string   // parent branch name, empty for trunk
	// OriginKnown is false when the parent branch carries no symbolic name in this file.
	OriginKnown bool
}

// RevisionRecord is the unit of history flowing through aggregation and replay.
type RevisionRecord struct {
	Rev       string
	File      string
	Date      time.Time
	Author    string
	LogDigest LogDigest
	State     RevState
	Next      string
	Branches  []string
	CommitID  string

	Classification
}

// Depth returns the branch depth of the revision.
func (r *RevisionRecord) Depth() int {
	return RevDepth(r.Rev)
}

// Dead reports whether the revision removes the file.
func (r *RevisionRecord) Dead() bool {
	return r.State == StateDead
}

// Predecessor returns the revision whose content this one replaced.
func (r *RevisionRecord) Predecessor() string {
	if r.Link != "" {
		return r.Link
	}
	return r.Next
}

// BranchTag records that a file carries a branch symbol.
type BranchTag struct {
	Names       []string // all names bound to the branch number, sorted
	Prefix      string   // branch number, e.g. "1.4.2"
	Point       string   // revision the branch sprouts from, e.g. "1.4"
	Parent      string   // parent branch name, empty for trunk
	ParentKnown bool
	Vendor      bool
}

// FileContent is a materialized file revision.
type FileContent struct {
	Data   []byte
	Mode   os.FileMode
	UID    int
	GID    int
	Expand ExpandMode
}

// CommitRequest carries everything a destination needs to write one commit.
type CommitRequest struct {
	Author    string
	Email     string
	Date      time.Time
	Message   string
	Revisions []*RevisionRecord
}

// SourceFile is a revision file found while walking the source tree.
type SourceFile struct {
	Path    string // normalized path: module relative, no ",v", Attic collapsed
	Dir     string // normalized directory
	ModTime time.Time
}

// BranchTip is the head of a destination branch.
type BranchTip struct {
	Name      string
	Hash      string
	Committed time.Time
}
