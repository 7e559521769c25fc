package schema

import "time"

// ScanStats summarizes one scan pass.
type ScanStats struct {
	Directories int
	Files       int
	Skipped     int // files untouched since the watermark
	Revisions   int
	Warnings    int
}

// ReplayStats summarizes one replay pass.
type ReplayStats struct {
	Changesets      int
	Ignored         int
	Commits         int
	Merges          int
	ForwardMerges   int
	BranchesCreated int
	Flushes         int
	LastDate        time.Time
}

// ConversionSummary is printed at the end of convert.
type ConversionSummary struct {
	Watermark time.Time
	Scan      ScanStats
	Replay    ReplayStats
	Duration  time.Duration
}

// IndexStatus holds status information about the changeset index.
type IndexStatus struct {
	Backend         string           `json:"backend"`
	Connected       bool             `json:"connected"`
	Database        string           `json:"database,omitempty"`
	SourceRoot      string           `json:"source_root"`
	Modules         []string         `json:"modules"`
	TotalChangesets int64            `json:"total_changesets"`
	LastChangeset   time.Time        `json:"last_changeset"`
	OldestChangeset time.Time        `json:"oldest_changeset"`
	TableSizes      map[string]int64 `json:"table_sizes"`
}

// ChangesetRecord is a changeset row of the index with its members.
type ChangesetRecord struct {
	ID      int64            `json:"id"`
	Branch  string           `json:"branch"`
	Author  string           `json:"author"`
	Date    time.Time        `json:"date"`
	Members []RevisionMember `json:"members"`
}

// RevisionMember is one file revision that belongs to an indexed changeset.
type RevisionMember struct {
	Path         string `json:"path"`
	Revision     string `json:"revision"`
	NextRevision string `json:"next_revision,omitempty"`
}

// RevisionRow is a flattened revision row used for export.
type RevisionRow struct {
	ChangesetID  int64
	Path         string
	Revision     string
	NextRevision string
}

// BranchRecord is a branch row of the index.
type BranchRecord struct {
	Name    string    `json:"name"`
	Parent  string    `json:"parent"`
	Vendor  bool      `json:"vendor"`
	Created time.Time `json:"created"`
}

// ChangesetView is a looked-up changeset with its log message and the texts
// needed to diff each member against its predecessor.
type ChangesetView struct {
	Changeset ChangesetRecord
	Log       string
	Texts     []MemberText
}

// MemberText holds the content of one member revision and of the revision it replaced.
type MemberText struct {
	Path string
	From string // predecessor revision, empty for an added file
	To   string
	Old  []byte
	New  []byte // nil when the member removed the file
}
