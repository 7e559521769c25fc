// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"
	"io"
	"time"

	"github.com/seanfarley/fromcvs/schema"
)

// AllBranches selects the union of files across every branch in Destination.FileList.
// CVS tag names cannot contain a colon, so it never collides with a real branch.
const AllBranches = ":complete"

// RCSClient runs the RCS command line tools.
// This allows the revision-file parsing to be tested without the rlog and co binaries.
type RCSClient interface {
	// Run executes an RCS tool and returns its standard output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// GitClient defines the git operations of the fast-import destination.
// This allows the stream writer to be tested without a real git executable.
type GitClient interface {
	// Run executes a git command in repoPath and returns its standard output.
	Run(ctx context.Context, repoPath string, args ...string) ([]byte, error)

	// ListBranches returns the local branch heads with their committer dates.
	ListBranches(ctx context.Context, repoPath string) ([]schema.BranchTip, error)

	// ListFiles returns every file path reachable from ref.
	ListFiles(ctx context.Context, repoPath string, ref string) ([]string, error)

	// FastImport starts a git fast-import process reading from the returned writer.
	// Closing the writer waits for the process and reports its exit status.
	FastImport(ctx context.Context, repoPath string) (io.WriteCloser, error)
}

// ContentSource is the revision-file collaborator of the engine.
// All paths are normalized: relative to the source root, without the ",v"
// suffix and with any Attic directory collapsed.
type ContentSource interface {
	// Walk visits every revision file below module in lexical directory order.
	Walk(ctx context.Context, module string, visit func(schema.SourceFile) error) error

	// Open returns the full revision table of one file.
	Open(ctx context.Context, path string) (*schema.FileHistory, error)

	// Log returns the log message of one revision.
	Log(ctx context.Context, path, rev string) (string, error)

	// Materialize returns the full text of one revision with unexpanded keywords.
	Materialize(ctx context.Context, path, rev string) (*schema.FileContent, error)
}

// Destination is a history store that supports atomic multi-file commits and named branches.
type Destination interface {
	// --- Watermark / State ---

	// LastWatermark returns the newest replayed date, zero for a fresh store.
	LastWatermark() (time.Time, error)

	// FileList returns the current files of a branch ("" is the mainline),
	// or of all branches when given AllBranches.
	FileList(branch string) ([]string, error)

	// --- Lifecycle ---

	// Start prepares the destination for writing.
	Start(ctx context.Context) error

	// Flush marks a safe point to persist buffered state.
	Flush() error

	// Finish completes the run; errors here are fatal.
	Finish() error

	// --- Branches ---

	// HasBranch reports whether the branch exists in the destination.
	HasBranch(name string) bool

	// CreateBranch creates name as a copy of parent ("" is the mainline).
	// Vendor branches start empty.
	CreateBranch(name, parent string, vendor bool, at time.Time) error

	// SelectBranch sets the branch subsequent file operations apply to.
	SelectBranch(name string) error

	// --- Files / Commits ---

	// Update stages new content for a file; rev may be nil for synthetic updates.
	Update(path string, content *schema.FileContent, rev *schema.RevisionRecord) error

	// Remove stages the removal of a file; rev may be nil for synthetic removals.
	Remove(path string, rev *schema.RevisionRecord) error

	// Commit writes the staged changes and returns an opaque commit id.
	Commit(req schema.CommitRequest) (string, error)

	// Merge writes the staged changes as a commit with parentID as additional parent.
	Merge(parentID string, req schema.CommitRequest) (string, error)
}

// Expander applies RCS keyword expansion to materialized content.
type Expander interface {
	Expand(content *schema.FileContent, rev *schema.RevisionRecord) []byte
}

// TextDecoder turns raw log bytes into well-formed text.
type TextDecoder interface {
	Decode(raw string) (string, error)
}

// AuthorResolver maps a CVS login to a display name and an email address.
type AuthorResolver interface {
	Resolve(login string) (name, email string)
}
