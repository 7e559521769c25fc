package schema

// Custom string types for type safety.
type (
	// Action is the classification tag assigned to a single file revision.
	Action string

	// RevState is the normalized RCS state of a revision.
	RevState string

	// ExpandMode is the RCS keyword substitution mode of a file.
	ExpandMode string

	// OutputMode represents the format of the output.
	OutputMode string

	// DatabaseBackend represents the database backend for the changeset index.
	DatabaseBackend string

	// DestinationKind selects the destination adapter used by convert.
	DestinationKind string

	// WindowMode selects how the aggregation window is measured.
	WindowMode string
)

// All revision actions.
const (
	ActionNormal      Action = "normal"
	ActionIgnore      Action = "ignore"
	ActionBranch      Action = "branch"
	ActionBranchMerge Action = "branch_merge"
	ActionVendor      Action = "vendor"
	ActionVendorMerge Action = "vendor_merge"
)

// All revision states.
const (
	StateNormal RevState = "normal"
	StateDead   RevState = "dead"
)

// All keyword expansion modes understood by RCS.
const (
	ExpandKV  ExpandMode = "kv" // default
	ExpandKVL ExpandMode = "kvl"
	ExpandK   ExpandMode = "k"
	ExpandV   ExpandMode = "v"
	ExpandO   ExpandMode = "o"
	ExpandB   ExpandMode = "b"
)

// All output modes supported.
const (
	CSVOut     OutputMode = "csv"
	TextOut    OutputMode = "text" // default
	JSONOut    OutputMode = "json"
	ParquetOut OutputMode = "parquet"
)

// All index backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	NoneBackend       DatabaseBackend = "none"
)

// All destination kinds supported.
const (
	FastImportDest DestinationKind = "git" // default
	GoGitDest      DestinationKind = "gogit"
	IndexDest      DestinationKind = "index"
)

// All aggregation window modes.
const (
	RunningMaxWindow WindowMode = "running-max" // default
	FirstRevWindow   WindowMode = "first"
)

// FixupAuthor is the author of synthetic commits issued while materializing a
// branch (removal of files not yet present on it).
const FixupAuthor = "branch-fixup"

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	CSVOut:     {},
	TextOut:    {},
	JSONOut:    {},
	ParquetOut: {},
}

// ValidDatabaseBackends lists all valid index backends.
var ValidDatabaseBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}

// ValidDestinationKinds lists all valid destination kinds.
var ValidDestinationKinds = map[DestinationKind]struct{}{
	FastImportDest: {},
	GoGitDest:      {},
	IndexDest:      {},
}

// ValidWindowModes lists all valid aggregation window modes.
var ValidWindowModes = map[WindowMode]struct{}{
	RunningMaxWindow: {},
	FirstRevWindow:   {},
}

// ValidExpandModes lists all keyword expansion modes.
var ValidExpandModes = map[ExpandMode]struct{}{
	ExpandKV:  {},
	ExpandKVL: {},
	ExpandK:   {},
	ExpandV:   {},
	ExpandO:   {},
	ExpandB:   {},
}

// IsMerge reports whether revisions with this action must also be merged onto
// the mainline after being committed on their own branch.
func (a Action) IsMerge() bool {
	return a == ActionBranchMerge || a == ActionVendorMerge
}

// IsVendor reports whether the action belongs to a vendor branch import.
func (a Action) IsVendor() bool {
	return a == ActionVendor || a == ActionVendorMerge
}
