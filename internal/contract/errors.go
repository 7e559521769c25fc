package contract

import "errors"

// Fatal error classes of a conversion. Adapters wrap these so the engine and the
// command line can tell them apart with errors.Is.
var (
	// ErrBranchExists is returned when a branch is created twice.
	ErrBranchExists = errors.New("branch already exists")

	// ErrUnexpectedParent is returned when a merge targets a branch whose parent is not the expected one.
	ErrUnexpectedParent = errors.New("unexpected branch parent")

	// ErrEncoding is returned when a log message cannot be turned into valid text.
	ErrEncoding = errors.New("log message encoding")

	// ErrDestination is returned when the destination store fails or returns malformed data.
	ErrDestination = errors.New("destination failure")
)
