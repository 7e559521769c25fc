package core

import "github.com/seanfarley/fromcvs/internal/contract"

// Fatal error classes, shared with the destination adapters.
var (
	ErrBranchExists     = contract.ErrBranchExists
	ErrUnexpectedParent = contract.ErrUnexpectedParent
	ErrEncoding         = contract.ErrEncoding
	ErrDestination      = contract.ErrDestination
)
