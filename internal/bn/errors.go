package bn

import "errors"

// Sentinel errors for structural and query failures. Callers branch with
// errors.Is; wrapped messages carry the offending identifier.
var (
	ErrDuplicateID        = errors.New("duplicate variable id")
	ErrUnknownID          = errors.New("unknown variable id")
	ErrSelfLoop           = errors.New("self-loop edge")
	ErrCycle              = errors.New("edge would create a cycle")
	ErrMissingTable       = errors.New("no probability tensor attached")
	ErrUnknownState       = errors.New("unknown state")
	ErrMissingParentState = errors.New("missing parent state in assignment")
	ErrMissingAssignment  = errors.New("missing assignment for variable")
	ErrProbRange          = errors.New("probability outside [0, 1]")
	ErrIndexBounds        = errors.New("tensor index out of bounds")
	ErrShapeMismatch      = errors.New("tensor shape does not match variable topology")
)
