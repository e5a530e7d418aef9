package halo

import "errors"

var (
	// ErrConfiguration reports an engine that cannot be built from the given
	// decomposition, periodicity or communicator.
	ErrConfiguration = errors.New("halo: invalid configuration")
	// ErrGeometryMismatch reports an array whose shape disagrees with the
	// geometry the engine was built for.
	ErrGeometryMismatch = errors.New("halo: geometry mismatch")
	// ErrMissingStencilEntry means a weight and its plan went out of step.
	// It indicates a bug, not bad input.
	ErrMissingStencilEntry = errors.New("halo: missing stencil entry")
	ErrUnknownBranch       = errors.New("halo: unknown stencil branch")
)
