package types

import "github.com/pkg/errors"

// Error kinds. Structured errors returned by the other packages match one of these with errors.Is.
var (
	// ErrConfiguration is a malformed ParallelDesc, distribution or request: rank mismatch,
	// non-positive dimension, wrong number of nodes.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrUnsupportedTransformation is returned when the reduced hierarchies are still multi-axis or
	// when no strategy of the chain applies.
	ErrUnsupportedTransformation = errors.New("unsupported boxing transformation")

	// ErrStrategyInternal is returned when a strategy claimed applicability but failed while building
	// the sub-graph.
	ErrStrategyInternal = errors.New("boxing strategy internal error")

	// ErrDispatchResolution is returned by an actor invocation that could not resolve a port to a buffer.
	ErrDispatchResolution = errors.New("actor dispatch resolution error")
)
