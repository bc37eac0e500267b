package graph

import "errors"

// Build-time validation errors. All of them are fatal and never retried.
var (
	// ErrTypeMismatch marks an edge whose producer output type differs
	// from the consumer input type.
	ErrTypeMismatch = errors.New("graph: edge type mismatch")

	// ErrCyclicGraph marks a graph containing a cycle.
	ErrCyclicGraph = errors.New("graph: cycle detected")

	// ErrDisconnectedNode marks a node not wired into the single
	// source-to-sink component.
	ErrDisconnectedNode = errors.New("graph: disconnected node")

	// ErrAlreadyBuilt is returned by Build after the first call.
	ErrAlreadyBuilt = errors.New("graph: builder already built")

	// ErrPortOccupied marks a second connection to an already wired port.
	ErrPortOccupied = errors.New("graph: port already connected")

	// ErrDuplicateNode marks two registrations under the same id.
	ErrDuplicateNode = errors.New("graph: duplicate node id")

	// ErrUnknownNode marks a reference to an unregistered node id.
	ErrUnknownNode = errors.New("graph: unknown node id")

	// ErrEmptyGraph marks a build attempt with no registered nodes.
	ErrEmptyGraph = errors.New("graph: no nodes registered")

	// ErrDeferredAbandoned marks a deferred result whose channel was
	// closed without delivering a result.
	ErrDeferredAbandoned = errors.New("graph: deferred result abandoned")

	// ErrDuplicatePlan marks two library registrations under the same id.
	ErrDuplicatePlan = errors.New("graph: duplicate plan id")
)
