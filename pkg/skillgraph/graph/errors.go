package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for structural mutations.
var (
	// ErrNodeNotFound indicates an operation referenced an unknown node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNodeExists indicates AddNode was called with a duplicate ID.
	ErrNodeExists = errors.New("node already exists")

	// ErrInvalidNode indicates a node without an ID.
	ErrInvalidNode = errors.New("invalid node")

	// ErrSelfLoop indicates an edge whose source and target are the same node.
	ErrSelfLoop = errors.New("self-loop edge")

	// ErrDuplicateTarget indicates a second edge into an already connected input port.
	ErrDuplicateTarget = errors.New("input port already connected")

	// ErrEdgeExists indicates an edge ID collision.
	ErrEdgeExists = errors.New("edge already exists")
)

// Sentinel errors for persistence.
var (
	// ErrNotFound is returned by Persistence.LoadGraph for unknown projects.
	ErrNotFound = errors.New("project not found")

	// ErrNoPersistence indicates load/save on a Store built without WithPersistence.
	ErrNoPersistence = errors.New("persistence not configured")
)

// ConflictError is returned when a save carries a stale base version.
// The server state is left untouched; callers must reload or force-save.
type ConflictError struct {
	ProjectID string
	// BaseVersion is the version the client believed was current.
	BaseVersion int64
	// ServerVersion is the version actually stored.
	ServerVersion int64
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("save conflict for project %s: base version %d, server version %d",
		e.ProjectID, e.BaseVersion, e.ServerVersion)
}

// EdgeError reports a rejected edge.
type EdgeError struct {
	Edge Edge
	Err  error
}

// Error implements the error interface.
func (e *EdgeError) Error() string {
	return fmt.Sprintf("edge %s (%s:%s -> %s:%s): %v",
		e.Edge.ID, e.Edge.Source, e.Edge.SourceHandle, e.Edge.Target, e.Edge.TargetHandle, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *EdgeError) Unwrap() error {
	return e.Err
}
