// Package graph owns the node and edge set of a skill graph together with
// per-node lock flags, execution status and undo/redo history.
//
// A Store is the single writer for structure. Other stores that derive data
// from edges (the snapshot subscription index) register as a Listener and are
// updated inside the same call that mutates the edges.
package graph

import "maps"

// NodeTypeGroup is the type tag of structural group nodes.
// Group nodes scope RUN_GROUP execution and are never executed themselves.
const NodeTypeGroup = "group"

// Status is the execution status of a node as observed by a UI.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFail    Status = "fail"
)

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData holds the mutable per-node payload.
type NodeData struct {
	// Params are the skill parameters (model, prompt, seed, ...).
	Params map[string]any `json:"params,omitempty"`

	// Locked nodes are never re-executed; their cached output is authoritative.
	Locked bool `json:"locked"`

	Status Status `json:"status,omitempty"`

	// Error is the message of the last failed execution.
	Error string `json:"error,omitempty"`
}

// Node is a processing node ("skill instance") on the canvas.
type Node struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Position Position `json:"position"`
	ParentID string   `json:"parent_id,omitempty"`
	Data     NodeData `json:"data"`
}

// IsGroup reports whether the node is a structural group container.
func (n Node) IsGroup() bool {
	return n.Type == NodeTypeGroup
}

// Clone returns a copy that shares no mutable state with n.
func (n Node) Clone() Node {
	c := n
	if n.Data.Params != nil {
		c.Data.Params = maps.Clone(n.Data.Params)
	}
	return c
}

// Edge connects an output port of Source to an input port of Target.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"source_handle"`
	TargetHandle string `json:"target_handle"`
}

// Viewport is the canvas camera, persisted alongside the graph.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Document is the persisted form of a graph.
type Document struct {
	Nodes    []Node   `json:"nodes"`
	Edges    []Edge   `json:"edges"`
	Viewport Viewport `json:"viewport"`
	Version  int64    `json:"version"`
}

// Listener receives structural changes in the same call that makes them.
// Implementations must not call back into the Store.
type Listener interface {
	// NodeRemoved is called once per removed node, after its edges are gone.
	NodeRemoved(nodeID string)

	// EdgesChanged is called with the complete edge set after any edge mutation.
	EdgesChanged(edges []Edge)
}

// Validator checks a node set before it is accepted from persistence.
type Validator interface {
	ValidateNodes(nodes []Node) error
}

func cloneNodes(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

func cloneEdges(edges []Edge) []Edge {
	out := make([]Edge, len(edges))
	copy(out, edges)
	return out
}
