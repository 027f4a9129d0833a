package skillgraph

import (
	"fmt"
	"time"
)

// Mode selects which part of the graph a run covers.
type Mode string

const (
	// ModeRunNode executes exactly one node.
	ModeRunNode Mode = "run_node"
	// ModeRunFromHere executes a node and everything downstream of it,
	// skipping fresh downstream nodes that no node re-executed in the same
	// run feeds.
	ModeRunFromHere Mode = "run_from_here"
	// ModeRunGroup executes the children of a group node.
	ModeRunGroup Mode = "run_group"
	// ModeRunAll executes every node.
	ModeRunAll Mode = "run_all"
)

// Request describes one run.
type Request struct {
	Mode Mode
	// NodeID is the start node, or the group node for ModeRunGroup.
	// Ignored for ModeRunAll.
	NodeID string
}

// RunNode requests execution of a single node.
func RunNode(nodeID string) Request {
	return Request{Mode: ModeRunNode, NodeID: nodeID}
}

// RunFromHere requests execution of nodeID and its downstream closure.
func RunFromHere(nodeID string) Request {
	return Request{Mode: ModeRunFromHere, NodeID: nodeID}
}

// RunGroup requests execution of the children of groupID.
func RunGroup(groupID string) Request {
	return Request{Mode: ModeRunGroup, NodeID: groupID}
}

// RunAll requests execution of the whole graph.
func RunAll() Request {
	return Request{Mode: ModeRunAll}
}

// String returns a readable form such as "run_from_here(a)".
func (r Request) String() string {
	if r.Mode == ModeRunAll {
		return string(r.Mode)
	}
	return fmt.Sprintf("%s(%s)", r.Mode, r.NodeID)
}

// RunResult summarizes a run. It is returned alongside execution errors so
// callers can see how far the run got.
type RunResult struct {
	RunID string
	Mode  Mode
	// Order is the topological order of the selected nodes.
	Order []string
	// Executed lists nodes passed to their executor, in completion order.
	// A failed node is included.
	Executed []string
	// Skipped maps node IDs to the reason they did not run
	// ("locked", "fresh", "blocked").
	Skipped map[string]string
	// FailedNode is the node that halted the run, if any.
	FailedNode string
	Duration   time.Duration
}
