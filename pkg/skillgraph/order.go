package skillgraph

import (
	"fmt"

	"github.com/randalmurphal/skillgraph/pkg/skillgraph/graph"
)

// TopologicalOrder orders nodes so that every edge between two of them
// points forward. Edges with an endpoint outside nodes are ignored. Ties are
// broken by position in nodes, so the same input always yields the same
// order. Returns a *CycleError when no order exists.
func TopologicalOrder(nodes []graph.Node, edges []graph.Edge) ([]string, error) {
	order, rest := kahn(nodes, edges)
	if len(rest) > 0 {
		return order, &CycleError{Nodes: rest}
	}
	return order, nil
}

// kahn returns the ordered node IDs and, when a cycle exists, the IDs left
// over in graph order.
func kahn(nodes []graph.Node, edges []graph.Edge) (order, rest []string) {
	inDegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		inDegree[n.ID] = 0
	}
	adjacent := make(map[string][]string, len(nodes))
	for _, e := range edges {
		if _, ok := inDegree[e.Source]; !ok {
			continue
		}
		if _, ok := inDegree[e.Target]; !ok {
			continue
		}
		adjacent[e.Source] = append(adjacent[e.Source], e.Target)
		inDegree[e.Target]++
	}

	queue := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order = make([]string, 0, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range adjacent[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) < len(nodes) {
		for _, n := range nodes {
			if inDegree[n.ID] > 0 {
				rest = append(rest, n.ID)
			}
		}
	}
	return order, rest
}

// selectNodes returns the nodes a request covers, in graph order. Group
// nodes are never selected.
func selectNodes(req Request, nodes []graph.Node, edges []graph.Edge) ([]graph.Node, error) {
	var keep func(graph.Node) bool
	switch req.Mode {
	case ModeRunNode:
		keep = func(n graph.Node) bool { return n.ID == req.NodeID }
	case ModeRunFromHere:
		reach := downstream(req.NodeID, edges)
		keep = func(n graph.Node) bool { return reach[n.ID] }
	case ModeRunGroup:
		keep = func(n graph.Node) bool { return n.ParentID == req.NodeID }
	case ModeRunAll:
		keep = func(graph.Node) bool { return true }
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}
	if req.Mode != ModeRunAll && !containsNode(nodes, req.NodeID) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, req.NodeID)
	}

	var selected []graph.Node
	for _, n := range nodes {
		if !n.IsGroup() && keep(n) {
			selected = append(selected, n)
		}
	}
	return selected, nil
}

// downstream returns start and every node reachable from it over edges.
func downstream(start string, edges []graph.Edge) map[string]bool {
	return reachable(start, edges, func(e graph.Edge) (string, string) { return e.Source, e.Target })
}

// upstream returns start and every node that reaches it over edges.
func upstream(start string, edges []graph.Edge) map[string]bool {
	return reachable(start, edges, func(e graph.Edge) (string, string) { return e.Target, e.Source })
}

func reachable(start string, edges []graph.Edge, dir func(graph.Edge) (from, to string)) map[string]bool {
	adjacent := make(map[string][]string)
	for _, e := range edges {
		from, to := dir(e)
		adjacent[from] = append(adjacent[from], to)
	}

	seen := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adjacent[id] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return seen
}

// cycleThrough returns the nodes sharing a cycle with id, in graph order,
// or nil when id is not on a cycle. A single-node run has no internal edges,
// so this is how it refuses a node that the graph cannot order.
func cycleThrough(id string, nodes []graph.Node, edges []graph.Edge) []string {
	down := downstream(id, edges)
	onCycle := false
	for _, e := range edges {
		if e.Target == id && down[e.Source] {
			onCycle = true
			break
		}
	}
	if !onCycle {
		return nil
	}

	up := upstream(id, edges)
	var members []string
	for _, n := range nodes {
		if down[n.ID] && up[n.ID] {
			members = append(members, n.ID)
		}
	}
	return members
}

// internalEdges returns the edges with both endpoints in nodes.
func internalEdges(nodes []graph.Node, edges []graph.Edge) []graph.Edge {
	in := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		in[n.ID] = true
	}
	var out []graph.Edge
	for _, e := range edges {
		if in[e.Source] && in[e.Target] {
			out = append(out, e)
		}
	}
	return out
}

func containsNode(nodes []graph.Node, id string) bool {
	for _, n := range nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}
