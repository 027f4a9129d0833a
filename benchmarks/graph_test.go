package benchmarks

import (
	"fmt"
	"testing"

	"github.com/randalmurphal/skillgraph/pkg/skillgraph"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/graph"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/snapshot"
)

// BenchmarkTopologicalOrder_Linear_100 orders a 100-node chain.
func BenchmarkTopologicalOrder_Linear_100(b *testing.B) {
	nodes, edges := linear(100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = skillgraph.TopologicalOrder(nodes, edges)
	}
}

// BenchmarkTopologicalOrder_Linear_1000 orders a 1000-node chain.
func BenchmarkTopologicalOrder_Linear_1000(b *testing.B) {
	nodes, edges := linear(1000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = skillgraph.TopologicalOrder(nodes, edges)
	}
}

// BenchmarkTopologicalOrder_Layered orders 10 fully connected layers of 10.
func BenchmarkTopologicalOrder_Layered(b *testing.B) {
	nodes, edges := layered(10, 10)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = skillgraph.TopologicalOrder(nodes, edges)
	}
}

// BenchmarkRebuildSubscriptions measures a full index swap for 1000 edges.
func BenchmarkRebuildSubscriptions(b *testing.B) {
	_, edges := linear(1001)
	store := snapshot.NewStore()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.RebuildSubscriptions(edges)
	}
}

// BenchmarkGetStaleState measures staleness of a node with 10 inputs.
func BenchmarkGetStaleState(b *testing.B) {
	store := snapshot.NewStore()
	var edges []graph.Edge
	for i := 0; i < 10; i++ {
		src := fmt.Sprintf("src%d", i)
		store.Publish(src, "out", i)
		edges = append(edges, graph.Edge{Source: src, SourceHandle: "out", Target: "sink", TargetHandle: fmt.Sprintf("in%d", i)})
	}
	store.RebuildSubscriptions(edges)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.GetStaleState("sink")
	}
}

// BenchmarkGraphStore_AddEdge measures edge validation and listener fan-out
// on a 100-node graph.
func BenchmarkGraphStore_AddEdge(b *testing.B) {
	nodes, edges := linear(100)
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		snaps := snapshot.NewStore()
		g := graph.NewStore(graph.WithListener(snaps))
		if err := g.SetNodes(nodes); err != nil {
			b.Fatal(err)
		}
		b.StartTimer()
		for _, e := range edges {
			_ = g.AddEdge(e)
		}
	}
}

// BenchmarkGraphStore_UndoRedo measures history round trips.
func BenchmarkGraphStore_UndoRedo(b *testing.B) {
	nodes, edges := linear(100)
	g := graph.NewStore()
	_ = g.SetNodes(nodes)
	_ = g.SetEdges(edges)
	g.PushHistory()
	_ = g.AddNode(graph.Node{ID: "extra", Type: typeStep})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.Undo()
		g.Redo()
	}
}

// Helper functions

func nodeID(n int) string {
	return fmt.Sprintf("n%04d", n)
}

func linear(n int) ([]graph.Node, []graph.Edge) {
	nodes := make([]graph.Node, n)
	for i := range nodes {
		typ := typeStep
		if i == 0 {
			typ = typeSource
		}
		nodes[i] = graph.Node{ID: nodeID(i), Type: typ}
	}
	edges := make([]graph.Edge, 0, n)
	for i := 0; i < n-1; i++ {
		edges = append(edges, edgeBetween(nodeID(i), nodeID(i+1), "in"))
	}
	return nodes, edges
}

// layered builds depth layers of width nodes; every node feeds every node
// of the next layer on its own input port.
func layered(depth, width int) ([]graph.Node, []graph.Edge) {
	var nodes []graph.Node
	var edges []graph.Edge
	id := func(l, w int) string { return fmt.Sprintf("l%d_%d", l, w) }
	for l := 0; l < depth; l++ {
		for w := 0; w < width; w++ {
			nodes = append(nodes, graph.Node{ID: id(l, w), Type: typeStep})
			if l == 0 {
				continue
			}
			for p := 0; p < width; p++ {
				edges = append(edges, edgeBetween(id(l-1, p), id(l, w), fmt.Sprintf("in%d", p)))
			}
		}
	}
	return nodes, edges
}

func edgeBetween(src, dst, port string) graph.Edge {
	return graph.Edge{
		ID:           graph.EdgeID(src, "out", dst, port),
		Source:       src,
		SourceHandle: "out",
		Target:       dst,
		TargetHandle: port,
	}
}
