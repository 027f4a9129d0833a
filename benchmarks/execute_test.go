package benchmarks

import (
	"context"
	"testing"

	"github.com/randalmurphal/skillgraph/pkg/skillgraph"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/execlog"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/graph"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/recipe"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/skill"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/snapshot"
)

const (
	typeSource = "source"
	typeStep   = "step"
)

// noopSkills registers skills that forward their input.
func noopSkills() *skill.Registry {
	reg := skill.NewRegistry()
	exec := skill.ExecutorFunc(func(_ context.Context, req skill.Request) (skill.Result, error) {
		return skill.Result{Outputs: map[string]any{"out": req.NodeID}}, nil
	})
	reg.MustRegister(skill.Skill{Type: typeSource, Outputs: []skill.PortSpec{{Key: "out"}}, Executor: exec})
	reg.MustRegister(skill.Skill{Type: typeStep, Inputs: []skill.PortSpec{{Key: "in"}}, Outputs: []skill.PortSpec{{Key: "out"}}, Executor: exec})
	return reg
}

func newRunner(b *testing.B, nodes []graph.Node, edges []graph.Edge) *skillgraph.Runner {
	b.Helper()
	snaps := snapshot.NewStore()
	g := graph.NewStore(graph.WithListener(snaps))
	if err := g.SetNodes(nodes); err != nil {
		b.Fatal(err)
	}
	if err := g.SetEdges(edges); err != nil {
		b.Fatal(err)
	}
	// Small log capacity keeps eviction in the measured path.
	return skillgraph.NewRunner(g, snaps, recipe.NewStore(), noopSkills(), execlog.New(execlog.Config{Capacity: 100}))
}

func benchmarkRunAll(b *testing.B, n int) {
	nodes, edges := linear(n)
	r := newRunner(b, nodes, edges)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Run(ctx, skillgraph.RunAll()); err != nil {
			b.Fatal(err)
		}
		b.StopTimer()
		r.Recipes().Clear()
		b.StartTimer()
	}
}

// BenchmarkRunAll_Linear_10 runs a 10-node chain.
func BenchmarkRunAll_Linear_10(b *testing.B) { benchmarkRunAll(b, 10) }

// BenchmarkRunAll_Linear_100 runs a 100-node chain.
func BenchmarkRunAll_Linear_100(b *testing.B) { benchmarkRunAll(b, 100) }

// BenchmarkRunFromHere_AllFresh measures the skip path: the start node is
// locked, so every downstream node is checked and skipped as fresh.
func BenchmarkRunFromHere_AllFresh(b *testing.B) {
	nodes, edges := linear(100)
	r := newRunner(b, nodes, edges)
	ctx := context.Background()
	if _, err := r.Run(ctx, skillgraph.RunAll()); err != nil {
		b.Fatal(err)
	}
	if _, err := r.Graph().ToggleNodeLock(nodeID(0)); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Run(ctx, skillgraph.RunFromHere(nodeID(0))); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRunNode measures the overhead of a single-node run.
func BenchmarkRunNode(b *testing.B) {
	nodes, edges := linear(10)
	r := newRunner(b, nodes, edges)
	ctx := context.Background()
	if _, err := r.Run(ctx, skillgraph.RunAll()); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Run(ctx, skillgraph.RunNode(nodeID(5))); err != nil {
			b.Fatal(err)
		}
	}
}
