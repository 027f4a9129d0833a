package skillgraph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/skillgraph/pkg/skillgraph/execlog"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/graph"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/recipe"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/skill"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/snapshot"
)

// Test skill types
const (
	typeSource = "source" // no inputs, output "out"
	typeStep   = "step"   // inputs "in" and "aux", output "out"
	typeFail   = "fail"   // always errors
	typePanic  = "panic"  // always panics
	typeNoOut  = "noout"  // declares "out" but returns nothing
	typeMasked = "masked" // requires an unconnected "mask" input
)

var errProvider = errors.New("provider unavailable")

// recorder tracks executor calls across skills.
type recorder struct {
	mu     sync.Mutex
	calls  []string
	inputs map[string]map[string]any

	// hook runs inside every execution when set.
	hook func(nodeID string)
}

func (rc *recorder) record(req skill.Request) {
	rc.mu.Lock()
	rc.calls = append(rc.calls, req.NodeID)
	if rc.inputs == nil {
		rc.inputs = make(map[string]map[string]any)
	}
	rc.inputs[req.NodeID] = req.Inputs
	hook := rc.hook
	rc.mu.Unlock()

	if hook != nil {
		hook(req.NodeID)
	}
}

func (rc *recorder) Calls() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]string(nil), rc.calls...)
}

func (rc *recorder) Inputs(nodeID string) map[string]any {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.inputs[nodeID]
}

// output derives a payload from the node ID and its "in" input so tests can
// tell which upstream snapshot a result was built from.
func output(req skill.Request) string {
	if in, ok := req.Inputs["in"]; ok {
		return fmt.Sprintf("%s(%v)", req.NodeID, in)
	}
	return req.NodeID
}

func testSkills(rc *recorder) *skill.Registry {
	reg := skill.NewRegistry()
	ok := skill.ExecutorFunc(func(_ context.Context, req skill.Request) (skill.Result, error) {
		rc.record(req)
		return skill.Result{Outputs: map[string]any{"out": output(req)}}, nil
	})

	reg.MustRegister(skill.Skill{
		Type:     typeSource,
		Version:  "1",
		Outputs:  []skill.PortSpec{{Key: "out"}},
		Executor: ok,
	})
	reg.MustRegister(skill.Skill{
		Type:     typeStep,
		Version:  "1",
		Inputs:   []skill.PortSpec{{Key: "in"}, {Key: "aux"}},
		Outputs:  []skill.PortSpec{{Key: "out"}},
		Executor: ok,
	})
	reg.MustRegister(skill.Skill{
		Type:    typeFail,
		Inputs:  []skill.PortSpec{{Key: "in"}},
		Outputs: []skill.PortSpec{{Key: "out"}},
		Executor: skill.ExecutorFunc(func(_ context.Context, req skill.Request) (skill.Result, error) {
			rc.record(req)
			return skill.Result{}, errProvider
		}),
	})
	reg.MustRegister(skill.Skill{
		Type:    typePanic,
		Inputs:  []skill.PortSpec{{Key: "in"}},
		Outputs: []skill.PortSpec{{Key: "out"}},
		Executor: skill.ExecutorFunc(func(_ context.Context, req skill.Request) (skill.Result, error) {
			rc.record(req)
			panic("nil model")
		}),
	})
	reg.MustRegister(skill.Skill{
		Type:    typeNoOut,
		Outputs: []skill.PortSpec{{Key: "out"}},
		Executor: skill.ExecutorFunc(func(_ context.Context, req skill.Request) (skill.Result, error) {
			rc.record(req)
			return skill.Result{Outputs: map[string]any{"other": 1}}, nil
		}),
	})
	reg.MustRegister(skill.Skill{
		Type:     typeMasked,
		Inputs:   []skill.PortSpec{{Key: "in"}, {Key: "mask", Required: true}},
		Outputs:  []skill.PortSpec{{Key: "out"}},
		Executor: ok,
	})
	return reg
}

// newTestRunner returns a runner with empty stores wired the way a host
// would wire them.
func newTestRunner(t *testing.T, opts ...Option) (*Runner, *recorder) {
	t.Helper()
	rc := &recorder{}
	snaps := snapshot.NewStore()
	skills := testSkills(rc)
	g := graph.NewStore(graph.WithListener(snaps), graph.WithValidator(skills))
	r := NewRunner(g, snaps, recipe.NewStore(), skills, execlog.New(execlog.DefaultConfig), opts...)
	return r, rc
}

func addNode(t *testing.T, r *Runner, id, nodeType string) {
	t.Helper()
	require.NoError(t, r.Graph().AddNode(graph.Node{ID: id, Type: nodeType}))
}

func addChild(t *testing.T, r *Runner, id, nodeType, parent string) {
	t.Helper()
	require.NoError(t, r.Graph().AddNode(graph.Node{ID: id, Type: nodeType, ParentID: parent}))
}

// connect links src "out" to dst "in".
func connect(t *testing.T, r *Runner, src, dst string) {
	t.Helper()
	connectPort(t, r, src, dst, "in")
}

func connectPort(t *testing.T, r *Runner, src, dst, port string) {
	t.Helper()
	require.NoError(t, r.Graph().AddEdge(graph.Edge{
		Source:       src,
		SourceHandle: "out",
		Target:       dst,
		TargetHandle: port,
	}))
}

// chainABC builds A -> B -> C with A a source.
func chainABC(t *testing.T, opts ...Option) (*Runner, *recorder) {
	t.Helper()
	r, rc := newTestRunner(t, opts...)
	addNode(t, r, "A", typeSource)
	addNode(t, r, "B", typeStep)
	addNode(t, r, "C", typeStep)
	connect(t, r, "A", "B")
	connect(t, r, "B", "C")
	return r, rc
}

func lock(t *testing.T, r *Runner, id string) {
	t.Helper()
	locked, err := r.Graph().ToggleNodeLock(id)
	require.NoError(t, err)
	require.True(t, locked)
}

// version returns the active version of a node's "out" port, 0 when none.
func version(r *Runner, id string) int64 {
	snap, ok := r.Snapshots().GetActiveSnapshot(id, "out")
	if !ok {
		return 0
	}
	return snap.Version
}

func status(t *testing.T, r *Runner, id string) graph.Status {
	t.Helper()
	n, ok := r.Graph().Node(id)
	require.True(t, ok)
	return n.Data.Status
}

func staleState(t *testing.T, r *Runner, id string) snapshot.StaleState {
	t.Helper()
	s, err := r.StaleState(id)
	require.NoError(t, err)
	return s
}

// fingerprint captures everything a run may mutate.
type fingerprint struct {
	Nodes    []graph.Node
	Versions map[string]int64
	Recipes  int
	Events   int
}

func takeFingerprint(r *Runner) fingerprint {
	fp := fingerprint{
		Nodes:    r.Graph().Nodes(),
		Versions: make(map[string]int64),
		Recipes:  r.Recipes().Len(),
		Events:   r.Events().Len(),
	}
	for _, n := range fp.Nodes {
		fp.Versions[n.ID] = version(r, n.ID)
	}
	return fp
}
