/*
Package skillgraph schedules and incrementally re-executes a directed graph
of processing nodes ("skills") connected by data-flow edges.

# Overview

Each node caches a versioned snapshot per output port. When a node runs it
reads the active snapshot behind each of its input ports and records which
versions it consumed. A node whose inputs have moved on since then is stale;
a node with an input that has never been produced is blocked. Re-running
from a node re-executes only what its change affects.

The pieces are explicit objects passed into a Runner:

  - graph.Store holds nodes, edges, locks, status and undo history
  - snapshot.Store holds versioned results and the subscription index
  - recipe.Store records the provenance of every execution
  - skill.Registry maps node type tags to executors
  - execlog.Log is the event stream observers read

# Basic Usage

	skills := skill.NewRegistry()
	skills.MustRegister(skill.Skill{
	    Type:    "prompt",
	    Outputs: []skill.PortSpec{{Key: "text"}},
	    Executor: skill.ExecutorFunc(func(ctx context.Context, req skill.Request) (skill.Result, error) {
	        return skill.Result{Outputs: map[string]any{"text": req.Params["prompt"]}}, nil
	    }),
	})

	snaps := snapshot.NewStore()
	g := graph.NewStore(graph.WithListener(snaps), graph.WithValidator(skills))
	_ = g.AddNode(graph.Node{ID: "p", Type: "prompt"})

	runner := skillgraph.NewRunner(g, snaps, recipe.NewStore(), skills, execlog.New(execlog.DefaultConfig))
	result, err := runner.Run(ctx, skillgraph.RunAll())

# Run Modes

  - RunNode(id) executes one node; its inputs must already be available
  - RunFromHere(id) executes id and its downstream closure, skipping fresh nodes
    that nothing re-executed in the same run feeds (directly or through locked nodes)
  - RunGroup(id) executes the children of a group node
  - RunAll() executes every node

Selected nodes run strictly one at a time in a topological order whose ties
follow the graph's node order. Locked nodes never run; their snapshots stay
visible downstream.

# Errors

Planning errors leave every store untouched:

  - ErrNodeNotFound for an unknown start or group node
  - *ValidationError for unknown skill types or missing inputs
  - *CycleError when the selection has no topological order

Execution errors halt the walk and keep what already completed:

  - *SkillExecutionError wraps the executor error or a *PanicError
  - *CancellationError when the stop predicate or the context fires

# Observability

WithLogger, WithMetrics and WithTracing wire log/slog and OpenTelemetry.
Every node transition is also appended to the execution log, which
supports non-blocking subscriptions.
*/
package skillgraph
