package skillgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/skillgraph/pkg/skillgraph/config"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/execlog"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/graph"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/observability"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/recipe"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/skill"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/snapshot"
)

// Skip reasons reported in RunResult.Skipped and skip log events.
const (
	SkipLocked  = "locked"
	SkipFresh   = "fresh"
	SkipBlocked = "blocked"
)

// ErrGroupNode indicates a single-node run was requested on a group node.
var ErrGroupNode = errors.New("group nodes are not executable")

// Runner schedules skill executions over a graph.
//
// A Runner is the only writer of the snapshot and recipe stores while a run
// is walking; readers may query every store concurrently. Runs of one Runner
// never overlap.
type Runner struct {
	graph     *graph.Store
	snapshots *snapshot.Store
	recipes   *recipe.Store
	skills    *skill.Registry
	events    *execlog.Log

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	running atomic.Bool
}

// NewRunner creates a Runner over the given stores. Nil stores are replaced
// by empty ones.
//
// The snapshot store should be registered on the graph store with
// graph.WithListener so staleness queries see edge changes between runs;
// each run rebuilds the subscription index before ordering regardless.
func NewRunner(g *graph.Store, snaps *snapshot.Store, recipes *recipe.Store, skills *skill.Registry, events *execlog.Log, opts ...Option) *Runner {
	if g == nil {
		g = graph.NewStore()
	}
	if snaps == nil {
		snaps = snapshot.NewStore()
	}
	if recipes == nil {
		recipes = recipe.NewStore()
	}
	if skills == nil {
		skills = skill.NewRegistry()
	}
	if events == nil {
		events = execlog.New(execlog.DefaultConfig)
	}

	r := &Runner{
		graph:     g,
		snapshots: snaps,
		recipes:   recipes,
		skills:    skills,
		events:    events,
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.snapshots.RebuildSubscriptions(g.Edges())
	return r
}

// Graph returns the graph store.
func (r *Runner) Graph() *graph.Store { return r.graph }

// Snapshots returns the snapshot store.
func (r *Runner) Snapshots() *snapshot.Store { return r.snapshots }

// Recipes returns the recipe store.
func (r *Runner) Recipes() *recipe.Store { return r.recipes }

// Skills returns the skill registry.
func (r *Runner) Skills() *skill.Registry { return r.skills }

// Events returns the execution log.
func (r *Runner) Events() *execlog.Log { return r.events }

// Running reports whether a run is in progress.
func (r *Runner) Running() bool { return r.running.Load() }

// plan is a validated run: the selected nodes, their order and skills.
type plan struct {
	order  []string
	skills map[string]skill.Skill
}

// Run executes a request and returns a summary of what happened.
//
// Planning errors (ErrNodeNotFound, *ValidationError, *CycleError) are
// returned with a nil result before any store is touched. Execution errors
// (*SkillExecutionError, *CancellationError) are returned together with the
// partial result; work committed before the error stands.
//
// Example:
//
//	result, err := runner.Run(ctx, skillgraph.RunFromHere("upscale"))
//	var execErr *skillgraph.SkillExecutionError
//	if errors.As(err, &execErr) {
//	    log.Printf("node %s failed after %v", execErr.NodeID, result.Executed)
//	}
func (r *Runner) Run(ctx context.Context, req Request, opts ...RunOption) (result *RunResult, runErr error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}

	startTime := time.Now()
	mode := string(req.Mode)

	p, err := r.prepare(req)
	if err != nil {
		observability.LogRunError(r.logger, cfg.runID, err, 0, req.NodeID)
		r.metrics.RecordRun(ctx, mode, false, time.Since(startTime))
		return nil, err
	}

	observability.LogRunStart(r.logger, cfg.runID, mode, len(p.order))

	runCtx, runSpan := r.spans.StartRunSpan(ctx, mode, cfg.runID)
	defer func() {
		r.spans.EndSpanWithError(runSpan, runErr)
	}()

	result = &RunResult{
		RunID:   cfg.runID,
		Mode:    req.Mode,
		Order:   p.order,
		Skipped: make(map[string]string),
	}
	runErr = r.walk(runCtx, req, p, &cfg, result)
	result.Duration = time.Since(startTime)
	durationMs := float64(result.Duration.Milliseconds())

	r.metrics.RecordRun(ctx, mode, runErr == nil, result.Duration)

	if runErr != nil {
		lastNode := result.FailedNode
		var cancelErr *CancellationError
		if errors.As(runErr, &cancelErr) {
			lastNode = cancelErr.NodeID
		}
		observability.LogRunError(r.logger, cfg.runID, runErr, durationMs, lastNode)
	} else {
		observability.LogRunComplete(r.logger, cfg.runID, durationMs, len(result.Executed), len(result.Skipped))
	}
	return result, runErr
}

// prepare selects, orders and validates without side effects on any store.
// The subscription index is rebuilt from the current edges; it is derived
// data and rebuilding it is idempotent.
func (r *Runner) prepare(req Request) (*plan, error) {
	nodes := r.graph.Nodes()
	edges := r.graph.Edges()
	r.snapshots.RebuildSubscriptions(edges)

	selected, err := selectNodes(req, nodes, edges)
	if err != nil {
		return nil, err
	}

	single := req.Mode == ModeRunNode || req.Mode == ModeRunFromHere
	if single {
		start, _ := r.graph.Node(req.NodeID)
		if start.IsGroup() {
			return nil, &ValidationError{NodeID: req.NodeID, Err: ErrGroupNode}
		}
	}
	if req.Mode == ModeRunNode {
		if members := cycleThrough(req.NodeID, nodes, edges); members != nil {
			return nil, &CycleError{Nodes: members}
		}
	}

	order, err := TopologicalOrder(selected, internalEdges(selected, edges))
	if err != nil {
		return nil, err
	}

	p := &plan{order: order, skills: make(map[string]skill.Skill, len(selected))}
	var errs []error
	for _, n := range selected {
		sk, err := r.skills.Resolve(n.Type)
		if err != nil {
			errs = append(errs, &ValidationError{NodeID: n.ID, Err: err})
			continue
		}
		p.skills[n.ID] = sk
	}

	if single {
		start, _ := r.graph.Node(req.NodeID)
		if sk, ok := p.skills[start.ID]; ok && !start.Data.Locked {
			if missing := r.missingInputs(start.ID, sk); len(missing) > 0 {
				errs = append(errs, &ValidationError{NodeID: start.ID, MissingPorts: missing})
			}
		}
	}

	switch len(errs) {
	case 0:
		return p, nil
	case 1:
		return nil, errs[0]
	default:
		return nil, errors.Join(errs...)
	}
}

// missingInputs returns, sorted, the subscribed input ports whose producer
// has no active snapshot and the required ports no edge feeds.
func (r *Runner) missingInputs(nodeID string, sk skill.Skill) []string {
	fed := make(map[string]bool)
	var missing []string
	for _, sub := range r.snapshots.Inbound(nodeID) {
		fed[sub.ConsumerPort] = true
		if _, ok := r.snapshots.GetActiveSnapshot(sub.ProducerID, sub.ProducerPort); !ok {
			missing = append(missing, sub.ConsumerPort)
		}
	}
	for _, key := range sk.RequiredInputs() {
		if !fed[key] {
			missing = append(missing, key)
		}
	}
	slices.Sort(missing)
	return slices.Compact(missing)
}

// walk visits the plan in order, one node at a time.
//
// changed holds the nodes that produced new output in this run, plus locked
// nodes fed by one. A node fed by a changed node is never skipped as fresh,
// so a re-run propagates through locked nodes to their consumers.
func (r *Runner) walk(ctx context.Context, req Request, p *plan, cfg *runConfig, result *RunResult) error {
	changed := make(map[string]bool, len(p.order))
	for _, id := range p.order {
		if cfg.stop != nil && cfg.stop() {
			return &CancellationError{NodeID: id, Cause: ErrStopped}
		}
		if err := ctx.Err(); err != nil {
			return &CancellationError{NodeID: id, Cause: err}
		}

		node, ok := r.graph.Node(id)
		if !ok {
			continue
		}
		sk := p.skills[id]
		upstreamChanged := r.feedsFrom(id, changed)

		if reason := r.skipReason(req, node, upstreamChanged); reason != "" {
			if reason == SkipLocked && upstreamChanged {
				changed[id] = true
			}
			r.skip(ctx, cfg.runID, node, sk, reason)
			result.Skipped[id] = reason
			continue
		}

		result.Executed = append(result.Executed, id)
		if err := r.execute(ctx, cfg.runID, node, sk); err != nil {
			result.FailedNode = id
			return err
		}
		changed[id] = true
	}
	return nil
}

// feedsFrom reports whether any producer subscribed to by nodeID is in set.
func (r *Runner) feedsFrom(nodeID string, set map[string]bool) bool {
	for _, sub := range r.snapshots.Inbound(nodeID) {
		if set[sub.ProducerID] {
			return true
		}
	}
	return false
}

func (r *Runner) skipReason(req Request, node graph.Node, upstreamChanged bool) string {
	if node.Data.Locked {
		return SkipLocked
	}
	switch r.staleState(node) {
	case snapshot.StateBlocked:
		return SkipBlocked
	case snapshot.StateFresh:
		if req.Mode == ModeRunFromHere && node.ID != req.NodeID && !upstreamChanged {
			return SkipFresh
		}
	}
	return ""
}

func (r *Runner) skip(ctx context.Context, runID string, node graph.Node, sk skill.Skill, reason string) {
	r.events.Append(execlog.Event{
		RunID:   runID,
		NodeID:  node.ID,
		SkillID: sk.ID,
		Action:  execlog.ActionSkip,
		Message: reason,
	})
	observability.LogNodeSkipped(r.logger, node.ID, reason)
	r.metrics.RecordNodeSkipped(ctx, node.ID, reason)
	r.spans.AddSpanEvent(ctx, "node.skipped",
		attribute.String("node.id", node.ID),
		attribute.String("skip.reason", reason),
	)
}

// execute drives one node through running to success or fail.
func (r *Runner) execute(ctx context.Context, runID string, node graph.Node, sk skill.Skill) error {
	logger := observability.EnrichLogger(r.logger, runID, node.ID, sk.ID)
	r.setStatus(node.ID, graph.StatusRunning, "")

	inputs, refs, consumed := r.gatherInputs(node.ID)
	entry := r.recipes.AddRecipe(recipe.Entry{
		RunID:        runID,
		NodeID:       node.ID,
		SkillID:      sk.ID,
		SkillVersion: sk.Version,
		Seed:         seedOf(node.Data.Params),
		ModelParams:  node.Data.Params,
		InputRefs:    refs,
	})
	r.updateRecipe(entry.ID, recipe.StatusRunning, 0, "")

	r.events.Append(execlog.Event{
		RunID:   runID,
		NodeID:  node.ID,
		SkillID: sk.ID,
		Action:  execlog.ActionStart,
	})
	observability.LogNodeStart(logger, node.ID, sk.ID)

	nodeCtx, span := r.spans.StartNodeSpan(ctx, node.ID, sk.ID)
	started := time.Now()

	res, err := r.invoke(nodeCtx, node, sk, inputs)

	duration := time.Since(started)
	if err == nil && res.Duration > 0 {
		duration = res.Duration
	}
	if err == nil {
		err = checkOutputs(sk, res.Outputs)
	}
	r.metrics.RecordNodeExecution(nodeCtx, node.ID, sk.ID, duration, err)
	r.spans.EndSpanWithError(span, err)

	if err != nil {
		msg := err.Error()
		r.setStatus(node.ID, graph.StatusFail, msg)
		r.updateRecipe(entry.ID, recipe.StatusError, duration, msg)
		r.events.Append(execlog.Event{
			RunID:   runID,
			NodeID:  node.ID,
			SkillID: sk.ID,
			Action:  execlog.ActionError,
			Message: fmt.Sprintf("run halted at node %s: %s", node.ID, msg),
			Data:    map[string]any{"halted": true, "error": msg},
		})
		observability.LogNodeError(logger, node.ID, err)
		return &SkillExecutionError{NodeID: node.ID, SkillID: sk.ID, Err: err}
	}

	outputs := make([]recipe.OutputRef, 0, len(sk.Outputs))
	versions := make(map[string]any, len(sk.Outputs))
	for _, key := range sk.OutputKeys() {
		snap := r.snapshots.Publish(node.ID, key, res.Outputs[key])
		outputs = append(outputs, recipe.OutputRef{Port: key, Version: snap.Version})
		versions[key] = snap.Version
		r.metrics.RecordSnapshotPublished(nodeCtx, node.ID, key)
		observability.LogSnapshotPublished(logger, node.ID, key, snap.Version)
	}
	r.snapshots.RecordConsumption(node.ID, consumed)

	if err := r.recipes.SetRecipeOutputs(entry.ID, outputs); err != nil {
		r.warn("record recipe outputs", "recipe_id", entry.ID, "error", err)
	}
	r.updateRecipe(entry.ID, recipe.StatusSuccess, duration, "")
	r.setStatus(node.ID, graph.StatusSuccess, "")

	r.events.Append(execlog.Event{
		RunID:   runID,
		NodeID:  node.ID,
		SkillID: sk.ID,
		Action:  execlog.ActionComplete,
		Data: map[string]any{
			"duration_ms": duration.Milliseconds(),
			"outputs":     versions,
		},
	})
	observability.LogNodeComplete(logger, node.ID, float64(duration.Milliseconds()), len(outputs))
	return nil
}

// invoke calls the executor, converting a panic into a *PanicError.
func (r *Runner) invoke(ctx context.Context, node graph.Node, sk skill.Skill, inputs map[string]any) (res skill.Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			res = skill.Result{}
			err = &PanicError{
				NodeID: node.ID,
				Value:  v,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	return sk.Executor.Execute(ctx, skill.Request{
		NodeID:  node.ID,
		SkillID: sk.ID,
		Params:  maps.Clone(node.Data.Params),
		Inputs:  inputs,
	})
}

// gatherInputs reads the active snapshot behind every inbound subscription.
func (r *Runner) gatherInputs(nodeID string) (map[string]any, []recipe.InputRef, []snapshot.Consumption) {
	subs := r.snapshots.Inbound(nodeID)
	inputs := make(map[string]any, len(subs))
	refs := make([]recipe.InputRef, 0, len(subs))
	consumed := make([]snapshot.Consumption, 0, len(subs))

	for _, sub := range subs {
		snap, ok := r.snapshots.GetActiveSnapshot(sub.ProducerID, sub.ProducerPort)
		if !ok {
			continue
		}
		inputs[sub.ConsumerPort] = snap.Payload
		refs = append(refs, recipe.InputRef{
			Port:         sub.ConsumerPort,
			ProducerID:   sub.ProducerID,
			ProducerPort: sub.ProducerPort,
			Version:      snap.Version,
		})
		consumed = append(consumed, snapshot.Consumption{
			Port:         sub.ConsumerPort,
			ProducerID:   sub.ProducerID,
			ProducerPort: sub.ProducerPort,
			Version:      snap.Version,
		})
	}
	slices.SortFunc(refs, func(a, b recipe.InputRef) int { return strings.Compare(a.Port, b.Port) })
	return inputs, refs, consumed
}

func checkOutputs(sk skill.Skill, outputs map[string]any) error {
	for _, key := range sk.OutputKeys() {
		if _, ok := outputs[key]; !ok {
			return fmt.Errorf("%w: port %q", ErrMissingOutput, key)
		}
	}
	return nil
}

// seedOf extracts the integer "seed" parameter recorded in recipes.
func seedOf(params map[string]any) *int64 {
	seed, ok := config.NewParams(params).Int64("seed")
	if !ok {
		return nil
	}
	return &seed
}

func (r *Runner) setStatus(nodeID string, status graph.Status, errMsg string) {
	if err := r.graph.UpdateNodeStatus(nodeID, status, errMsg); err != nil {
		r.warn("update node status", "node_id", nodeID, "status", string(status), "error", err)
	}
}

func (r *Runner) updateRecipe(id string, status recipe.Status, duration time.Duration, errMsg string) {
	if err := r.recipes.UpdateRecipeStatus(id, status, duration, errMsg); err != nil {
		r.warn("update recipe status", "recipe_id", id, "status", string(status), "error", err)
	}
}

func (r *Runner) warn(msg string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Warn(msg, args...)
}
