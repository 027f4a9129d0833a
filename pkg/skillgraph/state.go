package skillgraph

import (
	"context"
	"fmt"

	"github.com/randalmurphal/skillgraph/pkg/skillgraph/graph"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/query"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/snapshot"
)

// StaleState classifies a node for scheduling. A locked node is always
// fresh, whether or not it ever ran. A required input port that no edge
// feeds makes the node blocked. Otherwise the snapshot store decides.
func (r *Runner) StaleState(nodeID string) (snapshot.StaleState, error) {
	node, ok := r.graph.Node(nodeID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	return r.staleState(node), nil
}

func (r *Runner) staleState(node graph.Node) snapshot.StaleState {
	if node.Data.Locked {
		return snapshot.StateFresh
	}
	if sk, ok := r.skills.Lookup(node.Type); ok {
		fed := make(map[string]bool)
		for _, sub := range r.snapshots.Inbound(node.ID) {
			fed[sub.ConsumerPort] = true
		}
		for _, key := range sk.RequiredInputs() {
			if !fed[key] {
				return snapshot.StateBlocked
			}
		}
	}
	return r.snapshots.GetStaleState(node.ID)
}

// NodeState assembles the queryable state of a node. It returns nil for
// unknown nodes and is a query.StateLoader.
func (r *Runner) NodeState(_ context.Context, nodeID string) (*query.NodeState, error) {
	node, ok := r.graph.Node(nodeID)
	if !ok {
		return nil, nil
	}

	state := &query.NodeState{
		NodeID:          node.ID,
		Type:            node.Type,
		Status:          node.Data.Status,
		Error:           node.Data.Error,
		Locked:          node.Data.Locked,
		StaleState:      r.staleState(node),
		ActiveSnapshots: r.snapshots.ActiveSnapshots(node.ID),
		LastConsumed:    r.snapshots.LastConsumed(node.ID),
		Recipes:         r.recipes.GetRecipesForNode(node.ID),
	}
	if latest, ok := r.recipes.GetLatestRecipe(node.ID); ok {
		state.LatestRecipe = &latest
	}
	return state, nil
}

// Queries returns an executor serving the builtin queries over this
// Runner's stores.
//
// Example:
//
//	q := runner.Queries()
//	state, err := q.Execute(ctx, "upscale", query.QueryStaleState, nil)
func (r *Runner) Queries() *query.Executor {
	registry := query.NewRegistry()
	if err := query.RegisterBuiltins(registry, r.NodeState); err != nil {
		// A fresh registry has no names to collide with.
		panic(err)
	}
	return query.NewExecutor(registry)
}
