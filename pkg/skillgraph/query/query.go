// Package query provides named, read-only queries over the per-node state
// of a skill graph: execution status, staleness, cached snapshots and
// provenance.
//
// Queries are synchronous and never modify state, so observers (a UI, a CLI,
// an HTTP handler) may issue them while a run is in progress.
package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/randalmurphal/skillgraph/pkg/skillgraph/graph"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/recipe"
	"github.com/randalmurphal/skillgraph/pkg/skillgraph/snapshot"
)

// Handler executes a query against one node and returns a result.
// Handlers must not modify state.
type Handler func(ctx context.Context, nodeID string, args any) (any, error)

// Registry manages query handlers by query name.
type Registry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewRegistry creates a new query registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for a query name.
func (r *Registry) Register(queryName string, handler Handler) error {
	if queryName == "" {
		return errors.New("query name is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[queryName]; exists {
		return fmt.Errorf("handler for query %q already registered", queryName)
	}
	r.handlers[queryName] = handler
	return nil
}

// MustRegister registers a handler, panicking on error.
func (r *Registry) MustRegister(queryName string, handler Handler) {
	if err := r.Register(queryName, handler); err != nil {
		panic(err)
	}
}

// Get returns the handler for a query name.
func (r *Registry) Get(queryName string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, exists := r.handlers[queryName]
	return handler, exists
}

// List returns all registered query names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Unregister removes a handler for a query name.
func (r *Registry) Unregister(queryName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, queryName)
}

var (
	// ErrQueryNotFound is returned when a query handler doesn't exist.
	ErrQueryNotFound = errors.New("query not found")

	// ErrTargetNotFound is returned when the queried node doesn't exist.
	ErrTargetNotFound = errors.New("target not found")
)

// StateLoader assembles the queryable state of a node. It returns nil
// state for unknown nodes.
type StateLoader func(ctx context.Context, nodeID string) (*NodeState, error)

// NodeState is the queryable state of one node.
type NodeState struct {
	NodeID string       `json:"node_id"`
	Type   string       `json:"type"`
	Status graph.Status `json:"status"`
	Error  string       `json:"error,omitempty"`
	Locked bool         `json:"locked"`

	StaleState snapshot.StaleState `json:"stale_state"`

	// ActiveSnapshots holds one snapshot per output port, ordered by port.
	ActiveSnapshots []snapshot.Snapshot `json:"active_snapshots,omitempty"`

	// LastConsumed is what the node read on its last successful run.
	LastConsumed []snapshot.Consumption `json:"last_consumed,omitempty"`

	LatestRecipe *recipe.Entry `json:"latest_recipe,omitempty"`
	Recipes      []recipe.Entry `json:"recipes,omitempty"`
}

// Executor runs queries against nodes.
type Executor struct {
	registry *Registry
}

// NewExecutor creates a new query executor.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute runs a query against a node.
func (e *Executor) Execute(ctx context.Context, nodeID, queryName string, args any) (any, error) {
	if nodeID == "" {
		return nil, errors.New("node ID is required")
	}
	if queryName == "" {
		return nil, errors.New("query name is required")
	}

	handler, exists := e.registry.Get(queryName)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrQueryNotFound, queryName)
	}
	return handler(ctx, nodeID, args)
}

// Built-in query names.
const (
	QueryStatus         = "status"          // graph.Status
	QueryStaleState     = "stale_state"     // snapshot.StaleState
	QueryLocked         = "locked"          // bool
	QueryActiveSnapshot = "active_snapshot" // one snapshot (args: port) or all
	QueryLastConsumed   = "last_consumed"   // []snapshot.Consumption
	QueryLatestRecipe   = "latest_recipe"   // *recipe.Entry, nil when none
	QueryRecipes        = "recipes"         // []recipe.Entry
	QueryState          = "state"           // *NodeState
)

// RegisterBuiltins registers the standard query handlers on top of loader.
func RegisterBuiltins(registry *Registry, loader StateLoader) error {
	load := func(ctx context.Context, nodeID string) (*NodeState, error) {
		state, err := loader(ctx, nodeID)
		if err != nil {
			return nil, err
		}
		if state == nil {
			return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, nodeID)
		}
		return state, nil
	}
	field := func(get func(*NodeState, any) (any, error)) Handler {
		return func(ctx context.Context, nodeID string, args any) (any, error) {
			state, err := load(ctx, nodeID)
			if err != nil {
				return nil, err
			}
			return get(state, args)
		}
	}

	builtins := map[string]Handler{
		QueryStatus: field(func(s *NodeState, _ any) (any, error) {
			return s.Status, nil
		}),
		QueryStaleState: field(func(s *NodeState, _ any) (any, error) {
			return s.StaleState, nil
		}),
		QueryLocked: field(func(s *NodeState, _ any) (any, error) {
			return s.Locked, nil
		}),
		QueryActiveSnapshot: field(func(s *NodeState, args any) (any, error) {
			port, ok := args.(string)
			if !ok || port == "" {
				return s.ActiveSnapshots, nil
			}
			for _, snap := range s.ActiveSnapshots {
				if snap.PortKey == port {
					return snap, nil
				}
			}
			return nil, fmt.Errorf("no active snapshot on port %q", port)
		}),
		QueryLastConsumed: field(func(s *NodeState, _ any) (any, error) {
			return s.LastConsumed, nil
		}),
		QueryLatestRecipe: field(func(s *NodeState, _ any) (any, error) {
			return s.LatestRecipe, nil
		}),
		QueryRecipes: field(func(s *NodeState, _ any) (any, error) {
			return s.Recipes, nil
		}),
		QueryState: field(func(s *NodeState, _ any) (any, error) {
			return s, nil
		}),
	}

	for name, handler := range builtins {
		if err := registry.Register(name, handler); err != nil {
			return fmt.Errorf("failed to register builtin query %q: %w", name, err)
		}
	}
	return nil
}

// Result wraps a query result with metadata.
type Result struct {
	QueryName string `json:"query_name"`
	NodeID    string `json:"node_id"`
	Value     any    `json:"value"`
	Error     string `json:"error,omitempty"`
}

// ExecuteMultiple runs several queries against a node. Results are ordered
// by query name and include failures.
func (e *Executor) ExecuteMultiple(ctx context.Context, nodeID string, queries map[string]any) []Result {
	results := make([]Result, 0, len(queries))
	for queryName, args := range queries {
		result := Result{QueryName: queryName, NodeID: nodeID}
		value, err := e.Execute(ctx, nodeID, queryName, args)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Value = value
		}
		results = append(results, result)
	}
	slices.SortFunc(results, func(a, b Result) int { return strings.Compare(a.QueryName, b.QueryName) })
	return results
}
