package graph

import (
	"errors"
	"fmt"
	"maps"
	"sync"
)

// DefaultHistoryLimit bounds the undo stack when WithHistoryLimit is not used.
const DefaultHistoryLimit = 50

// Store owns the nodes and edges of one graph.
//
// Nodes and edges keep their insertion order; that order is the stable
// tie-break used by the scheduler. All getters return copies.
//
// Store is safe for concurrent use. Listeners are invoked while the store's
// write lock is held, so they observe mutations in order.
type Store struct {
	mu        sync.RWMutex
	nodes     []Node
	index     map[string]int
	edges     []Edge
	viewport  Viewport
	version   int64
	history   history
	listeners []Listener

	projectID   string
	persistence Persistence
	validator   Validator
}

// Option configures a Store.
type Option func(*Store)

// WithListener registers a listener for structural changes.
func WithListener(l Listener) Option {
	return func(s *Store) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

// WithValidator sets the validator applied by LoadFromServer.
func WithValidator(v Validator) Option {
	return func(s *Store) {
		s.validator = v
	}
}

// WithPersistence binds the store to a project in a persistence backend.
func WithPersistence(p Persistence, projectID string) Option {
	return func(s *Store) {
		s.persistence = p
		s.projectID = projectID
	}
}

// WithHistoryLimit sets the maximum number of undo states retained.
// Default: 50
func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.history.limit = n
		}
	}
}

// NewStore creates an empty graph store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		index:   make(map[string]int),
		history: history{limit: DefaultHistoryLimit},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProjectID returns the project the store is bound to, if any.
func (s *Store) ProjectID() string {
	return s.projectID
}

// Version returns the server version the next save is based on.
func (s *Store) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Viewport returns the canvas viewport.
func (s *Store) Viewport() Viewport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewport
}

// SetViewport updates the canvas viewport.
func (s *Store) SetViewport(v Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = v
}

// Nodes returns all nodes in insertion order.
func (s *Store) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneNodes(s.nodes)
}

// Node returns the node with the given ID.
func (s *Store) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return Node{}, false
	}
	return s.nodes[i].Clone(), true
}

// Edges returns all edges in insertion order.
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEdges(s.edges)
}

// AddNode appends a node. Nodes without a status start idle.
func (s *Store) AddNode(n Node) error {
	if n.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidNode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[n.ID]; exists {
		return fmt.Errorf("%w: %s", ErrNodeExists, n.ID)
	}
	n = n.Clone()
	if n.Data.Status == "" {
		n.Data.Status = StatusIdle
	}
	s.index[n.ID] = len(s.nodes)
	s.nodes = append(s.nodes, n)
	return nil
}

// RemoveNode deletes a node together with its incident edges. Listeners drop
// the node's subscriptions and snapshots. Children of a removed group are
// kept and detached. Removing an unknown ID is a no-op.
func (s *Store) RemoveNode(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; !ok {
		return
	}

	nodes := make([]Node, 0, len(s.nodes)-1)
	for _, n := range s.nodes {
		if n.ID == id {
			continue
		}
		if n.ParentID == id {
			n.ParentID = ""
		}
		nodes = append(nodes, n)
	}

	edges := make([]Edge, 0, len(s.edges))
	for _, e := range s.edges {
		if e.Source != id && e.Target != id {
			edges = append(edges, e)
		}
	}

	s.setNodesLocked(nodes)
	edgesChanged := len(edges) != len(s.edges)
	s.edges = edges
	if edgesChanged {
		s.notifyEdgesLocked()
	}
	for _, l := range s.listeners {
		l.NodeRemoved(id)
	}
}

// AddEdge connects two existing nodes. Self loops and a second edge into an
// already connected (target, targetHandle) are rejected. An empty ID is
// derived from the endpoints.
func (s *Store) AddEdge(e Edge) error {
	if e.ID == "" {
		e.ID = EdgeID(e.Source, e.SourceHandle, e.Target, e.TargetHandle)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateEdges(append(cloneEdges(s.edges), e), s.index); err != nil {
		return err
	}

	s.edges = append(s.edges, e)
	s.notifyEdgesLocked()
	return nil
}

// RemoveEdge deletes the edge with the given ID and reports whether it existed.
func (s *Store) RemoveEdge(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.edges {
		if e.ID == id {
			s.edges = append(s.edges[:i:i], s.edges[i+1:]...)
			s.notifyEdgesLocked()
			return true
		}
	}
	return false
}

// SetNodes replaces the node set. Nodes that disappear are removed as by
// RemoveNode, including their incident edges.
func (s *Store) SetNodes(nodes []Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]int, len(nodes))
	for i, n := range nodes {
		keep[n.ID] = i
	}
	edges := make([]Edge, 0, len(s.edges))
	for _, e := range s.edges {
		_, srcOK := keep[e.Source]
		_, dstOK := keep[e.Target]
		if srcOK && dstOK {
			edges = append(edges, e)
		}
	}
	return s.replaceLocked(nodes, edges)
}

// SetEdges replaces the edge set. The whole set is validated first; on error
// nothing changes.
func (s *Store) SetEdges(edges []Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	edges = cloneEdges(edges)
	for i := range edges {
		if edges[i].ID == "" {
			edges[i].ID = EdgeID(edges[i].Source, edges[i].SourceHandle, edges[i].Target, edges[i].TargetHandle)
		}
	}
	if err := validateEdges(edges, s.index); err != nil {
		return err
	}
	s.edges = edges
	s.notifyEdgesLocked()
	return nil
}

// ToggleNodeLock flips the lock flag and returns the new value.
func (s *Store) ToggleNodeLock(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	s.nodes[i].Data.Locked = !s.nodes[i].Data.Locked
	return s.nodes[i].Data.Locked, nil
}

// UpdateNodeData merges params into the node's parameters.
func (s *Store) UpdateNodeData(id string, params map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if s.nodes[i].Data.Params == nil {
		s.nodes[i].Data.Params = make(map[string]any, len(params))
	}
	maps.Copy(s.nodes[i].Data.Params, params)
	return nil
}

// UpdateNodeStatus sets the execution status. errMsg is kept only for StatusFail.
func (s *Store) UpdateNodeStatus(id string, status Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	s.nodes[i].Data.Status = status
	if status == StatusFail {
		s.nodes[i].Data.Error = errMsg
	} else {
		s.nodes[i].Data.Error = ""
	}
	return nil
}

// replaceLocked swaps in a new node and edge set after validating both,
// notifying listeners of the edge change and of every vanished node.
func (s *Store) replaceLocked(nodes []Node, edges []Edge) error {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: empty id at position %d", ErrInvalidNode, i)
		}
		if _, dup := index[n.ID]; dup {
			return fmt.Errorf("%w: %s", ErrNodeExists, n.ID)
		}
		index[n.ID] = i
	}
	if err := validateEdges(edges, index); err != nil {
		return err
	}

	var removed []string
	for _, n := range s.nodes {
		if _, ok := index[n.ID]; !ok {
			removed = append(removed, n.ID)
		}
	}

	next := cloneNodes(nodes)
	for i := range next {
		if next[i].Data.Status == "" {
			next[i].Data.Status = StatusIdle
		}
	}
	s.setNodesLocked(next)
	s.edges = cloneEdges(edges)
	s.notifyEdgesLocked()
	for _, id := range removed {
		for _, l := range s.listeners {
			l.NodeRemoved(id)
		}
	}
	return nil
}

func (s *Store) setNodesLocked(nodes []Node) {
	s.nodes = nodes
	s.index = make(map[string]int, len(nodes))
	for i, n := range nodes {
		s.index[n.ID] = i
	}
}

func (s *Store) notifyEdgesLocked() {
	if len(s.listeners) == 0 {
		return
	}
	for _, l := range s.listeners {
		l.EdgesChanged(cloneEdges(s.edges))
	}
}

// validateEdges checks endpoint existence, self loops and input port
// uniqueness. All violations are joined.
func validateEdges(edges []Edge, index map[string]int) error {
	var errs []error
	targets := make(map[[2]string]bool, len(edges))
	ids := make(map[string]bool, len(edges))

	for _, e := range edges {
		if ids[e.ID] {
			errs = append(errs, &EdgeError{Edge: e, Err: ErrEdgeExists})
			continue
		}
		ids[e.ID] = true

		if e.Source == e.Target {
			errs = append(errs, &EdgeError{Edge: e, Err: ErrSelfLoop})
			continue
		}
		if _, ok := index[e.Source]; !ok {
			errs = append(errs, &EdgeError{Edge: e, Err: fmt.Errorf("%w: source %s", ErrNodeNotFound, e.Source)})
			continue
		}
		if _, ok := index[e.Target]; !ok {
			errs = append(errs, &EdgeError{Edge: e, Err: fmt.Errorf("%w: target %s", ErrNodeNotFound, e.Target)})
			continue
		}
		key := [2]string{e.Target, e.TargetHandle}
		if targets[key] {
			errs = append(errs, &EdgeError{Edge: e, Err: ErrDuplicateTarget})
			continue
		}
		targets[key] = true
	}
	return errors.Join(errs...)
}

// EdgeID derives a deterministic edge ID from its endpoints.
func EdgeID(source, sourceHandle, target, targetHandle string) string {
	return fmt.Sprintf("%s:%s->%s:%s", source, sourceHandle, target, targetHandle)
}
