package graph

// structure is an immutable copy of the node and edge set.
type structure struct {
	nodes []Node
	edges []Edge
}

// history keeps bounded undo (past) and redo (future) stacks of structures.
// Restoring is a slice swap; states are never mutated after capture.
type history struct {
	limit  int
	past   []structure
	future []structure
}

func (h *history) push(st structure) {
	h.past = append(h.past, st)
	if len(h.past) > h.limit {
		// Drop the oldest state. Copy so the backing array does not grow forever.
		h.past = append([]structure(nil), h.past[len(h.past)-h.limit:]...)
	}
	h.future = nil
}

func (h *history) reset() {
	h.past = nil
	h.future = nil
}

// PushHistory records the current structure as an undo point and clears
// the redo stack. An undo point holds nodes, edges, params and lock flags;
// run status and error always reflect the latest run. Call it before a
// user-visible mutation.
func (s *Store) PushHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.push(s.captureLocked())
}

// Undo restores the most recent undo point. Returns false if there is none.
func (s *Store) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.history.past)
	if n == 0 {
		return false
	}
	prev := s.history.past[n-1]
	s.history.past = s.history.past[:n-1]
	s.history.future = append(s.history.future, s.captureLocked())
	s.restoreLocked(prev)
	return true
}

// Redo re-applies the most recently undone structure. Returns false if there is none.
func (s *Store) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.history.future)
	if n == 0 {
		return false
	}
	next := s.history.future[n-1]
	s.history.future = s.history.future[:n-1]
	s.history.past = append(s.history.past, s.captureLocked())
	s.restoreLocked(next)
	return true
}

// CanUndo reports whether Undo would change the graph.
func (s *Store) CanUndo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history.past) > 0
}

// CanRedo reports whether Redo would change the graph.
func (s *Store) CanRedo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history.future) > 0
}

func (s *Store) captureLocked() structure {
	return structure{nodes: cloneNodes(s.nodes), edges: cloneEdges(s.edges)}
}

// restoreLocked installs a captured structure. Run status and error are not
// part of an undo point: nodes that still exist keep their current values.
// Captured structures were valid when taken, so validation cannot fail here.
func (s *Store) restoreLocked(st structure) {
	nodes := cloneNodes(st.nodes)
	for i := range nodes {
		if j, ok := s.index[nodes[i].ID]; ok {
			nodes[i].Data.Status = s.nodes[j].Data.Status
			nodes[i].Data.Error = s.nodes[j].Data.Error
		}
	}
	_ = s.replaceLocked(nodes, st.edges)
}
