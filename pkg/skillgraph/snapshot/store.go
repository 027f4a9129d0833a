package snapshot

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/skillgraph/pkg/skillgraph/graph"
)

// port identifies one output port of one node.
type port struct {
	node string
	key  string
}

// portState is the history and active pointer of one port.
// counter survives resets so versions never repeat.
type portState struct {
	counter int64
	active  *Snapshot
	history []Snapshot
}

// index is an immutable subscription index. It is replaced as a whole.
type index struct {
	byConsumer map[string][]Subscription
	byProducer map[string][]Subscription
}

// Store keeps snapshots, subscriptions and consumption records in memory.
//
// Store is safe for concurrent use. The subscription index is swapped
// atomically, so readers never see a partially rebuilt index.
// Store implements graph.Listener.
type Store struct {
	mu       sync.RWMutex
	ports    map[port]*portState
	consumed map[string]map[string]Consumption // node -> input port -> consumption
	subs     atomic.Pointer[index]
	now      func() time.Time
}

var _ graph.Listener = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty snapshot store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		ports:    make(map[port]*portState),
		consumed: make(map[string]map[string]Consumption),
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.subs.Store(&index{})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish creates the next version for the port and makes it active.
func (s *Store) Publish(nodeID, portKey string, payload any) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := port{nodeID, portKey}
	ps := s.ports[k]
	if ps == nil {
		ps = &portState{}
		s.ports[k] = ps
	}
	ps.counter++
	snap := Snapshot{
		ProducerID: nodeID,
		PortKey:    portKey,
		Version:    ps.counter,
		Payload:    payload,
		CreatedAt:  s.now(),
	}
	ps.history = append(ps.history, snap)
	active := snap
	ps.active = &active
	return snap
}

// GetActiveSnapshot returns the active snapshot of a port.
func (s *Store) GetActiveSnapshot(nodeID, portKey string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ps := s.ports[port{nodeID, portKey}]
	if ps == nil || ps.active == nil {
		return Snapshot{}, false
	}
	return *ps.active, true
}

// ActiveSnapshots returns the active snapshot of every port of a node,
// ordered by port key.
func (s *Store) ActiveSnapshots(nodeID string) []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Snapshot
	for k, ps := range s.ports {
		if k.node == nodeID && ps.active != nil {
			out = append(out, *ps.active)
		}
	}
	slices.SortFunc(out, func(a, b Snapshot) int {
		return strings.Compare(a.PortKey, b.PortKey)
	})
	return out
}

// History returns every retained snapshot of a port, oldest first.
func (s *Store) History(nodeID, portKey string) []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ps := s.ports[port{nodeID, portKey}]
	if ps == nil {
		return nil
	}
	return slices.Clone(ps.history)
}

// ResetSnapshots clears the active pointer of a port, or of every port of
// the node when portKey is empty. With clearHistory the retained snapshots
// are discarded too. Version counters are kept.
func (s *Store) ResetSnapshots(nodeID, portKey string, clearHistory bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ps := range s.ports {
		if k.node != nodeID || (portKey != "" && k.key != portKey) {
			continue
		}
		ps.active = nil
		if clearHistory {
			ps.history = nil
		}
	}
}

// RebuildSubscriptions recomputes the subscription index from the edge set
// and installs it in one step.
func (s *Store) RebuildSubscriptions(edges []graph.Edge) {
	next := &index{
		byConsumer: make(map[string][]Subscription),
		byProducer: make(map[string][]Subscription),
	}
	for _, e := range edges {
		sub := Subscription{
			ConsumerID:   e.Target,
			ConsumerPort: e.TargetHandle,
			ProducerID:   e.Source,
			ProducerPort: e.SourceHandle,
		}
		next.byConsumer[e.Target] = append(next.byConsumer[e.Target], sub)
		next.byProducer[e.Source] = append(next.byProducer[e.Source], sub)
	}
	s.subs.Store(next)
}

// Inbound returns the subscriptions of a node's input ports in edge order.
func (s *Store) Inbound(nodeID string) []Subscription {
	return slices.Clone(s.subs.Load().byConsumer[nodeID])
}

// Outbound returns the subscriptions fed by a node's output ports.
func (s *Store) Outbound(nodeID string) []Subscription {
	return slices.Clone(s.subs.Load().byProducer[nodeID])
}

// RecordConsumption replaces the consumption record of a node.
func (s *Store) RecordConsumption(nodeID string, consumed []Consumption) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := make(map[string]Consumption, len(consumed))
	for _, c := range consumed {
		rec[c.Port] = c
	}
	s.consumed[nodeID] = rec
}

// LastConsumed returns what the node read on its last successful run,
// ordered by input port.
func (s *Store) LastConsumed(nodeID string) []Consumption {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := s.consumed[nodeID]
	out := make([]Consumption, 0, len(rec))
	for _, c := range rec {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Consumption) int {
		return strings.Compare(a.Port, b.Port)
	})
	return out
}

// GetStaleState walks the node's inbound subscriptions. The node is blocked
// if any producer port has no active snapshot. Otherwise it is stale if any
// input was never consumed, came from another producer, or has a newer
// version than the one consumed. A node without inputs is fresh.
func (s *Store) GetStaleState(nodeID string) StaleState {
	subs := s.subs.Load().byConsumer[nodeID]

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := s.consumed[nodeID]
	state := StateFresh
	for _, sub := range subs {
		ps := s.ports[port{sub.ProducerID, sub.ProducerPort}]
		if ps == nil || ps.active == nil {
			return StateBlocked
		}
		c, ok := rec[sub.ConsumerPort]
		if !ok || c.ProducerID != sub.ProducerID || c.ProducerPort != sub.ProducerPort || ps.active.Version > c.Version {
			state = StateStale
		}
	}
	return state
}

// DropNode forgets every port, snapshot and consumption record of a node.
func (s *Store) DropNode(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.ports {
		if k.node == nodeID {
			delete(s.ports, k)
		}
	}
	delete(s.consumed, nodeID)
}

// NodeRemoved implements graph.Listener.
func (s *Store) NodeRemoved(nodeID string) {
	s.DropNode(nodeID)
}

// EdgesChanged implements graph.Listener.
func (s *Store) EdgesChanged(edges []graph.Edge) {
	s.RebuildSubscriptions(edges)
}
