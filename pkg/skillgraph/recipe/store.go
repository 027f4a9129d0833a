package recipe

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is an in-memory, append-only recipe log.
// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	byID    map[string]int
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty recipe store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		byID: make(map[string]int),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddRecipe appends e as pending and returns the stored entry.
// ID and Timestamp are assigned when empty.
func (s *Store) AddRecipe(e Entry) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	e.Status = StatusPending
	e = cloneEntry(e)

	s.byID[e.ID] = len(s.entries)
	s.entries = append(s.entries, e)
	return cloneEntry(e)
}

// UpdateRecipeStatus sets the status, duration and error of an entry.
// errMsg is kept only for StatusError.
func (s *Store) UpdateRecipeStatus(id string, status Status, duration time.Duration, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.entries[i].Status = status
	if duration > 0 {
		s.entries[i].Duration = duration
	}
	if status == StatusError {
		s.entries[i].Error = errMsg
	} else {
		s.entries[i].Error = ""
	}
	return nil
}

// SetRecipeOutputs records the snapshots an entry produced.
func (s *Store) SetRecipeOutputs(id string, outputs []OutputRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.entries[i].Outputs = slices.Clone(outputs)
	return nil
}

// Get returns the entry with the given ID.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return Entry{}, false
	}
	return cloneEntry(s.entries[i]), true
}

// GetRecipesForNode returns the node's entries in append order.
func (s *Store) GetRecipesForNode(nodeID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if e.NodeID == nodeID {
			out = append(out, cloneEntry(e))
		}
	}
	return out
}

// GetLatestRecipe returns the node's entry with the greatest timestamp.
// Between equal timestamps the later append wins. Reports false when the
// node has no entries.
func (s *Store) GetLatestRecipe(nodeID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := -1
	for i, e := range s.entries {
		if e.NodeID != nodeID {
			continue
		}
		if best < 0 || !e.Timestamp.Before(s.entries[best].Timestamp) {
			best = i
		}
	}
	if best < 0 {
		return Entry{}, false
	}
	return cloneEntry(s.entries[best]), true
}

// All returns every entry in append order.
func (s *Store) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = cloneEntry(e)
	}
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.byID = make(map[string]int)
}

func cloneEntry(e Entry) Entry {
	e.ModelParams = maps.Clone(e.ModelParams)
	e.InputRefs = slices.Clone(e.InputRefs)
	e.Outputs = slices.Clone(e.Outputs)
	if e.Seed != nil {
		seed := *e.Seed
		e.Seed = &seed
	}
	return e
}
