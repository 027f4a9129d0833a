// Package execlog is the execution log observers read: an ordered, bounded
// record of node start, completion, failure and skip events, with
// non-blocking fan-out to subscribers.
package execlog

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Action is what happened to a node.
type Action string

const (
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionError    Action = "error"
	ActionSkip     Action = "skip"
)

// Event is one log record.
type Event struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	Timestamp time.Time      `json:"timestamp"`
	NodeID    string         `json:"node_id"`
	SkillID   string         `json:"skill_id,omitempty"`
	Action    Action         `json:"action"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Config configures a Log.
type Config struct {
	// Capacity bounds the retained events; the oldest are evicted first.
	// Default: 1000
	Capacity int

	// BufferSize is the channel buffer per subscription.
	// Default: 256
	BufferSize int

	// OnDrop is called when a subscriber's buffer is full and an event
	// is not delivered to it.
	OnDrop func(evt Event, subscriberID string)
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	Capacity:   1000,
	BufferSize: 256,
}

// Log stores events in append order. Append never blocks on subscribers.
// Log is safe for concurrent use.
type Log struct {
	config Config

	mu     sync.RWMutex
	events []Event
	subs   map[string]*Subscription
	closed bool

	nextID atomic.Int64
	now    func() time.Time
}

// New creates a log.
func New(config Config) *Log {
	if config.Capacity <= 0 {
		config.Capacity = DefaultConfig.Capacity
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig.BufferSize
	}
	return &Log{
		config: config,
		subs:   make(map[string]*Subscription),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Append assigns an ID and timestamp when empty, stores the event and
// delivers it to matching subscribers. Returns the stored event.
func (l *Log) Append(evt Event) Event {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = l.now()
	}
	evt.Data = maps.Clone(evt.Data)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return evt
	}

	l.events = append(l.events, evt)
	if over := len(l.events) - l.config.Capacity; over > 0 {
		l.events = slices.Delete(l.events, 0, over)
	}

	for _, sub := range l.subs {
		if !sub.matches(evt.Action) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			if l.config.OnDrop != nil {
				l.config.OnDrop(evt, sub.id)
			}
		}
	}
	return evt
}

// Events returns the retained events in append order.
func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.events)
}

// ForRun returns the retained events of one run.
func (l *Log) ForRun(runID string) []Event {
	return l.filter(func(e Event) bool { return e.RunID == runID })
}

// ForNode returns the retained events of one node across runs.
func (l *Log) ForNode(nodeID string) []Event {
	return l.filter(func(e Event) bool { return e.NodeID == nodeID })
}

func (l *Log) filter(keep func(Event) bool) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for _, e := range l.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Clear drops the retained events. Subscriptions stay open.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// Subscribe returns a subscription receiving events with one of the given
// actions, or every event when none are given. Returns nil after Close.
func (l *Log) Subscribe(actions ...Action) *Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	sub := &Subscription{
		id:      uuid.NewString(),
		actions: slices.Clone(actions),
		ch:      make(chan Event, l.config.BufferSize),
		log:     l,
	}
	l.subs[sub.id] = sub
	return sub
}

// Close closes every subscription. Later appends are discarded.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	for id, sub := range l.subs {
		close(sub.ch)
		delete(l.subs, id)
	}
}

// Subscription delivers events in append order until unsubscribed.
type Subscription struct {
	id      string
	actions []Action
	ch      chan Event
	log     *Log
}

// ID identifies the subscription in OnDrop callbacks.
func (s *Subscription) ID() string {
	return s.id
}

// Events returns the delivery channel. It is closed by Unsubscribe or Log.Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Unsubscribe stops delivery and closes the channel. Safe to call twice.
func (s *Subscription) Unsubscribe() {
	s.log.mu.Lock()
	defer s.log.mu.Unlock()

	if _, ok := s.log.subs[s.id]; !ok {
		return
	}
	delete(s.log.subs, s.id)
	close(s.ch)
}

func (s *Subscription) matches(a Action) bool {
	return len(s.actions) == 0 || slices.Contains(s.actions, a)
}
