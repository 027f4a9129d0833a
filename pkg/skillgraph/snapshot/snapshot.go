// Package snapshot holds the versioned results published at node output
// ports, the consumer to producer subscription index derived from edges,
// and the per-node consumption records that staleness is computed from.
package snapshot

import "time"

// Snapshot is one immutable result published at an output port.
// Payloads are shared by reference and must not be mutated after Publish.
type Snapshot struct {
	ProducerID string    `json:"producer_id"`
	PortKey    string    `json:"port_key"`
	Version    int64     `json:"version"`
	Payload    any       `json:"payload,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Subscription binds a consumer input port to a producer output port.
type Subscription struct {
	ConsumerID   string `json:"consumer_id"`
	ConsumerPort string `json:"consumer_port"`
	ProducerID   string `json:"producer_id"`
	ProducerPort string `json:"producer_port"`
}

// Consumption records which snapshot a node read on one input port during
// its last successful run.
type Consumption struct {
	Port         string `json:"port"`
	ProducerID   string `json:"producer_id"`
	ProducerPort string `json:"producer_port"`
	Version      int64  `json:"version"`
}

// StaleState classifies a node's inputs against what it last consumed.
type StaleState string

const (
	// StateFresh means every input matches the last consumed version.
	StateFresh StaleState = "fresh"
	// StateStale means an input changed, or was never consumed.
	StateStale StaleState = "stale"
	// StateBlocked means an input has no active snapshot.
	StateBlocked StaleState = "blocked"
)

// String returns the state name.
func (s StaleState) String() string {
	return string(s)
}
