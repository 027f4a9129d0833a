// Package recipe records the provenance of every node execution: which
// skill ran, with which parameters and inputs, and what it produced.
//
// The store is append-only and is never consulted for scheduling.
package recipe

import (
	"errors"
	"time"
)

// Status is the lifecycle state of an entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// InputRef names the snapshot consumed on one input port.
type InputRef struct {
	Port         string `json:"port"`
	ProducerID   string `json:"producer_id"`
	ProducerPort string `json:"producer_port"`
	Version      int64  `json:"version"`
}

// OutputRef names a snapshot published on one output port.
type OutputRef struct {
	Port    string `json:"port"`
	Version int64  `json:"version"`
}

// Entry is one execution record.
type Entry struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	RunID        string         `json:"run_id,omitempty"`
	NodeID       string         `json:"node_id"`
	SkillID      string         `json:"skill_id"`
	SkillVersion string         `json:"skill_version,omitempty"`
	Seed         *int64         `json:"seed,omitempty"`
	ModelParams  map[string]any `json:"model_params,omitempty"`
	InputRefs    []InputRef     `json:"input_refs,omitempty"`
	Outputs      []OutputRef    `json:"outputs,omitempty"`
	Status       Status         `json:"status"`
	Duration     time.Duration  `json:"duration,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// ErrNotFound indicates an update referenced an unknown entry.
var ErrNotFound = errors.New("recipe not found")
