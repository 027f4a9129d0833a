// Package skill defines the contract between the scheduler and the code that
// actually processes a node, and the registry that maps node type tags to
// skills.
//
// A skill declares its ports up front. The scheduler uses the declaration to
// check required inputs before a run and to publish exactly one snapshot per
// declared output port afterwards.
//
//	reg := skill.NewRegistry()
//	reg.MustRegister(skill.Skill{
//	    Type:    "upscale",
//	    Version: "2",
//	    Inputs:  []skill.PortSpec{{Key: "image", Required: true}},
//	    Outputs: []skill.PortSpec{{Key: "image"}},
//	    Executor: skill.ExecutorFunc(func(ctx context.Context, req skill.Request) (skill.Result, error) {
//	        return skill.Result{Outputs: map[string]any{"image": upscale(req.Inputs["image"])}}, nil
//	    }),
//	})
package skill

import (
	"context"
	"time"
)

// PortSpec declares one input or output port.
type PortSpec struct {
	Key string `json:"key" yaml:"key"`
	// Required input ports must hold an active snapshot before the node runs,
	// whether or not an edge feeds them. Ignored on outputs.
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`
}

// Request is what an executor receives for one node execution.
type Request struct {
	NodeID  string
	SkillID string
	Params  map[string]any
	// Inputs maps input port keys to the payload of the consumed snapshot.
	Inputs map[string]any
}

// Result is a successful execution. Outputs must hold a payload for every
// declared output port.
type Result struct {
	Outputs  map[string]any
	Duration time.Duration
}

// Executor performs the work of a skill.
//
// Execute may block; it should honor ctx cancellation. A returned error
// fails the node and halts the run.
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req Request) (Result, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Skill binds a node type tag to its ports and executor.
type Skill struct {
	// Type is the node type tag this skill handles.
	Type string
	// ID identifies the skill in recipes. Defaults to Type.
	ID      string
	Version string
	Inputs  []PortSpec
	Outputs []PortSpec

	Executor Executor
}

// RequiredInputs returns the keys of required input ports in declaration order.
func (s Skill) RequiredInputs() []string {
	var keys []string
	for _, p := range s.Inputs {
		if p.Required {
			keys = append(keys, p.Key)
		}
	}
	return keys
}

// OutputKeys returns the declared output port keys in declaration order.
func (s Skill) OutputKeys() []string {
	keys := make([]string, len(s.Outputs))
	for i, p := range s.Outputs {
		keys[i] = p.Key
	}
	return keys
}
