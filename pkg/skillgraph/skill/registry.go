package skill

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/randalmurphal/skillgraph/pkg/skillgraph/graph"
)

// Sentinel errors for registration and lookup.
var (
	// ErrUnknownSkill indicates a node type with no registered skill.
	ErrUnknownSkill = errors.New("unknown skill type")

	// ErrDuplicateSkill indicates a type tag registered twice.
	ErrDuplicateSkill = errors.New("skill already registered")

	// ErrInvalidSkill indicates a skill rejected at registration.
	ErrInvalidSkill = errors.New("invalid skill")
)

// Registry maps node type tags to skills.
// It is safe for concurrent use and implements graph.Validator.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
}

var _ graph.Validator = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]Skill)}
}

// Register validates and adds a skill. The type tag must be new, the
// executor set, and port keys non-empty and unique per direction.
func (r *Registry) Register(s Skill) error {
	if err := validate(s); err != nil {
		return err
	}
	if s.ID == "" {
		s.ID = s.Type
	}
	s.Inputs = slices.Clone(s.Inputs)
	s.Outputs = slices.Clone(s.Outputs)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.skills[s.Type]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSkill, s.Type)
	}
	r.skills[s.Type] = s
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(s Skill) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Lookup returns the skill for a type tag.
func (r *Registry) Lookup(nodeType string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[nodeType]
	return s, ok
}

// Resolve is like Lookup but returns ErrUnknownSkill when absent.
func (r *Registry) Resolve(nodeType string) (Skill, error) {
	s, ok := r.Lookup(nodeType)
	if !ok {
		return Skill{}, fmt.Errorf("%w: %q", ErrUnknownSkill, nodeType)
	}
	return s, nil
}

// Types returns the registered type tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.skills))
	for t := range r.skills {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Len returns the number of registered skills.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills)
}

// ValidateNodes reports every non-group node whose type is not registered.
func (r *Registry) ValidateNodes(nodes []graph.Node) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, n := range nodes {
		if n.IsGroup() {
			continue
		}
		if _, ok := r.skills[n.Type]; !ok {
			errs = append(errs, fmt.Errorf("node %s: %w: %q", n.ID, ErrUnknownSkill, n.Type))
		}
	}
	return errors.Join(errs...)
}

func validate(s Skill) error {
	if s.Type == "" {
		return fmt.Errorf("%w: empty type", ErrInvalidSkill)
	}
	if s.Type == graph.NodeTypeGroup {
		return fmt.Errorf("%w: type %q is reserved", ErrInvalidSkill, s.Type)
	}
	if s.Executor == nil {
		return fmt.Errorf("%w: %s: nil executor", ErrInvalidSkill, s.Type)
	}
	if err := validatePorts(s.Type, "input", s.Inputs); err != nil {
		return err
	}
	return validatePorts(s.Type, "output", s.Outputs)
}

func validatePorts(skillType, dir string, ports []PortSpec) error {
	seen := make(map[string]bool, len(ports))
	for _, p := range ports {
		if p.Key == "" {
			return fmt.Errorf("%w: %s: empty %s port key", ErrInvalidSkill, skillType, dir)
		}
		if seen[p.Key] {
			return fmt.Errorf("%w: %s: duplicate %s port %q", ErrInvalidSkill, skillType, dir, p.Key)
		}
		seen[p.Key] = true
	}
	return nil
}
