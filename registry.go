package sageflow

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry is the process-wide tool table. Registration happens once at
// startup; after Freeze the registry is read-only and safe for concurrent
// reads from any number of in-flight requests without locking.
type Registry struct {
	mu     sync.Mutex
	specs  map[string]ToolSpec
	order  []string
	frozen bool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]ToolSpec)}
}

// Register adds a tool descriptor. Registering a duplicate name, an invalid
// tier, or a requirement that forward-references a higher tier is a fatal
// configuration error caught at startup, not at request time.
func (r *Registry) Register(spec ToolSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return NewConfigError(fmt.Sprintf("registry is frozen, cannot register tool '%s'", spec.Name), nil)
	}
	if spec.Name == "" {
		return NewConfigError("tool name cannot be empty", nil)
	}
	if spec.Invoke == nil {
		return NewConfigError(fmt.Sprintf("tool '%s' has no invoke function", spec.Name), nil)
	}
	if spec.Tier < TierAnalysis || spec.Tier > TierOptimization {
		return NewConfigError(fmt.Sprintf("tool '%s' has invalid tier %d", spec.Name, spec.Tier), nil)
	}
	if _, exists := r.specs[spec.Name]; exists {
		return NewConfigError(fmt.Sprintf("tool with name '%s' already registered", spec.Name), nil)
	}
	if err := r.checkRequireTiers(spec); err != nil {
		return err
	}

	r.specs[spec.Name] = spec
	r.order = append(r.order, spec.Name)
	return nil
}

// checkRequireTiers enforces the no-forward-reference invariant: a required
// key may only be produced by tools in an earlier or equal tier. Keys no
// registered tool produces are assumed to come from the initial context.
func (r *Registry) checkRequireTiers(spec ToolSpec) error {
	for _, req := range spec.Requires {
		for _, name := range r.order {
			other := r.specs[name]
			if other.Tier <= spec.Tier {
				continue
			}
			for _, prod := range other.Produces {
				if prod == req {
					return NewConfigError(fmt.Sprintf(
						"tool '%s' (%s) requires key '%s' produced by higher-tier tool '%s' (%s)",
						spec.Name, spec.Tier, req, other.Name, other.Tier), nil)
				}
			}
		}
	}
	// Symmetric check: existing lower-tier tools must not require a key this
	// spec produces from above them.
	for _, name := range r.order {
		other := r.specs[name]
		if other.Tier >= spec.Tier {
			continue
		}
		for _, req := range other.Requires {
			for _, prod := range spec.Produces {
				if prod == req {
					return NewConfigError(fmt.Sprintf(
						"tool '%s' (%s) produces key '%s' required by lower-tier tool '%s' (%s)",
						spec.Name, spec.Tier, prod, other.Name, other.Tier), nil)
				}
			}
		}
	}
	return nil
}

// Freeze marks the end of initialization. Further Register calls fail.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Lookup returns the descriptor for a tool name.
func (r *Registry) Lookup(name string) (ToolSpec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// All returns every registered descriptor in registration order.
func (r *Registry) All() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.specs[name])
	}
	return specs
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// RegistrationIndex returns a tool's position in registration order, used by
// the planner as the stable tie-breaker. Unknown tools sort last.
func (r *Registry) RegistrationIndex(name string) int {
	for i, n := range r.order {
		if n == name {
			return i
		}
	}
	return len(r.order)
}

// Fingerprint returns a stable digest of the registered tool surface, used
// to scope cached plans to one registry configuration.
func (r *Registry) Fingerprint() string {
	parts := make([]string, 0, len(r.order))
	for _, name := range r.order {
		spec := r.specs[name]
		parts = append(parts, fmt.Sprintf("%s|%d|%s|%s",
			spec.Name, spec.Tier, strings.Join(spec.Requires, ","), strings.Join(spec.Produces, ",")))
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ";")))
	return hex.EncodeToString(sum[:])
}

// ProducedBy returns the names of tools producing a key, in registration order.
func (r *Registry) ProducedBy(key string) []string {
	var producers []string
	for _, name := range r.order {
		for _, prod := range r.specs[name].Produces {
			if prod == key {
				producers = append(producers, name)
			}
		}
	}
	return producers
}

// Descriptions returns a name to description map for the narrative stage.
func (r *Registry) Descriptions() map[string]string {
	out := make(map[string]string, len(r.order))
	for _, name := range r.order {
		out[name] = r.specs[name].Description
	}
	return out
}

// SortByTier sorts tool names by tier ascending, preserving the given order
// within a tier. Unknown names keep their relative order at the end.
func (r *Registry) SortByTier(names []string) []string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, iok := r.Lookup(sorted[i])
		sj, jok := r.Lookup(sorted[j])
		if !iok || !jok {
			return iok && !jok
		}
		return si.Tier < sj.Tier
	})
	return sorted
}
