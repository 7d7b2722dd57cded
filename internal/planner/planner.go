// Package planner merges matched intents into one dependency-ordered task plan.
package planner

import (
	"context"
	"log"
	"sort"
	"strings"

	sageflow "github.com/sageflow-ai/sageflow"
)

// TaskPlanner resolves matched intents against the tool registry. It never
// fails: an unexecutable plan is returned with CanExecute=false and the
// precise missing dependencies, so the caller reports what is absent instead
// of failing opaquely.
type TaskPlanner struct {
	registry *sageflow.Registry
	intents  map[string]sageflow.Intent
	// intentOrder preserves table order for deterministic labeling.
	intentOrder []string
}

// New creates a planner over a registry and an intent table.
func New(registry *sageflow.Registry, intents []sageflow.Intent) *TaskPlanner {
	p := &TaskPlanner{
		registry: registry,
		intents:  make(map[string]sageflow.Intent, len(intents)),
	}
	for _, intent := range intents {
		p.intents[intent.Name] = intent
		p.intentOrder = append(p.intentOrder, intent.Name)
	}
	return p
}

// contribution tracks which intent first added which tool during the union.
type contribution struct {
	intentName string
	unionIndex int
}

// Plan implements sageflow.Planner.
func (p *TaskPlanner) Plan(_ context.Context, matches []sageflow.IntentMatch, initialKeys []string) (*sageflow.TaskPlan, error) {
	plan := &sageflow.TaskPlan{
		MissingDependencies: make(map[string]string),
		Intents:             matches,
	}

	available := make(map[string]bool, len(initialKeys))
	for _, key := range initialKeys {
		available[key] = true
	}

	// Union primary tools across all matches unconditionally, deduplicated
	// by name in first-added order.
	added := make(map[string]bool)
	contributions := make(map[string]contribution)
	addTool := func(name, intentName string) {
		if added[name] {
			return
		}
		if _, ok := p.registry.Lookup(name); !ok {
			// Misconfigured intent table; surface as a missing dependency
			// rather than a planner failure.
			log.Printf("Planner: intent '%s' references unregistered tool '%s'", intentName, name)
			plan.MissingDependencies[name] = "tool not registered"
			return
		}
		added[name] = true
		contributions[name] = contribution{intentName: intentName, unionIndex: len(plan.Tools)}
		plan.Tools = append(plan.Tools, name)
	}

	for _, match := range matches {
		intent, ok := p.intents[match.IntentName]
		if !ok {
			continue
		}
		for _, tool := range intent.PrimaryTools {
			addTool(tool, intent.Name)
		}
	}

	// Optional tools join only when their requirements are already covered
	// by the initial context plus the produces of tools in the union so
	// far. This keeps an optimization tool out of a plan that has no
	// upstream analysis or forecast for it to read.
	for _, match := range matches {
		intent, ok := p.intents[match.IntentName]
		if !ok {
			continue
		}
		for _, tool := range intent.OptionalTools {
			if added[tool] {
				continue
			}
			spec, ok := p.registry.Lookup(tool)
			if !ok {
				continue
			}
			if p.coveredBy(spec.Requires, available, plan.Tools) {
				addTool(tool, intent.Name)
			}
		}
	}

	// Sort by tier ascending; the stable sort preserves first-added order
	// within a tier, so the same request always yields the same order.
	plan.ExecutionOrder = p.registry.SortByTier(plan.Tools)

	// Validate the full chain: walk the order with a running available-key
	// set. A tool with an unmet requirement contributes nothing to the set,
	// so everything downstream of it is marked unsatisfiable too.
	for _, name := range plan.ExecutionOrder {
		spec, ok := p.registry.Lookup(name)
		if !ok {
			continue
		}
		if missing, ok := firstMissing(spec.Requires, available); ok {
			plan.MissingDependencies[name] = missing
			continue
		}
		for _, key := range spec.Produces {
			available[key] = true
		}
	}
	plan.CanExecute = len(plan.MissingDependencies) == 0

	plan.TaskType = p.deriveTaskType(plan, contributions)
	return plan, nil
}

// coveredBy reports whether every required key is in the available set or
// produced by a tool already in the union.
func (p *TaskPlanner) coveredBy(requires []string, available map[string]bool, union []string) bool {
	for _, req := range requires {
		if available[req] {
			continue
		}
		produced := false
		for _, name := range union {
			spec, ok := p.registry.Lookup(name)
			if !ok {
				continue
			}
			for _, prod := range spec.Produces {
				if prod == req {
					produced = true
					break
				}
			}
			if produced {
				break
			}
		}
		if !produced {
			return false
		}
	}
	return true
}

// firstMissing returns the first required key absent from the available set.
func firstMissing(requires []string, available map[string]bool) (string, bool) {
	for _, req := range requires {
		if !available[req] {
			return req, true
		}
	}
	return "", false
}

// deriveTaskType labels the plan. A single contributing intent keeps its own
// name; multiple contributors are joined in tier order of each intent's
// earliest contributed tool, giving the same multi-intent request the same
// canonical composite label every time.
func (p *TaskPlanner) deriveTaskType(plan *sageflow.TaskPlan, contributions map[string]contribution) string {
	type rank struct {
		tier  sageflow.Tier
		index int
	}
	earliest := make(map[string]rank)
	for _, name := range plan.Tools {
		contrib, ok := contributions[name]
		if !ok {
			continue
		}
		spec, ok := p.registry.Lookup(name)
		if !ok {
			continue
		}
		r, seen := earliest[contrib.intentName]
		candidate := rank{tier: spec.Tier, index: contrib.unionIndex}
		if !seen || candidate.tier < r.tier || (candidate.tier == r.tier && candidate.index < r.index) {
			earliest[contrib.intentName] = candidate
		}
	}

	if len(earliest) == 0 {
		// No tools contributed: a general/empty request keeps the name of
		// its strongest match.
		if len(plan.Intents) > 0 {
			return plan.Intents[0].IntentName
		}
		return sageflow.GeneralIntentName
	}

	names := make([]string, 0, len(earliest))
	for name := range earliest {
		names = append(names, name)
	}
	if len(names) == 1 {
		return names[0]
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := earliest[names[i]], earliest[names[j]]
		if ri.tier != rj.tier {
			return ri.tier < rj.tier
		}
		return ri.index < rj.index
	})
	return strings.Join(names, "+")
}
