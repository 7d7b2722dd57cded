package sageflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Tier is one of the three fixed execution phases. Tools in a lower tier
// always reach a terminal state before any tool in a higher tier starts.
type Tier int

const (
	// TierAnalysis computes summary statistics over raw business records.
	TierAnalysis Tier = iota
	// TierForecast projects analysis output into future periods.
	TierForecast
	// TierOptimization derives inventory/pricing recommendations from
	// analysis and (when present) forecast output.
	TierOptimization
)

func (t Tier) String() string {
	switch t {
	case TierAnalysis:
		return "analysis"
	case TierForecast:
		return "forecast"
	case TierOptimization:
		return "optimization"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ToolState represents the possible states of a planned tool during execution.
type ToolState string

const (
	// ToolStatePending indicates the tool has not been considered yet.
	ToolStatePending ToolState = "pending"
	// ToolStateRunning indicates the tool is currently executing.
	ToolStateRunning ToolState = "running"
	// ToolStateSucceeded indicates the tool completed and wrote its produces keys.
	ToolStateSucceeded ToolState = "succeeded"
	// ToolStateFailed indicates the tool ran and returned an error.
	ToolStateFailed ToolState = "failed"
	// ToolStateSkipped indicates the tool never ran because a required
	// context key was absent.
	ToolStateSkipped ToolState = "skipped"
)

// Terminal reports whether the state is one of the three terminal states.
func (s ToolState) Terminal() bool {
	return s == ToolStateSucceeded || s == ToolStateFailed || s == ToolStateSkipped
}

// ToolFunc is the executable unit of a tool: a pure function over the
// business context and caller-supplied parameters. On success it returns a
// map holding every key named in the tool's Produces set. The context carries
// the pipeline deadline; tools that block on data access must honor it.
type ToolFunc func(ctx context.Context, bc ContextReader, params map[string]interface{}) (map[string]interface{}, error)

// ToolSpec is the immutable descriptor of one registered tool.
type ToolSpec struct {
	Name        string
	Tier        Tier
	Description string

	// Requires names context keys that must be present before Invoke runs.
	Requires []string
	// Produces names the context keys written when Invoke succeeds.
	Produces []string

	Invoke ToolFunc

	// Validator, when set, is run against the caller parameters before Invoke.
	Validator func(params map[string]interface{}) error
}

// ToolSpecOption configures a ToolSpec built via NewToolSpec.
type ToolSpecOption func(*ToolSpec)

// WithRequires sets the context keys the tool reads.
func WithRequires(keys ...string) ToolSpecOption {
	return func(s *ToolSpec) { s.Requires = keys }
}

// WithProduces sets the context keys the tool writes on success.
func WithProduces(keys ...string) ToolSpecOption {
	return func(s *ToolSpec) { s.Produces = keys }
}

// WithDescription sets a human-readable description used by the narrative stage.
func WithDescription(desc string) ToolSpecOption {
	return func(s *ToolSpec) { s.Description = desc }
}

// WithValidator sets a parameter validator run before each invocation.
func WithValidator(v func(params map[string]interface{}) error) ToolSpecOption {
	return func(s *ToolSpec) { s.Validator = v }
}

// NewToolSpec builds a ToolSpec for a Go function.
func NewToolSpec(name string, tier Tier, fn ToolFunc, options ...ToolSpecOption) ToolSpec {
	spec := ToolSpec{
		Name:   name,
		Tier:   tier,
		Invoke: fn,
	}
	for _, option := range options {
		option(&spec)
	}
	return spec
}

// Intent is a named category of user goal. Intents are defined at process
// start and read-only during request handling.
type Intent struct {
	Name string `yaml:"name"`

	// Keywords are case-insensitive substring triggers.
	Keywords []string `yaml:"keywords"`

	// PrimaryTools are always included when the intent matches.
	PrimaryTools []string `yaml:"primary_tools"`

	// OptionalTools are included only when their prerequisites are
	// satisfiable at planning time.
	OptionalTools []string `yaml:"optional_tools"`
}

// GeneralIntentName is the reserved fallback intent matched when no keyword
// of any registered intent occurs in the request text.
const GeneralIntentName = "general"

// IntentMatch is the per-request result of classifying one intent.
type IntentMatch struct {
	IntentName      string
	MatchedKeywords []string
	// MatchStrength is the count of matched keywords.
	MatchStrength int
}

// TaskPlan is the per-request execution artifact produced by the planner.
// It is immutable after construction.
type TaskPlan struct {
	// TaskType labels the (possibly compound) request: the single intent
	// name, or a canonical composite of all contributing intent names.
	TaskType string

	// Tools is the deduplicated union of all matched intents' tool sets,
	// in the order tools were first added.
	Tools []string

	// ExecutionOrder is Tools sorted by tier ascending; within a tier the
	// first-added order is preserved.
	ExecutionOrder []string

	// CanExecute is true iff every tool's requirements are satisfiable by
	// the initial context plus upstream produces.
	CanExecute bool

	// MissingDependencies maps tool name to its first unmet requirement.
	MissingDependencies map[string]string

	// Intents records the matches that contributed tools, in match order.
	Intents []IntentMatch
}

// ToolOutcome is the terminal record of one planned tool after execution.
type ToolOutcome struct {
	Tool     string
	Tier     Tier
	State    ToolState
	Payload  map[string]interface{}
	Err      *ToolError
	Reason   string
	Duration time.Duration
}

// ExecutionReport is what the executor hands to the aggregator: one terminal
// outcome per tool in the plan's execution order.
type ExecutionReport struct {
	Outcomes []ToolOutcome
	Started  time.Time
	Duration time.Duration
}

// Outcome returns the outcome for a tool name, or nil.
func (r *ExecutionReport) Outcome(tool string) *ToolOutcome {
	for i := range r.Outcomes {
		if r.Outcomes[i].Tool == tool {
			return &r.Outcomes[i]
		}
	}
	return nil
}

// Partial reports whether any tool ended in a state other than succeeded.
func (r *ExecutionReport) Partial() bool {
	for i := range r.Outcomes {
		if r.Outcomes[i].State != ToolStateSucceeded {
			return true
		}
	}
	return false
}

// FailureNotice describes one tool that did not succeed.
type FailureNotice struct {
	Tool   string    `json:"tool"`
	State  ToolState `json:"state"`
	Reason string    `json:"reason"`
}

// AggregatedResult is the payload handed to the external narrative stage.
type AggregatedResult struct {
	TaskType string                            `json:"task_type"`
	Results  map[string]map[string]interface{} `json:"results"`
	Failures []FailureNotice                   `json:"failures"`
	Context  map[string]interface{}            `json:"context"`
	Partial  bool                              `json:"partial"`
	Duration time.Duration                     `json:"duration"`

	// Narrative is the prose rendering from the narrative stage, when one
	// is configured.
	Narrative string `json:"narrative,omitempty"`

	// PipelineError names a stage-level fault (classification, planning)
	// that prevented execution. Per-tool failures go in Failures instead.
	PipelineError string `json:"pipeline_error,omitempty"`
}

// errorKeyPrefix is the reserved context namespace for failure markers.
const errorKeyPrefix = "errors."

// ErrorKey returns the reserved context key holding a tool's failure marker.
func ErrorKey(tool string) string {
	return errorKeyPrefix + tool
}

// IsErrorKey reports whether a context key is a failure marker.
func IsErrorKey(key string) bool {
	return strings.HasPrefix(key, errorKeyPrefix)
}

// ContextReader is the read view of a BusinessContext handed to tools.
type ContextReader interface {
	Get(key string) (interface{}, bool)
	Keys() []string
}

// BusinessContext is the shared key-value store threaded through one pipeline
// run. It is exclusively owned by that run; the mutex only guards concurrent
// writes from same-tier tools.
type BusinessContext struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// NewBusinessContext creates a context seeded with the caller-supplied
// identifiers (tenant, raw-data handles).
func NewBusinessContext(seed map[string]interface{}) *BusinessContext {
	values := make(map[string]interface{}, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &BusinessContext{values: values}
}

// Get retrieves a context value.
func (bc *BusinessContext) Get(key string) (interface{}, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	v, ok := bc.values[key]
	return v, ok
}

// Set writes a context value.
func (bc *BusinessContext) Set(key string, value interface{}) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.values[key] = value
}

// SetError records a failure marker for a tool under the reserved errors
// namespace instead of the tool's produces keys.
func (bc *BusinessContext) SetError(tool string, err error) {
	bc.Set(ErrorKey(tool), err.Error())
}

// Keys returns the sorted key set, failure markers included.
func (bc *BusinessContext) Keys() []string {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	keys := make([]string, 0, len(bc.values))
	for k := range bc.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of all non-marker entries.
func (bc *BusinessContext) Snapshot() map[string]interface{} {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	snap := make(map[string]interface{}, len(bc.values))
	for k, v := range bc.values {
		if IsErrorKey(k) {
			continue
		}
		snap[k] = v
	}
	return snap
}
