// Package sageflow provides the core runtime for answering business questions
// through intent classification, task planning and quantitative tool execution.
package sageflow

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/sageflow-ai/sageflow/internal/eventbus"
)

// Pipeline is the main entry point into the sageflow runtime. It encapsulates
// all components required to turn a business question into an aggregated
// answer.
type Pipeline struct {
	// Core components
	classifier Classifier
	planner    Planner
	executor   Executor
	aggregator Aggregator
	narrator   Narrator
	cache      Cache
	registry   *Registry
	eventBus   eventbus.EventBus

	// Configuration
	config Config

	// Async processing
	asyncRuns      map[string]*asyncRun
	asyncRunsMutex sync.RWMutex
}

// Config holds the configuration options for the sageflow runtime.
type Config struct {
	// Enable/disable the narrative stage. The stage also needs a Narrator
	// to be configured.
	EnableNarrative bool

	// Enable/disable plan caching per request text.
	EnablePlanCache bool

	// Event bus configuration
	EnableEventBus      bool
	EventBusBufferSize  int
	EventBusWorkerCount int
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EnableNarrative:     true,
		EnablePlanCache:     true,
		EnableEventBus:      true,
		EventBusBufferSize:  100,
		EventBusWorkerCount: 5,
	}
}

// Option is a function that configures a Pipeline instance.
type Option func(*Pipeline)

// WithConfig sets the runtime configuration.
func WithConfig(config Config) Option {
	return func(p *Pipeline) {
		p.config = config
	}
}

// WithClassifier sets the intent classifier component.
func WithClassifier(classifier Classifier) Option {
	return func(p *Pipeline) {
		p.classifier = classifier
	}
}

// WithPlanner sets the planner component.
func WithPlanner(planner Planner) Option {
	return func(p *Pipeline) {
		p.planner = planner
	}
}

// WithExecutor sets the executor component.
func WithExecutor(executor Executor) Option {
	return func(p *Pipeline) {
		p.executor = executor
	}
}

// WithAggregator sets the aggregator component.
func WithAggregator(aggregator Aggregator) Option {
	return func(p *Pipeline) {
		p.aggregator = aggregator
	}
}

// WithNarrator sets the optional narrative component.
func WithNarrator(narrator Narrator) Option {
	return func(p *Pipeline) {
		p.narrator = narrator
	}
}

// WithCache sets the cache component used for built task plans.
func WithCache(cache Cache) Option {
	return func(p *Pipeline) {
		p.cache = cache
	}
}

// WithRegistry sets the tool registry.
func WithRegistry(registry *Registry) Option {
	return func(p *Pipeline) {
		p.registry = registry
	}
}

// WithEventBus sets the event bus used to publish run lifecycle events.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(p *Pipeline) {
		p.eventBus = bus
	}
}

// New creates a new Pipeline instance with the provided options.
func New(options ...Option) (*Pipeline, error) {
	p := &Pipeline{
		config:    DefaultConfig(),
		asyncRuns: make(map[string]*asyncRun),
	}

	for _, option := range options {
		option(p)
	}

	// Validate required components
	if p.registry == nil {
		return nil, NewConfigError("tool registry is required", nil)
	}
	if p.classifier == nil {
		return nil, NewConfigError("classifier is required", nil)
	}
	if p.planner == nil {
		return nil, NewConfigError("planner is required", nil)
	}
	if p.executor == nil {
		return nil, NewConfigError("executor is required", nil)
	}
	if p.aggregator == nil {
		return nil, NewConfigError("aggregator is required", nil)
	}
	if len(p.registry.Names()) == 0 {
		return nil, NewConfigError("at least one registered tool is required", nil)
	}

	p.registry.Freeze()

	if p.config.EnableEventBus && p.eventBus == nil {
		p.eventBus = eventbus.NewChannelEventBus(
			eventbus.WithBufferSize(p.config.EventBusBufferSize),
			eventbus.WithWorkerCount(p.config.EventBusWorkerCount),
		)
		log.Printf("Initialized default channel-based event bus")
	}

	return p, nil
}

// Registry returns the pipeline's tool registry.
func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// EventBus returns the pipeline's event bus, or nil when disabled.
func (p *Pipeline) EventBus() eventbus.EventBus {
	if !p.config.EnableEventBus {
		return nil
	}
	return p.eventBus
}

// Run handles an end-to-end request through the runtime using a pushdown
// automaton state machine. The returned result is never nil: stage-level
// faults (classification, planning) degrade to a partial result with the
// fault recorded in PipelineError. The error return is reserved for caller
// cancellation.
func (p *Pipeline) Run(ctx context.Context, text string, initialContext map[string]interface{}, params map[string]interface{}) (*AggregatedResult, error) {
	rc := NewRunContext(text, initialContext, params)
	sm := p.createStateMachine()

	result, err := sm.Execute(ctx, rc)
	if err != nil {
		p.publishRunFailure(ctx, rc, err)
		if result == nil {
			result = p.fallbackResult(rc)
		}
		return result, err
	}

	if rc.State() == StateError {
		if result == nil {
			result = p.fallbackResult(rc)
		}
		lastErr, _ := rc.Failure()
		p.publishRunFailure(ctx, rc, lastErr)
		return result, nil
	}

	if result == nil {
		result = p.fallbackResult(rc)
	}
	return result, nil
}

// fallbackResult builds a partial result for a run that never reached the
// aggregation stage. The answer contract holds even then: non-nil result,
// empty tool payloads, fault text attached.
func (p *Pipeline) fallbackResult(rc *RunContext) *AggregatedResult {
	result := p.aggregator.Aggregate(rc.Plan, rc.Report, rc.Business)
	result.Partial = true
	if lastErr, stage := rc.Failure(); lastErr != nil {
		result.PipelineError = fmt.Sprintf("%s: %s", stage, lastErr.Error())
	}
	return result
}

func (p *Pipeline) publishRunFailure(ctx context.Context, rc *RunContext, cause error) {
	if !p.config.EnableEventBus || p.eventBus == nil {
		return
	}
	_, stage := rc.Failure()
	metadata := map[string]interface{}{
		"error_stage": stage,
		"duration_ms": rc.TotalDuration().Milliseconds(),
	}
	if cause != nil {
		metadata["error"] = cause.Error()
	}
	event := eventbus.NewEvent(eventbus.EventRunFailure, rc.Query, "Pipeline.Run", metadata)
	if err := p.eventBus.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Printf("Failed to publish run failure event: %v", err)
	}
}

// createStateMachine builds a state machine with all transitions for the
// pipeline workflow.
func (p *Pipeline) createStateMachine() *StateMachine {
	var bus eventbus.EventBus
	if p.config.EnableEventBus {
		bus = p.eventBus
	}
	return CreatePipelineStateMachine(p, bus)
}

// planCache returns the cache to consult for plans, or nil when plan caching
// is disabled.
func (p *Pipeline) planCache() Cache {
	if !p.config.EnablePlanCache {
		return nil
	}
	return p.cache
}

// Shutdown releases the runtime's background resources.
func (p *Pipeline) Shutdown() error {
	if p.eventBus != nil {
		return p.eventBus.Close()
	}
	return nil
}

// DescribeTools returns a map of tool names to their registered descriptions,
// suitable for surfacing the runtime's capabilities.
func (p *Pipeline) DescribeTools() map[string]string {
	return p.registry.Descriptions()
}
