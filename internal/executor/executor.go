package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sourcegraph/conc/pool"

	sageflow "github.com/sageflow-ai/sageflow"
	"github.com/sageflow-ai/sageflow/internal/eventbus"
)

// ToolExecutor runs a task plan against a business context: tier barriers
// between ANALYSIS, FORECAST and OPTIMIZATION, bounded concurrency inside a
// tier, per-tool failure isolation.
type ToolExecutor struct {
	registry   *sageflow.Registry
	maxWorkers int           // Max concurrent tools within a tier
	timeout    time.Duration // Whole-pipeline deadline
	bus        eventbus.EventBus

	metrics Metrics
}

// Option configures a ToolExecutor.
type Option func(*ToolExecutor)

// WithMaxWorkers bounds same-tier concurrency.
func WithMaxWorkers(n int) Option {
	return func(e *ToolExecutor) {
		if n > 0 {
			e.maxWorkers = n
		}
	}
}

// WithPipelineTimeout sets the deadline for one whole Execute call.
func WithPipelineTimeout(d time.Duration) Option {
	return func(e *ToolExecutor) {
		e.timeout = d
	}
}

// WithEventBus attaches a bus for execution lifecycle events.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(e *ToolExecutor) {
		e.bus = bus
	}
}

// New creates an executor over a frozen registry.
func New(registry *sageflow.Registry, options ...Option) *ToolExecutor {
	e := &ToolExecutor{
		registry:   registry,
		maxWorkers: 4,
		timeout:    time.Minute,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// tierOrder is the fixed barrier sequence.
var tierOrder = []sageflow.Tier{sageflow.TierAnalysis, sageflow.TierForecast, sageflow.TierOptimization}

// Execute runs every tool in the plan's execution order. It never returns an
// error for per-tool failures; those are terminal states in the report. The
// only error cases are a nil plan or an unusable registry entry set.
func (e *ToolExecutor) Execute(ctx context.Context, plan *sageflow.TaskPlan, bc *sageflow.BusinessContext, params map[string]interface{}) (*sageflow.ExecutionReport, error) {
	if plan == nil {
		return nil, sageflow.NewExecutionError("plan is nil", nil)
	}

	started := time.Now()
	e.resetMetrics()

	execCtx := ctx
	cancel := func() {}
	if e.timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	e.publish(execCtx, eventbus.EventPlanExecutionStarted, plan.TaskType)
	log.Printf("Starting plan execution (task_type: %s, tools: %d)", plan.TaskType, len(plan.ExecutionOrder))

	outcomes := make(map[string]*sageflow.ToolOutcome, len(plan.ExecutionOrder))
	specs := make(map[string]sageflow.ToolSpec, len(plan.ExecutionOrder))
	for _, name := range plan.ExecutionOrder {
		spec, ok := e.registry.Lookup(name)
		if !ok {
			outcomes[name] = &sageflow.ToolOutcome{
				Tool:   name,
				State:  sageflow.ToolStateSkipped,
				Reason: "tool not registered",
			}
			e.recordSkip()
			continue
		}
		specs[name] = spec
		outcomes[name] = &sageflow.ToolOutcome{
			Tool:  name,
			Tier:  spec.Tier,
			State: sageflow.ToolStatePending,
		}
	}

	for _, tier := range tierOrder {
		var pending []sageflow.ToolSpec
		for _, name := range plan.ExecutionOrder {
			spec, ok := specs[name]
			if ok && spec.Tier == tier {
				pending = append(pending, spec)
			}
		}
		if len(pending) == 0 {
			continue
		}
		e.publish(execCtx, eventbus.EventTierStarted, tier.String())
		e.runTier(execCtx, pending, plan, bc, params, outcomes)
		e.publish(execCtx, eventbus.EventTierReleased, tier.String())
	}

	report := &sageflow.ExecutionReport{
		Started:  started,
		Duration: time.Since(started),
		Outcomes: make([]sageflow.ToolOutcome, 0, len(plan.ExecutionOrder)),
	}
	for _, name := range plan.ExecutionOrder {
		report.Outcomes = append(report.Outcomes, *outcomes[name])
	}

	snapshot := e.metrics.Copy()
	log.Printf("Plan execution finished (task_type: %s, executed: %d, succeeded: %d, failed: %d, skipped: %d, duration: %v)",
		plan.TaskType,
		snapshot.ToolsExecuted,
		snapshot.ToolsSucceeded,
		snapshot.ToolsFailed,
		snapshot.ToolsSkipped,
		report.Duration)

	if report.Partial() {
		e.publish(execCtx, eventbus.EventPlanExecutionPartial, plan.TaskType)
	} else {
		e.publish(execCtx, eventbus.EventPlanExecutionSuccess, plan.TaskType)
	}
	return report, nil
}

// runTier schedules one tier in waves. Each wave runs every still-pending
// tool whose requires keys are already in the context; the next wave
// re-checks the remainder against the keys the wave wrote. Tools left over
// when no wave can run them are skipped with the unmet key as the reason.
func (e *ToolExecutor) runTier(ctx context.Context, pending []sageflow.ToolSpec, plan *sageflow.TaskPlan, bc *sageflow.BusinessContext, params map[string]interface{}, outcomes map[string]*sageflow.ToolOutcome) {
	remaining := pending
	for len(remaining) > 0 {
		if ctx.Err() != nil {
			e.skipAll(ctx, remaining, plan, outcomes, timeoutReason(ctx))
			return
		}

		available := keySet(bc.Keys())
		var wave, deferred []sageflow.ToolSpec
		for _, spec := range remaining {
			if firstMissing(spec.Requires, available) == "" {
				wave = append(wave, spec)
			} else {
				deferred = append(deferred, spec)
			}
		}

		if len(wave) == 0 {
			for _, spec := range deferred {
				e.skip(ctx, spec.Name, outcomes, e.skipReason(spec, plan, available))
			}
			return
		}

		workers := pool.New().WithMaxGoroutines(e.maxWorkers)
		for _, spec := range wave {
			spec := spec
			workers.Go(func() {
				e.runTool(ctx, spec, bc, params, outcomes[spec.Name])
			})
		}
		workers.Wait()

		remaining = deferred
	}
}

func (e *ToolExecutor) runTool(ctx context.Context, spec sageflow.ToolSpec, bc *sageflow.BusinessContext, params map[string]interface{}, outcome *sageflow.ToolOutcome) {
	outcome.State = sageflow.ToolStateRunning
	start := time.Now()
	e.publish(ctx, eventbus.EventToolExecutionStarted, spec.Name)

	fail := func(terr *sageflow.ToolError) {
		outcome.State = sageflow.ToolStateFailed
		outcome.Err = terr
		outcome.Duration = time.Since(start)
		bc.SetError(spec.Name, terr)
		e.recordRun(outcome)
		e.publish(ctx, eventbus.EventToolExecutionFailure, spec.Name)
		log.Printf("Tool execution failed (tool: %s, kind: %s, error: %v)", spec.Name, terr.Kind, terr)
	}

	if spec.Validator != nil {
		if err := spec.Validator(params); err != nil {
			fail(sageflow.AsToolError(spec.Name, err))
			return
		}
	}

	resolved, err := resolveParams(params, bc)
	if err != nil {
		fail(sageflow.NewComputeError(spec.Name, "parameter resolution failed", err))
		return
	}

	payload, err := e.invoke(ctx, spec, bc, resolved)
	if err != nil {
		if ctx.Err() != nil {
			fail(sageflow.NewToolTimeoutError(spec.Name, err))
			return
		}
		fail(sageflow.AsToolError(spec.Name, err))
		return
	}
	if payload == nil {
		fail(sageflow.NewComputeError(spec.Name, "tool returned a nil payload", nil))
		return
	}
	for _, key := range spec.Produces {
		if _, ok := payload[key]; !ok {
			fail(sageflow.NewComputeError(spec.Name, fmt.Sprintf("tool did not produce key %q", key), nil))
			return
		}
	}

	for k, v := range payload {
		bc.Set(k, v)
	}
	outcome.State = sageflow.ToolStateSucceeded
	outcome.Payload = payload
	outcome.Duration = time.Since(start)
	e.recordRun(outcome)
	e.publish(ctx, eventbus.EventToolExecutionSuccess, spec.Name)
	log.Printf("Tool execution succeeded (tool: %s, duration: %v)", spec.Name, outcome.Duration)
}

// invoke isolates tool panics as compute errors so one misbehaving tool
// cannot take down the pipeline.
func (e *ToolExecutor) invoke(ctx context.Context, spec sageflow.ToolSpec, bc sageflow.ContextReader, params map[string]interface{}) (payload map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = sageflow.NewComputeError(spec.Name, fmt.Sprintf("tool panicked: %v", r), nil)
		}
	}()
	return spec.Invoke(ctx, bc, params)
}

func (e *ToolExecutor) skip(ctx context.Context, name string, outcomes map[string]*sageflow.ToolOutcome, reason string) {
	outcome := outcomes[name]
	outcome.State = sageflow.ToolStateSkipped
	outcome.Reason = reason
	e.recordSkip()
	e.publish(ctx, eventbus.EventToolExecutionSkipped, name)
	log.Printf("Tool skipped (tool: %s, reason: %s)", name, reason)
}

func (e *ToolExecutor) skipAll(ctx context.Context, specs []sageflow.ToolSpec, plan *sageflow.TaskPlan, outcomes map[string]*sageflow.ToolOutcome, reason string) {
	for _, spec := range specs {
		if dep, ok := plan.MissingDependencies[spec.Name]; ok {
			e.skip(ctx, spec.Name, outcomes, "missing dependency: "+dep)
			continue
		}
		e.skip(ctx, spec.Name, outcomes, reason)
	}
}

// skipReason prefers the planner's verdict; for cascading skips caused at
// run time (an upstream failure) it names the key that never appeared.
func (e *ToolExecutor) skipReason(spec sageflow.ToolSpec, plan *sageflow.TaskPlan, available map[string]struct{}) string {
	if dep, ok := plan.MissingDependencies[spec.Name]; ok {
		return "missing dependency: " + dep
	}
	missing := firstMissing(spec.Requires, available)
	producers := e.registry.ProducedBy(missing)
	if len(producers) > 0 {
		return fmt.Sprintf("required key %q was never produced (producer: %s)", missing, producers[0])
	}
	return fmt.Sprintf("required key %q was never produced", missing)
}

func timeoutReason(ctx context.Context) string {
	if ctx.Err() == context.DeadlineExceeded {
		return "pipeline timed out before tool started"
	}
	return "pipeline cancelled before tool started"
}

func firstMissing(requires []string, available map[string]struct{}) string {
	for _, key := range requires {
		if _, ok := available[key]; !ok {
			return key
		}
	}
	return ""
}

func keySet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func (e *ToolExecutor) publish(ctx context.Context, eventType eventbus.EventType, payload interface{}) {
	if e.bus == nil {
		return
	}
	// Lifecycle events must still go out after the pipeline deadline fires.
	if err := e.bus.Publish(context.WithoutCancel(ctx), eventbus.NewEvent(eventType, payload, "executor", nil)); err != nil {
		log.Printf("Failed to publish event (type: %s, error: %v)", eventType, err)
	}
}

func (e *ToolExecutor) resetMetrics() {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()
	// Field-by-field: a struct assignment would clobber the held mutex.
	e.metrics.ToolsExecuted = 0
	e.metrics.ToolsSucceeded = 0
	e.metrics.ToolsFailed = 0
	e.metrics.ToolsSkipped = 0
	e.metrics.TotalDuration = 0
	e.metrics.LongestToolTime = 0
	e.metrics.ShortestToolTime = time.Hour * 24 // Set to a large value initially
}

func (e *ToolExecutor) recordRun(outcome *sageflow.ToolOutcome) {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()

	e.metrics.ToolsExecuted++
	e.metrics.TotalDuration += outcome.Duration
	if outcome.Duration > e.metrics.LongestToolTime {
		e.metrics.LongestToolTime = outcome.Duration
	}
	if outcome.Duration < e.metrics.ShortestToolTime && outcome.Duration > 0 {
		e.metrics.ShortestToolTime = outcome.Duration
	}
	switch outcome.State {
	case sageflow.ToolStateSucceeded:
		e.metrics.ToolsSucceeded++
	case sageflow.ToolStateFailed:
		e.metrics.ToolsFailed++
	}
}

func (e *ToolExecutor) recordSkip() {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()
	e.metrics.ToolsSkipped++
}

// GetMetrics returns a copy of the metrics from the most recent Execute call.
func (e *ToolExecutor) GetMetrics() Metrics {
	return e.metrics.Copy()
}
