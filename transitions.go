package sageflow

import (
	"context"
	"log"
	"time"

	plancache "github.com/sageflow-ai/sageflow/internal/cache"
	"github.com/sageflow-ai/sageflow/internal/eventbus"
)

// CreatePipelineStateMachine builds the state machine driving one run:
// init, classifying, planning, executing, aggregating, narrating.
func CreatePipelineStateMachine(p *Pipeline, eventBus eventbus.EventBus) *StateMachine {
	sm := NewStateMachine(eventBus)

	sm.RegisterTransition(StateInit, createInitTransition(p))
	sm.RegisterTransition(StateClassifying, createClassifyingTransition(p))
	sm.RegisterTransition(StatePlanning, createPlanningTransition(p))
	sm.RegisterTransition(StateExecuting, createExecutingTransition(p))
	sm.RegisterTransition(StateAggregating, createAggregatingTransition(p))
	sm.RegisterTransition(StateNarrating, createNarratingTransition(p))

	return sm
}

func publishEvent(ctx context.Context, eb eventbus.EventBus, eventType eventbus.EventType, payload interface{}, source string, metadata map[string]interface{}) {
	if eb == nil {
		return
	}
	if err := eb.Publish(context.WithoutCancel(ctx), eventbus.NewEvent(eventType, payload, source, metadata)); err != nil {
		log.Printf("Failed to publish event (type: %s, error: %v)", eventType, err)
	}
}

// createInitTransition announces the run and checks the plan cache. A hit
// skips classification and planning entirely.
func createInitTransition(p *Pipeline) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, rc *RunContext) (PipelineState, error) {
		publishEvent(ctx, eb, eventbus.EventRunStarted, rc.Query, "StateMachine.Init", map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		})

		if c := p.planCache(); c != nil {
			key := plancache.PlanKey(rc.Query, p.registry.Fingerprint(), rc.Business.Keys())
			if cached, err := c.Get(ctx, key); err == nil {
				if plan, ok := cached.(*TaskPlan); ok {
					rc.Plan = plan
					rc.PlanHit = true
					log.Printf("Plan cache hit (task_type: %s)", plan.TaskType)
					return StateExecuting, nil
				}
			}
		}
		return StateClassifying, nil
	}
}

func createClassifyingTransition(p *Pipeline) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, rc *RunContext) (PipelineState, error) {
		publishEvent(ctx, eb, eventbus.EventClassificationStarted, rc.Query, "StateMachine.Classifying", nil)

		matches, err := p.classifier.Classify(ctx, rc.Query)
		if err != nil {
			publishEvent(ctx, eb, eventbus.EventClassificationFailure, err.Error(), "StateMachine.Classifying", nil)
			return StateError, NewClassificationError(err)
		}

		publishEvent(ctx, eb, eventbus.EventClassificationSuccess, matches, "StateMachine.Classifying", map[string]interface{}{
			"match_count": len(matches),
		})
		rc.Matches = matches
		return StatePlanning, nil
	}
}

func createPlanningTransition(p *Pipeline) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, rc *RunContext) (PipelineState, error) {
		publishEvent(ctx, eb, eventbus.EventPlanningStarted, rc.Matches, "StateMachine.Planning", nil)

		plan, err := p.planner.Plan(ctx, rc.Matches, rc.Business.Keys())
		if err != nil {
			publishEvent(ctx, eb, eventbus.EventPlanningFailure, err.Error(), "StateMachine.Planning", nil)
			return StateError, NewPlanningError(err)
		}

		publishEvent(ctx, eb, eventbus.EventPlanningSuccess, plan, "StateMachine.Planning", map[string]interface{}{
			"task_type":   plan.TaskType,
			"tool_count":  len(plan.Tools),
			"can_execute": plan.CanExecute,
		})
		rc.Plan = plan

		if c := p.planCache(); c != nil {
			key := plancache.PlanKey(rc.Query, p.registry.Fingerprint(), rc.Business.Keys())
			if err := c.Set(ctx, key, plan); err != nil {
				log.Printf("Plan cache write failed: %v", err)
			}
		}
		return StateExecuting, nil
	}
}

func createExecutingTransition(p *Pipeline) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, rc *RunContext) (PipelineState, error) {
		report, err := p.executor.Execute(ctx, rc.Plan, rc.Business, rc.Params)
		if err != nil {
			return StateError, err
		}
		rc.Report = report
		return StateAggregating, nil
	}
}

func createAggregatingTransition(p *Pipeline) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, rc *RunContext) (PipelineState, error) {
		rc.Result = p.aggregator.Aggregate(rc.Plan, rc.Report, rc.Business)
		publishEvent(ctx, eb, eventbus.EventAggregationCompleted, rc.Result, "StateMachine.Aggregating", map[string]interface{}{
			"partial":        rc.Result.Partial,
			"result_count":   len(rc.Result.Results),
			"failure_count":  len(rc.Result.Failures),
			"plan_cache_hit": rc.PlanHit,
		})

		if p.narrator != nil && p.config.EnableNarrative {
			return StateNarrating, nil
		}
		rc.Complete()
		publishEvent(ctx, eb, eventbus.EventRunSuccess, rc.Query, "StateMachine.Aggregating", nil)
		return StateComplete, nil
	}
}

// createNarratingTransition renders the aggregated result to prose. A
// narrative failure degrades the run instead of failing it: the structured
// result is still returned.
func createNarratingTransition(p *Pipeline) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, rc *RunContext) (PipelineState, error) {
		publishEvent(ctx, eb, eventbus.EventNarrativeStarted, rc.Query, "StateMachine.Narrating", nil)

		narrative, err := p.narrator.Narrate(ctx, rc.Query, rc.Result)
		if err != nil {
			log.Printf("Narrative stage failed, returning structured result only: %v", err)
			publishEvent(ctx, eb, eventbus.EventNarrativeFailure, err.Error(), "StateMachine.Narrating", nil)
		} else {
			rc.Result.Narrative = narrative
			publishEvent(ctx, eb, eventbus.EventNarrativeSuccess, narrative, "StateMachine.Narrating", map[string]interface{}{
				"narrative_length": len(narrative),
			})
		}

		rc.Complete()
		publishEvent(ctx, eb, eventbus.EventRunSuccess, rc.Query, "StateMachine.Narrating", nil)
		return StateComplete, nil
	}
}
