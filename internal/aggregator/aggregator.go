// Package aggregator folds an execution report into the result payload
// handed to the narrative stage.
package aggregator

import (
	"log"

	sageflow "github.com/sageflow-ai/sageflow"
)

// ResultAggregator builds the final AggregatedResult. It never fails: even a
// run where every tool failed yields a payload with an empty result set and
// a full failure list.
type ResultAggregator struct{}

// New creates an aggregator.
func New() *ResultAggregator {
	return &ResultAggregator{}
}

// Aggregate collects succeeded payloads, failure notices and the context
// snapshot. Nil inputs degrade to an empty partial result.
func (a *ResultAggregator) Aggregate(plan *sageflow.TaskPlan, report *sageflow.ExecutionReport, bc *sageflow.BusinessContext) *sageflow.AggregatedResult {
	result := &sageflow.AggregatedResult{
		Results:  make(map[string]map[string]interface{}),
		Failures: []sageflow.FailureNotice{},
		Context:  map[string]interface{}{},
	}
	if plan != nil {
		result.TaskType = plan.TaskType
	}
	if bc != nil {
		result.Context = bc.Snapshot()
	}
	if report == nil {
		result.Partial = plan != nil && len(plan.Tools) > 0
		return result
	}

	result.Duration = report.Duration
	for i := range report.Outcomes {
		outcome := &report.Outcomes[i]
		switch outcome.State {
		case sageflow.ToolStateSucceeded:
			result.Results[outcome.Tool] = outcome.Payload
		default:
			result.Failures = append(result.Failures, sageflow.FailureNotice{
				Tool:   outcome.Tool,
				State:  outcome.State,
				Reason: failureReason(outcome),
			})
		}
	}
	result.Partial = report.Partial()

	if result.Partial {
		log.Printf("Aggregated partial result (task_type: %s, succeeded: %d, failed_or_skipped: %d)",
			result.TaskType, len(result.Results), len(result.Failures))
	}
	return result
}

func failureReason(outcome *sageflow.ToolOutcome) string {
	if outcome.Err != nil {
		return outcome.Err.Error()
	}
	if outcome.Reason != "" {
		return outcome.Reason
	}
	return "tool did not reach a terminal success state"
}
