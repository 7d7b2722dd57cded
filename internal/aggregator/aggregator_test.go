package aggregator

import (
	"testing"
	"time"

	sageflow "github.com/sageflow-ai/sageflow"
)

func TestAggregate_MixedOutcomes(t *testing.T) {
	plan := &sageflow.TaskPlan{TaskType: "inventory_analysis+forecast", Tools: []string{"analyze_inventory", "forecast_demand"}}
	report := &sageflow.ExecutionReport{
		Duration: 42 * time.Millisecond,
		Outcomes: []sageflow.ToolOutcome{
			{
				Tool:    "analyze_inventory",
				State:   sageflow.ToolStateSucceeded,
				Payload: map[string]interface{}{"inventory_metrics": map[string]interface{}{"total_skus": 3.0}},
			},
			{
				Tool:  "forecast_demand",
				State: sageflow.ToolStateFailed,
				Err:   sageflow.NewComputeError("forecast_demand", "history too short", nil),
			},
		},
	}
	bc := sageflow.NewBusinessContext(map[string]interface{}{"tenant": "acme"})
	bc.Set("inventory_metrics", map[string]interface{}{"total_skus": 3.0})
	bc.SetError("forecast_demand", report.Outcomes[1].Err)

	result := New().Aggregate(plan, report, bc)

	if result.TaskType != "inventory_analysis+forecast" {
		t.Errorf("task_type = %q", result.TaskType)
	}
	if !result.Partial {
		t.Error("expected partial result")
	}
	if _, ok := result.Results["analyze_inventory"]; !ok {
		t.Error("succeeded payload missing from results")
	}
	if len(result.Failures) != 1 || result.Failures[0].Tool != "forecast_demand" {
		t.Errorf("unexpected failures: %v", result.Failures)
	}
	if result.Failures[0].Reason == "" {
		t.Error("failure notice has no reason")
	}
	// Context snapshot excludes the reserved error markers.
	if _, ok := result.Context[sageflow.ErrorKey("forecast_demand")]; ok {
		t.Error("error marker leaked into context snapshot")
	}
	if result.Duration != 42*time.Millisecond {
		t.Errorf("duration = %v", result.Duration)
	}
}

func TestAggregate_AllFailedStillReturnsPayload(t *testing.T) {
	plan := &sageflow.TaskPlan{TaskType: "optimization", Tools: []string{"optimize_inventory"}}
	report := &sageflow.ExecutionReport{
		Outcomes: []sageflow.ToolOutcome{
			{Tool: "optimize_inventory", State: sageflow.ToolStateSkipped, Reason: "missing dependency: inventory_metrics"},
		},
	}

	result := New().Aggregate(plan, report, sageflow.NewBusinessContext(nil))
	if result == nil {
		t.Fatal("aggregator must never return nil")
	}
	if len(result.Results) != 0 {
		t.Errorf("expected empty results, got %v", result.Results)
	}
	if !result.Partial {
		t.Error("expected partial flag")
	}
	if result.Failures[0].Reason != "missing dependency: inventory_metrics" {
		t.Errorf("unexpected reason %q", result.Failures[0].Reason)
	}
}

func TestAggregate_NilReport(t *testing.T) {
	plan := &sageflow.TaskPlan{TaskType: "forecast", Tools: []string{"forecast_demand"}}
	result := New().Aggregate(plan, nil, nil)
	if !result.Partial {
		t.Error("nil report over a non-empty plan must be partial")
	}
	if result.Results == nil || result.Failures == nil || result.Context == nil {
		t.Error("payload maps must be non-nil")
	}
}

func TestAggregate_EmptyPlanIsComplete(t *testing.T) {
	plan := &sageflow.TaskPlan{TaskType: sageflow.GeneralIntentName}
	result := New().Aggregate(plan, &sageflow.ExecutionReport{}, sageflow.NewBusinessContext(nil))
	if result.Partial {
		t.Error("empty plan should aggregate as complete")
	}
}
