// Package adapters bridges external Genkit flows into the runtime's
// component interfaces.
package adapters

import (
	"context"

	"github.com/firebase/genkit/go/core"

	sageflow "github.com/sageflow-ai/sageflow"
)

// NarratorInput is the expected input structure for the narrator flow.
type NarratorInput struct {
	Query    string                            `json:"query"`
	TaskType string                            `json:"task_type"`
	Partial  bool                              `json:"partial"`
	Results  map[string]map[string]interface{} `json:"results"`
	Failures []sageflow.FailureNotice          `json:"failures"`
}

// GenkitNarratorAdapter uses a Genkit Flow to implement the Narrator
// interface. The flow owns all prose decisions; the adapter only shapes the
// aggregated result into the flow input.
type GenkitNarratorAdapter struct {
	narratorFlow *core.Flow[*NarratorInput, string, struct{}]
}

// NewGenkitNarratorAdapter creates a new adapter for the narrator flow.
func NewGenkitNarratorAdapter(flow *core.Flow[*NarratorInput, string, struct{}]) *GenkitNarratorAdapter {
	return &GenkitNarratorAdapter{narratorFlow: flow}
}

// Narrate implements the sageflow.Narrator interface.
func (a *GenkitNarratorAdapter) Narrate(ctx context.Context, query string, result *sageflow.AggregatedResult) (string, error) {
	if a.narratorFlow == nil {
		return "", sageflow.NewConfigError("narrator flow is not configured", nil)
	}

	input := NarratorInput{
		Query:    query,
		TaskType: result.TaskType,
		Partial:  result.Partial,
		Results:  result.Results,
		Failures: result.Failures,
	}

	narrative, err := a.narratorFlow.Run(ctx, &input)
	if err != nil {
		return "", sageflow.NewNarrativeError(err)
	}

	return narrative, nil
}
