package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/sync/errgroup"

	sageflow "github.com/sageflow-ai/sageflow"
	"github.com/sageflow-ai/sageflow/internal/adapters"
	"github.com/sageflow-ai/sageflow/internal/aggregator"
	"github.com/sageflow-ai/sageflow/internal/cache"
	"github.com/sageflow-ai/sageflow/internal/classifier"
	"github.com/sageflow-ai/sageflow/internal/data"
	"github.com/sageflow-ai/sageflow/internal/eventbus"
	"github.com/sageflow-ai/sageflow/internal/executor"
	"github.com/sageflow-ai/sageflow/internal/planner"
	"github.com/sageflow-ai/sageflow/internal/tools"
)

const demoTenant = "acme"

func main() {
	ctx := context.Background()

	g, err := genkit.Init(ctx)
	if err != nil {
		log.Fatal("Genkit initialization failed:", err)
	}

	// Narrator flow: renders the aggregated result to prose. Swap the body
	// for a model call via genkit.Generate when a model plugin is configured.
	narratorFlow := genkit.DefineFlow(g, "narratorFlow",
		func(ctx context.Context, input *adapters.NarratorInput) (string, error) {
			var b strings.Builder
			fmt.Fprintf(&b, "For the question %q (%s):\n", input.Query, input.TaskType)
			for tool, payload := range input.Results {
				fmt.Fprintf(&b, "- %s produced %d metrics\n", tool, len(payload))
			}
			for _, failure := range input.Failures {
				fmt.Fprintf(&b, "- %s did not run: %s\n", failure.Tool, failure.Reason)
			}
			if input.Partial {
				b.WriteString("Some answers are missing; see the failures above.\n")
			}
			return b.String(), nil
		},
	)

	// Data and tool surface.
	store := data.SampleStore(demoTenant)
	registry := sageflow.NewRegistry()
	if err := tools.Register(registry, store); err != nil {
		log.Fatal("Tool registration failed:", err)
	}

	intents := classifier.DefaultIntents()
	if path := os.Getenv("SAGEFLOW_INTENTS"); path != "" {
		table, err := classifier.LoadIntentFile(path)
		if err != nil {
			log.Fatal("Intent file load failed:", err)
		}
		if err := table.Validate(registry); err != nil {
			log.Fatal("Intent file validation failed:", err)
		}
		intents = table.Intents
		log.Printf("Loaded intent table %q (%d intents)", table.Name, len(intents))
	}

	bus := eventbus.NewChannelEventBus(
		eventbus.WithBufferSize(100),
		eventbus.WithWorkerCount(5),
	)
	if _, err := bus.SubscribeAll(func(ctx context.Context, event eventbus.Event) error {
		log.Printf("[event] %s from %s", event.Type(), event.Source())
		return nil
	}); err != nil {
		log.Fatal("Event subscription failed:", err)
	}

	pipeline, err := sageflow.New(
		sageflow.WithRegistry(registry),
		sageflow.WithClassifier(classifier.New(intents)),
		sageflow.WithPlanner(planner.New(registry, intents)),
		sageflow.WithExecutor(executor.New(registry,
			executor.WithMaxWorkers(4),
			executor.WithPipelineTimeout(30*time.Second),
			executor.WithEventBus(bus),
		)),
		sageflow.WithAggregator(aggregator.New()),
		sageflow.WithNarrator(adapters.NewGenkitNarratorAdapter(narratorFlow)),
		sageflow.WithCache(cache.NewInMemoryCache(10*time.Minute)),
		sageflow.WithEventBus(bus),
	)
	if err != nil {
		log.Fatal("Pipeline initialization failed:", err)
	}
	defer pipeline.Shutdown()

	// The pipeline as a Genkit flow, runnable via `genkit flow run sageflowFlow`.
	_ = genkit.DefineFlow(g, "sageflowFlow",
		func(ctx context.Context, query string) (*sageflow.AggregatedResult, error) {
			return pipeline.Run(ctx, query, map[string]interface{}{"tenant": demoTenant}, nil)
		},
	)

	queries := []string{
		"How is my inventory doing?",
		"Forecast demand and tell me what to reorder",
		"Give me a full business health check",
	}

	grp, grpCtx := errgroup.WithContext(ctx)
	results := make([]*sageflow.AggregatedResult, len(queries))
	for i, query := range queries {
		grp.Go(func() error {
			result, err := pipeline.Run(grpCtx, query, map[string]interface{}{"tenant": demoTenant}, nil)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		log.Fatal("Demo run failed:", err)
	}

	for i, result := range results {
		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatal("Result encoding failed:", err)
		}
		fmt.Printf("=== %s ===\n%s\n\n", queries[i], encoded)
	}
}
