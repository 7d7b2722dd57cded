package sageflow

import "context"

// Classifier maps request text to zero or more matched intents. Returned
// matches are ordered by descending match strength; a zero-match request
// yields the reserved general intent so the planner always receives input.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]IntentMatch, error)
}

// Planner merges matched intents into one deduplicated, tier-ordered task
// plan. An unexecutable plan is still returned with CanExecute=false; the
// error return is reserved for planner implementations with external inputs.
type Planner interface {
	Plan(ctx context.Context, matches []IntentMatch, initialKeys []string) (*TaskPlan, error)
}

// Executor runs a plan's tools in tier order against the shared context,
// isolating per-tool failures. It never returns an error for tool failures;
// those are recorded in the report.
type Executor interface {
	Execute(ctx context.Context, plan *TaskPlan, bc *BusinessContext, params map[string]interface{}) (*ExecutionReport, error)
}

// Aggregator assembles all tool outputs plus failure notices into the payload
// consumed by the narrative stage. It never fails.
type Aggregator interface {
	Aggregate(plan *TaskPlan, report *ExecutionReport, bc *BusinessContext) *AggregatedResult
}

// Narrator is the boundary to the external narrative stage that turns the
// aggregated result into prose. The core makes no formatting decisions.
type Narrator interface {
	Narrate(ctx context.Context, query string, result *AggregatedResult) (string, error)
}

// Cache provides storage for per-request artifacts, like built task plans.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// DataStore is the data-access collaborator tools use to read raw business
// records. Implementations return an explicit not-found error for unknown
// tenant/kind pairs; those surface as INPUT_MISSING tool errors.
type DataStore interface {
	Records(ctx context.Context, tenant, kind string) ([]Record, error)
}

// Record is one raw business record: a flat field map keyed by column name.
type Record map[string]interface{}

// Data kinds served by a DataStore.
const (
	DataKindOrders    = "orders"
	DataKindInventory = "inventory"
	DataKindCustomers = "customers"
)
