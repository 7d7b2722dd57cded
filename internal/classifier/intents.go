package classifier

import sageflow "github.com/sageflow-ai/sageflow"

// DefaultIntents is the built-in intent table covering the quantitative tool
// library. Callers with custom tools supply their own table, or load one from
// YAML via LoadIntentFile.
func DefaultIntents() []sageflow.Intent {
	return []sageflow.Intent{
		{
			Name:         "inventory_analysis",
			Keywords:     []string{"inventory", "stock", "sku", "out of stock"},
			PrimaryTools: []string{"analyze_inventory"},
		},
		{
			Name:         "revenue_analysis",
			Keywords:     []string{"revenue", "sales", "income", "turnover"},
			PrimaryTools: []string{"analyze_revenue"},
		},
		{
			Name:         "customer_analysis",
			Keywords:     []string{"customer", "churn", "retention"},
			PrimaryTools: []string{"analyze_customers"},
		},
		{
			Name:         "business_health",
			Keywords:     []string{"health", "overview", "how is my business"},
			PrimaryTools: []string{"business_health"},
		},
		{
			Name:          "forecast",
			Keywords:      []string{"forecast", "demand", "predict", "projection"},
			PrimaryTools:  []string{"forecast_demand"},
			OptionalTools: []string{"analyze_inventory"},
		},
		{
			Name:          "optimization",
			Keywords:      []string{"optimize", "optimization", "reorder", "eoq"},
			PrimaryTools:  []string{"optimize_inventory"},
			OptionalTools: []string{"analyze_inventory"},
		},
		{
			Name:         "pricing_optimization",
			Keywords:     []string{"pricing", "price"},
			PrimaryTools: []string{"optimize_pricing"},
		},
		{
			// Reserved fallback: no keywords, no tools. The planner turns
			// this into an empty, trivially executable plan.
			Name: sageflow.GeneralIntentName,
		},
	}
}
