// Package tools is the built-in quantitative tool library: analysis metrics,
// demand forecasting and inventory/pricing optimization over the record
// store. Each tool is registered with its tier and requires/produces
// contract; the executor handles scheduling and failure isolation.
package tools

import (
	"fmt"

	sageflow "github.com/sageflow-ai/sageflow"
)

// Tool names as referenced by the intent table.
const (
	ToolAnalyzeInventory  = "analyze_inventory"
	ToolAnalyzeRevenue    = "analyze_revenue"
	ToolAnalyzeCustomers  = "analyze_customers"
	ToolBusinessHealth    = "business_health"
	ToolForecastDemand    = "forecast_demand"
	ToolOptimizeInventory = "optimize_inventory"
	ToolOptimizePricing   = "optimize_pricing"
)

// Context keys read and produced by the built-in tools.
const (
	KeyTenant                   = "tenant"
	KeyInventoryMetrics         = "inventory_metrics"
	KeyRevenueMetrics           = "revenue_metrics"
	KeyCustomerMetrics          = "customer_metrics"
	KeyHealthMetrics            = "health_metrics"
	KeyDemandForecast           = "demand_forecast"
	KeyInventoryRecommendations = "inventory_recommendations"
	KeyPricingRecommendations   = "pricing_recommendations"
)

// Register adds the whole built-in library to a registry. Registration
// failures are configuration errors and fatal at startup.
func Register(reg *sageflow.Registry, store sageflow.DataStore) error {
	specs := []sageflow.ToolSpec{
		sageflow.NewToolSpec(ToolAnalyzeInventory, sageflow.TierAnalysis, AnalyzeInventory(store),
			sageflow.WithRequires(KeyTenant),
			sageflow.WithProduces(KeyInventoryMetrics),
			sageflow.WithDescription("Summarizes stock levels, valuation and per-SKU demand history")),
		sageflow.NewToolSpec(ToolAnalyzeRevenue, sageflow.TierAnalysis, AnalyzeRevenue(store),
			sageflow.WithRequires(KeyTenant),
			sageflow.WithProduces(KeyRevenueMetrics),
			sageflow.WithDescription("Summarizes revenue totals, order counts and per-SKU revenue share")),
		sageflow.NewToolSpec(ToolAnalyzeCustomers, sageflow.TierAnalysis, AnalyzeCustomers(store),
			sageflow.WithRequires(KeyTenant),
			sageflow.WithProduces(KeyCustomerMetrics),
			sageflow.WithDescription("Summarizes customer activity and churn")),
		sageflow.NewToolSpec(ToolBusinessHealth, sageflow.TierAnalysis, BusinessHealth(store),
			sageflow.WithRequires(KeyTenant),
			sageflow.WithProduces(KeyHealthMetrics),
			sageflow.WithDescription("Computes an overall business health score")),
		sageflow.NewToolSpec(ToolForecastDemand, sageflow.TierForecast, ForecastDemand(),
			sageflow.WithRequires(KeyInventoryMetrics),
			sageflow.WithProduces(KeyDemandForecast),
			sageflow.WithDescription("Projects per-SKU demand over a horizon with confidence bands"),
			sageflow.WithValidator(validateForecastParams)),
		sageflow.NewToolSpec(ToolOptimizeInventory, sageflow.TierOptimization, OptimizeInventory(),
			sageflow.WithRequires(KeyInventoryMetrics),
			sageflow.WithProduces(KeyInventoryRecommendations),
			sageflow.WithDescription("Computes EOQ, safety stock and reorder recommendations"),
			sageflow.WithValidator(validateOptimizeParams)),
		sageflow.NewToolSpec(ToolOptimizePricing, sageflow.TierOptimization, OptimizePricing(),
			sageflow.WithRequires(KeyRevenueMetrics),
			sageflow.WithProduces(KeyPricingRecommendations),
			sageflow.WithDescription("Flags SKUs whose price is out of line with their revenue share")),
	}
	for _, spec := range specs {
		if err := reg.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

func validateForecastParams(params map[string]interface{}) error {
	v, ok := params["horizon"]
	if !ok {
		return nil
	}
	if _, isExpr := v.(string); isExpr {
		return nil
	}
	h, ok := asFloat(v)
	if !ok || h <= 0 {
		return fmt.Errorf("horizon must be a positive number, got %v", v)
	}
	return nil
}

func validateOptimizeParams(params map[string]interface{}) error {
	v, ok := params["service_level"]
	if !ok {
		return nil
	}
	if _, isExpr := v.(string); isExpr {
		return nil
	}
	sl, ok := asFloat(v)
	if !ok || sl <= 0 || sl >= 1 {
		return fmt.Errorf("service_level must be in (0, 1), got %v", v)
	}
	return nil
}
