package tools

import (
	"context"
	"fmt"
	"math"
	"sort"

	sageflow "github.com/sageflow-ai/sageflow"
)

// Recommendation actions.
const (
	ActionOrderNow    = "ORDER_NOW"
	ActionReduceStock = "REDUCE_STOCK"
	ActionMaintain    = "MAINTAIN"
	ActionRaisePrice  = "RAISE_PRICE"
	ActionLowerPrice  = "LOWER_PRICE"
)

const (
	// defaultServiceLevel is the stockout protection target; 0.95 maps to
	// z = 1.645.
	defaultServiceLevel = 0.95
	// defaultOverstockMargin flags on-hand stock above EOQ times this
	// factor for reduction.
	defaultOverstockMargin = 1.5
	// periodsPerYear annualizes the monthly demand history.
	periodsPerYear = 12.0
)

// EOQ computes the economic order quantity sqrt(2*D*S/H). Zero demand
// degenerates to zero; non-positive costs are an error.
func EOQ(annualDemand, orderCost, holdingCost float64) (float64, error) {
	if orderCost <= 0 || holdingCost <= 0 {
		return 0, fmt.Errorf("order and holding costs must be positive (order: %v, holding: %v)", orderCost, holdingCost)
	}
	if annualDemand < 0 {
		return 0, fmt.Errorf("annual demand cannot be negative: %v", annualDemand)
	}
	if annualDemand == 0 {
		return 0, nil
	}
	return math.Sqrt(2 * annualDemand * orderCost / holdingCost), nil
}

// TotalAnnualCost is the ordering-plus-holding cost at order quantity q.
func TotalAnnualCost(annualDemand, orderCost, holdingCost, q float64) float64 {
	if q <= 0 {
		return 0
	}
	return annualDemand/q*orderCost + q/2*holdingCost
}

// SafetyStock computes z * sigma * sqrt(leadTime), with leadTime in the
// same period unit sigma was measured over.
func SafetyStock(z, sigma, leadTime float64) float64 {
	if sigma < 0 || leadTime < 0 {
		return 0
	}
	return z * sigma * math.Sqrt(leadTime)
}

// ReorderPoint computes demandRate * leadTime + safetyStock.
func ReorderPoint(demandRate, leadTime, safetyStock float64) float64 {
	return demandRate*leadTime + safetyStock
}

// zScore maps a service level to its one-sided normal quantile. Fixed table;
// intermediate levels round down to the nearest entry.
func zScore(serviceLevel float64) float64 {
	levels := []struct {
		level float64
		z     float64
	}{
		{0.99, 2.326},
		{0.98, 2.054},
		{0.95, 1.645},
		{0.90, 1.282},
		{0.85, 1.036},
		{0.80, 0.842},
	}
	for _, entry := range levels {
		if serviceLevel >= entry.level {
			return entry.z
		}
	}
	return 0.674 // 75%
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

// OptimizeInventory computes EOQ, safety stock and reorder points per SKU
// and emits ORDER_NOW / REDUCE_STOCK / MAINTAIN recommendations. It prefers
// forecast-derived demand when a forecast ran earlier in the plan, falling
// back to the trailing demand history.
func OptimizeInventory() sageflow.ToolFunc {
	return func(_ context.Context, bc sageflow.ContextReader, params map[string]interface{}) (map[string]interface{}, error) {
		metrics, terr := metricsFrom(bc, ToolOptimizeInventory, KeyInventoryMetrics)
		if terr != nil {
			return nil, terr
		}
		items, ok := metrics["items"].([]interface{})
		if !ok {
			return nil, sageflow.NewInputMissingError(ToolOptimizeInventory, "inventory items")
		}
		historyRaw, _ := metrics["demand_history"].(map[string]interface{})
		forecastRaw := forecastByContext(bc)

		serviceLevel := defaultServiceLevel
		if v, ok := params["service_level"]; ok {
			if sl, ok := asFloat(v); ok && sl > 0 && sl < 1 {
				serviceLevel = sl
			}
		}
		overstockMargin := defaultOverstockMargin
		if v, ok := params["overstock_margin"]; ok {
			if m, ok := asFloat(v); ok && m > 1 {
				overstockMargin = m
			}
		}
		z := zScore(serviceLevel)

		recommendations := make([]interface{}, 0, len(items))
		for _, raw := range items {
			item, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			sku, _ := item["sku"].(string)
			rec, err := recommendForItem(sku, item, historyRaw, forecastRaw, z, overstockMargin)
			if err != nil {
				return nil, err
			}
			recommendations = append(recommendations, rec)
		}

		sort.SliceStable(recommendations, func(i, j int) bool {
			a := recommendations[i].(map[string]interface{})["item"].(string)
			b := recommendations[j].(map[string]interface{})["item"].(string)
			return a < b
		})
		return map[string]interface{}{KeyInventoryRecommendations: recommendations}, nil
	}
}

func forecastByContext(bc sageflow.ContextReader) map[string]interface{} {
	v, ok := bc.Get(KeyDemandForecast)
	if !ok {
		return nil
	}
	forecast, _ := v.(map[string]interface{})
	return forecast
}

func recommendForItem(sku string, item map[string]interface{}, historyRaw, forecastRaw map[string]interface{}, z, overstockMargin float64) (map[string]interface{}, error) {
	onHand, _ := numField(item, "on_hand")

	var history []float64
	if historyRaw != nil {
		history = floatsOf(historyRaw[sku])
	}
	demandRate := forecastDemandRate(forecastRaw, sku)
	if demandRate == 0 {
		demandRate = averageOf(history)
	}

	if demandRate == 0 {
		return map[string]interface{}{
			"item":             sku,
			"action":           ActionMaintain,
			"quantity":         0.0,
			"rationale":        "insufficient data: no recorded demand for this item",
			"estimated_impact": 0.0,
		}, nil
	}

	orderCost, hasOrderCost := numField(item, "order_cost")
	holdingCost, hasHoldingCost := numField(item, "holding_cost")
	if !hasOrderCost || !hasHoldingCost {
		return nil, sageflow.NewInputMissingError(ToolOptimizeInventory,
			fmt.Sprintf("cost inputs for %s (order_cost, holding_cost)", sku))
	}

	annualDemand := demandRate * periodsPerYear
	eoq, err := EOQ(annualDemand, orderCost, holdingCost)
	if err != nil {
		return nil, sageflow.NewInputMissingError(ToolOptimizeInventory, fmt.Sprintf("%s: %v", sku, err))
	}

	leadTimeDays, _ := numField(item, "lead_time_days")
	leadTimePeriods := leadTimeDays / 30.0
	sigma := stddev(history)
	ss := SafetyStock(z, sigma, leadTimePeriods)
	rop := ReorderPoint(demandRate, leadTimePeriods, ss)

	action := ActionMaintain
	quantity := 0.0
	rationale := fmt.Sprintf("on-hand %.0f sits between reorder point %.1f and overstock bound %.1f", onHand, rop, eoq*overstockMargin)
	impact := 0.0

	switch {
	case onHand <= rop:
		action = ActionOrderNow
		quantity = math.Round(eoq)
		rationale = fmt.Sprintf("on-hand %.0f is at or below reorder point %.1f (safety stock %.1f)", onHand, rop, ss)
		impact = round2(demandRate * leadTimePeriods) // Demand at risk during one lead time
	case onHand > eoq*overstockMargin:
		action = ActionReduceStock
		quantity = math.Round(onHand - eoq)
		holdingSavings := (onHand - eoq) * holdingCost
		rationale = fmt.Sprintf("on-hand %.0f exceeds EOQ %.1f by more than %.0f%%", onHand, eoq, (overstockMargin-1)*100)
		impact = round2(holdingSavings)
	}

	return map[string]interface{}{
		"item":             sku,
		"action":           action,
		"quantity":         quantity,
		"rationale":        rationale,
		"estimated_impact": impact,
		"eoq":              round2(eoq),
		"safety_stock":     round2(ss),
		"reorder_point":    round2(rop),
	}, nil
}

// forecastDemandRate averages the predicted points of an upstream forecast,
// returning 0 when no usable forecast exists for the SKU.
func forecastDemandRate(forecastRaw map[string]interface{}, sku string) float64 {
	if forecastRaw == nil {
		return 0
	}
	series, ok := forecastRaw[sku].(map[string]interface{})
	if !ok {
		return 0
	}
	points, ok := series["points"].([]interface{})
	if !ok || len(points) == 0 {
		return 0
	}
	var sum float64
	counted := 0
	for _, raw := range points {
		point, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if predicted, ok := asFloat(point["predicted"]); ok {
			sum += predicted
			counted++
		}
	}
	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}

func averageOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// OptimizePricing flags SKUs whose revenue share is out of line with their
// unit share: items selling many units for little revenue are raise-price
// candidates, items priced far above the blended average with weak volume
// are lower-price candidates.
func OptimizePricing() sageflow.ToolFunc {
	return func(_ context.Context, bc sageflow.ContextReader, _ map[string]interface{}) (map[string]interface{}, error) {
		metrics, terr := metricsFrom(bc, ToolOptimizePricing, KeyRevenueMetrics)
		if terr != nil {
			return nil, terr
		}
		revenueBySKU, ok := metrics["revenue_by_sku"].(map[string]interface{})
		if !ok {
			return nil, sageflow.NewInputMissingError(ToolOptimizePricing, "revenue_by_sku")
		}
		quantityBySKU, _ := metrics["quantity_by_sku"].(map[string]interface{})
		totalRevenue, _ := asFloat(metrics["total_revenue"])
		totalQuantity, _ := asFloat(metrics["total_quantity"])
		if totalRevenue <= 0 || totalQuantity <= 0 {
			return map[string]interface{}{KeyPricingRecommendations: []interface{}{}}, nil
		}
		blendedPrice := totalRevenue / totalQuantity

		skus := make([]string, 0, len(revenueBySKU))
		for sku := range revenueBySKU {
			skus = append(skus, sku)
		}
		sort.Strings(skus)

		recommendations := make([]interface{}, 0, len(skus))
		for _, sku := range skus {
			revenue, _ := asFloat(revenueBySKU[sku])
			quantity := 0.0
			if quantityBySKU != nil {
				quantity, _ = asFloat(quantityBySKU[sku])
			}
			if quantity <= 0 {
				continue
			}
			unitPrice := revenue / quantity
			revenueShare := revenue / totalRevenue
			unitShare := quantity / totalQuantity

			action := ActionMaintain
			rationale := fmt.Sprintf("unit price %.2f tracks revenue share %.0f%% against unit share %.0f%%", unitPrice, revenueShare*100, unitShare*100)
			switch {
			case revenueShare < unitShare*0.8:
				action = ActionRaisePrice
				rationale = fmt.Sprintf("unit price %.2f underweights revenue: %.0f%% of units earn only %.0f%% of revenue", unitPrice, unitShare*100, revenueShare*100)
			case revenueShare > unitShare*1.5 && unitPrice > blendedPrice*2:
				action = ActionLowerPrice
				rationale = fmt.Sprintf("unit price %.2f is more than twice the blended price %.2f with outsized revenue share", unitPrice, blendedPrice)
			}

			recommendations = append(recommendations, map[string]interface{}{
				"item":             sku,
				"action":           action,
				"unit_price":       round2(unitPrice),
				"rationale":        rationale,
				"estimated_impact": round2(revenue * 0.05), // Rough 5% revenue lever
			})
		}
		return map[string]interface{}{KeyPricingRecommendations: recommendations}, nil
	}
}
