package tools

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	sageflow "github.com/sageflow-ai/sageflow"
)

func TestEOQ_TextbookValues(t *testing.T) {
	eoq, err := EOQ(10000, 50, 2)
	if err != nil {
		t.Fatalf("EOQ failed: %v", err)
	}
	if math.Abs(eoq-707.11) > 0.01 {
		t.Errorf("EOQ = %v, want 707.11", eoq)
	}

	cost := TotalAnnualCost(10000, 50, 2, eoq)
	if math.Abs(cost-1414.21) > 0.01 {
		t.Errorf("TotalAnnualCost = %v, want 1414.21", cost)
	}
}

func TestEOQ_ZeroDemandDegrades(t *testing.T) {
	eoq, err := EOQ(0, 50, 2)
	if err != nil {
		t.Fatalf("EOQ failed: %v", err)
	}
	if eoq != 0 {
		t.Errorf("EOQ = %v, want 0", eoq)
	}
}

func TestEOQ_RejectsBadCosts(t *testing.T) {
	if _, err := EOQ(1000, -5, 2); err == nil {
		t.Error("negative order cost accepted")
	}
	if _, err := EOQ(1000, 50, 0); err == nil {
		t.Error("zero holding cost accepted")
	}
}

func TestSafetyStockAndReorderPoint(t *testing.T) {
	ss := SafetyStock(1.645, 10, 4)
	if math.Abs(ss-32.9) > 0.01 {
		t.Errorf("SafetyStock = %v, want 32.9", ss)
	}
	rop := ReorderPoint(100, 0.5, ss)
	if math.Abs(rop-82.9) > 0.01 {
		t.Errorf("ReorderPoint = %v, want 82.9", rop)
	}
}

func inventoryMetricsFixture() map[string]interface{} {
	return map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{
				"sku": "WIDGET-A", "on_hand": 20.0, "unit_cost": 8.0,
				"order_cost": 50.0, "holding_cost": 2.0, "lead_time_days": 9.0,
			},
			map[string]interface{}{
				"sku": "GADGET-B", "on_hand": 900.0, "unit_cost": 45.0,
				"order_cost": 60.0, "holding_cost": 9.0, "lead_time_days": 16.0,
			},
			map[string]interface{}{
				"sku": "TRINKET-C", "on_hand": 0.0, "unit_cost": 3.0,
				"order_cost": 40.0, "holding_cost": 1.0, "lead_time_days": 4.0,
			},
		},
		"demand_history": map[string]interface{}{
			"WIDGET-A":  []interface{}{120.0, 135.0, 150.0, 160.0, 170.0, 185.0},
			"GADGET-B":  []interface{}{40.0, 38.0, 42.0, 36.0, 44.0, 41.0},
			"TRINKET-C": []interface{}{0.0, 0.0, 0.0, 0.0, 0.0, 0.0},
		},
	}
}

func runOptimize(t *testing.T, metrics map[string]interface{}, params map[string]interface{}) []interface{} {
	t.Helper()
	bc := sageflow.NewBusinessContext(map[string]interface{}{KeyInventoryMetrics: metrics})
	payload, err := OptimizeInventory()(context.Background(), bc, params)
	if err != nil {
		t.Fatalf("OptimizeInventory failed: %v", err)
	}
	recs, ok := payload[KeyInventoryRecommendations].([]interface{})
	if !ok {
		t.Fatalf("unexpected payload: %v", payload)
	}
	return recs
}

func findRecommendation(t *testing.T, recs []interface{}, sku string) map[string]interface{} {
	t.Helper()
	for _, raw := range recs {
		rec := raw.(map[string]interface{})
		if rec["item"] == sku {
			return rec
		}
	}
	t.Fatalf("no recommendation for %s in %v", sku, recs)
	return nil
}

func TestOptimizeInventory_Actions(t *testing.T) {
	recs := runOptimize(t, inventoryMetricsFixture(), nil)

	// Low stock against steady demand reorders.
	widget := findRecommendation(t, recs, "WIDGET-A")
	if widget["action"] != ActionOrderNow {
		t.Errorf("WIDGET-A action = %v, want ORDER_NOW", widget["action"])
	}
	if qty, _ := widget["quantity"].(float64); qty <= 0 {
		t.Errorf("ORDER_NOW without a quantity: %v", widget)
	}

	// Heavy overstock against modest demand reduces.
	gadget := findRecommendation(t, recs, "GADGET-B")
	if gadget["action"] != ActionReduceStock {
		t.Errorf("GADGET-B action = %v, want REDUCE_STOCK", gadget["action"])
	}
}

func TestOptimizeInventory_ZeroDemandMaintains(t *testing.T) {
	recs := runOptimize(t, inventoryMetricsFixture(), nil)

	trinket := findRecommendation(t, recs, "TRINKET-C")
	if trinket["action"] != ActionMaintain {
		t.Errorf("TRINKET-C action = %v, want MAINTAIN", trinket["action"])
	}
	rationale, _ := trinket["rationale"].(string)
	if !strings.HasPrefix(rationale, "insufficient data") {
		t.Errorf("expected insufficient-data rationale, got %q", rationale)
	}
}

func TestOptimizeInventory_MissingCostsRejected(t *testing.T) {
	metrics := map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"sku": "WIDGET-A", "on_hand": 20.0, "unit_cost": 8.0},
		},
		"demand_history": map[string]interface{}{
			"WIDGET-A": []interface{}{120.0, 135.0, 150.0},
		},
	}
	bc := sageflow.NewBusinessContext(map[string]interface{}{KeyInventoryMetrics: metrics})

	_, err := OptimizeInventory()(context.Background(), bc, nil)
	if err == nil {
		t.Fatal("expected input-missing error")
	}
	var terr *sageflow.ToolError
	if !errors.As(err, &terr) || terr.Kind != sageflow.ToolErrorInputMissing {
		t.Errorf("expected INPUT_MISSING, got %v", err)
	}
}

func TestOptimizeInventory_PrefersForecastDemand(t *testing.T) {
	metrics := inventoryMetricsFixture()
	bc := sageflow.NewBusinessContext(map[string]interface{}{
		KeyInventoryMetrics: metrics,
		KeyDemandForecast: map[string]interface{}{
			"GADGET-B": map[string]interface{}{
				"model": "moving_average",
				"points": []interface{}{
					map[string]interface{}{"period": 1.0, "predicted": 1800.0},
					map[string]interface{}{"period": 2.0, "predicted": 1800.0},
				},
			},
		},
	})

	payload, err := OptimizeInventory()(context.Background(), bc, nil)
	if err != nil {
		t.Fatalf("OptimizeInventory failed: %v", err)
	}
	recs := payload[KeyInventoryRecommendations].([]interface{})
	gadget := findRecommendation(t, recs, "GADGET-B")

	// The history says GADGET-B is overstocked, but the forecast demand of
	// 1800/period pushes the reorder point past the 900 on hand.
	if gadget["action"] != ActionOrderNow {
		t.Errorf("GADGET-B action = %v, want ORDER_NOW under forecast demand", gadget["action"])
	}
}

func TestOptimizePricing_FlagsUnderpricedSKU(t *testing.T) {
	metrics := map[string]interface{}{
		"total_revenue":  10000.0,
		"total_quantity": 1000.0,
		"revenue_by_sku": map[string]interface{}{
			"CHEAP-D": 1000.0,
			"FAIR-E":  9000.0,
		},
		"quantity_by_sku": map[string]interface{}{
			"CHEAP-D": 600.0,
			"FAIR-E":  400.0,
		},
	}
	bc := sageflow.NewBusinessContext(map[string]interface{}{KeyRevenueMetrics: metrics})

	payload, err := OptimizePricing()(context.Background(), bc, nil)
	if err != nil {
		t.Fatalf("OptimizePricing failed: %v", err)
	}
	recs := payload[KeyPricingRecommendations].([]interface{})

	cheap := findRecommendation(t, recs, "CHEAP-D")
	if cheap["action"] != ActionRaisePrice {
		t.Errorf("CHEAP-D action = %v, want RAISE_PRICE", cheap["action"])
	}
}
