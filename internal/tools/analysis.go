package tools

import (
	"context"
	"math"
	"sort"

	sageflow "github.com/sageflow-ai/sageflow"
)

// AnalyzeInventory summarizes stock levels and valuation, and attaches the
// per-SKU demand history the forecast and optimization tiers consume.
func AnalyzeInventory(store sageflow.DataStore) sageflow.ToolFunc {
	return func(ctx context.Context, bc sageflow.ContextReader, _ map[string]interface{}) (map[string]interface{}, error) {
		tenant, terr := tenantFrom(bc, ToolAnalyzeInventory)
		if terr != nil {
			return nil, terr
		}
		rows, err := store.Records(ctx, tenant, sageflow.DataKindInventory)
		if err != nil {
			return nil, sageflow.NewInputMissingError(ToolAnalyzeInventory, "inventory records: "+err.Error())
		}
		orders, err := store.Records(ctx, tenant, sageflow.DataKindOrders)
		if err != nil {
			return nil, sageflow.NewInputMissingError(ToolAnalyzeInventory, "order records: "+err.Error())
		}

		var totalUnits, totalValue float64
		outOfStock := 0
		items := make([]interface{}, 0, len(rows))
		for _, rec := range rows {
			sku, _ := stringField(rec, "sku")
			onHand, _ := numField(rec, "on_hand")
			unitCost, _ := numField(rec, "unit_cost")
			totalUnits += onHand
			totalValue += onHand * unitCost
			if onHand <= 0 {
				outOfStock++
			}
			item := map[string]interface{}{
				"sku":       sku,
				"on_hand":   onHand,
				"unit_cost": unitCost,
			}
			for _, field := range []string{"order_cost", "holding_cost", "lead_time_days"} {
				if v, ok := numField(rec, field); ok {
					item[field] = v
				}
			}
			items = append(items, item)
		}

		outOfStockPct := 0.0
		if len(rows) > 0 {
			outOfStockPct = float64(outOfStock) / float64(len(rows)) * 100
		}

		metrics := map[string]interface{}{
			"total_skus":       float64(len(rows)),
			"total_units":      totalUnits,
			"total_value":      totalValue,
			"out_of_stock":     float64(outOfStock),
			"out_of_stock_pct": round2(outOfStockPct),
			"items":            items,
			"demand_history":   demandHistory(orders),
		}
		return map[string]interface{}{KeyInventoryMetrics: metrics}, nil
	}
}

// demandHistory groups order quantities per SKU into period-ordered series.
// Periods are YYYY-MM strings, so lexicographic order is chronological.
func demandHistory(orders []sageflow.Record) map[string]interface{} {
	type periodQty struct {
		period string
		qty    float64
	}
	bySKU := make(map[string][]periodQty)
	for _, rec := range orders {
		sku, ok := stringField(rec, "sku")
		if !ok {
			continue
		}
		period, _ := stringField(rec, "period")
		qty, _ := numField(rec, "quantity")
		bySKU[sku] = append(bySKU[sku], periodQty{period: period, qty: qty})
	}

	history := make(map[string]interface{}, len(bySKU))
	for sku, entries := range bySKU {
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].period < entries[j].period })
		series := make([]float64, 0, len(entries))
		for _, e := range entries {
			series = append(series, e.qty)
		}
		history[sku] = interfacesOf(series)
	}
	return history
}

// AnalyzeRevenue summarizes order revenue: totals, averages and per-SKU and
// per-period breakdowns.
func AnalyzeRevenue(store sageflow.DataStore) sageflow.ToolFunc {
	return func(ctx context.Context, bc sageflow.ContextReader, _ map[string]interface{}) (map[string]interface{}, error) {
		tenant, terr := tenantFrom(bc, ToolAnalyzeRevenue)
		if terr != nil {
			return nil, terr
		}
		orders, err := store.Records(ctx, tenant, sageflow.DataKindOrders)
		if err != nil {
			return nil, sageflow.NewInputMissingError(ToolAnalyzeRevenue, "order records: "+err.Error())
		}

		var totalRevenue, totalQuantity float64
		byPeriod := make(map[string]float64)
		bySKU := make(map[string]interface{})
		qtyBySKU := make(map[string]float64)
		for _, rec := range orders {
			revenue, _ := numField(rec, "revenue")
			quantity, _ := numField(rec, "quantity")
			totalRevenue += revenue
			totalQuantity += quantity
			if period, ok := stringField(rec, "period"); ok {
				byPeriod[period] += revenue
			}
			if sku, ok := stringField(rec, "sku"); ok {
				prev, _ := asFloat(bySKU[sku])
				bySKU[sku] = prev + revenue
				qtyBySKU[sku] += quantity
			}
		}

		avgOrderValue := 0.0
		if len(orders) > 0 {
			avgOrderValue = totalRevenue / float64(len(orders))
		}

		periodRevenue := make(map[string]interface{}, len(byPeriod))
		for period, revenue := range byPeriod {
			periodRevenue[period] = revenue
		}
		skuQuantity := make(map[string]interface{}, len(qtyBySKU))
		for sku, qty := range qtyBySKU {
			skuQuantity[sku] = qty
		}

		metrics := map[string]interface{}{
			"total_revenue":       round2(totalRevenue),
			"order_count":         float64(len(orders)),
			"total_quantity":      totalQuantity,
			"average_order_value": round2(avgOrderValue),
			"revenue_by_period":   periodRevenue,
			"revenue_by_sku":      bySKU,
			"quantity_by_sku":     skuQuantity,
		}
		return map[string]interface{}{KeyRevenueMetrics: metrics}, nil
	}
}

// AnalyzeCustomers summarizes customer activity and churn.
func AnalyzeCustomers(store sageflow.DataStore) sageflow.ToolFunc {
	return func(ctx context.Context, bc sageflow.ContextReader, _ map[string]interface{}) (map[string]interface{}, error) {
		tenant, terr := tenantFrom(bc, ToolAnalyzeCustomers)
		if terr != nil {
			return nil, terr
		}
		customers, err := store.Records(ctx, tenant, sageflow.DataKindCustomers)
		if err != nil {
			return nil, sageflow.NewInputMissingError(ToolAnalyzeCustomers, "customer records: "+err.Error())
		}

		active := 0
		repeat := 0
		for _, rec := range customers {
			if isActive, ok := rec["active"].(bool); ok && isActive {
				active++
			}
			if orders, ok := numField(rec, "orders"); ok && orders > 1 {
				repeat++
			}
		}

		total := len(customers)
		churnRate, repeatRate := 0.0, 0.0
		if total > 0 {
			churnRate = float64(total-active) / float64(total) * 100
			repeatRate = float64(repeat) / float64(total) * 100
		}

		metrics := map[string]interface{}{
			"total_customers":   float64(total),
			"active_customers":  float64(active),
			"churned_customers": float64(total - active),
			"churn_rate_pct":    round2(churnRate),
			"repeat_rate_pct":   round2(repeatRate),
		}
		return map[string]interface{}{KeyCustomerMetrics: metrics}, nil
	}
}

// BusinessHealth folds stock coverage, revenue momentum and customer
// retention into a single 0-100 score.
func BusinessHealth(store sageflow.DataStore) sageflow.ToolFunc {
	return func(ctx context.Context, bc sageflow.ContextReader, _ map[string]interface{}) (map[string]interface{}, error) {
		tenant, terr := tenantFrom(bc, ToolBusinessHealth)
		if terr != nil {
			return nil, terr
		}
		inventory, err := store.Records(ctx, tenant, sageflow.DataKindInventory)
		if err != nil {
			return nil, sageflow.NewInputMissingError(ToolBusinessHealth, "inventory records: "+err.Error())
		}
		orders, err := store.Records(ctx, tenant, sageflow.DataKindOrders)
		if err != nil {
			return nil, sageflow.NewInputMissingError(ToolBusinessHealth, "order records: "+err.Error())
		}
		customers, err := store.Records(ctx, tenant, sageflow.DataKindCustomers)
		if err != nil {
			return nil, sageflow.NewInputMissingError(ToolBusinessHealth, "customer records: "+err.Error())
		}

		stockScore := 100.0
		if len(inventory) > 0 {
			outOfStock := 0
			for _, rec := range inventory {
				if onHand, _ := numField(rec, "on_hand"); onHand <= 0 {
					outOfStock++
				}
			}
			stockScore = 100 * (1 - float64(outOfStock)/float64(len(inventory)))
		}

		retentionScore := 100.0
		if len(customers) > 0 {
			active := 0
			for _, rec := range customers {
				if isActive, ok := rec["active"].(bool); ok && isActive {
					active++
				}
			}
			retentionScore = 100 * float64(active) / float64(len(customers))
		}

		momentumScore := revenueMomentum(orders)

		score := 0.4*stockScore + 0.3*retentionScore + 0.3*momentumScore
		status := "healthy"
		switch {
		case score < 40:
			status = "critical"
		case score < 70:
			status = "attention"
		}

		metrics := map[string]interface{}{
			"health_score":    round2(score),
			"status":          status,
			"stock_score":     round2(stockScore),
			"retention_score": round2(retentionScore),
			"momentum_score":  round2(momentumScore),
		}
		return map[string]interface{}{KeyHealthMetrics: metrics}, nil
	}
}

// revenueMomentum compares the most recent period's revenue to the trailing
// average. Flat revenue scores 50; doubling scores 100; halving scores 25.
func revenueMomentum(orders []sageflow.Record) float64 {
	byPeriod := make(map[string]float64)
	for _, rec := range orders {
		period, ok := stringField(rec, "period")
		if !ok {
			continue
		}
		revenue, _ := numField(rec, "revenue")
		byPeriod[period] += revenue
	}
	if len(byPeriod) < 2 {
		return 50
	}

	periods := make([]string, 0, len(byPeriod))
	for p := range byPeriod {
		periods = append(periods, p)
	}
	sort.Strings(periods)

	latest := byPeriod[periods[len(periods)-1]]
	var trailing float64
	for _, p := range periods[:len(periods)-1] {
		trailing += byPeriod[p]
	}
	trailing /= float64(len(periods) - 1)
	if trailing <= 0 {
		return 50
	}

	ratio := latest / trailing
	score := 50 * ratio
	return math.Max(0, math.Min(100, score))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
