package tools

import (
	"context"
	"math"
	"sort"

	sageflow "github.com/sageflow-ai/sageflow"
)

// DefaultHorizon is the number of future periods projected when the caller
// supplies no horizon parameter.
const DefaultHorizon = 6

// forecastModel projects a demand series forward. Implementations must be
// deterministic: the same history always yields the same projection.
type forecastModel interface {
	Name() string
	Project(history []float64, horizon int) []float64
}

// movingAverageModel projects the mean of the last window observations,
// held flat over the horizon.
type movingAverageModel struct {
	window int
}

func (m movingAverageModel) Name() string { return "moving_average" }

func (m movingAverageModel) Project(history []float64, horizon int) []float64 {
	window := m.window
	if window <= 0 || window > len(history) {
		window = len(history)
	}
	var sum float64
	for _, v := range history[len(history)-window:] {
		sum += v
	}
	level := sum / float64(window)

	out := make([]float64, horizon)
	for i := range out {
		out[i] = math.Max(0, level)
	}
	return out
}

// linearTrendModel fits a least-squares line through the history and
// extrapolates it.
type linearTrendModel struct{}

func (linearTrendModel) Name() string { return "linear_trend" }

func (linearTrendModel) Project(history []float64, horizon int) []float64 {
	n := float64(len(history))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range history {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	slope := 0.0
	if denom != 0 {
		slope = (n*sumXY - sumX*sumY) / denom
	}
	intercept := (sumY - slope*sumX) / n

	out := make([]float64, horizon)
	for i := range out {
		x := n + float64(i)
		out[i] = math.Max(0, intercept+slope*x)
	}
	return out
}

// candidateModels is the fixed set auto-select chooses from. Order matters:
// ties in backtest error resolve to the earlier model.
func candidateModels() []forecastModel {
	return []forecastModel{
		movingAverageModel{window: 3},
		linearTrendModel{},
	}
}

// backtestTail is the held-out window used to score models: the last
// min(horizon, len/4, 6) observations, at least one.
func backtestTail(historyLen, horizon int) int {
	tail := horizon
	if quarter := historyLen / 4; quarter < tail {
		tail = quarter
	}
	if tail > 6 {
		tail = 6
	}
	if tail < 1 {
		tail = 1
	}
	return tail
}

// meanAbsolutePercentageError scores a projection against actuals. Zero
// actuals are skipped; if every actual is zero the error is infinite so the
// model never wins on degenerate data.
func meanAbsolutePercentageError(actual, predicted []float64) float64 {
	var sum float64
	counted := 0
	for i := range actual {
		if actual[i] == 0 {
			continue
		}
		sum += math.Abs(actual[i]-predicted[i]) / math.Abs(actual[i])
		counted++
	}
	if counted == 0 {
		return math.Inf(1)
	}
	return sum / float64(counted)
}

// selectModel backtests every candidate over the held-out tail and returns
// the one with the lowest error, plus that error. Deterministic for a given
// history.
func selectModel(history []float64, horizon int) (forecastModel, float64) {
	models := candidateModels()
	tail := backtestTail(len(history), horizon)
	if len(history)-tail < 2 {
		return models[0], math.Inf(1)
	}

	train := history[:len(history)-tail]
	holdout := history[len(history)-tail:]

	best := models[0]
	bestErr := math.Inf(1)
	for _, model := range models {
		predicted := model.Project(train, tail)
		score := meanAbsolutePercentageError(holdout, predicted)
		if score < bestErr {
			best = model
			bestErr = score
		}
	}
	return best, bestErr
}

// confidenceBand returns the half-width of the prediction interval as a
// fraction of the point estimate. Short histories get the wide default
// band; twelve or more observations tighten it.
func confidenceBand(historyLen int) (band, confidence float64) {
	if historyLen >= 12 {
		return 0.10, 0.90
	}
	return 0.20, 0.80
}

// ForecastDemand projects per-SKU demand from the history the inventory
// analysis attached to the context. The horizon parameter sets the number
// of future periods; SKUs with too little history are reported with an
// insufficient-data marker instead of numbers.
func ForecastDemand() sageflow.ToolFunc {
	return func(_ context.Context, bc sageflow.ContextReader, params map[string]interface{}) (map[string]interface{}, error) {
		metrics, terr := metricsFrom(bc, ToolForecastDemand, KeyInventoryMetrics)
		if terr != nil {
			return nil, terr
		}
		historyRaw, ok := metrics["demand_history"].(map[string]interface{})
		if !ok {
			return nil, sageflow.NewInputMissingError(ToolForecastDemand, "demand_history")
		}

		horizon := DefaultHorizon
		if v, ok := params["horizon"]; ok {
			h, ok := asFloat(v)
			if !ok || h <= 0 {
				return nil, sageflow.NewComputeError(ToolForecastDemand, "horizon must be a positive number", nil)
			}
			horizon = int(h)
		}

		skus := make([]string, 0, len(historyRaw))
		for sku := range historyRaw {
			skus = append(skus, sku)
		}
		sort.Strings(skus)

		forecast := make(map[string]interface{}, len(skus))
		for _, sku := range skus {
			history := floatsOf(historyRaw[sku])
			forecast[sku] = forecastSeries(history, horizon)
		}
		return map[string]interface{}{KeyDemandForecast: forecast}, nil
	}
}

func forecastSeries(history []float64, horizon int) map[string]interface{} {
	if len(history) < 3 || allZero(history) {
		return map[string]interface{}{
			"model":  "none",
			"reason": "insufficient demand history",
			"points": []interface{}{},
		}
	}

	model, backtestErr := selectModel(history, horizon)
	projected := model.Project(history, horizon)
	band, confidence := confidenceBand(len(history))

	points := make([]interface{}, 0, horizon)
	for i, predicted := range projected {
		predicted = round2(predicted)
		points = append(points, map[string]interface{}{
			"period":     float64(i + 1),
			"predicted":  predicted,
			"lower":      round2(predicted * (1 - band)),
			"upper":      round2(predicted * (1 + band)),
			"confidence": confidence,
		})
	}

	out := map[string]interface{}{
		"model":  model.Name(),
		"points": points,
	}
	if !math.IsInf(backtestErr, 1) {
		out["backtest_mape"] = round2(backtestErr * 100)
	}
	return out
}

func allZero(values []float64) bool {
	for _, v := range values {
		if v != 0 {
			return false
		}
	}
	return true
}
