package analysis

import (
	"context"
	"time"
)

// MacroSeries identifies one of the macro indicators the economic analyzer
// consumes.
type MacroSeries string

const (
	SeriesGDP             MacroSeries = "gdp"
	SeriesInflation       MacroSeries = "inflation"
	SeriesInterestRate    MacroSeries = "interest_rate"
	SeriesUnemployment    MacroSeries = "unemployment"
	SeriesRetailSales     MacroSeries = "retail_sales"
	SeriesManufacturing   MacroSeries = "manufacturing"
)

// MacroPoint is one observation of a macro series for a currency.
type MacroPoint struct {
	Series   MacroSeries
	Currency string
	Value    float64
	Previous float64
	Forecast float64
	AsOf     time.Time
}

// MacroSource is the narrow read path the economic analyzer needs; backed
// by a configured macro-data provider, or absent entirely (synthetic
// fallback then applies).
type MacroSource interface {
	FetchMacro(ctx context.Context, currency string) ([]MacroPoint, error)
}

// impactFn maps a macro point's surprise (value vs forecast) to a
// directional score contribution in [-100,100].
type impactFn func(p MacroPoint) float64

var impactFns = map[MacroSeries]impactFn{
	SeriesGDP:           surpriseImpact(8.0),
	SeriesInflation:     inverseSurpriseImpact(6.0),
	SeriesInterestRate:  surpriseImpact(10.0),
	SeriesUnemployment:  inverseSurpriseImpact(7.0),
	SeriesRetailSales:   surpriseImpact(5.0),
	SeriesManufacturing: surpriseImpact(5.0),
}

// defaultSeriesWeights weights each series contribution into the aggregate.
var defaultSeriesWeights = map[MacroSeries]float64{
	SeriesGDP:           0.25,
	SeriesInflation:     0.20,
	SeriesInterestRate:  0.25,
	SeriesUnemployment:  0.15,
	SeriesRetailSales:   0.10,
	SeriesManufacturing: 0.05,
}

// surpriseImpact scales a positive value-over-forecast surprise into a
// positive (bullish for the currency) score.
func surpriseImpact(sensitivity float64) impactFn {
	return func(p MacroPoint) float64 {
		if p.Forecast == 0 {
			return 0
		}
		surprise := (p.Value - p.Forecast) / (abs(p.Forecast) + 1e-9)
		return clamp(surprise*100*sensitivity, -100, 100)
	}
}

// inverseSurpriseImpact is the mirror: a beat is bearish (e.g. inflation,
// unemployment surprises to the upside weaken the currency outlook).
func inverseSurpriseImpact(sensitivity float64) impactFn {
	fn := surpriseImpact(sensitivity)
	return func(p MacroPoint) float64 { return -fn(p) }
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// EconomicAnalyzer fetches macro series for a currency and computes a
// weighted-sum impact score clipped to [-100,100].
type EconomicAnalyzer struct {
	source  MacroSource
	weights map[MacroSeries]float64
	cache   *ttlCache
}

func NewEconomicAnalyzer(source MacroSource, weights map[MacroSeries]float64) *EconomicAnalyzer {
	if weights == nil {
		weights = defaultSeriesWeights
	}
	return &EconomicAnalyzer{source: source, weights: weights, cache: newTTLCache(time.Hour)}
}

// Analyze computes the economic analysis for a currency. When no macro
// source is configured, it returns a synthetic neutral result rather than
// erroring, matching the spec's synthetic-fallback rule for missing
// source keys.
func (a *EconomicAnalyzer) Analyze(ctx context.Context, currency string, now time.Time) (Analysis, error) {
	if cached, ok := a.cache.get(currency, now); ok {
		return cached, nil
	}

	if a.source == nil {
		result := syntheticEconomic(currency, now)
		a.cache.put(currency, result, now)
		return result, nil
	}

	points, err := a.source.FetchMacro(ctx, currency)
	if err != nil || len(points) == 0 {
		result := syntheticEconomic(currency, now)
		a.cache.put(currency, result, now)
		return result, nil
	}

	weightedSum := 0.0
	totalWeight := 0.0
	details := make(map[string]interface{}, len(points))
	for _, p := range points {
		fn, ok := impactFns[p.Series]
		if !ok {
			continue
		}
		w := a.weights[p.Series]
		impact := fn(p)
		weightedSum += impact * w
		totalWeight += w
		details[string(p.Series)] = impact
	}

	score := 0.0
	if totalWeight > 0 {
		score = clamp(weightedSum/totalWeight*2, -100, 100)
	}

	result := Analysis{
		Kind:       KindEconomic,
		Score:      score,
		Direction:  directionFromScore(score, 8),
		Confidence: clamp(abs(score), 0, 100),
		Source:     "macro",
		Details:    details,
		ComputedAt: now,
	}
	a.cache.put(currency, result, now)
	return result, nil
}

func syntheticEconomic(currency string, now time.Time) Analysis {
	return Analysis{
		Kind:       KindEconomic,
		Score:      0,
		Direction:  "NEUTRAL",
		Confidence: 0,
		Synthetic:  true,
		Source:     "synthetic*",
		Details:    map[string]interface{}{"currency": currency},
		ComputedAt: now,
	}
}
