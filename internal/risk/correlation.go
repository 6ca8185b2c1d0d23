package risk

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// CorrelationPair is a high-correlation relationship between two pairs'
// return series, used to derive the correlation-cluster load the
// CorrelationGate checks.
type CorrelationPair struct {
	PairA       string
	PairB       string
	Correlation float64
}

// ReturnSeries maps an instrument symbol to its recent return series (same
// length and alignment across symbols).
type ReturnSeries map[string][]float64

// HighCorrelationPairs returns every pair of symbols whose Pearson
// correlation exceeds threshold, grounded on the same stat.Correlation
// call the portfolio optimizer uses for equities.
func HighCorrelationPairs(returns ReturnSeries, threshold float64) []CorrelationPair {
	symbols := make([]string, 0, len(returns))
	for s := range returns {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var pairs []CorrelationPair
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			a, b := returns[symbols[i]], returns[symbols[j]]
			if len(a) == 0 || len(a) != len(b) {
				continue
			}
			corr := stat.Correlation(a, b, nil)
			if abs(corr) >= threshold {
				pairs = append(pairs, CorrelationPair{PairA: symbols[i], PairB: symbols[j], Correlation: corr})
			}
		}
	}
	return pairs
}

// ClusterLoad sums the open-position exposure pct for every symbol that
// participates in at least one high-correlation pair, the load the
// CorrelationGate compares against its configured limit.
func ClusterLoad(exposurePct map[string]float64, pairs []CorrelationPair) float64 {
	clustered := make(map[string]bool)
	for _, p := range pairs {
		clustered[p.PairA] = true
		clustered[p.PairB] = true
	}
	load := 0.0
	for symbol := range clustered {
		load += exposurePct[symbol]
	}
	return load
}

// HistoricalVaR computes a simple historical-simulation Value-at-Risk: the
// loss at the given confidence percentile of the empirical return
// distribution, expressed as a positive percentage.
func HistoricalVaR(returnsPct []float64, confidence float64) float64 {
	if len(returnsPct) == 0 {
		return 0
	}
	sorted := make([]float64, len(returnsPct))
	copy(sorted, returnsPct)
	sort.Float64s(sorted)

	idx := int((1 - confidence) * float64(len(sorted)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	loss := sorted[idx]
	if loss > 0 {
		return 0
	}
	return -loss
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
