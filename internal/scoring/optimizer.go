package scoring

import "gonum.org/v1/gonum/stat"

// LabeledSample is one historical (probability, outcome) pair used to
// optimize per-pair thresholds offline.
type LabeledSample struct {
	Probability float64
	Won         bool // true if the trade that would have been taken was profitable
}

// OptimizeThresholds runs an F1-maximizing grid search over candidate buy
// thresholds (holding sell as 1-buy) bounded at [minThreshold,
// maxThreshold], returning the best-scoring pair.
func OptimizeThresholds(samples []LabeledSample, step float64) Thresholds {
	if len(samples) == 0 {
		return DefaultThresholds()
	}
	if step <= 0 {
		step = 0.01
	}

	best := DefaultThresholds()
	bestF1 := -1.0
	for buy := MinThreshold; buy <= MaxThreshold; buy += step {
		f1 := f1AtThreshold(samples, buy)
		if f1 > bestF1 {
			bestF1 = f1
			best = Thresholds{Buy: buy, Sell: 1 - buy}
		}
	}
	return best.Clamp()
}

func f1AtThreshold(samples []LabeledSample, buy float64) float64 {
	var tp, fp, fn float64
	for _, s := range samples {
		predicted := s.Probability >= buy
		switch {
		case predicted && s.Won:
			tp++
		case predicted && !s.Won:
			fp++
		case !predicted && s.Won:
			fn++
		}
	}
	if tp == 0 {
		return 0
	}
	precision := tp / (tp + fp)
	recall := tp / (tp + fn)
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

// ProbabilityMean summarizes a labeled sample set's average probability,
// used by diagnostics endpoints.
func ProbabilityMean(samples []LabeledSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Probability
	}
	return stat.Mean(values, nil)
}
