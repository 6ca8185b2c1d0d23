package analysis

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fxrunner/engine/internal/domain"
)

// BarSource is the narrow read path the technical analyzer needs from C1.
type BarSource interface {
	FetchBars(ctx context.Context, pair domain.Pair, tf domain.Timeframe, n int) ([]domain.Bar, error)
}

// TimeframeWeights maps a timeframe to its vote weight in the aggregate
// technical score. Weights need not sum to 1; they are normalized over the
// timeframes that actually produced a vote.
type TimeframeWeights map[domain.Timeframe]float64

func DefaultTimeframeWeights() TimeframeWeights {
	return TimeframeWeights{
		domain.M15: 0.15,
		domain.M30: 0.15,
		domain.H1:  0.30,
		domain.H4:  0.30,
		domain.D1:  0.10,
	}
}

// Regime is the volatility/trend posture inferred from recent bars.
type Regime string

const (
	RegimeTrending Regime = "trending"
	RegimeChoppy   Regime = "choppy"
	RegimeVolatile Regime = "volatile"
)

// TimeframeVote is one timeframe's directional read, retained for
// explainability.
type TimeframeVote struct {
	Timeframe domain.Timeframe
	Direction string
	Score     float64 // -100..100
	RSI       float64
	ATR       float64
}

// TechnicalResult extends Analysis with the structured fields the combiner
// and scorer need beyond the common shape.
type TechnicalResult struct {
	Analysis
	Votes          []TimeframeVote
	Regime         Regime
	RegimeSlope    float64
	Volatility     float64
	VolumePressure float64
	Divergence     float64
	Support        float64
	Resistance     float64
}

// TechnicalAnalyzer computes trend, volatility, volume pressure, divergence
// and regime from per-timeframe bars and casts a weighted directional vote.
type TechnicalAnalyzer struct {
	bars    BarSource
	weights TimeframeWeights
	cache   *ttlCache
}

// NewTechnicalAnalyzer constructs the analyzer with a short-lived cache,
// matching the spec's "technical: short" TTL guidance.
func NewTechnicalAnalyzer(bars BarSource, weights TimeframeWeights) *TechnicalAnalyzer {
	if weights == nil {
		weights = DefaultTimeframeWeights()
	}
	return &TechnicalAnalyzer{bars: bars, weights: weights, cache: newTTLCache(20 * time.Second)}
}

// Analyze computes the technical analysis for a pair across all configured
// timeframes, casting one directional vote per timeframe and combining them
// into an aggregate score in [-150,150].
func (a *TechnicalAnalyzer) Analyze(ctx context.Context, pair domain.Pair, now time.Time) (TechnicalResult, error) {
	key := pair.Symbol
	if cached, ok := a.cache.get(key, now); ok {
		return cached.Details["__full"].(TechnicalResult), nil
	}

	var votes []TimeframeVote
	weightedSum := 0.0
	totalWeight := 0.0
	var lastBars []domain.Bar
	var lastTf domain.Timeframe

	for tf, weight := range a.weights {
		bars, err := a.bars.FetchBars(ctx, pair, tf, 60)
		if err != nil || len(bars) < 15 {
			continue
		}
		vote := voteForTimeframe(tf, bars)
		votes = append(votes, vote)
		weightedSum += vote.Score * weight
		totalWeight += weight
		lastBars = bars
		lastTf = tf
	}

	if totalWeight == 0 {
		return TechnicalResult{}, fmt.Errorf("technical: no timeframe produced sufficient bars for %s", pair.Symbol)
	}

	aggregate := clamp((weightedSum/totalWeight)*1.5, -150, 150)
	direction := directionFromScore(aggregate, 10)

	regime, slope, vol := detectRegime(lastBars)
	volumePressure := volumePressureOf(lastBars)
	divergence := divergenceOf(votes)
	support, resistance := supportResistance(lastBars)

	result := TechnicalResult{
		Analysis: Analysis{
			Kind:       KindTechnical,
			Score:      aggregate,
			Direction:  direction,
			Confidence: clamp(math.Abs(aggregate)/1.5, 0, 100),
			Source:     string(lastTf),
			ComputedAt: now,
		},
		Votes:          votes,
		Regime:         regime,
		RegimeSlope:    slope,
		Volatility:     vol,
		VolumePressure: volumePressure,
		Divergence:     divergence,
		Support:        support,
		Resistance:     resistance,
	}
	result.Details = map[string]interface{}{"__full": result}
	a.cache.put(key, result.Analysis, now)
	return result, nil
}

func voteForTimeframe(tf domain.Timeframe, bars []domain.Bar) TimeframeVote {
	rsi := rsiOf(bars, 14)
	atr := atrOf(bars, 14)
	momentum := ((bars[len(bars)-1].Close - bars[0].Close) / bars[0].Close) * 100.0

	score := clamp(momentum*20, -100, 100)
	if rsi > 70 {
		score -= (rsi - 70)
	} else if rsi < 30 {
		score += (30 - rsi)
	}
	score = clamp(score, -100, 100)

	return TimeframeVote{
		Timeframe: tf,
		Direction: directionFromScore(score, 10),
		Score:     score,
		RSI:       rsi,
		ATR:       atr,
	}
}

func rsiOf(bars []domain.Bar, period int) float64 {
	if len(bars) < period+1 {
		period = len(bars) - 1
	}
	if period <= 0 {
		return 50
	}
	gains, losses := 0.0, 0.0
	start := len(bars) - period - 1
	for i := start + 1; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func atrOf(bars []domain.Bar, period int) float64 {
	if len(bars) < 2 {
		return 0
	}
	if period > len(bars)-1 {
		period = len(bars) - 1
	}
	start := len(bars) - period
	sum := 0.0
	count := 0
	for i := start; i < len(bars); i++ {
		if i == 0 {
			continue
		}
		tr := math.Max(bars[i].High-bars[i].Low,
			math.Max(math.Abs(bars[i].High-bars[i-1].Close), math.Abs(bars[i].Low-bars[i-1].Close)))
		sum += tr
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func detectRegime(bars []domain.Bar) (Regime, float64, float64) {
	if len(bars) < 10 {
		return RegimeChoppy, 0, 0
	}
	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		returns = append(returns, (bars[i].Close-bars[i-1].Close)/bars[i-1].Close)
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	vol := math.Sqrt(variance)

	slope := (bars[len(bars)-1].Close - bars[0].Close) / bars[0].Close

	switch {
	case vol > 0.01:
		return RegimeVolatile, slope, vol
	case math.Abs(slope) > 0.02:
		return RegimeTrending, slope, vol
	default:
		return RegimeChoppy, slope, vol
	}
}

func volumePressureOf(bars []domain.Bar) float64 {
	if len(bars) < 5 {
		return 0
	}
	recent := bars[len(bars)-5:]
	var up, down float64
	for i := 1; i < len(recent); i++ {
		if recent[i].Close >= recent[i-1].Close {
			up += recent[i].Volume
		} else {
			down += recent[i].Volume
		}
	}
	if up+down == 0 {
		return 0
	}
	return clamp((up-down)/(up+down)*100, -100, 100)
}

func divergenceOf(votes []TimeframeVote) float64 {
	if len(votes) < 2 {
		return 0
	}
	min, max := votes[0].Score, votes[0].Score
	for _, v := range votes[1:] {
		if v.Score < min {
			min = v.Score
		}
		if v.Score > max {
			max = v.Score
		}
	}
	return max - min
}

func supportResistance(bars []domain.Bar) (float64, float64) {
	if len(bars) == 0 {
		return 0, 0
	}
	low, high := bars[0].Low, bars[0].High
	for _, b := range bars {
		if b.Low < low {
			low = b.Low
		}
		if b.High > high {
			high = b.High
		}
	}
	return low, high
}

func directionFromScore(score, neutralBand float64) string {
	switch {
	case score > neutralBand:
		return "BUY"
	case score < -neutralBand:
		return "SELL"
	default:
		return "NEUTRAL"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
