// Package scoring implements the adaptive probability scorer (C5): it
// extracts a fixed feature vector from the C4 analyzer outputs, blends a
// rule score with an optional trained model score, and maps the resulting
// probability to a per-pair BUY/SELL/NEUTRAL decision.
package scoring

import (
	"math"

	"github.com/fxrunner/engine/internal/domain"
)

// Components is the fixed feature vector the scorer consumes, assembled by
// the orchestration coordinator (C13) from the three analyzer outputs.
type Components struct {
	EconomicDirection float64 // -1, 0, 1
	EconomicScore     float64 // -100..100

	NewsSentiment float64 // -100..100
	NewsImpact    float64 // 0..100
	NewsDirection float64 // -1, 0, 1

	TechnicalScore     float64 // -150..150
	TechnicalStrength  float64 // 0..100
	TechnicalDirection float64 // -1, 0, 1

	RegimeConfidence float64 // 0..100
	RegimeSlope      float64

	Volatility       float64
	VolumePressure   float64
	DivergenceLoad   float64
	DirectionConsensus float64 // fraction of timeframe votes agreeing, 0..1
}

// Weights controls how much each analyzer contributes to the rule score.
// Defaults match the spec: economic 20%, news 20%, technical 60%.
type Weights struct {
	Economic  float64
	News      float64
	Technical float64
}

func DefaultWeights() Weights { return Weights{Economic: 0.20, News: 0.20, Technical: 0.60} }

// Thresholds maps a probability into a direction; buy/sell are
// per-pair-tunable and bounded at [minThreshold, maxThreshold].
type Thresholds struct {
	Buy  float64
	Sell float64
}

func DefaultThresholds() Thresholds { return Thresholds{Buy: 0.58, Sell: 0.42} }

const (
	MinThreshold = 0.52
	MaxThreshold = 0.85
)

// Clamp bounds a threshold pair into the configured range. Buy sits in
// [minThreshold, maxThreshold]; sell is its mirror in
// [1-maxThreshold, 1-minThreshold].
func (t Thresholds) Clamp() Thresholds {
	return Thresholds{
		Buy:  clampRange(t.Buy, MinThreshold, MaxThreshold),
		Sell: clampRange(t.Sell, 1-MaxThreshold, 1-MinThreshold),
	}
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Model is the optional trained-model collaborator. Its zero value (nil
// Model pointer at the call site) means "untrained" and the scorer falls
// back to rule-only scoring.
type Model interface {
	// HasTrees reports whether the model has usable geometry.
	HasTrees() bool
	// Predict returns a probability in [0,1] given the feature vector.
	Predict(c Components) float64
}

// Result is the scorer's output contract.
type Result struct {
	Probability float64
	Direction   domain.Direction
	Confidence  float64
	FinalScore  float64
	Thresholds  Thresholds
	Explanations []string
	Diagnostics map[string]interface{}
}

// Scorer blends rule and model probabilities into a trading direction.
type Scorer struct {
	weights    Weights
	temperature float64
	model      Model
}

// NewScorer constructs a scorer. model may be nil; temperature controls the
// sigmoid steepness (default 8.0 — lower is more decisive).
func NewScorer(weights Weights, temperature float64, model Model) *Scorer {
	if temperature <= 0 {
		temperature = 8.0
	}
	return &Scorer{weights: weights, temperature: temperature, model: model}
}

// ruleScore combines the configured components into a single value in
// roughly [-200,200] before the sigmoid normalizes it.
func (s *Scorer) ruleScore(c Components) float64 {
	economic := c.EconomicScore
	news := c.NewsSentiment*0.7 + c.NewsImpact*c.NewsDirection*0.3
	technical := c.TechnicalScore*0.8 + c.TechnicalStrength*c.TechnicalDirection*0.2

	return economic*s.weights.Economic + news*s.weights.News + technical*s.weights.Technical
}

// sigmoid maps a raw score through a temperature-scaled logistic function.
func sigmoid(x, temperature float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x/temperature))
}

// Score computes the scorer's output for a pair given its component
// vector. Per-pair thresholds decide the final direction.
func (s *Scorer) Score(pair domain.Pair, c Components, thresholds Thresholds) Result {
	thresholds = thresholds.Clamp()

	ruleRaw := s.ruleScore(c)
	ruleProb := sigmoid(ruleRaw, s.temperature)

	diagnostics := map[string]interface{}{"rule_raw": ruleRaw, "rule_prob": ruleProb}
	explanations := []string{}

	prob := ruleProb
	wRule, wModel := 1.0, 0.0
	if s.model != nil && s.model.HasTrees() {
		modelProb := s.model.Predict(c)
		wModel = 1.0
		prob = (wRule*ruleProb + wModel*modelProb) / (wRule + wModel)
		diagnostics["model_prob"] = modelProb
	} else {
		diagnostics["reason"] = "model_untrained"
		explanations = append(explanations, "scored rule-only: no trained model loaded")
	}

	direction := domain.Neutral
	switch {
	case prob >= thresholds.Buy:
		direction = domain.Buy
	case prob <= thresholds.Sell:
		direction = domain.Sell
	}

	confidence := math.Min(99.5, math.Abs(prob-0.5)*190)
	finalScore := (prob - 0.5) * 200

	return Result{
		Probability:  prob,
		Direction:    direction,
		Confidence:   confidence,
		FinalScore:   finalScore,
		Thresholds:   thresholds,
		Explanations: explanations,
		Diagnostics:  diagnostics,
	}
}
