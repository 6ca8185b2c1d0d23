// Package signalengine implements the signal combiner (C7): it merges the
// C4 analyzer outputs and the C5 scorer result into a Trading Signal,
// computes the entry plan, and runs the ordered validity-check chain.
package signalengine

import (
	"math"
	"time"

	"github.com/fxrunner/engine/internal/analysis"
	"github.com/fxrunner/engine/internal/domain"
	"github.com/fxrunner/engine/internal/quality"
	"github.com/fxrunner/engine/internal/scoring"
)

// VolatilityRegime is the combiner's own volatility band for ATR
// multipliers; the orchestrator's mapRegime maps the technical analyzer's
// Regime onto it.
type VolatilityRegime string

const (
	RegimeLow    VolatilityRegime = "low"
	RegimeNormal VolatilityRegime = "normal"
	RegimeHigh   VolatilityRegime = "high"
)

// EntryParams controls stop-loss/take-profit ATR multipliers per regime.
type EntryParams struct {
	SLMultiplier      map[VolatilityRegime]float64
	TPMultiplier      map[VolatilityRegime]float64
	MinRiskReward     float64
	StrictRiskReward  float64
}

func DefaultEntryParams() EntryParams {
	return EntryParams{
		SLMultiplier: map[VolatilityRegime]float64{RegimeLow: 1.2, RegimeNormal: 1.5, RegimeHigh: 2.2},
		TPMultiplier: map[VolatilityRegime]float64{RegimeLow: 2.0, RegimeNormal: 2.5, RegimeHigh: 3.2},
		MinRiskReward:    1.6,
		StrictRiskReward: 2.5,
	}
}

// ValidityParams controls the C7 validity-check thresholds.
type ValidityParams struct {
	MinStrength   float64
	MinConfidence float64
	StrictMode    bool
}

func DefaultValidityParams() ValidityParams {
	return ValidityParams{MinStrength: 35, MinConfidence: 45}
}

// Input bundles everything the combiner needs for one pair's signal.
type Input struct {
	Pair            domain.Pair
	Price           float64
	ATR             float64
	Regime          VolatilityRegime
	Technical       analysis.TechnicalResult
	Economic        analysis.Analysis
	News            analysis.NewsResult
	ScorerResult    scoring.Result
	Quality         quality.QualityReport
	PairBreakerOpen bool
	RiskManagement  domain.RiskManagement
	Now             time.Time
}

// Combiner merges analyses and the scorer output into a Trading Signal.
type Combiner struct {
	entryParams    EntryParams
	validityParams ValidityParams
}

func NewCombiner(entryParams EntryParams, validityParams ValidityParams) *Combiner {
	return &Combiner{entryParams: entryParams, validityParams: validityParams}
}

// Combine assembles the final signal and runs the validity chain.
func (c *Combiner) Combine(in Input) domain.Signal {
	direction := in.ScorerResult.Direction
	strength := clamp(math.Abs(in.ScorerResult.FinalScore)*100/150, 0, 100)
	confidence := in.ScorerResult.Confidence
	if in.Quality.ConfidenceFloor > 0 && confidence < in.Quality.ConfidenceFloor {
		confidence = in.Quality.ConfidenceFloor
	}

	var entry *domain.Entry
	if direction != domain.Neutral && in.ATR > 0 && in.Price > 0 {
		entry = c.buildEntry(in, direction)
	}

	signal := domain.Signal{
		Pair:       in.Pair,
		TsMs:       in.Now.UnixMilli(),
		Direction:  direction,
		Strength:   strength,
		Confidence: confidence,
		FinalScore: in.ScorerResult.FinalScore,
		Components: domain.Components{
			TechnicalScore: in.Technical.Score,
			EconomicScore:  in.Economic.Score,
			NewsScore:      in.News.Score,
			ScorerProb:     in.ScorerResult.Probability,
			FinalScore:     in.ScorerResult.FinalScore,
		},
		Entry:          entry,
		RiskManagement: in.RiskManagement,
		GeneratedAt:    in.Now,
	}

	signal.Validity = c.checkValidity(in, signal)
	return signal
}

func (c *Combiner) buildEntry(in Input, direction domain.Direction) *domain.Entry {
	slMult := c.entryParams.SLMultiplier[in.Regime]
	if slMult == 0 {
		slMult = c.entryParams.SLMultiplier[RegimeNormal]
	}
	tpMult := c.entryParams.TPMultiplier[in.Regime]
	if tpMult == 0 {
		tpMult = c.entryParams.TPMultiplier[RegimeNormal]
	}

	var sl, tp float64
	if direction == domain.Buy {
		sl = in.Price - slMult*in.ATR
		tp = in.Price + tpMult*in.ATR
	} else {
		sl = in.Price + slMult*in.ATR
		tp = in.Price - tpMult*in.ATR
	}

	risk := math.Abs(in.Price - sl)
	reward := math.Abs(tp - in.Price)
	riskReward := 0.0
	if risk > 0 {
		riskReward = reward / risk
	}

	return &domain.Entry{
		Price:        in.Price,
		StopLoss:     sl,
		TakeProfit:   tp,
		RiskReward:   riskReward,
		TrailingStop: in.Regime == RegimeNormal || in.Regime == RegimeHigh,
	}
}

// checkValidity runs all seven ordered validity checks, recording every
// failure (not just the first) in Checks while Reason carries the
// first-blocker-wins human summary.
func (c *Combiner) checkValidity(in Input, signal domain.Signal) domain.Validity {
	checks := make(map[string]bool, 7)
	var firstReason string
	fail := func(name, reason string) {
		checks[name] = false
		if firstReason == "" {
			firstReason = reason
		}
	}
	pass := func(name string) { checks[name] = true }

	minRR := c.entryParams.MinRiskReward
	if c.validityParams.StrictMode {
		minRR = c.entryParams.StrictRiskReward
	}

	if signal.Direction == domain.Neutral {
		fail("direction", "direction is NEUTRAL")
	} else {
		pass("direction")
	}

	if signal.Strength >= c.validityParams.MinStrength && signal.Confidence >= c.validityParams.MinConfidence {
		pass("strength_confidence")
	} else {
		fail("strength_confidence", "strength or confidence below minimum")
	}

	if signal.Entry != nil && signal.Entry.RiskReward >= minRR {
		pass("risk_reward")
	} else {
		fail("risk_reward", "risk/reward below minimum")
	}

	if in.RiskManagement.CanTrade {
		pass("risk_management")
	} else {
		fail("risk_management", "risk management blocked the trade")
	}

	if in.Quality.ConfidenceFloor == 0 || signal.Confidence >= in.Quality.ConfidenceFloor {
		pass("confidence_floor")
	} else {
		fail("confidence_floor", "confidence below data-quality floor")
	}

	if !in.PairBreakerOpen && in.Quality.Status != quality.StatusCritical {
		pass("circuit_breaker")
	} else {
		fail("circuit_breaker", "pair circuit_breaker active")
	}

	if !in.News.HasImminentHighImpact() {
		pass("news_window")
	} else {
		fail("news_window", "conflicting high-impact news in the imminent/during window")
	}

	isValid := true
	for _, ok := range checks {
		if !ok {
			isValid = false
			break
		}
	}

	state := "emitted"
	if !isValid {
		state = "blocked"
	}

	return domain.Validity{
		IsValid: isValid,
		Checks:  checks,
		Reason:  firstReason,
		Decision: domain.Decision{
			State: state,
		},
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
