// Package orchestrator implements the signal generation coordinator (C13):
// it sequences the feature purge, the three C4 analyzers, the C1 quote
// fetch, the C6 quality/breaker gate, the C5/C7 scoring and combination, C9
// risk management, the C8 live-backtest gate for borderline signals, and an
// optional C10 auto-execute dispatch into a single generateSignal call per
// pair, serialized so two concurrent requests for the same pair share one
// in-flight computation.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/rs/zerolog"

	"github.com/fxrunner/engine/internal/analysis"
	"github.com/fxrunner/engine/internal/backtest"
	"github.com/fxrunner/engine/internal/broker"
	"github.com/fxrunner/engine/internal/domain"
	"github.com/fxrunner/engine/internal/featurestore"
	"github.com/fxrunner/engine/internal/providers"
	"github.com/fxrunner/engine/internal/quality"
	"github.com/fxrunner/engine/internal/risk"
	"github.com/fxrunner/engine/internal/scoring"
	"github.com/fxrunner/engine/internal/signalengine"
)

// TechnicalAnalyzer is the narrow C4 technical collaborator.
type TechnicalAnalyzer interface {
	Analyze(ctx context.Context, pair domain.Pair, now time.Time) (analysis.TechnicalResult, error)
}

// EconomicAnalyzer is the narrow C4 economic collaborator.
type EconomicAnalyzer interface {
	Analyze(ctx context.Context, currency string, now time.Time) (analysis.Analysis, error)
}

// NewsAnalyzer is the narrow C4 news/sentiment collaborator.
type NewsAnalyzer interface {
	Analyze(ctx context.Context, pair string, now time.Time) (analysis.NewsResult, error)
}

// QuoteFetcher is the narrow C1 read path the coordinator needs.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, pair domain.Pair, opts providers.FetchOptions) (*domain.Quote, error)
}

// QualityGuard is the narrow C6 collaborator.
type QualityGuard interface {
	AssessMarketData(ctx context.Context, pair domain.Pair, now time.Time) quality.QualityReport
	IsBreakerActive(pair domain.Pair) bool
}

// Scorer is the narrow C5 collaborator.
type Scorer interface {
	Score(pair domain.Pair, c scoring.Components, thresholds scoring.Thresholds) scoring.Result
}

// Combiner is the narrow C7 collaborator.
type Combiner interface {
	Combine(in signalengine.Input) domain.Signal
}

// RiskEngine is the narrow C9 collaborator.
type RiskEngine interface {
	EvaluateRiskManagement(pair domain.Pair, direction domain.Direction, stopLossPips float64, now time.Time) domain.RiskManagement
}

// BacktestValidator is the narrow C8 collaborator.
type BacktestValidator interface {
	ValidateSignal(ctx context.Context, signal domain.Signal, pair domain.Pair) backtest.Result
}

// FeatureStore is the narrow C3 collaborator the coordinator purges before
// every run.
type FeatureStore interface {
	PurgeExpired()
}

// BrokerRouter is the narrow C10 collaborator used for the optional
// auto-execute step.
type BrokerRouter interface {
	OpenPosition(ctx context.Context, order domain.OrderEnvelope) (domain.Trade, error)
}

// Options tunes thresholds the coordinator does not delegate to a
// collaborator: the scorer thresholds and entry/validity parameters passed
// into each Combine call, and the borderline band that triggers the C8
// live-backtest gate.
type Options struct {
	ScorerThresholds scoring.Thresholds
	EntryParams      signalengine.EntryParams
	ValidityParams   signalengine.ValidityParams
	BorderlineBand   float64 // distance from MinStrength/MinConfidence that counts as borderline
}

func DefaultOptions() Options {
	return Options{
		ScorerThresholds: scoring.DefaultThresholds(),
		EntryParams:      signalengine.DefaultEntryParams(),
		ValidityParams:   signalengine.DefaultValidityParams(),
		BorderlineBand:   10,
	}
}

// GenerateRequest is the coordinator's single entrypoint input.
type GenerateRequest struct {
	Pair        domain.Pair
	AutoExecute bool
	Broker      string
}

// GenerateResult is the coordinator's single entrypoint output: a signal
// that is always populated (NEUTRAL and blocked on any step failure), plus
// the optional execution outcome.
type GenerateResult struct {
	Signal       domain.Signal
	QualityReport quality.QualityReport
	BacktestResult *backtest.Result
	Execution    *domain.Trade
	ExecutionErr string
}

// Coordinator sequences C1-C10 into one signal generation call (C13).
type Coordinator struct {
	log zerolog.Logger

	features FeatureStore
	technical TechnicalAnalyzer
	economic  EconomicAnalyzer
	news      NewsAnalyzer
	quotes    QuoteFetcher
	guard     QualityGuard
	scorer    Scorer
	combiner  Combiner
	riskEngine RiskEngine
	backtest  BacktestValidator
	router    BrokerRouter

	opts Options

	sf singleflight.Group
}

func NewCoordinator(
	log zerolog.Logger,
	features FeatureStore,
	technical TechnicalAnalyzer,
	economic EconomicAnalyzer,
	news NewsAnalyzer,
	quotes QuoteFetcher,
	guard QualityGuard,
	scorer Scorer,
	combiner Combiner,
	riskEngine RiskEngine,
	bt BacktestValidator,
	router BrokerRouter,
	opts Options,
) *Coordinator {
	return &Coordinator{
		log: log, features: features, technical: technical, economic: economic, news: news,
		quotes: quotes, guard: guard, scorer: scorer, combiner: combiner, riskEngine: riskEngine,
		backtest: bt, router: router, opts: opts,
	}
}

// GenerateSignal runs the eight-step pipeline for one pair, serialized via
// singleflight so concurrent callers for the same pair share one
// computation rather than stampeding every collaborator at once.
func (c *Coordinator) GenerateSignal(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	v, err, _ := c.sf.Do(req.Pair.Symbol, func() (interface{}, error) {
		return c.generate(ctx, req), nil
	})
	if err != nil {
		return GenerateResult{}, err
	}
	return v.(GenerateResult), nil
}

func (c *Coordinator) generate(ctx context.Context, req GenerateRequest) GenerateResult {
	now := time.Now()
	pair := req.Pair

	// Step 1: purge expired feature vectors.
	if c.features != nil {
		c.features.PurgeExpired()
	}

	// Step 2: run the three C4 analyzers in parallel.
	var technical analysis.TechnicalResult
	var economic analysis.Analysis
	var news analysis.NewsResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := c.technical.Analyze(gctx, pair, now)
		if err != nil {
			return fmt.Errorf("technical analyzer: %w", err)
		}
		technical = res
		return nil
	})
	g.Go(func() error {
		res, err := c.economic.Analyze(gctx, pair.Base, now)
		if err != nil {
			return fmt.Errorf("economic analyzer: %w", err)
		}
		economic = res
		return nil
	})
	g.Go(func() error {
		res, err := c.news.Analyze(gctx, pair.Symbol, now)
		if err != nil {
			return fmt.Errorf("news analyzer: %w", err)
		}
		news = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return c.neutralResult(pair, now, "analyzer_error: "+err.Error())
	}

	// Step 3: current quote via C1.
	quote, err := c.quotes.FetchQuote(ctx, pair, providers.FetchOptions{Purpose: "signal_generation"})
	if err != nil || quote == nil {
		reason := "no_quote_available"
		if err != nil {
			reason = "quote_error: " + err.Error()
		}
		return c.neutralResult(pair, now, reason)
	}

	// Step 4: quality/breaker gate.
	report := c.guard.AssessMarketData(ctx, pair, now)
	breakerOpen := c.guard.IsBreakerActive(pair)
	if breakerOpen || report.Status == quality.StatusCritical {
		res := c.neutralResult(pair, now, "circuit_breaker_active_or_critical_data_quality")
		res.QualityReport = report
		return res
	}

	// Step 5: C5 scorer, consumed by the C7 combiner.
	components := buildScoringComponents(technical, economic, news)
	scorerResult := c.scorer.Score(pair, components, c.opts.ScorerThresholds)

	regime := mapRegime(technical.Regime)
	atr := averageATR(technical.Votes)

	// Risk management must be computed before Combine (the combiner's
	// validity chain consults in.RiskManagement), but the stop-loss
	// distance it needs depends on the same ATR/regime entry math the
	// combiner applies when building the entry. The coordinator mirrors
	// that small computation here rather than threading risk management
	// through Combine as a second pass.
	stopLossPips := estimateStopLossPips(c.opts.EntryParams, regime, atr, pair, scorerResult.Direction)
	riskMgmt := c.riskEngine.EvaluateRiskManagement(pair, scorerResult.Direction, stopLossPips, now)

	in := signalengine.Input{
		Pair:            pair,
		Price:           quote.Mid(),
		ATR:             atr,
		Regime:          regime,
		Technical:       technical,
		Economic:        economic,
		News:            news,
		ScorerResult:    scorerResult,
		Quality:         report,
		PairBreakerOpen: breakerOpen,
		RiskManagement:  riskMgmt,
		Now:             now,
	}
	signal := c.combiner.Combine(in)

	result := GenerateResult{Signal: signal, QualityReport: report}

	// Step 7: if the signal is directional but borderline, run the C8
	// live-backtest gate and record its verdict. A Failed outcome
	// invalidates and blocks the signal; Passed or Skipped leave the
	// combiner's verdict unchanged.
	if signal.Direction != domain.Neutral && c.isBorderline(signal) && c.backtest != nil {
		btRes := c.backtest.ValidateSignal(ctx, signal, pair)
		result.BacktestResult = &btRes
		if btRes.Outcome == backtest.OutcomeFailed {
			signal.Validity.IsValid = false
			if signal.Validity.Reason == "" {
				signal.Validity.Reason = "live backtest gate failed for a borderline signal"
			}
			signal.Validity.Decision.State = "blocked"
			result.Signal = signal
		}
	}

	// Step 8: optional auto-execute.
	if req.AutoExecute && c.router != nil && result.Signal.Validity.IsValid && result.Signal.Entry != nil {
		order := domain.OrderEnvelope{
			Broker:     req.Broker,
			Pair:       pair.Symbol,
			Direction:  result.Signal.Direction,
			Volume:     result.Signal.RiskManagement.PositionSize,
			Price:      result.Signal.Entry.Price,
			StopLoss:   result.Signal.Entry.StopLoss,
			TakeProfit: result.Signal.Entry.TakeProfit,
			Source:     "auto_trader",
		}
		trade, err := c.router.OpenPosition(ctx, order)
		if err != nil {
			result.ExecutionErr = err.Error()
		} else {
			result.Execution = &trade
		}
	}

	return result
}

// isBorderline reports whether a directional signal's strength or
// confidence sits within BorderlineBand of the combiner's minimum
// thresholds, the zone in which a cheap live-backtest check is worth its
// cost.
func (c *Coordinator) isBorderline(signal domain.Signal) bool {
	band := c.opts.BorderlineBand
	minStrength := c.opts.ValidityParams.MinStrength
	minConfidence := c.opts.ValidityParams.MinConfidence
	strengthBorderline := signal.Strength >= minStrength && signal.Strength < minStrength+band
	confidenceBorderline := signal.Confidence >= minConfidence && signal.Confidence < minConfidence+band
	return strengthBorderline || confidenceBorderline
}

func (c *Coordinator) neutralResult(pair domain.Pair, now time.Time, reason string) GenerateResult {
	return GenerateResult{
		Signal: domain.Signal{
			Pair:       pair,
			TsMs:       now.UnixMilli(),
			Direction:  domain.Neutral,
			GeneratedAt: now,
			Validity: domain.Validity{
				IsValid: false,
				Reason:  reason,
				Decision: domain.Decision{
					State:   "blocked",
					Blockers: []string{reason},
				},
			},
		},
	}
}

// mapRegime bridges the technical analyzer's trend/chop/volatility posture
// onto the combiner's volatility-band enum; the two are independent reads
// of the same bar series and were never meant to share a type.
func mapRegime(r analysis.Regime) signalengine.VolatilityRegime {
	switch r {
	case analysis.RegimeVolatile:
		return signalengine.RegimeHigh
	case analysis.RegimeChoppy:
		return signalengine.RegimeLow
	default:
		return signalengine.RegimeNormal
	}
}

// averageATR reduces the per-timeframe votes to a single ATR the combiner
// can scale stop-loss/take-profit distances from.
func averageATR(votes []analysis.TimeframeVote) float64 {
	sum, n := 0.0, 0
	for _, v := range votes {
		if v.ATR > 0 {
			sum += v.ATR
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// estimateStopLossPips mirrors the combiner's buildEntry stop distance so
// risk management can size the position before Combine runs.
func estimateStopLossPips(ep signalengine.EntryParams, regime signalengine.VolatilityRegime, atr float64, pair domain.Pair, direction domain.Direction) float64 {
	if direction == domain.Neutral || atr <= 0 {
		return 0
	}
	mult := ep.SLMultiplier[regime]
	if mult == 0 {
		mult = ep.SLMultiplier[signalengine.RegimeNormal]
	}
	pip := pair.PipSize()
	if pip == 0 {
		return 0
	}
	return (mult * atr) / pip
}

func buildScoringComponents(t analysis.TechnicalResult, e analysis.Analysis, n analysis.NewsResult) scoring.Components {
	consensus := directionConsensus(t.Votes)
	return scoring.Components{
		EconomicDirection:  directionSign(e.Direction),
		EconomicScore:      e.Score,
		NewsSentiment:      n.Score,
		NewsImpact:         impactToScore(n.Impact),
		NewsDirection:      directionSign(n.Direction),
		TechnicalScore:     t.Score,
		TechnicalStrength:  t.Confidence,
		TechnicalDirection: directionSign(t.Direction),
		RegimeConfidence:   t.Confidence,
		RegimeSlope:        t.RegimeSlope,
		Volatility:         t.Volatility,
		VolumePressure:     t.VolumePressure,
		DivergenceLoad:     t.Divergence,
		DirectionConsensus: consensus,
	}
}

func directionSign(direction string) float64 {
	switch direction {
	case "BUY":
		return 1
	case "SELL":
		return -1
	default:
		return 0
	}
}

func impactToScore(impact string) float64 {
	switch impact {
	case "high":
		return 100
	case "medium":
		return 50
	case "low":
		return 15
	default:
		return 0
	}
}

func directionConsensus(votes []analysis.TimeframeVote) float64 {
	if len(votes) == 0 {
		return 0
	}
	buy, sell := 0, 0
	for _, v := range votes {
		switch v.Direction {
		case "BUY":
			buy++
		case "SELL":
			sell++
		}
	}
	majority := buy
	if sell > majority {
		majority = sell
	}
	return float64(majority) / float64(len(votes))
}

// Static assertions that the concrete C1-C10 collaborator types satisfy
// the narrow interfaces this package depends on.
var (
	_ BrokerRouter      = (*broker.Router)(nil)
	_ RiskEngine        = (*risk.Engine)(nil)
	_ BacktestValidator = (*backtest.Validator)(nil)
	_ Scorer            = (*scoring.Scorer)(nil)
	_ Combiner          = (*signalengine.Combiner)(nil)
	_ FeatureStore      = (*featurestore.Store)(nil)
	_ QuoteFetcher      = (*providers.Fetcher)(nil)
	_ QualityGuard      = (*quality.Guard)(nil)
	_ TechnicalAnalyzer = (*analysis.TechnicalAnalyzer)(nil)
	_ EconomicAnalyzer  = (*analysis.EconomicAnalyzer)(nil)
	_ NewsAnalyzer      = (*analysis.NewsAnalyzer)(nil)
)
