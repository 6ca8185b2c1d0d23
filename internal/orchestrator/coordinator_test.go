package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fxrunner/engine/internal/analysis"
	"github.com/fxrunner/engine/internal/backtest"
	"github.com/fxrunner/engine/internal/domain"
	"github.com/fxrunner/engine/internal/providers"
	"github.com/fxrunner/engine/internal/quality"
	"github.com/fxrunner/engine/internal/scoring"
	"github.com/fxrunner/engine/internal/signalengine"
)

type fakeFeatures struct{ purged int }

func (f *fakeFeatures) PurgeExpired() { f.purged++ }

type fakeTechnical struct {
	result analysis.TechnicalResult
	err    error
}

func (f *fakeTechnical) Analyze(ctx context.Context, pair domain.Pair, now time.Time) (analysis.TechnicalResult, error) {
	return f.result, f.err
}

type fakeEconomic struct {
	result analysis.Analysis
	err    error
}

func (f *fakeEconomic) Analyze(ctx context.Context, currency string, now time.Time) (analysis.Analysis, error) {
	return f.result, f.err
}

type fakeNews struct {
	result analysis.NewsResult
	err    error
}

func (f *fakeNews) Analyze(ctx context.Context, pair string, now time.Time) (analysis.NewsResult, error) {
	return f.result, f.err
}

type fakeQuotes struct {
	quote *domain.Quote
	err   error
}

func (f *fakeQuotes) FetchQuote(ctx context.Context, pair domain.Pair, opts providers.FetchOptions) (*domain.Quote, error) {
	return f.quote, f.err
}

type fakeGuard struct {
	report      quality.QualityReport
	breakerOpen bool
}

func (f *fakeGuard) AssessMarketData(ctx context.Context, pair domain.Pair, now time.Time) quality.QualityReport {
	return f.report
}
func (f *fakeGuard) IsBreakerActive(pair domain.Pair) bool { return f.breakerOpen }

type fakeScorer struct{ result scoring.Result }

func (f *fakeScorer) Score(pair domain.Pair, c scoring.Components, thresholds scoring.Thresholds) scoring.Result {
	return f.result
}

type fakeCombiner struct{ signal domain.Signal }

func (f *fakeCombiner) Combine(in signalengine.Input) domain.Signal { return f.signal }

type fakeRisk struct{ rm domain.RiskManagement }

func (f *fakeRisk) EvaluateRiskManagement(pair domain.Pair, direction domain.Direction, stopLossPips float64, now time.Time) domain.RiskManagement {
	return f.rm
}

type fakeBacktest struct {
	result  backtest.Result
	called  bool
}

func (f *fakeBacktest) ValidateSignal(ctx context.Context, signal domain.Signal, pair domain.Pair) backtest.Result {
	f.called = true
	return f.result
}

type fakeRouter struct {
	trade domain.Trade
	err   error
	calls int
}

func (f *fakeRouter) OpenPosition(ctx context.Context, order domain.OrderEnvelope) (domain.Trade, error) {
	f.calls++
	return f.trade, f.err
}

func testPair(t *testing.T) domain.Pair {
	t.Helper()
	p, err := domain.NewPair("EURUSD")
	require.NoError(t, err)
	return p
}

func buildCoordinator(t *testing.T, tune func(*coordinatorDeps)) (*Coordinator, *coordinatorDeps) {
	t.Helper()
	deps := &coordinatorDeps{
		features: &fakeFeatures{},
		technical: &fakeTechnical{result: analysis.TechnicalResult{
			Analysis: analysis.Analysis{Direction: "BUY", Score: 80, Confidence: 70},
			Votes:    []analysis.TimeframeVote{{Timeframe: domain.H1, Direction: "BUY", ATR: 0.0012}},
			Regime:   analysis.RegimeTrending,
		}},
		economic: &fakeEconomic{result: analysis.Analysis{Direction: "BUY", Score: 40}},
		news:     &fakeNews{result: analysis.NewsResult{Analysis: analysis.Analysis{Direction: "BUY", Score: 20}}},
		quotes:   &fakeQuotes{quote: &domain.Quote{Bid: 1.1000, Ask: 1.1002}},
		guard:    &fakeGuard{report: quality.QualityReport{Status: quality.StatusHealthy}},
		scorer:   &fakeScorer{result: scoring.Result{Direction: domain.Buy, Probability: 0.7, Confidence: 60, FinalScore: 70}},
		combiner: &fakeCombiner{signal: domain.Signal{
			Direction: domain.Buy,
			Strength:  80,
			Confidence: 70,
			Entry:     &domain.Entry{Price: 1.1001, StopLoss: 1.0980, TakeProfit: 1.1050, RiskReward: 2.0},
			Validity:  domain.Validity{IsValid: true},
		}},
		risk:     &fakeRisk{rm: domain.RiskManagement{CanTrade: true, PositionSize: 1000}},
		backtest: &fakeBacktest{result: backtest.Result{Outcome: backtest.OutcomePassed}},
		router:   &fakeRouter{trade: domain.Trade{ID: "t1"}},
	}
	if tune != nil {
		tune(deps)
	}

	c := NewCoordinator(
		zerolog.Nop(),
		deps.features, deps.technical, deps.economic, deps.news, deps.quotes,
		deps.guard, deps.scorer, deps.combiner, deps.risk, deps.backtest, deps.router,
		DefaultOptions(),
	)
	return c, deps
}

type coordinatorDeps struct {
	features *fakeFeatures
	technical *fakeTechnical
	economic  *fakeEconomic
	news      *fakeNews
	quotes    *fakeQuotes
	guard     *fakeGuard
	scorer    *fakeScorer
	combiner  *fakeCombiner
	risk      *fakeRisk
	backtest  *fakeBacktest
	router    *fakeRouter
}

func TestGenerateSignalHappyPathPurgesFeaturesAndEmitsSignal(t *testing.T) {
	c, deps := buildCoordinator(t, nil)

	res, err := c.GenerateSignal(context.Background(), GenerateRequest{Pair: testPair(t)})
	require.NoError(t, err)
	require.Equal(t, 1, deps.features.purged)
	require.Equal(t, domain.Buy, res.Signal.Direction)
	require.True(t, res.Signal.Validity.IsValid)
}

func TestGenerateSignalAnalyzerErrorReturnsNeutralSignal(t *testing.T) {
	c, _ := buildCoordinator(t, func(d *coordinatorDeps) {
		d.technical.err = errors.New("provider down")
	})

	res, err := c.GenerateSignal(context.Background(), GenerateRequest{Pair: testPair(t)})
	require.NoError(t, err)
	require.Equal(t, domain.Neutral, res.Signal.Direction)
	require.False(t, res.Signal.Validity.IsValid)
	require.Contains(t, res.Signal.Validity.Reason, "analyzer_error")
}

func TestGenerateSignalBreakerActiveShortCircuitsToNeutral(t *testing.T) {
	c, _ := buildCoordinator(t, func(d *coordinatorDeps) {
		d.guard.breakerOpen = true
	})

	res, err := c.GenerateSignal(context.Background(), GenerateRequest{Pair: testPair(t)})
	require.NoError(t, err)
	require.Equal(t, domain.Neutral, res.Signal.Direction)
	require.Contains(t, res.Signal.Validity.Reason, "circuit_breaker")
}

func TestGenerateSignalNoQuoteReturnsNeutral(t *testing.T) {
	c, _ := buildCoordinator(t, func(d *coordinatorDeps) {
		d.quotes.quote = nil
	})

	res, err := c.GenerateSignal(context.Background(), GenerateRequest{Pair: testPair(t)})
	require.NoError(t, err)
	require.Equal(t, domain.Neutral, res.Signal.Direction)
	require.Equal(t, "no_quote_available", res.Signal.Validity.Reason)
}

func TestGenerateSignalBorderlineSignalRunsBacktestGate(t *testing.T) {
	c, deps := buildCoordinator(t, func(d *coordinatorDeps) {
		d.combiner.signal.Strength = 37 // within BorderlineBand of MinStrength=35
		d.combiner.signal.Confidence = 70
	})

	_, err := c.GenerateSignal(context.Background(), GenerateRequest{Pair: testPair(t)})
	require.NoError(t, err)
	require.True(t, deps.backtest.called)
}

func TestGenerateSignalFailedBacktestBlocksBorderlineSignal(t *testing.T) {
	c, _ := buildCoordinator(t, func(d *coordinatorDeps) {
		d.combiner.signal.Strength = 37
		d.backtest.result = backtest.Result{Outcome: backtest.OutcomeFailed}
	})

	res, err := c.GenerateSignal(context.Background(), GenerateRequest{Pair: testPair(t)})
	require.NoError(t, err)
	require.False(t, res.Signal.Validity.IsValid)
}

func TestGenerateSignalAutoExecuteDispatchesToRouter(t *testing.T) {
	c, deps := buildCoordinator(t, nil)

	res, err := c.GenerateSignal(context.Background(), GenerateRequest{Pair: testPair(t), AutoExecute: true, Broker: "mt5"})
	require.NoError(t, err)
	require.Equal(t, 1, deps.router.calls)
	require.NotNil(t, res.Execution)
	require.Equal(t, "t1", res.Execution.ID)
}

func TestGenerateSignalAutoExecuteSkippedWhenInvalid(t *testing.T) {
	c, deps := buildCoordinator(t, func(d *coordinatorDeps) {
		d.combiner.signal.Validity = domain.Validity{IsValid: false, Reason: "blocked"}
	})

	res, err := c.GenerateSignal(context.Background(), GenerateRequest{Pair: testPair(t), AutoExecute: true})
	require.NoError(t, err)
	require.Equal(t, 0, deps.router.calls)
	require.Nil(t, res.Execution)
}
