package signalengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fxrunner/engine/internal/analysis"
	"github.com/fxrunner/engine/internal/domain"
	"github.com/fxrunner/engine/internal/quality"
	"github.com/fxrunner/engine/internal/scoring"
)

func baseInput(pair domain.Pair) Input {
	return Input{
		Pair:   pair,
		Price:  1.1000,
		ATR:    0.0010,
		Regime: RegimeNormal,
		ScorerResult: scoring.Result{
			Direction:   domain.Buy,
			Confidence:  80,
			FinalScore:  110,
			Probability: 0.8,
		},
		RiskManagement: domain.RiskManagement{CanTrade: true},
		Now:            time.Now(),
	}
}

func TestCombineHappyBuyIsValid(t *testing.T) {
	pair, _ := domain.NewPair("EURUSD")
	c := NewCombiner(DefaultEntryParams(), DefaultValidityParams())
	signal := c.Combine(baseInput(pair))

	require.Equal(t, domain.Buy, signal.Direction)
	require.True(t, signal.Validity.IsValid)
	require.NotNil(t, signal.Entry)
	require.GreaterOrEqual(t, signal.Entry.RiskReward, DefaultEntryParams().MinRiskReward)
}

func TestCombineSpreadVetoBlocksOnCriticalQuality(t *testing.T) {
	pair, _ := domain.NewPair("EURUSD")
	c := NewCombiner(DefaultEntryParams(), DefaultValidityParams())
	in := baseInput(pair)
	in.Quality = quality.QualityReport{Status: quality.StatusCritical, ConfidenceFloor: 65}
	in.PairBreakerOpen = true

	signal := c.Combine(in)
	require.False(t, signal.Validity.IsValid)
	require.Contains(t, signal.Validity.Reason, "circuit_breaker")
}

func TestCombineNeutralDirectionInvalid(t *testing.T) {
	pair, _ := domain.NewPair("EURUSD")
	c := NewCombiner(DefaultEntryParams(), DefaultValidityParams())
	in := baseInput(pair)
	in.ScorerResult.Direction = domain.Neutral
	signal := c.Combine(in)
	require.False(t, signal.Validity.IsValid)
	require.Nil(t, signal.Entry)
}

func TestCombineImminentHighImpactNewsBlocks(t *testing.T) {
	pair, _ := domain.NewPair("EURUSD")
	c := NewCombiner(DefaultEntryParams(), DefaultValidityParams())
	in := baseInput(pair)
	in.News = analysis.NewsResult{Headlines: []analysis.ClassifiedHeadline{
		{Impact: "high", Timing: analysis.TimingImminent},
	}}
	signal := c.Combine(in)
	require.False(t, signal.Validity.IsValid)
	require.False(t, signal.Validity.Checks["news_window"])
}
