package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fxrunner/engine/internal/domain"
)

func TestScoreBullishComponentsYieldsBuy(t *testing.T) {
	pair, _ := domain.NewPair("EURUSD")
	s := NewScorer(DefaultWeights(), 8.0, nil)

	c := Components{
		EconomicScore:      25,
		NewsSentiment:      60,
		NewsImpact:         70,
		NewsDirection:      1,
		TechnicalScore:      120,
		TechnicalStrength:   80,
		TechnicalDirection:  1,
		DirectionConsensus: 0.9,
	}
	result := s.Score(pair, c, DefaultThresholds())
	require.Equal(t, domain.Buy, result.Direction)
	require.Greater(t, result.Confidence, 0.0)
	require.Equal(t, "model_untrained", result.Diagnostics["reason"])
}

func TestScoreNeutralComponentsStayNeutral(t *testing.T) {
	pair, _ := domain.NewPair("EURUSD")
	s := NewScorer(DefaultWeights(), 8.0, nil)
	result := s.Score(pair, Components{}, DefaultThresholds())
	require.Equal(t, domain.Neutral, result.Direction)
}

type fakeModel struct{ prob float64 }

func (f *fakeModel) HasTrees() bool            { return true }
func (f *fakeModel) Predict(c Components) float64 { return f.prob }

func TestScoreEnsemblesModelWhenTrained(t *testing.T) {
	pair, _ := domain.NewPair("EURUSD")
	s := NewScorer(DefaultWeights(), 8.0, &fakeModel{prob: 0.95})
	result := s.Score(pair, Components{TechnicalScore: 10}, DefaultThresholds())
	require.NotContains(t, result.Diagnostics, "reason")
	require.Greater(t, result.Probability, 0.5)
}

func TestOptimizeThresholdsBoundedRange(t *testing.T) {
	samples := []LabeledSample{
		{Probability: 0.9, Won: true}, {Probability: 0.85, Won: true},
		{Probability: 0.55, Won: false}, {Probability: 0.6, Won: false},
	}
	th := OptimizeThresholds(samples, 0.05)
	require.GreaterOrEqual(t, th.Buy, MinThreshold)
	require.LessOrEqual(t, th.Buy, MaxThreshold)
}
