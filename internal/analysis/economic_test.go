package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEconomicAnalyzeSyntheticWhenNoSource(t *testing.T) {
	a := NewEconomicAnalyzer(nil, nil)
	result, err := a.Analyze(context.Background(), "USD", time.Now())
	require.NoError(t, err)
	require.True(t, result.Synthetic)
	require.Equal(t, "NEUTRAL", result.Direction)
}

type fakeMacroSource struct{ points []MacroPoint }

func (f *fakeMacroSource) FetchMacro(ctx context.Context, currency string) ([]MacroPoint, error) {
	return f.points, nil
}

func TestEconomicAnalyzePositiveGDPSurprise(t *testing.T) {
	src := &fakeMacroSource{points: []MacroPoint{
		{Series: SeriesGDP, Currency: "USD", Value: 3.2, Forecast: 2.0},
	}}
	a := NewEconomicAnalyzer(src, nil)
	result, err := a.Analyze(context.Background(), "USD", time.Now())
	require.NoError(t, err)
	require.False(t, result.Synthetic)
	require.Greater(t, result.Score, 0.0)
}
