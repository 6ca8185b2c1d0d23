package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewsAnalyzeSyntheticWhenNoSource(t *testing.T) {
	a := NewNewsAnalyzer(nil, nil)
	result, err := a.Analyze(context.Background(), "EURUSD", time.Now())
	require.NoError(t, err)
	require.True(t, result.Synthetic)
	require.Equal(t, "synthetic*", result.Source)
}

type fakeHeadlineSource struct{ headlines []Headline }

func (f *fakeHeadlineSource) FetchHeadlines(ctx context.Context, pair string) ([]Headline, error) {
	return f.headlines, nil
}

func TestNewsAnalyzeFlagsImminentHighImpact(t *testing.T) {
	now := time.Now()
	src := &fakeHeadlineSource{headlines: []Headline{
		{Pair: "EURUSD", Text: "Fed signals surprise hike", Sentiment: 0.9, PublishedAt: now.Add(10 * time.Minute)},
	}}
	a := NewNewsAnalyzer(src, nil)
	result, err := a.Analyze(context.Background(), "EURUSD", now)
	require.NoError(t, err)
	require.True(t, result.HasImminentHighImpact())
}
