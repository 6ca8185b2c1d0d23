package analysis

import (
	"context"
	"time"
)

// Headline is one raw news item consumed by the news/sentiment analyzer.
type Headline struct {
	Pair      string
	Text      string
	Source    string
	Sentiment float64 // -1..1, pre-scored upstream
	PublishedAt time.Time
}

// HeadlineType is the classification bucket assigned to a headline.
type HeadlineType string

const (
	TypeMonetaryPolicy HeadlineType = "monetary_policy"
	TypeGeopolitical   HeadlineType = "geopolitical"
	TypeEconomicData   HeadlineType = "economic_data"
	TypeCorporate      HeadlineType = "corporate"
	TypeOther          HeadlineType = "other"
)

// Timing classifies a headline relative to the current moment.
type Timing string

const (
	TimingImminent Timing = "imminent" // within the next window
	TimingDuring   Timing = "during"   // publishing now
	TimingPast     Timing = "past"
)

// ClassifiedHeadline is the per-item classification the analyzer produces
// before aggregation.
type ClassifiedHeadline struct {
	Headline           Headline
	Type               HeadlineType
	Impact             string // "low" | "medium" | "high"
	Timing             Timing
	RecommendedActions []string
}

// HeadlineSource supplies raw headlines for a pair; absence (nil) or an
// error triggers the synthetic-neutral fallback.
type HeadlineSource interface {
	FetchHeadlines(ctx context.Context, pair string) ([]Headline, error)
}

// ComponentScores are the three sentiment components the spec composites:
// social (30%), COT positioning (40%), options-flow skew (30%).
type ComponentScores struct {
	Social       float64 // -100..100
	COT          float64
	OptionsFlow  float64
	SocialConf   float64 // 0..100
	COTConf      float64
	OptionsConf  float64
}

// ComponentSource supplies the social/COT/options-flow components; nil
// means those legs are unavailable and the composite falls back to
// headline-only sentiment.
type ComponentSource interface {
	FetchComponents(ctx context.Context, pair string) (ComponentScores, error)
}

// NewsAnalyzer classifies headlines and composites a per-pair sentiment
// score from headline sentiment plus social/COT/options-flow components.
type NewsAnalyzer struct {
	headlines  HeadlineSource
	components ComponentSource
	cache      *ttlCache
	now        func() time.Time
}

func NewNewsAnalyzer(headlines HeadlineSource, components ComponentSource) *NewsAnalyzer {
	return &NewsAnalyzer{headlines: headlines, components: components, cache: newTTLCache(10 * time.Minute), now: time.Now}
}

// Analyze returns the aggregate news/sentiment analysis for a pair,
// carrying the classified headlines for the combiner's high-impact-news
// validity check (C7 check 7).
func (a *NewsAnalyzer) Analyze(ctx context.Context, pair string, now time.Time) (NewsResult, error) {
	if cached, ok := a.cache.get(pair, now); ok {
		headlines, _ := cached.Details["headlines"].([]ClassifiedHeadline)
		return NewsResult{Analysis: cached, Headlines: headlines}, nil
	}

	if a.headlines == nil {
		result := syntheticNews(pair, now)
		a.cache.put(pair, result, now)
		return NewsResult{Analysis: result}, nil
	}

	raw, err := a.headlines.FetchHeadlines(ctx, pair)
	if err != nil {
		result := syntheticNews(pair, now)
		a.cache.put(pair, result, now)
		return NewsResult{Analysis: result}, nil
	}

	classified := make([]ClassifiedHeadline, 0, len(raw))
	headlineSentimentSum := 0.0
	for _, h := range raw {
		c := classifyHeadline(h, now)
		classified = append(classified, c)
		headlineSentimentSum += h.Sentiment * impactWeight(c.Impact)
	}
	headlineScore := 0.0
	if len(raw) > 0 {
		headlineScore = clamp(headlineSentimentSum/float64(len(raw))*100, -100, 100)
	}

	components := ComponentScores{Social: headlineScore, SocialConf: 40}
	if a.components != nil {
		if c, err := a.components.FetchComponents(ctx, pair); err == nil {
			components = c
		}
	}

	composite, confidence := compositeSentiment(components)
	result := Analysis{
		Kind:       KindNews,
		Score:      composite,
		Direction:  directionFromScore(composite, 8),
		Confidence: confidence,
		Impact:     highestImpact(classified),
		Source:     "news",
		Details:    map[string]interface{}{"headlines": classified},
		ComputedAt: now,
	}
	a.cache.put(pair, result, now)
	return NewsResult{Analysis: result, Headlines: classified}, nil
}

// NewsResult extends Analysis with the classified headline set.
type NewsResult struct {
	Analysis
	Headlines []ClassifiedHeadline
}

// HasImminentHighImpact reports whether any classified headline is high
// impact and imminent or currently publishing, feeding C7 check 7.
func (r NewsResult) HasImminentHighImpact() bool {
	for _, h := range r.Headlines {
		if h.Impact == "high" && (h.Timing == TimingImminent || h.Timing == TimingDuring) {
			return true
		}
	}
	return false
}

func compositeSentiment(c ComponentScores) (float64, float64) {
	weighted := c.Social*0.30 + c.COT*0.40 + c.OptionsFlow*0.30
	confWeighted := c.SocialConf*0.30 + c.COTConf*0.40 + c.OptionsConf*0.30
	return clamp(weighted, -100, 100), clamp(confWeighted, 0, 100)
}

func classifyHeadline(h Headline, now time.Time) ClassifiedHeadline {
	impact := "low"
	switch {
	case abs(h.Sentiment) > 0.7:
		impact = "high"
	case abs(h.Sentiment) > 0.35:
		impact = "medium"
	}

	timing := TimingPast
	delta := h.PublishedAt.Sub(now)
	switch {
	case delta > 0 && delta < 30*time.Minute:
		timing = TimingImminent
	case delta >= -5*time.Minute && delta <= 0:
		timing = TimingDuring
	}

	actions := []string{}
	if impact == "high" {
		actions = append(actions, "widen_stop", "reduce_size")
	}

	return ClassifiedHeadline{
		Headline:           h,
		Type:               TypeOther,
		Impact:              impact,
		Timing:              timing,
		RecommendedActions: actions,
	}
}

func impactWeight(impact string) float64 {
	switch impact {
	case "high":
		return 1.5
	case "medium":
		return 1.0
	default:
		return 0.5
	}
}

func highestImpact(classified []ClassifiedHeadline) string {
	rank := map[string]int{"low": 0, "medium": 1, "high": 2}
	best := "low"
	for _, c := range classified {
		if rank[c.Impact] > rank[best] {
			best = c.Impact
		}
	}
	return best
}

func syntheticNews(pair string, now time.Time) Analysis {
	return Analysis{
		Kind:       KindNews,
		Score:      0,
		Direction:  "NEUTRAL",
		Confidence: 0,
		Synthetic:  true,
		Source:     "synthetic*",
		Details:    map[string]interface{}{"pair": pair},
		ComputedAt: now,
	}
}
