// Package quality implements the data-quality guard (C6): it scores bars
// for spikes, gaps, misalignment, staleness and sanity per timeframe,
// folds in a spread penalty, and activates a per-pair circuit breaker on
// a critical verdict.
package quality

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/fxrunner/engine/internal/domain"
	"github.com/fxrunner/engine/internal/net/circuit"
)

// BarSource is the narrow read path the guard needs from C1.
type BarSource interface {
	FetchBars(ctx context.Context, pair domain.Pair, tf domain.Timeframe, n int) ([]domain.Bar, error)
}

// Status is the guard's overall verdict.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// Recommendation is the action the guard suggests downstream.
type Recommendation string

const (
	RecommendProceed Recommendation = "proceed"
	RecommendCaution Recommendation = "caution"
	RecommendBlock   Recommendation = "block"
)

// TimeframeReport is one timeframe's score breakdown.
type TimeframeReport struct {
	Timeframe       domain.Timeframe
	Score           float64
	SpikePenalty    float64
	GapPenalty      float64
	MisalignPenalty float64
	StalePenalty    float64
	SanityPenalty   float64
	WeekendGap      string // "" | "minor" | "elevated" | "critical"
}

// QualityReport is the guard's full per-pair verdict, cached by (pair) for
// Config.CacheTTL.
type QualityReport struct {
	Pair            domain.Pair
	Timeframes      []TimeframeReport
	OverallScore    float64
	SpreadPips      float64
	SpreadPenalty   float64
	SpreadCritical  bool
	Status          Status
	Recommendation  Recommendation
	ConfidenceFloor float64
	ComputedAt      time.Time
}

// SpreadThresholds configures the critical spread (in pips) per category.
type SpreadThresholds map[string]float64

func DefaultSpreadThresholds() SpreadThresholds {
	return SpreadThresholds{"majors": 3.0, "yen": 3.5, "minors": 5.0, "crosses": 6.0}
}

// Config controls the guard's timeframe set, cache TTL, and breaker hold.
type Config struct {
	Timeframes        []domain.Timeframe
	CacheTTL          time.Duration
	SpreadThresholds  SpreadThresholds
	BreakerHold        time.Duration
	BreakerMinHold     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeframes:       []domain.Timeframe{domain.M15, domain.H1, domain.H4},
		CacheTTL:         5 * time.Minute,
		SpreadThresholds: DefaultSpreadThresholds(),
		BreakerHold:      10 * time.Minute,
		BreakerMinHold:   2 * time.Minute,
	}
}

// SpreadFn returns the current spread in pips for a pair; wired to the
// quote provider by the orchestrator.
type SpreadFn func(ctx context.Context, pair domain.Pair) (float64, error)

// Guard is the per-process data-quality guard instance. It owns the
// pair-level circuit breaker map via circuit.Manager.
type Guard struct {
	bars     BarSource
	spread   SpreadFn
	cfg      Config
	breakers *circuit.Manager

	mu    sync.Mutex
	cache map[string]cachedReport
}

type cachedReport struct {
	report  QualityReport
	expires time.Time
}

func NewGuard(bars BarSource, spread SpreadFn, cfg Config, breakers *circuit.Manager) *Guard {
	return &Guard{bars: bars, spread: spread, cfg: cfg, breakers: breakers, cache: make(map[string]cachedReport)}
}

// AssessMarketData computes (or returns the cached) quality report for a
// pair. A cache hit returns the exact same object, satisfying the "no
// recomputation within TTL" invariant.
func (g *Guard) AssessMarketData(ctx context.Context, pair domain.Pair, now time.Time) QualityReport {
	g.mu.Lock()
	if cached, ok := g.cache[pair.Symbol]; ok && now.Before(cached.expires) {
		g.mu.Unlock()
		return cached.report
	}
	g.mu.Unlock()

	report := g.assess(ctx, pair, now)

	g.mu.Lock()
	g.cache[pair.Symbol] = cachedReport{report: report, expires: now.Add(g.cfg.CacheTTL)}
	g.mu.Unlock()

	if report.Status == StatusCritical {
		hold := g.cfg.BreakerHold
		if hold < g.cfg.BreakerMinHold {
			hold = g.cfg.BreakerMinHold
		}
		g.breakers.Get(pair.Symbol).Trip("data_quality_critical: "+string(report.Recommendation), hold)
	}
	return report
}

// IsBreakerActive reports whether the pair's circuit breaker is currently
// open, independent of a fresh assessment.
func (g *Guard) IsBreakerActive(pair domain.Pair) bool {
	return g.breakers.Get(pair.Symbol).State() == circuit.StateOpen
}

func (g *Guard) assess(ctx context.Context, pair domain.Pair, now time.Time) QualityReport {
	var reports []TimeframeReport
	scoreSum := 0.0
	worstWeekendGap := ""

	for _, tf := range g.cfg.Timeframes {
		bars, err := g.bars.FetchBars(ctx, pair, tf, 100)
		if err != nil || len(bars) < 2 {
			reports = append(reports, TimeframeReport{Timeframe: tf, Score: 0, StalePenalty: 100})
			continue
		}
		tr := assessTimeframe(pair, tf, bars, now)
		reports = append(reports, tr)
		scoreSum += tr.Score
		if rank(tr.WeekendGap) > rank(worstWeekendGap) {
			worstWeekendGap = tr.WeekendGap
		}
	}

	overall := 0.0
	if len(reports) > 0 {
		overall = scoreSum / float64(len(reports))
	}

	spreadPips := 0.0
	if g.spread != nil {
		if s, err := g.spread(ctx, pair); err == nil {
			spreadPips = s
		}
	}
	category := pair.SpreadCategory()
	threshold := g.cfg.SpreadThresholds[category]
	spreadCritical := threshold > 0 && spreadPips >= threshold
	spreadPenalty := 0.0
	if threshold > 0 && spreadPips > 0 {
		spreadPenalty = clampF(spreadPips/threshold*20, 0, 40)
	}
	overall = clampF(overall-spreadPenalty, 0, 100)

	status := StatusHealthy
	recommendation := RecommendProceed
	floor := 0.0

	switch {
	case overall < 40 || spreadCritical || worstWeekendGap == "critical":
		status = StatusCritical
		recommendation = RecommendBlock
	case overall < 70:
		status = StatusDegraded
		recommendation = RecommendCaution
	}

	if spreadCritical {
		floor = 65
	} else if status == StatusDegraded {
		floor = 50
	}

	return QualityReport{
		Pair:            pair,
		Timeframes:      reports,
		OverallScore:    overall,
		SpreadPips:      spreadPips,
		SpreadPenalty:   spreadPenalty,
		SpreadCritical:  spreadCritical,
		Status:          status,
		Recommendation:  recommendation,
		ConfidenceFloor: floor,
		ComputedAt:      now,
	}
}

func rank(gap string) int {
	switch gap {
	case "critical":
		return 3
	case "elevated":
		return 2
	case "minor":
		return 1
	default:
		return 0
	}
}

func assessTimeframe(pair domain.Pair, tf domain.Timeframe, bars []domain.Bar, now time.Time) TimeframeReport {
	expectedMs := float64(tf.PeriodSeconds() * 1000)

	spikeThreshold := spikeThresholdFor(tf)
	spikeCount := 0
	gapCount := 0
	misalignCount := 0

	for i := 1; i < len(bars); i++ {
		pctMove := math.Abs(bars[i].Close-bars[i-1].Close) / bars[i-1].Close * 100
		if pctMove > spikeThreshold {
			spikeCount++
		}
		intervalMs := float64(bars[i].TimestampMs - bars[i-1].TimestampMs)
		if intervalMs > expectedMs*1.75 {
			gapCount++
		}
		if math.Abs(intervalMs-expectedMs) > expectedMs*0.20 {
			misalignCount++
		}
	}

	n := float64(len(bars) - 1)
	spikePenalty := clampF(float64(spikeCount)/n*100, 0, 40)
	gapRate := float64(gapCount) / n
	gapPenalty := clampF(gapRate*150, 0, 40)
	misalignPenalty := clampF(float64(misalignCount)/n*60, 0, 25)

	last := bars[len(bars)-1]
	staleMs := float64(now.UnixMilli() - last.TimestampMs)
	stalePenalty := 0.0
	if staleMs > expectedMs*3 {
		stalePenalty = 50
	}

	sanityPenalty := 0.0
	for _, b := range bars {
		if b.Low <= 0 || b.High <= 0 || b.High < b.Low || b.Close <= 0 {
			sanityPenalty = 100
			break
		}
	}

	weekendGap := weekendGapClass(pair, bars, tf)

	score := clampF(100-spikePenalty-gapPenalty-misalignPenalty-stalePenalty-sanityPenalty, 0, 100)

	return TimeframeReport{
		Timeframe:       tf,
		Score:           score,
		SpikePenalty:    spikePenalty,
		GapPenalty:      gapPenalty,
		MisalignPenalty: misalignPenalty,
		StalePenalty:    stalePenalty,
		SanityPenalty:   sanityPenalty,
		WeekendGap:      weekendGap,
	}
}

func spikeThresholdFor(tf domain.Timeframe) float64 {
	switch tf {
	case domain.M1, domain.M5:
		return 0.5
	case domain.M15, domain.M30:
		return 1.0
	case domain.H1, domain.H4:
		return 2.0
	default:
		return 3.0
	}
}

// weekendGapClass classifies the largest weekend (Friday close -> Sunday
// open) price gap by pip-equivalent size.
func weekendGapClass(pair domain.Pair, bars []domain.Bar, tf domain.Timeframe) string {
	pip := pair.PipSize()
	worst := ""
	for i := 1; i < len(bars); i++ {
		prevTime := time.UnixMilli(bars[i-1].TimestampMs).UTC()
		curTime := time.UnixMilli(bars[i].TimestampMs).UTC()
		if prevTime.Weekday() == time.Friday && curTime.Weekday() == time.Sunday {
			continue
		}
		if !(prevTime.Weekday() == time.Friday && curTime.Weekday() == time.Monday) {
			continue
		}
		gapPips := math.Abs(bars[i].Open-bars[i-1].Close) / pip
		var class string
		switch {
		case gapPips > 50:
			class = "critical"
		case gapPips > 20:
			class = "elevated"
		case gapPips > 5:
			class = "minor"
		}
		if rank(class) > rank(worst) {
			worst = class
		}
	}
	return worst
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
