package risk

import (
	"context"
	"time"

	"github.com/fxrunner/engine/internal/domain"
)

// BarSource is the narrow C1 read path the monitor replays closes from to
// build each tracked pair's return series.
type BarSource interface {
	FetchBars(ctx context.Context, pair domain.Pair, tf domain.Timeframe, n int) ([]domain.Bar, error)
}

// PositionSource is the narrow C10 read path the monitor sums live
// exposure from; *broker.Router satisfies this directly.
type PositionSource interface {
	ConnectedBrokerIDs() []string
	GetPositions(ctx context.Context, broker string) ([]domain.Trade, error)
}

// MonitorConfig tunes the periodic correlation/VaR recompute.
type MonitorConfig struct {
	Pairs                []domain.Pair
	Timeframe            domain.Timeframe
	Lookback             int
	CorrelationThreshold float64
	VaRConfidence        float64
}

func DefaultMonitorConfig(pairs []domain.Pair) MonitorConfig {
	return MonitorConfig{
		Pairs:                pairs,
		Timeframe:            domain.H1,
		Lookback:             120,
		CorrelationThreshold: 0.7,
		VaRConfidence:        0.95,
	}
}

// Monitor is the periodic risk-monitor task (C9): it recomputes the
// correlation-cluster load and historical VaR from live trade exposure and
// recent price history, then pushes both into the engine so
// CorrelationGate/VaRGate gate against live data rather than their zero
// value.
type Monitor struct {
	engine    *Engine
	bars      BarSource
	positions PositionSource
	cfg       MonitorConfig
}

func NewMonitor(engine *Engine, bars BarSource, positions PositionSource, cfg MonitorConfig) *Monitor {
	return &Monitor{engine: engine, bars: bars, positions: positions, cfg: cfg}
}

// Run fetches live exposure and recent returns, recomputes the correlation
// cluster load and a historical-simulation VaR, and records both on the
// engine.
func (m *Monitor) Run(ctx context.Context, now time.Time) error {
	exposurePct, err := m.liveExposurePct(ctx)
	if err != nil {
		return err
	}

	returns := m.recentReturns(ctx)

	pairs := HighCorrelationPairs(returns, m.cfg.CorrelationThreshold)
	m.engine.SetCorrelationLoad(ClusterLoad(exposurePct, pairs))

	portfolio := weightedPortfolioReturns(returns, exposurePct)
	m.engine.SetVaR(HistoricalVaR(portfolio, m.cfg.VaRConfidence) * 100)

	return nil
}

// liveExposurePct sums each open trade's notional against account balance,
// the exposure-by-symbol ClusterLoad clusters by correlation.
func (m *Monitor) liveExposurePct(ctx context.Context) (map[string]float64, error) {
	balance := m.engine.Snapshot().AccountBalance
	exposurePct := make(map[string]float64)
	if balance <= 0 {
		return exposurePct, nil
	}
	for _, brokerID := range m.positions.ConnectedBrokerIDs() {
		trades, err := m.positions.GetPositions(ctx, brokerID)
		if err != nil {
			return nil, err
		}
		for _, t := range trades {
			if t.Status != domain.TradeOpen {
				continue
			}
			exposurePct[t.Pair.Symbol] += t.PositionSize * t.EntryPrice / balance * 100
		}
	}
	return exposurePct, nil
}

// recentReturns fetches Lookback+1 bars per tracked pair and converts
// closes to a simple period-over-period return series.
func (m *Monitor) recentReturns(ctx context.Context) ReturnSeries {
	returns := make(ReturnSeries, len(m.cfg.Pairs))
	for _, pair := range m.cfg.Pairs {
		bars, err := m.bars.FetchBars(ctx, pair, m.cfg.Timeframe, m.cfg.Lookback+1)
		if err != nil || len(bars) < 2 {
			continue
		}
		series := make([]float64, 0, len(bars)-1)
		for i := 1; i < len(bars); i++ {
			prev := bars[i-1].Close
			if prev == 0 {
				continue
			}
			series = append(series, (bars[i].Close-prev)/prev)
		}
		if len(series) > 0 {
			returns[pair.Symbol] = series
		}
	}
	return returns
}

// weightedPortfolioReturns blends each symbol's return series by its
// exposure share into a single portfolio return series, aligned over the
// shortest common length.
func weightedPortfolioReturns(returns ReturnSeries, exposurePct map[string]float64) []float64 {
	var totalWeight float64
	for _, w := range exposurePct {
		totalWeight += w
	}
	if totalWeight <= 0 {
		return nil
	}

	minLen := -1
	for symbol := range exposurePct {
		series, ok := returns[symbol]
		if !ok || len(series) == 0 {
			continue
		}
		if minLen == -1 || len(series) < minLen {
			minLen = len(series)
		}
	}
	if minLen <= 0 {
		return nil
	}

	portfolio := make([]float64, minLen)
	for symbol, weight := range exposurePct {
		series, ok := returns[symbol]
		if !ok {
			continue
		}
		offset := len(series) - minLen
		share := weight / totalWeight
		for i := 0; i < minLen; i++ {
			portfolio[i] += share * series[offset+i]
		}
	}
	return portfolio
}
