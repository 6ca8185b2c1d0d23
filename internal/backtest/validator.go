// Package backtest implements the live backtest validator (C8): given a
// directional signal it replays a lookback of bars as a vectorized stream
// of same-direction entry candidates and checks the resulting performance
// summary against minimum thresholds.
package backtest

import (
	"context"
	"math"

	"github.com/fxrunner/engine/internal/domain"
)

// BarSource is the narrow read path the validator needs from C1.
type BarSource interface {
	FetchBars(ctx context.Context, pair domain.Pair, tf domain.Timeframe, n int) ([]domain.Bar, error)
}

// Thresholds are the pass/fail gates applied to the performance summary.
type Thresholds struct {
	MinTrades          int
	MinWinRate         float64
	MinProfitFactor    float64
	MaxDrawdownPct     float64
	MinExpectancyPct   float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{MinTrades: 20, MinWinRate: 0.62, MinProfitFactor: 1.1, MaxDrawdownPct: 18, MinExpectancyPct: 0.2}
}

// Config controls the lookback window and replay parameters.
type Config struct {
	LookbackTimeframe domain.Timeframe
	LookbackBars      int
	Stride            int
	HoldBars          int
	DefaultTPPips     float64
	DefaultSLPips     float64
	Thresholds        Thresholds
}

func DefaultConfig() Config {
	return Config{
		LookbackTimeframe: domain.M15,
		LookbackBars:      30 * 96, // 30 days at M15 (96 bars a day), under the 3200-bar cap
		Stride:            4,
		HoldBars:          12,
		DefaultTPPips:     40,
		DefaultSLPips:     22,
		Thresholds:        DefaultThresholds(),
	}
}

// Outcome is the verdict: Passed, or Skipped (not a failure) when there
// wasn't enough data or the signal is non-directional.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Summary is the vectorized backtest's aggregate performance.
type Summary struct {
	TotalTrades    int
	WinRate        float64
	ProfitFactor   float64
	MaxDrawdownPct float64
	Sharpe         float64
	ExpectancyPct  float64
}

// Result is the validator's full contract output.
type Result struct {
	Outcome    Outcome
	Reasons    []string
	Metrics    Summary
	Window     int
	Thresholds Thresholds
}

// Validator runs the live backtest gate for a directional signal.
type Validator struct {
	bars BarSource
	cfg  Config
}

func NewValidator(bars BarSource, cfg Config) *Validator {
	return &Validator{bars: bars, cfg: cfg}
}

// ValidateSignal replays recent bars as same-direction entry candidates at
// the configured stride and scores the resulting trade stream.
func (v *Validator) ValidateSignal(ctx context.Context, signal domain.Signal, pair domain.Pair) Result {
	if signal.Direction == domain.Neutral {
		return Result{Outcome: OutcomeSkipped, Reasons: []string{"signal is non-directional"}, Thresholds: v.cfg.Thresholds}
	}

	bars, err := v.bars.FetchBars(ctx, pair, v.cfg.LookbackTimeframe, v.cfg.LookbackBars)
	if err != nil || len(bars) < v.cfg.HoldBars+v.cfg.Stride {
		return Result{Outcome: OutcomeSkipped, Reasons: []string{"insufficient bars for backtest"}, Thresholds: v.cfg.Thresholds}
	}

	pip := pair.PipSize()
	tpPips := v.cfg.DefaultTPPips
	slPips := v.cfg.DefaultSLPips
	if signal.Entry != nil && signal.Entry.RiskReward > 0 {
		slPips = math.Abs(signal.Entry.Price-signal.Entry.StopLoss) / pip
		tpPips = math.Abs(signal.Entry.TakeProfit-signal.Entry.Price) / pip
	}

	trades := replay(bars, signal.Direction, v.cfg.Stride, v.cfg.HoldBars, tpPips*pip, slPips*pip)
	summary := summarize(trades)

	result := Result{Metrics: summary, Window: len(bars), Thresholds: v.cfg.Thresholds}

	var reasons []string
	if summary.TotalTrades < v.cfg.Thresholds.MinTrades {
		reasons = append(reasons, "min_trades")
	}
	if summary.WinRate < v.cfg.Thresholds.MinWinRate {
		reasons = append(reasons, "min_win_rate")
	}
	if summary.ProfitFactor < v.cfg.Thresholds.MinProfitFactor {
		reasons = append(reasons, "min_profit_factor")
	}
	if summary.MaxDrawdownPct > v.cfg.Thresholds.MaxDrawdownPct {
		reasons = append(reasons, "max_drawdown")
	}
	if summary.ExpectancyPct < v.cfg.Thresholds.MinExpectancyPct {
		reasons = append(reasons, "min_expectancy")
	}

	if len(reasons) == 0 {
		result.Outcome = OutcomePassed
	} else {
		result.Outcome = OutcomeFailed
		result.Reasons = reasons
	}
	return result
}

type tradeResult struct {
	pnlPct float64
	won    bool
}

// replay synthesizes same-direction entry candidates at `stride` and
// computes each one's outcome using fixed TP/SL in price terms, exiting at
// holdBars if neither level is hit.
func replay(bars []domain.Bar, direction domain.Direction, stride, holdBars int, tp, sl float64) []tradeResult {
	var trades []tradeResult
	for i := 0; i+holdBars < len(bars); i += stride {
		entry := bars[i].Close
		var tpLevel, slLevel float64
		if direction == domain.Buy {
			tpLevel, slLevel = entry+tp, entry-sl
		} else {
			tpLevel, slLevel = entry-tp, entry+sl
		}

		exit := bars[i+holdBars].Close
		won := false
		for j := i + 1; j <= i+holdBars; j++ {
			if direction == domain.Buy {
				if bars[j].High >= tpLevel {
					exit, won = tpLevel, true
					break
				}
				if bars[j].Low <= slLevel {
					exit, won = slLevel, false
					break
				}
			} else {
				if bars[j].Low <= tpLevel {
					exit, won = tpLevel, true
					break
				}
				if bars[j].High >= slLevel {
					exit, won = slLevel, false
					break
				}
			}
		}

		pnlPct := (exit - entry) / entry * 100
		if direction == domain.Sell {
			pnlPct = -pnlPct
		}
		trades = append(trades, tradeResult{pnlPct: pnlPct, won: pnlPct > 0 || won})
	}
	return trades
}

func summarize(trades []tradeResult) Summary {
	if len(trades) == 0 {
		return Summary{}
	}

	wins, grossProfit, grossLoss := 0, 0.0, 0.0
	var pnls []float64
	equity, peak, maxDD := 0.0, 0.0, 0.0

	for _, t := range trades {
		pnls = append(pnls, t.pnlPct)
		if t.pnlPct > 0 {
			wins++
			grossProfit += t.pnlPct
		} else {
			grossLoss += -t.pnlPct
		}
		equity += t.pnlPct
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > maxDD {
			maxDD = dd
		}
	}

	winRate := float64(wins) / float64(len(trades))
	profitFactor := 0.0
	if grossLoss > 0 {
		profitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		profitFactor = grossProfit
	}

	mean := 0.0
	for _, p := range pnls {
		mean += p
	}
	mean /= float64(len(pnls))

	variance := 0.0
	for _, p := range pnls {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(pnls))
	stdDev := math.Sqrt(variance)

	sharpe := 0.0
	if stdDev > 0 {
		sharpe = mean / stdDev * math.Sqrt(float64(len(pnls)))
	}

	return Summary{
		TotalTrades:    len(trades),
		WinRate:        winRate,
		ProfitFactor:   profitFactor,
		MaxDrawdownPct: maxDD,
		Sharpe:         sharpe,
		ExpectancyPct:  mean,
	}
}
