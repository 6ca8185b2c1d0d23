package scheduler

import (
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fxrunner/engine/internal/alerts"
)

// RiskSnapshotProvider supplies the numbers the daily risk report
// summarizes; the orchestrator's risk engine and trade manager satisfy this.
type RiskSnapshotProvider interface {
	DailyRiskReportData(now time.Time) RiskReportData
}

// RiskReportData is everything the daily risk report narrates.
type RiskReportData struct {
	AccountBalance    float64
	DailyRiskUsedPct  float64
	DailyRiskLimitPct float64
	OpenPositions     int
	ClosedToday       int
	WinRateToday      float64
	TopTrades         []TradeSummary
	ProviderAlerts    []string
	KillSwitchEngaged bool
	KillSwitchReason  string
}

// TradeSummary is one line in the "top trades" section.
type TradeSummary struct {
	Pair    string
	PnLPct  float64
	Outcome string
}

// PerformanceSnapshotProvider supplies the rolling performance stats the
// digest renders.
type PerformanceSnapshotProvider interface {
	PerformanceDigestData(now time.Time) PerformanceReportData
}

// PerformanceReportData mirrors the backtest validator's summary shape at a
// portfolio level.
type PerformanceReportData struct {
	WindowDays    int
	TotalTrades   int
	WinRate       float64
	ProfitFactor  float64
	MaxDrawdown   float64
	Sharpe        float64
	Expectancy    float64
}

// ReportsDir is where digest artifacts are written, relative to the process
// working directory.
const ReportsDir = "reports/digests"

// NewDailyRiskReportJob builds the scheduled job that summarizes risk state
// and publishes it on the alert bus.
func NewDailyRiskReportJob(hour int, provider RiskSnapshotProvider, bus *alerts.Bus) Job {
	return Job{
		Name: "daily_risk_report",
		Hour: hour,
		Run: func(ctx context.Context) error {
			data := provider.DailyRiskReportData(time.Now())
			body := renderRiskReportText(data)

			bus.Publish(alerts.Publication{
				Topic:    "risk.daily_report",
				Severity: alerts.SeverityInfo,
				Subject:  "Daily risk report",
				Message:  fmt.Sprintf("balance=%.2f daily_risk_used=%.2f%% open=%d", data.AccountBalance, data.DailyRiskUsedPct, data.OpenPositions),
				Body:     body,
				Channels: []alerts.Channel{alerts.ChannelLog, alerts.ChannelSlack},
			})
			return nil
		},
	}
}

func renderRiskReportText(d RiskReportData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily Risk Report\n")
	fmt.Fprintf(&b, "Account balance: %.2f\n", d.AccountBalance)
	fmt.Fprintf(&b, "Daily risk used: %.2f%% / %.2f%%\n", d.DailyRiskUsedPct, d.DailyRiskLimitPct)
	fmt.Fprintf(&b, "Open positions: %d, closed today: %d, win rate today: %.1f%%\n", d.OpenPositions, d.ClosedToday, d.WinRateToday)
	if d.KillSwitchEngaged {
		fmt.Fprintf(&b, "KILL SWITCH ENGAGED: %s\n", d.KillSwitchReason)
	}
	if len(d.ProviderAlerts) > 0 {
		fmt.Fprintf(&b, "Provider alerts: %s\n", strings.Join(d.ProviderAlerts, "; "))
	}
	for _, t := range d.TopTrades {
		fmt.Fprintf(&b, "  %s %s %.2f%%\n", t.Pair, t.Outcome, t.PnLPct)
	}
	return b.String()
}

// NewPerformanceDigestJob builds the scheduled job that renders an HTML +
// text performance artifact under reports/digests and publishes the
// resulting paths.
func NewPerformanceDigestJob(hour int, provider PerformanceSnapshotProvider, bus *alerts.Bus) Job {
	return Job{
		Name: "performance_digest",
		Hour: hour,
		Run: func(ctx context.Context) error {
			data := provider.PerformanceDigestData(time.Now())
			stamp := time.Now().UTC().Format("20060102_150405")

			if err := os.MkdirAll(ReportsDir, 0o755); err != nil {
				return fmt.Errorf("create digests dir: %w", err)
			}

			textPath := filepath.Join(ReportsDir, fmt.Sprintf("%s_performance.txt", stamp))
			htmlPath := filepath.Join(ReportsDir, fmt.Sprintf("%s_performance.html", stamp))

			if err := os.WriteFile(textPath, []byte(renderPerformanceText(data)), 0o644); err != nil {
				return fmt.Errorf("write performance text digest: %w", err)
			}
			if err := renderPerformanceHTML(htmlPath, data); err != nil {
				return fmt.Errorf("write performance html digest: %w", err)
			}

			bus.Publish(alerts.Publication{
				Topic:    "performance.digest",
				Severity: alerts.SeverityInfo,
				Subject:  "Performance digest",
				Message:  fmt.Sprintf("win_rate=%.1f%% profit_factor=%.2f trades=%d", data.WinRate, data.ProfitFactor, data.TotalTrades),
				Context:  map[string]interface{}{"text_path": textPath, "html_path": htmlPath},
				Channels: []alerts.Channel{alerts.ChannelLog},
			})
			return nil
		},
	}
}

func renderPerformanceText(d PerformanceReportData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Performance Digest (last %d days)\n", d.WindowDays)
	fmt.Fprintf(&b, "Trades: %d  Win rate: %.1f%%  Profit factor: %.2f\n", d.TotalTrades, d.WinRate, d.ProfitFactor)
	fmt.Fprintf(&b, "Max drawdown: %.2f%%  Sharpe: %.2f  Expectancy: %.3f%%\n", d.MaxDrawdown, d.Sharpe, d.Expectancy)
	return b.String()
}

var performanceHTMLTemplate = template.Must(template.New("digest").Parse(`<!doctype html>
<html><body>
<h1>Performance Digest ({{.WindowDays}} days)</h1>
<ul>
<li>Trades: {{.TotalTrades}}</li>
<li>Win rate: {{printf "%.1f" .WinRate}}%</li>
<li>Profit factor: {{printf "%.2f" .ProfitFactor}}</li>
<li>Max drawdown: {{printf "%.2f" .MaxDrawdown}}%</li>
<li>Sharpe: {{printf "%.2f" .Sharpe}}</li>
<li>Expectancy: {{printf "%.3f" .Expectancy}}%</li>
</ul>
</body></html>
`))

func renderPerformanceHTML(path string, d PerformanceReportData) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return performanceHTMLTemplate.Execute(f, d)
}
