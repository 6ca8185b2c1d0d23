package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fxrunner/engine/internal/config"
	"github.com/fxrunner/engine/internal/httpapi"
	applog "github.com/fxrunner/engine/internal/log"
	"github.com/fxrunner/engine/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/WebSocket API and background schedulers",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applog.Init(cfg.Environment, "info")
	logger := applog.Component("serve")

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}

	server, err := httpapi.NewServer(httpapi.ServerConfig{
		Host:         "127.0.0.1",
		Port:         cfg.Port,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, logger, a.handlers())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.NewScheduler(logger)
	if cfg.EnableRiskReports {
		sched.AddJob(scheduler.NewDailyRiskReportJob(6, riskSnapshotAdapter{a}, a.bus))
	}
	go sched.Start(ctx)

	go reconcileLoop(ctx, a)
	go riskMonitorLoop(ctx, a)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// reconcileLoop periodically diffs the broker router's locally tracked
// positions against each connector's live set and raises drift events.
func reconcileLoop(ctx context.Context, a *app) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, drift := range a.router.Reconcile(ctx) {
				a.log.Warn().Str("broker", drift.Broker).Str("trade_id", drift.TradeID).Str("reason", drift.Reason).Msg("position drift detected")
				if a.metrics != nil {
					a.metrics.BrokerDrift.WithLabelValues(drift.Broker, drift.Reason).Inc()
				}
			}
		}
	}
}

// riskMonitorLoop periodically recomputes correlation-cluster load and
// historical VaR from live exposure and recent price history, feeding
// CorrelationGate/VaRGate data that isn't permanently zero.
func riskMonitorLoop(ctx context.Context, a *app) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.riskMonitor.Run(ctx, time.Now()); err != nil {
				a.log.Warn().Err(err).Msg("risk monitor recompute failed")
			}
		}
	}
}

// riskSnapshotAdapter satisfies scheduler.RiskSnapshotProvider from the
// risk engine's exported state snapshot.
type riskSnapshotAdapter struct{ a *app }

func (r riskSnapshotAdapter) DailyRiskReportData(now time.Time) scheduler.RiskReportData {
	s := r.a.riskEngine.Snapshot()
	killed, reason := r.a.riskEngine.KillSwitchEngaged()
	return scheduler.RiskReportData{
		AccountBalance:    s.AccountBalance,
		DailyRiskUsedPct:  s.DailyRiskUsedPct,
		DailyRiskLimitPct: s.DailyRiskLimitPct,
		KillSwitchEngaged: killed,
		KillSwitchReason:  reason,
	}
}
