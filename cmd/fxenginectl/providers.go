package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fxrunner/engine/internal/config"
	applog "github.com/fxrunner/engine/internal/log"
	"github.com/fxrunner/engine/internal/providers/health"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Dump current provider health/availability classification as JSON",
		RunE:  runProviders,
	}
}

func runProviders(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applog.Init(cfg.Environment, "info")
	logger := applog.Component("providers")

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}

	metricsByProvider := a.fetcher.Metrics()
	var breakerOpen []string
	for name, m := range metricsByProvider {
		if m.CircuitState == "open" {
			breakerOpen = append(breakerOpen, name)
		}
	}

	sample := a.classifier.Classify(health.FleetInput{
		Now:                  time.Now(),
		ProviderMetrics:      metricsByProvider,
		BreakerOpenProviders: breakerOpen,
	})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(sample)
}
