package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fxrunner/engine/internal/config"
	applog "github.com/fxrunner/engine/internal/log"
	"github.com/fxrunner/engine/internal/orchestrator"

	"github.com/fxrunner/engine/internal/domain"
)

func newSignalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal [pair]",
		Short: "Generate a single signal for one pair and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runSignal,
	}
	return cmd
}

func runSignal(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applog.Init(cfg.Environment, "info")
	logger := applog.Component("signal")

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}

	pair, err := domain.NewPair(args[0])
	if err != nil {
		return fmt.Errorf("invalid pair: %w", err)
	}

	result, err := a.coordinator.GenerateSignal(cmd.Context(), orchestrator.GenerateRequest{Pair: pair})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
