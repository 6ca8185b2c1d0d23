package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const appName = "fxenginectl"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	// Best-effort: a missing .env is normal in production, where config
	// comes from the process environment directly.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "FX signal engine control plane",
		Long:  "fxenginectl runs the signal generation engine's HTTP/WebSocket API and its background schedulers.",
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSignalCmd())
	rootCmd.AddCommand(newProvidersCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
