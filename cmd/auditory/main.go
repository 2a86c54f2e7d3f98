package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/davparache/auditory-updated/internal/config"
	"github.com/davparache/auditory-updated/internal/logging"
)

var cfg *config.Config

func main() {
	// Load .env if present (Overload overwrites existing env vars).
	if err := godotenv.Overload(); err == nil {
		slog.Info("loaded .env file")
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
