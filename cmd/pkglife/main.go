package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantmind-br/pkglife/internal/cmd"
	"github.com/quantmind-br/pkglife/internal/config"
	"github.com/quantmind-br/pkglife/internal/logging"
	"github.com/quantmind-br/pkglife/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}

	ui.InitColors(cfg.Logging.Color)

	log := logging.NewLogger(logging.Config{
		Level:   cfg.Logging.Level,
		LogFile: cfg.Paths.LogFile,
		Color:   cfg.Logging.Color,
	})

	rootCmd := cmd.NewRootCmd(cfg, log, version)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		code := cmd.ExitCode(err)
		log.Error().Err(err).Int("exit_code", code).Msg("command failed")
		return code
	}
	return 0
}
