// Package main - academyctl, командная строка ученика Web3 Learning Hub.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/web3-hub/learning-hub/config"
	"github.com/web3-hub/learning-hub/internal/app"
	"github.com/web3-hub/learning-hub/internal/interface/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	factory := func(ctx context.Context) (*app.App, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if os.Getenv("LOG_LEVEL") == "" {
			cfg.Observability.LogLevel = "warn"
		}
		// Логи уходят в stderr, чтобы не смешиваться с выводом команд.
		return app.New(ctx, cfg, app.Options{LogOutput: os.Stderr})
	}

	if err := cli.Execute(ctx, factory, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "academyctl: %v\n", err)
		os.Exit(1)
	}
}
