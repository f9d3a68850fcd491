// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/ManuGH/frontdesk/internal/config"
	"github.com/ManuGH/frontdesk/internal/daemon"
	"github.com/ManuGH/frontdesk/internal/health"
	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/ManuGH/frontdesk/internal/version"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the kiosk daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	log.Configure(log.Config{
		Level:   "info",
		Service: "frontdesk",
		Version: version.Version,
	})
	logger := log.WithComponent("daemon")

	loader := opts.loader()
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str(log.FieldPath, loader.Path()).
			Msg("failed to load configuration")
		return fmt.Errorf("load configuration: %w", err)
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	logger = log.WithComponent("daemon")

	source := "env+defaults"
	if loader.Path() != "" {
		source = "file"
	}
	logger.Info().
		Str(log.FieldEvent, "config.loaded").
		Str("source", source).
		Str(log.FieldPath, loader.Path()).
		Stringer("config", cfg).
		Msg("loaded configuration")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "startup.check_failed").
			Msg("Startup checks failed. Please verify configuration and permissions.")
		return err
	}

	rt, err := daemon.Build(ctx, cfg, daemon.BuildOptions{})
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	var holder *config.ConfigHolder
	if loader.Path() != "" {
		holder = config.NewConfigHolder(cfg, loader)
	}

	app := daemon.NewApp(logger, rt.Manager, holder)
	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "daemon.failed").Msg("daemon stopped with error")
		return err
	}
	logger.Info().Str(log.FieldEvent, "daemon.stopped").Msg("daemon stopped")
	return nil
}
