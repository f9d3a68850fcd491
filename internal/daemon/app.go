// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/frontdesk/internal/audit"
	"github.com/ManuGH/frontdesk/internal/config"
	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/rs/zerolog"
)

// App owns the long-lived runtime lifecycle (config watcher, reload wiring)
// and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.ConfigHolder
	reloadSignal os.Signal
	setLevel     func(string) error
	audit        *audit.Logger
}

// NewApp creates a new App orchestrator. cfgHolder may be nil when the
// daemon runs without a config file.
func NewApp(logger zerolog.Logger, manager Manager, cfgHolder *config.ConfigHolder) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		reloadSignal: syscall.SIGHUP,
		setLevel:     log.SetLevel,
		audit:        audit.NewLogger(),
	}
}

// Run starts all owned background subsystems and blocks until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfgHolder != nil {
		// Best-effort: the kiosk still serves with the config it started with.
		if err := a.cfgHolder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		defer a.cfgHolder.Stop()

		applyCh := make(chan config.AppConfig, 1)
		a.cfgHolder.RegisterListener(applyCh)
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					a.apply(cfg)
				}
			}
		})
	}

	if a.cfgHolder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str("event", "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")

					if err := a.cfgHolder.Reload(context.Background()); err != nil {
						a.logger.Warn().
							Err(err).
							Str("event", "config.reload_failed").
							Msg("config reload failed")
						a.audit.ConfigReload("signal", audit.ResultFailure, map[string]string{"error": err.Error()})
					}
				}
			}
		})
	}

	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}

// apply pushes the hot-reloadable parts of a new config into the runtime.
// Camera, backend and listener settings need a restart.
func (a *App) apply(cfg config.AppConfig) {
	if cfg.LogLevel == "" {
		return
	}
	if err := a.setLevel(cfg.LogLevel); err != nil {
		a.logger.Warn().
			Err(err).
			Str("event", "config.log_level_invalid").
			Str("level", cfg.LogLevel).
			Msg("ignoring invalid log level")
		return
	}
	a.logger.Info().
		Str("event", "config.applied").
		Str("level", cfg.LogLevel).
		Msg("applied reloaded config")
	a.audit.ConfigReload("system", audit.ResultSuccess, map[string]string{"log_level": cfg.LogLevel})
}
