// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	fdlog "github.com/ManuGH/frontdesk/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 500 * time.Millisecond

// ConfigHolder holds configuration with atomic reloading capability.
// It provides thread-safe access to configuration and supports hot reloading
// from file changes or SIGHUP.
type ConfigHolder struct {
	mu         sync.RWMutex
	current    AppConfig
	loader     *Loader
	configPath string
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger

	timerMu  sync.Mutex
	debounce *time.Timer

	reloadMu        sync.RWMutex
	reloadListeners []chan<- AppConfig
}

// NewConfigHolder creates a new configuration holder with initial config.
func NewConfigHolder(initial AppConfig, loader *Loader) *ConfigHolder {
	return &ConfigHolder{
		current:    initial,
		loader:     loader,
		configPath: loader.Path(),
		logger:     fdlog.WithComponent("config"),
	}
}

// Get returns the current configuration (thread-safe read).
func (h *ConfigHolder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload reloads configuration and swaps it in only if it loads and validates.
// On failure the previous configuration stays active.
func (h *ConfigHolder) Reload(_ context.Context) error {
	h.logger.Info().Str(fdlog.FieldEvent, "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(fdlog.FieldEvent, "config.reload_failed").
			Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.current
	h.current = newCfg
	h.mu.Unlock()

	h.notifyListeners(newCfg)
	h.logChanges(oldCfg, newCfg)

	h.logger.Info().
		Str(fdlog.FieldEvent, "config.reload_success").
		Msg("configuration reloaded successfully")
	return nil
}

// StartWatcher starts watching the config file for changes.
// If no file is configured, this is a no-op (config comes from ENV only).
func (h *ConfigHolder) StartWatcher(ctx context.Context) error {
	if h.configPath == "" {
		h.logger.Info().
			Str(fdlog.FieldEvent, "config.watcher_disabled").
			Msg("config file watcher disabled (using ENV-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Editors replace the file on save, so watch the directory and filter by name.
	if err := watcher.Add(filepath.Dir(h.configPath)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.watcher = watcher

	h.logger.Info().
		Str(fdlog.FieldEvent, "config.watcher_started").
		Str(fdlog.FieldPath, h.configPath).
		Msg("watching config file for changes")

	go h.watchLoop(ctx, watcher)
	return nil
}

func (h *ConfigHolder) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	target := filepath.Clean(h.configPath)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str(fdlog.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			h.Stop()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				h.logger.Debug().
					Str(fdlog.FieldEvent, "config.file_changed").
					Str(fdlog.FieldOperation, event.Op.String()).
					Msg("config file changed")
				h.scheduleReload(ctx)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().
				Err(err).
				Str(fdlog.FieldEvent, "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

func (h *ConfigHolder) scheduleReload(ctx context.Context) {
	h.timerMu.Lock()
	defer h.timerMu.Unlock()
	if h.debounce != nil {
		h.debounce.Stop()
	}
	h.debounce = time.AfterFunc(reloadDebounce, func() {
		if ctx.Err() != nil {
			return
		}
		if err := h.Reload(ctx); err != nil {
			h.logger.Error().
				Err(err).
				Str(fdlog.FieldEvent, "config.auto_reload_failed").
				Msg("automatic config reload failed")
		}
	})
}

// Stop stops the config watcher and any pending debounced reload.
func (h *ConfigHolder) Stop() {
	h.timerMu.Lock()
	if h.debounce != nil {
		h.debounce.Stop()
	}
	h.timerMu.Unlock()
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}

// RegisterListener registers a channel to receive config reload notifications.
// The channel will receive the new config whenever a reload succeeds.
// The caller is responsible for closing the channel.
func (h *ConfigHolder) RegisterListener(ch chan<- AppConfig) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	h.reloadListeners = append(h.reloadListeners, ch)
}

// notifyListeners sends the new config to all registered listeners (non-blocking).
func (h *ConfigHolder) notifyListeners(newCfg AppConfig) {
	h.reloadMu.RLock()
	defer h.reloadMu.RUnlock()

	for _, ch := range h.reloadListeners {
		select {
		case ch <- newCfg:
		default:
			h.logger.Warn().
				Str(fdlog.FieldEvent, "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

// logChanges logs the reloadable settings that differ.
func (h *ConfigHolder) logChanges(old, newCfg AppConfig) {
	if old.LogLevel != newCfg.LogLevel {
		h.logger.Info().
			Str("old", old.LogLevel).
			Str("new", newCfg.LogLevel).
			Msg("config changed: logLevel")
	}
	if old.Backend.BaseURL != newCfg.Backend.BaseURL {
		h.logger.Info().
			Str("old", old.Backend.BaseURL).
			Str("new", newCfg.Backend.BaseURL).
			Msg("config changed: backend.baseURL")
	}
	if old.Verification.APIKey != newCfg.Verification.APIKey {
		h.logger.Info().Msg("config changed: verification.apiKey")
	}
	if old.Verification.EnabledDefault != newCfg.Verification.EnabledDefault {
		h.logger.Info().
			Bool("old", old.Verification.EnabledDefault).
			Bool("new", newCfg.Verification.EnabledDefault).
			Msg("config changed: verification.enabledDefault")
	}
	if old.Camera.AcquireTimeout != newCfg.Camera.AcquireTimeout {
		h.logger.Info().
			Dur("old", old.Camera.AcquireTimeout).
			Dur("new", newCfg.Camera.AcquireTimeout).
			Msg("config changed: camera.acquireTimeout")
	}
	if len(old.Camera.Devices) != len(newCfg.Camera.Devices) {
		h.logger.Info().
			Int("old", len(old.Camera.Devices)).
			Int("new", len(newCfg.Camera.Devices)).
			Msg("config changed: camera.devices (restart required)")
	}
}
