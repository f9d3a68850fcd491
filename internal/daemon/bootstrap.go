// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/frontdesk/internal/api"
	"github.com/ManuGH/frontdesk/internal/camera"
	"github.com/ManuGH/frontdesk/internal/camera/mediadev"
	"github.com/ManuGH/frontdesk/internal/config"
	"github.com/ManuGH/frontdesk/internal/health"
	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/ManuGH/frontdesk/internal/persistence/sqlite"
	"github.com/ManuGH/frontdesk/internal/settings"
	"github.com/ManuGH/frontdesk/internal/telemetry"
	"github.com/ManuGH/frontdesk/internal/upload"
	"github.com/ManuGH/frontdesk/internal/verification"
	"github.com/ManuGH/frontdesk/internal/wizard"
)

const verificationTimeout = 15 * time.Second

// BuildOptions overrides collaborators that otherwise come from config.
type BuildOptions struct {
	Media camera.MediaDevices
	Store settings.Store
}

// Runtime is the composed daemon, ready for App.Run.
type Runtime struct {
	Manager Manager
	Camera  *camera.Controller
	Wizard  *wizard.Wizard
	Store   settings.Store
	Health  *health.Manager
	API     *api.Server
}

// Build wires every kiosk component from cfg. On error, anything already
// opened is released before returning.
func Build(ctx context.Context, cfg config.AppConfig, opts BuildOptions) (_ *Runtime, retErr error) {
	logger := log.WithComponent("bootstrap")

	var cleanups []func(context.Context) error
	defer func() {
		if retErr == nil {
			return
		}
		for i := len(cleanups) - 1; i >= 0; i-- {
			_ = cleanups[i](context.WithoutCancel(ctx))
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		Environment:    os.Getenv("FRONTDESK_ENV"),
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	cleanups = append(cleanups, tp.Shutdown)

	store := opts.Store
	if store == nil {
		if store, err = OpenSettings(cfg.DataDir); err != nil {
			return nil, err
		}
	}
	cleanups = append(cleanups, func(context.Context) error { return store.Close() })

	media := opts.Media
	if media == nil {
		media = NewMediaDevices(cfg.Camera.Devices)
	}
	cam := camera.NewController(ctx, media, cameraOptions(cfg.Camera))
	cleanups = append(cleanups, func(ctx context.Context) error { cam.Stop(ctx); return nil })

	uploader := upload.NewClient(cfg.Backend.BaseURL, cfg.Backend.UploadTimeout,
		cfg.Backend.BreakerThreshold, cfg.Backend.BreakerReset)
	verifier := verification.NewClient(verification.Config{
		Endpoint:       cfg.Verification.Endpoint,
		APIKey:         cfg.Verification.APIKey,
		ResendCooldown: cfg.Verification.ResendCooldown,
		Timeout:        verificationTimeout,
	})

	wiz, err := wizard.New(ctx, wizard.Config{
		CountryCode:    cfg.Verification.CountryCode,
		MaxUploadBytes: cfg.Wizard.MaxUploadBytes,
		OTPDefault:     cfg.Verification.EnabledDefault,
	}, cam, verifier, uploader, store)
	if err != nil {
		return nil, fmt.Errorf("wizard: %w", err)
	}
	cleanups = append(cleanups, func(ctx context.Context) error { wiz.Close(ctx); return nil })

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewCameraChecker(cam))
	if p, ok := store.(health.Pinger); ok {
		hm.RegisterChecker(health.NewStoreChecker("settings", p))
	}
	hm.RegisterChecker(health.NewBreakerChecker(uploader.Breaker()))
	hm.RegisterChecker(health.NewBreakerChecker(verifier.Breaker()))

	srv, err := api.New(api.Deps{Camera: cam, Wizard: wiz, Health: hm}, api.Options{
		AllowedOrigins: cfg.API.AllowedOrigins,
		RateLimitRPM:   cfg.API.RateLimitRPM,
		TracingService: tracingService(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	mgr, err := NewManager(DefaultServerConfig(cfg.API.ListenAddr), Deps{
		Logger:     log.WithComponent("daemon"),
		APIHandler: srv.Handler(),
	})
	if err != nil {
		return nil, err
	}

	// LIFO: the wizard lets go of the camera first, telemetry flushes last.
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	mgr.RegisterShutdownHook("settings", func(context.Context) error { return store.Close() })
	mgr.RegisterShutdownHook("camera", func(ctx context.Context) error {
		st := cam.Stop(ctx)
		logger.Debug().Str(log.FieldNewState, string(st.State)).Msg("camera released")
		return nil
	})
	mgr.RegisterShutdownHook("wizard", func(ctx context.Context) error { wiz.Close(ctx); return nil })

	logger.Info().
		Str(log.FieldEvent, "bootstrap.complete").
		Int("devices", cam.DeviceCount()).
		Str("listen", cfg.API.ListenAddr).
		Msg("kiosk runtime built")

	return &Runtime{
		Manager: mgr,
		Camera:  cam,
		Wizard:  wiz,
		Store:   store,
		Health:  hm,
		API:     srv,
	}, nil
}

// OpenSettings opens the SQLite settings store, refusing a database that
// fails the quick integrity check.
func OpenSettings(dataDir string) (settings.Store, error) {
	if dataDir != "" {
		path := filepath.Join(dataDir, settings.SQLiteFile)
		if _, err := os.Stat(path); err == nil {
			problems, err := sqlite.VerifyIntegrity(path, "quick")
			if err != nil {
				return nil, fmt.Errorf("settings integrity: %w", err)
			}
			if len(problems) > 0 {
				return nil, fmt.Errorf("%w: %s", ErrSettingsCorrupt, strings.Join(problems, "; "))
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("settings: %w", err)
		}
	}
	store, err := settings.NewStore("sqlite", dataDir)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	return store, nil
}

// NewMediaDevices returns the pion-backed media layer for the configured device map.
func NewMediaDevices(devices []config.CameraDevice) camera.MediaDevices {
	return mediadev.NewBackend(deviceConfigs(devices))
}

func deviceConfigs(devices []config.CameraDevice) []mediadev.DeviceConfig {
	out := make([]mediadev.DeviceConfig, 0, len(devices))
	for _, d := range devices {
		out = append(out, mediadev.DeviceConfig{
			ID:        d.ID,
			Label:     d.Label,
			Facing:    camera.Facing(d.Facing),
			TorchPath: d.TorchPath,
		})
	}
	return out
}

func cameraOptions(c config.CameraConfig) camera.Options {
	opts := camera.DefaultOptions()
	if c.AcquireTimeout > 0 {
		opts.AcquireTimeout = c.AcquireTimeout
	}
	if c.IdealWidth > 0 && c.IdealHeight > 0 {
		opts.Ideal = camera.Resolution{Width: c.IdealWidth, Height: c.IdealHeight}
		opts.AspectRatio = float64(c.IdealWidth) / float64(c.IdealHeight)
	}
	if c.MinWidth > 0 && c.MinHeight > 0 {
		opts.Min = camera.Resolution{Width: c.MinWidth, Height: c.MinHeight}
	}
	if c.MaxCaptureDimension > 0 {
		opts.MaxCaptureDimension = c.MaxCaptureDimension
	}
	if c.JPEGQuality > 0 {
		opts.JPEGQuality = c.JPEGQuality
	}
	opts.MirrorFrontCapture = c.MirrorFrontCapture
	return opts
}

func tracingService(cfg config.AppConfig) string {
	if !cfg.Telemetry.Enabled {
		return ""
	}
	return cfg.LogService
}
