// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/frontdesk/internal/config"
	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment before the daemon starts serving.
// Only an unusable data directory is fatal; camera problems are logged because
// the kiosk can still accept uploaded card images.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}

	checkCameraDevices(logger, cfg.Camera.Devices)

	if cfg.Verification.APIKey == "" {
		logger.Warn().
			Str(log.FieldEvent, "startup.otp_unconfigured").
			Msg("verification API key not set; OTP verification will fail until configured")
	}

	logger.Info().Msg("startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str(log.FieldPath, path).Msg("data directory is writable")
	return nil
}

func checkCameraDevices(logger zerolog.Logger, devices []config.CameraDevice) {
	if len(devices) == 0 {
		logger.Info().Msg("no camera device map configured; facing modes will be reported as unknown")
		return
	}
	for _, dev := range devices {
		if strings.HasPrefix(dev.ID, "/dev/") {
			if _, err := os.Stat(dev.ID); err != nil {
				logger.Warn().
					Err(err).
					Str(log.FieldDevice, dev.ID).
					Str(log.FieldFacing, dev.Facing).
					Msg("configured camera device is not present")
			}
		}
		if dev.TorchPath == "" {
			continue
		}
		f, err := os.OpenFile(dev.TorchPath, os.O_WRONLY, 0) // #nosec G304 -- path comes from operator config
		if err != nil {
			logger.Warn().
				Err(err).
				Str(log.FieldDevice, dev.ID).
				Str(log.FieldPath, dev.TorchPath).
				Msg("torch control is not writable; flash will be reported unsupported")
			continue
		}
		_ = f.Close()
	}
}
