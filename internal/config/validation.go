// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/frontdesk/internal/validate"
)

// Facing modes accepted in the camera device map.
var validFacings = []string{"environment", "user"}

// Validate validates an AppConfig using the centralized validation package
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Directory("dataDir", cfg.DataDir, false)
	if _, err := validate.ParseLogLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		v.AddError("logLevel", validate.ErrInvalidLogLevel.Message, cfg.LogLevel)
	}

	v.ListenAddr("api.listenAddr", cfg.API.ListenAddr)
	v.NonNegative("api.rateLimitRPM", cfg.API.RateLimitRPM)
	for _, origin := range cfg.API.AllowedOrigins {
		if origin == "*" {
			continue
		}
		v.URL("api.allowedOrigins", origin, []string{"http", "https"})
	}

	v.URL("backend.baseURL", cfg.Backend.BaseURL, []string{"http", "https"})
	v.URL("backend.adminBaseURL", cfg.Backend.AdminBaseURL, []string{"http", "https"})
	v.DurationRange("backend.uploadTimeout", cfg.Backend.UploadTimeout, time.Second, 5*time.Minute)
	v.Range("backend.breakerThreshold", cfg.Backend.BreakerThreshold, 1, 100)
	v.DurationRange("backend.breakerReset", cfg.Backend.BreakerReset, time.Second, time.Hour)

	v.URL("verification.endpoint", cfg.Verification.Endpoint, []string{"http", "https"})
	if !strings.HasPrefix(cfg.Verification.CountryCode, "+") || len(cfg.Verification.CountryCode) < 2 {
		v.AddError("verification.countryCode", "must start with + followed by digits", cfg.Verification.CountryCode)
	}
	v.DurationRange("verification.resendCooldown", cfg.Verification.ResendCooldown, 0, 10*time.Minute)

	cam := cfg.Camera
	v.DurationRange("camera.acquireTimeout", cam.AcquireTimeout, time.Second, 2*time.Minute)
	v.Positive("camera.idealWidth", cam.IdealWidth)
	v.Positive("camera.idealHeight", cam.IdealHeight)
	v.Positive("camera.minWidth", cam.MinWidth)
	v.Positive("camera.minHeight", cam.MinHeight)
	if cam.MinWidth > cam.IdealWidth || cam.MinHeight > cam.IdealHeight {
		v.AddError("camera.minWidth", "minimum resolution exceeds ideal resolution",
			fmt.Sprintf("%dx%d > %dx%d", cam.MinWidth, cam.MinHeight, cam.IdealWidth, cam.IdealHeight))
	}
	v.Range("camera.maxCaptureDimension", cam.MaxCaptureDimension, 320, 8192)
	v.Range("camera.jpegQuality", cam.JPEGQuality, 1, 100)

	seen := make(map[string]struct{}, len(cam.Devices))
	for i, dev := range cam.Devices {
		field := fmt.Sprintf("camera.devices[%d]", i)
		v.NotEmpty(field+".id", dev.ID)
		v.OneOf(field+".facing", dev.Facing, validFacings)
		if _, dup := seen[dev.ID]; dup {
			v.AddError(field+".id", "duplicate device id", dev.ID)
		}
		seen[dev.ID] = struct{}{}
	}

	if cfg.Wizard.MaxUploadBytes <= 0 {
		v.AddError("wizard.maxUploadBytes", "value must be positive", cfg.Wizard.MaxUploadBytes)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
	}
	v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)

	return v.Err()
}
