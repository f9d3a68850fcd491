// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"testing"

	"github.com/ManuGH/frontdesk/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) AppConfig {
	t.Helper()
	var cfg AppConfig
	NewLoader("", "test").setDefaults(&cfg)
	cfg.DataDir = t.TempDir()
	cfg.Backend.AdminBaseURL = "http://127.0.0.1:5000"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*AppConfig)
		wantField string
	}{
		{"defaults are valid", func(*AppConfig) {}, ""},
		{"bad log level", func(c *AppConfig) { c.LogLevel = "loud" }, "logLevel"},
		{"bad listen addr", func(c *AppConfig) { c.API.ListenAddr = "8088" }, "api.listenAddr"},
		{"backend without scheme", func(c *AppConfig) { c.Backend.BaseURL = "visitors.local/api" }, "backend.baseURL"},
		{"zero upload timeout", func(c *AppConfig) { c.Backend.UploadTimeout = 0 }, "backend.uploadTimeout"},
		{"country code without plus", func(c *AppConfig) { c.Verification.CountryCode = "91" }, "verification.countryCode"},
		{"jpeg quality too high", func(c *AppConfig) { c.Camera.JPEGQuality = 101 }, "camera.jpegQuality"},
		{"min above ideal", func(c *AppConfig) { c.Camera.MinWidth = 1920 }, "camera.minWidth"},
		{"unknown facing", func(c *AppConfig) {
			c.Camera.Devices = []CameraDevice{{ID: "/dev/video0", Facing: "left"}}
		}, "camera.devices[0].facing"},
		{"duplicate device", func(c *AppConfig) {
			c.Camera.Devices = []CameraDevice{
				{ID: "/dev/video0", Facing: "environment"},
				{ID: "/dev/video0", Facing: "user"},
			}
		}, "camera.devices[1].id"},
		{"telemetry exporter", func(c *AppConfig) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "zipkin"
		}, "telemetry.exporter"},
		{"sampling rate", func(c *AppConfig) { c.Telemetry.SamplingRate = 2 }, "telemetry.samplingRate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)

			err := Validate(cfg)
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr validate.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields(), tt.wantField)
		})
	}
}
