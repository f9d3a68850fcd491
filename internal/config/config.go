// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for frontdesk.
package config

import (
	"fmt"
	"strings"
	"time"
)

// FileConfig represents the YAML configuration structure
type FileConfig struct {
	DataDir    string `yaml:"dataDir,omitempty"`
	LogLevel   string `yaml:"logLevel,omitempty"`
	LogService string `yaml:"logService,omitempty"`

	API          APIFileConfig          `yaml:"api,omitempty"`
	Backend      BackendFileConfig      `yaml:"backend,omitempty"`
	Verification VerificationFileConfig `yaml:"verification,omitempty"`
	Camera       CameraFileConfig       `yaml:"camera,omitempty"`
	Wizard       WizardFileConfig       `yaml:"wizard,omitempty"`
	Telemetry    TelemetryFileConfig    `yaml:"telemetry,omitempty"`
}

// APIFileConfig holds the kiosk HTTP API settings
type APIFileConfig struct {
	ListenAddr     string   `yaml:"listenAddr,omitempty"`
	RateLimitRPM   *int     `yaml:"rateLimitRPM,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// BackendFileConfig holds the upload and admin backend settings
type BackendFileConfig struct {
	BaseURL          string `yaml:"baseUrl,omitempty"`
	AdminBaseURL     string `yaml:"adminBaseUrl,omitempty"`
	UploadTimeout    string `yaml:"uploadTimeout,omitempty"` // e.g. "30s"
	BreakerThreshold int    `yaml:"breakerThreshold,omitempty"`
	BreakerReset     string `yaml:"breakerReset,omitempty"` // e.g. "30s"
}

// VerificationFileConfig holds the phone OTP provider settings
type VerificationFileConfig struct {
	Endpoint       string `yaml:"endpoint,omitempty"`
	APIKey         string `yaml:"apiKey,omitempty"`
	CountryCode    string `yaml:"countryCode,omitempty"`
	ResendCooldown string `yaml:"resendCooldown,omitempty"`
	EnabledDefault *bool  `yaml:"enabledDefault,omitempty"`
}

// CameraFileConfig holds capture settings and the device map
type CameraFileConfig struct {
	AcquireTimeout      string         `yaml:"acquireTimeout,omitempty"`
	IdealWidth          int            `yaml:"idealWidth,omitempty"`
	IdealHeight         int            `yaml:"idealHeight,omitempty"`
	MinWidth            int            `yaml:"minWidth,omitempty"`
	MinHeight           int            `yaml:"minHeight,omitempty"`
	MaxCaptureDimension int            `yaml:"maxCaptureDimension,omitempty"`
	JPEGQuality         int            `yaml:"jpegQuality,omitempty"`
	MirrorFrontCapture  *bool          `yaml:"mirrorFrontCapture,omitempty"`
	Devices             []CameraDevice `yaml:"devices,omitempty"`
}

// WizardFileConfig holds check-in wizard limits
type WizardFileConfig struct {
	MaxUploadBytes int64 `yaml:"maxUploadBytes,omitempty"`
}

// TelemetryFileConfig holds tracing settings
type TelemetryFileConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}

// CameraDevice maps a video input to the facing mode it points at.
// TorchPath is the sysfs LED brightness file for the light next to it, if any.
type CameraDevice struct {
	ID        string `yaml:"id"`
	Label     string `yaml:"label,omitempty"`
	Facing    string `yaml:"facing"`
	TorchPath string `yaml:"torchPath,omitempty"`
}

// AppConfig is the effective runtime configuration.
type AppConfig struct {
	Version    string
	DataDir    string
	LogLevel   string
	LogService string

	API          APIConfig
	Backend      BackendConfig
	Verification VerificationConfig
	Camera       CameraConfig
	Wizard       WizardConfig
	Telemetry    TelemetryConfig
}

type APIConfig struct {
	ListenAddr     string
	RateLimitRPM   int // 0 disables rate limiting
	AllowedOrigins []string
}

type BackendConfig struct {
	BaseURL          string
	AdminBaseURL     string
	UploadTimeout    time.Duration
	BreakerThreshold int
	BreakerReset     time.Duration
}

type VerificationConfig struct {
	Endpoint       string
	APIKey         string
	CountryCode    string
	ResendCooldown time.Duration
	EnabledDefault bool
}

type CameraConfig struct {
	AcquireTimeout      time.Duration
	IdealWidth          int
	IdealHeight         int
	MinWidth            int
	MinHeight           int
	MaxCaptureDimension int
	JPEGQuality         int
	MirrorFrontCapture  bool
	Devices             []CameraDevice
}

type WizardConfig struct {
	MaxUploadBytes int64
}

type TelemetryConfig struct {
	Enabled      bool
	Exporter     string // grpc | http
	Endpoint     string
	SamplingRate float64
}

// String renders the config for logs with secrets redacted.
func (c AppConfig) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "dataDir=%s logLevel=%s listen=%s backend=%s admin=%s",
		c.DataDir, c.LogLevel, c.API.ListenAddr, c.Backend.BaseURL, c.Backend.AdminBaseURL)
	fmt.Fprintf(&b, " verification=%s apiKey=%s otpDefault=%t",
		c.Verification.Endpoint, maskSecret(c.Verification.APIKey), c.Verification.EnabledDefault)
	fmt.Fprintf(&b, " cameraDevices=%d acquireTimeout=%s telemetry=%t",
		len(c.Camera.Devices), c.Camera.AcquireTimeout, c.Telemetry.Enabled)
	return b.String()
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
