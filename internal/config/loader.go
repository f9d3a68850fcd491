// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultListenAddr          = ":8088"
	DefaultRateLimitRPM        = 120
	DefaultBackendURL          = "http://127.0.0.1:5000/api"
	DefaultUploadTimeout       = 30 * time.Second
	DefaultBreakerThreshold    = 5
	DefaultBreakerReset        = 30 * time.Second
	DefaultVerifyEndpoint      = "https://identitytoolkit.googleapis.com/v1"
	DefaultCountryCode         = "+91"
	DefaultResendCooldown      = 30 * time.Second
	DefaultAcquireTimeout      = 15 * time.Second
	DefaultIdealWidth          = 1280
	DefaultIdealHeight         = 720
	DefaultMinWidth            = 640
	DefaultMinHeight           = 480
	DefaultMaxCaptureDimension = 1920
	DefaultJPEGQuality         = 90
	DefaultMaxUploadBytes      = 10 << 20
	DefaultTelemetryExporter   = "grpc"
	DefaultTelemetryEndpoint   = "localhost:4317"
)

// Environment keys
const (
	EnvDataDir           = "FRONTDESK_DATA_DIR"
	EnvLogLevel          = "FRONTDESK_LOG_LEVEL"
	EnvLogService        = "FRONTDESK_LOG_SERVICE"
	EnvListenAddr        = "FRONTDESK_LISTEN_ADDR"
	EnvRateLimitRPM      = "FRONTDESK_RATE_LIMIT_RPM"
	EnvAllowedOrigins    = "FRONTDESK_ALLOWED_ORIGINS"
	EnvBackendURL        = "FRONTDESK_BACKEND_URL"
	EnvAdminBackendURL   = "FRONTDESK_ADMIN_BACKEND_URL"
	EnvUploadTimeout     = "FRONTDESK_UPLOAD_TIMEOUT"
	EnvBreakerThreshold  = "FRONTDESK_BREAKER_THRESHOLD"
	EnvBreakerReset      = "FRONTDESK_BREAKER_RESET"
	EnvVerifyEndpoint    = "FRONTDESK_VERIFY_ENDPOINT"
	EnvVerifyAPIKey      = "FRONTDESK_VERIFY_API_KEY"
	EnvVerifyCountryCode = "FRONTDESK_VERIFY_COUNTRY_CODE"
	EnvVerifyCooldown    = "FRONTDESK_VERIFY_RESEND_COOLDOWN"
	EnvOTPDefault        = "FRONTDESK_OTP_DEFAULT"
	EnvAcquireTimeout    = "FRONTDESK_CAMERA_ACQUIRE_TIMEOUT"
	EnvJPEGQuality       = "FRONTDESK_CAMERA_JPEG_QUALITY"
	EnvMaxDimension      = "FRONTDESK_CAMERA_MAX_DIMENSION"
	EnvMirrorFront       = "FRONTDESK_CAMERA_MIRROR_FRONT"
	EnvMaxUploadBytes    = "FRONTDESK_MAX_UPLOAD_BYTES"
	EnvTelemetryEnabled  = "FRONTDESK_TELEMETRY_ENABLED"
	EnvTelemetryExporter = "FRONTDESK_TELEMETRY_EXPORTER"
	EnvTelemetryEndpoint = "FRONTDESK_TELEMETRY_ENDPOINT"
	EnvTelemetrySampling = "FRONTDESK_TELEMETRY_SAMPLING_RATE"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // keys read during the last Load
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Path returns the config file path, empty when running from ENV only.
func (l *Loader) Path() string { return l.configPath }

// Load loads configuration with precedence: ENV > File > Defaults
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (AppConfig, error) {
	cfg := AppConfig{}

	// 1. Set defaults
	l.setDefaults(&cfg)

	// 2. Load from file (if provided)
	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	// 3. Override with environment variables (highest priority)
	l.mergeEnvConfig(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Backend.AdminBaseURL == "" {
		cfg.Backend.AdminBaseURL = strings.TrimSuffix(strings.TrimRight(cfg.Backend.BaseURL, "/"), "/api")
	}

	cfg.Version = l.version

	// 4. Validate final configuration
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (l *Loader) setDefaults(cfg *AppConfig) {
	cfg.DataDir = "data"
	cfg.LogLevel = "info"
	cfg.LogService = "frontdesk"

	cfg.API = APIConfig{
		ListenAddr:   DefaultListenAddr,
		RateLimitRPM: DefaultRateLimitRPM,
	}
	cfg.Backend = BackendConfig{
		BaseURL:          DefaultBackendURL,
		UploadTimeout:    DefaultUploadTimeout,
		BreakerThreshold: DefaultBreakerThreshold,
		BreakerReset:     DefaultBreakerReset,
	}
	cfg.Verification = VerificationConfig{
		Endpoint:       DefaultVerifyEndpoint,
		CountryCode:    DefaultCountryCode,
		ResendCooldown: DefaultResendCooldown,
		EnabledDefault: true,
	}
	cfg.Camera = CameraConfig{
		AcquireTimeout:      DefaultAcquireTimeout,
		IdealWidth:          DefaultIdealWidth,
		IdealHeight:         DefaultIdealHeight,
		MinWidth:            DefaultMinWidth,
		MinHeight:           DefaultMinHeight,
		MaxCaptureDimension: DefaultMaxCaptureDimension,
		JPEGQuality:         DefaultJPEGQuality,
		MirrorFrontCapture:  true,
	}
	cfg.Wizard = WizardConfig{MaxUploadBytes: DefaultMaxUploadBytes}
	cfg.Telemetry = TelemetryConfig{
		Exporter:     DefaultTelemetryExporter,
		Endpoint:     DefaultTelemetryEndpoint,
		SamplingRate: 1.0,
	}
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func mergeFileConfig(dst *AppConfig, src *FileConfig) error {
	if src.DataDir != "" {
		dst.DataDir = expandEnv(src.DataDir)
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.LogService != "" {
		dst.LogService = src.LogService
	}

	if src.API.ListenAddr != "" {
		dst.API.ListenAddr = src.API.ListenAddr
	}
	if src.API.RateLimitRPM != nil {
		dst.API.RateLimitRPM = *src.API.RateLimitRPM
	}
	if len(src.API.AllowedOrigins) > 0 {
		dst.API.AllowedOrigins = append([]string(nil), src.API.AllowedOrigins...)
	}

	if src.Backend.BaseURL != "" {
		dst.Backend.BaseURL = expandEnv(src.Backend.BaseURL)
	}
	if src.Backend.AdminBaseURL != "" {
		dst.Backend.AdminBaseURL = expandEnv(src.Backend.AdminBaseURL)
	}
	if err := mergeDuration(&dst.Backend.UploadTimeout, src.Backend.UploadTimeout, "backend.uploadTimeout"); err != nil {
		return err
	}
	if src.Backend.BreakerThreshold != 0 {
		dst.Backend.BreakerThreshold = src.Backend.BreakerThreshold
	}
	if err := mergeDuration(&dst.Backend.BreakerReset, src.Backend.BreakerReset, "backend.breakerReset"); err != nil {
		return err
	}

	if src.Verification.Endpoint != "" {
		dst.Verification.Endpoint = src.Verification.Endpoint
	}
	if src.Verification.APIKey != "" {
		dst.Verification.APIKey = expandEnv(src.Verification.APIKey)
	}
	if src.Verification.CountryCode != "" {
		dst.Verification.CountryCode = src.Verification.CountryCode
	}
	if err := mergeDuration(&dst.Verification.ResendCooldown, src.Verification.ResendCooldown, "verification.resendCooldown"); err != nil {
		return err
	}
	if src.Verification.EnabledDefault != nil {
		dst.Verification.EnabledDefault = *src.Verification.EnabledDefault
	}

	cam := src.Camera
	if err := mergeDuration(&dst.Camera.AcquireTimeout, cam.AcquireTimeout, "camera.acquireTimeout"); err != nil {
		return err
	}
	mergeInt(&dst.Camera.IdealWidth, cam.IdealWidth)
	mergeInt(&dst.Camera.IdealHeight, cam.IdealHeight)
	mergeInt(&dst.Camera.MinWidth, cam.MinWidth)
	mergeInt(&dst.Camera.MinHeight, cam.MinHeight)
	mergeInt(&dst.Camera.MaxCaptureDimension, cam.MaxCaptureDimension)
	mergeInt(&dst.Camera.JPEGQuality, cam.JPEGQuality)
	if cam.MirrorFrontCapture != nil {
		dst.Camera.MirrorFrontCapture = *cam.MirrorFrontCapture
	}
	if len(cam.Devices) > 0 {
		dst.Camera.Devices = append([]CameraDevice(nil), cam.Devices...)
	}

	if src.Wizard.MaxUploadBytes != 0 {
		dst.Wizard.MaxUploadBytes = src.Wizard.MaxUploadBytes
	}

	if src.Telemetry.Enabled != nil {
		dst.Telemetry.Enabled = *src.Telemetry.Enabled
	}
	if src.Telemetry.Exporter != "" {
		dst.Telemetry.Exporter = src.Telemetry.Exporter
	}
	if src.Telemetry.Endpoint != "" {
		dst.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
	if src.Telemetry.SamplingRate != nil {
		dst.Telemetry.SamplingRate = *src.Telemetry.SamplingRate
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = l.envString(EnvDataDir, cfg.DataDir)
	cfg.LogLevel = l.envString(EnvLogLevel, cfg.LogLevel)
	cfg.LogService = l.envString(EnvLogService, cfg.LogService)

	cfg.API.ListenAddr = l.envString(EnvListenAddr, cfg.API.ListenAddr)
	cfg.API.RateLimitRPM = l.envInt(EnvRateLimitRPM, cfg.API.RateLimitRPM)
	cfg.API.AllowedOrigins = parseCommaSeparated(l.envString(EnvAllowedOrigins, ""), cfg.API.AllowedOrigins)

	cfg.Backend.BaseURL = l.envString(EnvBackendURL, cfg.Backend.BaseURL)
	cfg.Backend.AdminBaseURL = l.envString(EnvAdminBackendURL, cfg.Backend.AdminBaseURL)
	cfg.Backend.UploadTimeout = l.envDuration(EnvUploadTimeout, cfg.Backend.UploadTimeout)
	cfg.Backend.BreakerThreshold = l.envInt(EnvBreakerThreshold, cfg.Backend.BreakerThreshold)
	cfg.Backend.BreakerReset = l.envDuration(EnvBreakerReset, cfg.Backend.BreakerReset)

	cfg.Verification.Endpoint = l.envString(EnvVerifyEndpoint, cfg.Verification.Endpoint)
	cfg.Verification.APIKey = l.envString(EnvVerifyAPIKey, cfg.Verification.APIKey)
	cfg.Verification.CountryCode = l.envString(EnvVerifyCountryCode, cfg.Verification.CountryCode)
	cfg.Verification.ResendCooldown = l.envDuration(EnvVerifyCooldown, cfg.Verification.ResendCooldown)
	cfg.Verification.EnabledDefault = l.envBool(EnvOTPDefault, cfg.Verification.EnabledDefault)

	cfg.Camera.AcquireTimeout = l.envDuration(EnvAcquireTimeout, cfg.Camera.AcquireTimeout)
	cfg.Camera.JPEGQuality = l.envInt(EnvJPEGQuality, cfg.Camera.JPEGQuality)
	cfg.Camera.MaxCaptureDimension = l.envInt(EnvMaxDimension, cfg.Camera.MaxCaptureDimension)
	cfg.Camera.MirrorFrontCapture = l.envBool(EnvMirrorFront, cfg.Camera.MirrorFrontCapture)

	cfg.Wizard.MaxUploadBytes = int64(l.envInt(EnvMaxUploadBytes, int(cfg.Wizard.MaxUploadBytes)))

	cfg.Telemetry.Enabled = l.envBool(EnvTelemetryEnabled, cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvTelemetryExporter, cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvTelemetryEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvTelemetrySampling, cfg.Telemetry.SamplingRate)
}

func mergeDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	*dst = d
	return nil
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// parseCommaSeparated splits a comma-separated env value, returning defaults when empty.
func parseCommaSeparated(envVal string, defaults []string) []string {
	if strings.TrimSpace(envVal) == "" {
		return defaults
	}
	var out []string
	for _, part := range strings.Split(envVal, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
