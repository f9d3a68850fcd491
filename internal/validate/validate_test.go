// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package validate

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_URL(t *testing.T) {
	schemes := []string{"http", "https"}
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"backend", "https://visitors.example.com/api", false},
		{"with port", "http://127.0.0.1:5000", false},
		{"empty", "", true},
		{"no host", "http://", true},
		{"bare host", "visitors.example.com", true},
		{"wrong scheme", "ftp://visitors.example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("backend.baseUrl", tt.value, schemes)
			assert.Equal(t, tt.wantErr, !v.IsValid(), "url %q: %v", tt.value, v.Err())
		})
	}
}

func TestValidator_ListenAddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"all interfaces", ":8088", false},
		{"loopback", "127.0.0.1:8088", false},
		{"kernel picked", "127.0.0.1:0", false},
		{"missing port", "127.0.0.1", true},
		{"non numeric port", "localhost:http", true},
		{"port too large", ":70000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.ListenAddr("api.listenAddr", tt.addr)
			assert.Equal(t, tt.wantErr, !v.IsValid(), "addr %q", tt.addr)
		})
	}
}

func TestValidator_Bounds(t *testing.T) {
	v := New()
	v.Range("camera.jpegQuality", 90, 1, 100)
	v.Range("camera.jpegQuality", 1, 1, 100)
	v.FloatRange("telemetry.samplingRate", 0.5, 0, 1)
	v.DurationRange("camera.acquireTimeout", 15*time.Second, time.Second, time.Minute)
	v.Positive("wizard.maxUploadBytes", 1)
	v.NonNegative("api.rateLimitRpm", 0)
	require.True(t, v.IsValid(), "unexpected errors: %v", v.Err())

	v.Range("camera.jpegQuality", 101, 1, 100)
	v.FloatRange("telemetry.samplingRate", 1.5, 0, 1)
	v.DurationRange("camera.acquireTimeout", 0, time.Second, time.Minute)
	v.Positive("wizard.maxUploadBytes", 0)
	v.NonNegative("api.rateLimitRpm", -1)

	var fields []string
	for _, e := range v.Errors() {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{
		"camera.jpegQuality",
		"telemetry.samplingRate",
		"camera.acquireTimeout",
		"wizard.maxUploadBytes",
		"api.rateLimitRpm",
	}, fields)
}

func TestValidator_Directory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "settings.sqlite")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))

	tests := []struct {
		name      string
		path      string
		mustExist bool
		wantErr   bool
	}{
		{"existing", dir, true, false},
		{"missing must exist", filepath.Join(dir, "missing"), true, true},
		{"file", file, false, true},
		{"empty", "", false, true},
		{"traversal", "../etc", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Directory("dataDir", tt.path, tt.mustExist)
			assert.Equal(t, tt.wantErr, !v.IsValid(), "path %q: %v", tt.path, v.Err())
		})
	}
}

func TestValidator_DirectoryCreatesMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "kiosk", "data")

	v := New()
	v.Directory("dataDir", dir, false)
	require.True(t, v.IsValid(), "unexpected error: %v", v.Err())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestValidator_NotEmptyAndOneOf(t *testing.T) {
	v := New()
	v.NotEmpty("verification.apiKey", "key")
	v.OneOf("telemetry.exporter", "grpc", []string{"grpc", "http"})
	require.True(t, v.IsValid())

	v.NotEmpty("verification.apiKey", " \t")
	v.OneOf("telemetry.exporter", "zipkin", []string{"grpc", "http"})
	require.Len(t, v.Errors(), 2)
	assert.Contains(t, v.Errors()[1].Message, `"zipkin"`)
}

func TestValidator_Match(t *testing.T) {
	mobile := regexp.MustCompile(`^[6-9]\d{9}$`)

	v := New()
	v.Match("mobileNumber", "9876543210", mobile, "Please enter a valid 10-digit mobile number")
	require.True(t, v.IsValid())

	v.Match("mobileNumber", "1234567890", mobile, "Please enter a valid 10-digit mobile number")
	require.False(t, v.IsValid())
	assert.Equal(t, "Please enter a valid 10-digit mobile number", v.Errors()[0].Message)
}

func TestValidationError(t *testing.T) {
	assert.NoError(t, New().Err())

	v := New()
	v.NotEmpty("name", "")
	v.AddError("name", "second message", "")
	v.Positive("wizard.maxUploadBytes", 0)

	err := v.Err()
	var verr ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Errors(), 3)
	assert.Contains(t, err.Error(), "validation failed for name")
	assert.Contains(t, err.Error(), "; ")

	fields := verr.Fields()
	assert.Equal(t, "value cannot be empty", fields["name"])
	assert.Contains(t, fields, "wizard.maxUploadBytes")
	assert.Len(t, fields, 2)

	// Err copies, so later additions do not leak into a returned error.
	v.AddError("late", "late", nil)
	assert.Len(t, verr.Errors(), 3)
}

func TestParseLogLevel(t *testing.T) {
	for _, in := range []string{"trace", "debug", "info", "warn", "error"} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, in, got.String())
	}

	for _, in := range []string{"", "verbose", "INFO"} {
		_, err := ParseLogLevel(in)
		assert.ErrorIs(t, err, ErrInvalidLogLevel, in)
	}
}
