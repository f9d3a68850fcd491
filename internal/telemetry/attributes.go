// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Camera attributes
	CameraFacingKey     = "camera.facing"
	CameraFacingWantKey = "camera.facing_requested"
	CameraDeviceKey     = "camera.device"
	CameraGenerationKey = "camera.generation"
	CameraFallbackKey   = "camera.fallback"
	CameraReasonKey     = "camera.reason"

	// Capture attributes
	CaptureWidthKey  = "capture.width"
	CaptureHeightKey = "capture.height"
	CaptureBytesKey  = "capture.bytes"
	CaptureMirrorKey = "capture.mirrored"

	// Check-in attributes
	CheckinStepKey   = "checkin.step"
	CheckinMethodKey = "checkin.capture_method"
	CheckinOTPKey    = "checkin.otp_verified"

	// Upstream attributes
	UpstreamOpKey     = "upstream.op"
	UpstreamStatusKey = "upstream.status"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// CameraAttributes creates acquisition span attributes. Empty values are skipped.
func CameraAttributes(facingWant, facing, device string, generation uint64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if facingWant != "" {
		attrs = append(attrs, attribute.String(CameraFacingWantKey, facingWant))
	}
	if facing != "" {
		attrs = append(attrs, attribute.String(CameraFacingKey, facing))
	}
	if device != "" {
		attrs = append(attrs, attribute.String(CameraDeviceKey, device))
	}
	attrs = append(attrs, attribute.Int64(CameraGenerationKey, int64(generation)))
	return attrs
}

// CaptureAttributes creates capture span attributes.
func CaptureAttributes(width, height, size int, mirrored bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(CaptureWidthKey, width),
		attribute.Int(CaptureHeightKey, height),
		attribute.Int(CaptureBytesKey, size),
		attribute.Bool(CaptureMirrorKey, mirrored),
	}
}

// CheckinAttributes creates submission span attributes.
func CheckinAttributes(step, captureMethod string, otpVerified bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CheckinStepKey, step),
		attribute.String(CheckinMethodKey, captureMethod),
		attribute.Bool(CheckinOTPKey, otpVerified),
	}
}

// UpstreamAttributes creates collaborator call span attributes.
func UpstreamAttributes(op string, status int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(UpstreamOpKey, op),
		attribute.Int(UpstreamStatusKey, status),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
