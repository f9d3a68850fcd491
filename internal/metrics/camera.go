// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cameraAcquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontdesk_camera_acquisitions_total",
		Help: "Camera acquisitions by outcome (ready|fallback|failed|cancelled) and failure reason",
	}, []string{"outcome", "reason"})

	cameraState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "frontdesk_camera_state",
		Help: "Camera session controller state (1 for the active state, 0 otherwise)",
	}, []string{"state"})

	cameraCaptures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontdesk_camera_captures_total",
		Help: "Still captures by outcome (success|not_ready|encode_failed)",
	}, []string{"outcome"})

	cameraFlashToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontdesk_camera_flash_toggles_total",
		Help: "Torch toggles by outcome (on|off|unsupported|failed)",
	}, []string{"outcome"})

	cameraAcquireSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "frontdesk_camera_acquire_seconds",
		Help:    "Time from acquisition start to first presented frame",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
	})
)

var cameraStates = []string{"idle", "acquiring", "ready", "capturing", "failed"}

// RecordCameraAcquisition counts one finished acquisition attempt. reason is empty on success.
func RecordCameraAcquisition(outcome, reason string) {
	cameraAcquisitions.WithLabelValues(outcome, reason).Inc()
}

// ObserveCameraAcquireDuration records time-to-ready in seconds.
func ObserveCameraAcquireDuration(seconds float64) {
	cameraAcquireSeconds.Observe(seconds)
}

// SetCameraState marks state as the active controller state.
func SetCameraState(state string) {
	for _, s := range cameraStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		cameraState.WithLabelValues(s).Set(value)
	}
}

// RecordCameraCapture counts one capture attempt.
func RecordCameraCapture(outcome string) {
	cameraCaptures.WithLabelValues(outcome).Inc()
}

// RecordFlashToggle counts one torch toggle attempt.
func RecordFlashToggle(outcome string) {
	cameraFlashToggles.WithLabelValues(outcome).Inc()
}
