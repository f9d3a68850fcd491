// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontdesk_upload_requests_total",
		Help: "Visitor upload requests by outcome (success|rejected|error|circuit_open)",
	}, []string{"outcome"})

	uploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "frontdesk_upload_duration_seconds",
		Help:    "Visitor upload request latency",
		Buckets: prometheus.DefBuckets,
	})

	verificationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontdesk_verification_requests_total",
		Help: "Phone verification calls by operation (send|verify) and outcome",
	}, []string{"op", "outcome"})

	checkinSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontdesk_checkin_submissions_total",
		Help: "Completed check-ins by capture method (camera|upload) and OTP verification",
	}, []string{"capture_method", "otp_verified"})
)

// RecordUpload counts one upload attempt and its latency.
func RecordUpload(outcome string, seconds float64) {
	uploadRequests.WithLabelValues(outcome).Inc()
	uploadDuration.Observe(seconds)
}

// RecordVerification counts one call to the phone verification provider.
func RecordVerification(op, outcome string) {
	verificationRequests.WithLabelValues(op, outcome).Inc()
}

// RecordCheckinSubmission counts a successful submission.
func RecordCheckinSubmission(captureMethod string, otpVerified bool) {
	verified := "false"
	if otpVerified {
		verified = "true"
	}
	checkinSubmissions.WithLabelValues(captureMethod, verified).Inc()
}
