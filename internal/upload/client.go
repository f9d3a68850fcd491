// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package upload submits completed check-ins to the visitor backend.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/ManuGH/frontdesk/internal/metrics"
	"github.com/ManuGH/frontdesk/internal/platform/httpx"
	"github.com/ManuGH/frontdesk/internal/resilience"
	"github.com/ManuGH/frontdesk/internal/telemetry"
	"github.com/rs/zerolog"
)

const maxResponseBytes = 64 << 10

// CaptureMethod records how the card image was obtained.
type CaptureMethod string

const (
	CaptureCamera CaptureMethod = "camera"
	CaptureUpload CaptureMethod = "upload"
)

// File is the visiting card image.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Submission is one completed check-in.
type Submission struct {
	MobileNumber       string
	Name               string
	CompanyName        string
	CompanyPhoneNumber string
	Address            string
	OTPVerified        bool
	CaptureMethod      CaptureMethod
	File               File
}

// Result is the backend's acknowledgement.
type Result struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
}

// Client posts submissions to {baseURL}/visitors/upload.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewClient builds an upload client. threshold and reset configure the
// breaker that guards the backend.
func NewClient(baseURL string, timeout time.Duration, threshold int, reset time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpx.NewClient(timeout),
		breaker: resilience.NewCircuitBreaker("upload", threshold, reset,
			resilience.WithFailureClassifier(countsAgainstBreaker)),
		logger: log.WithComponent("upload"),
	}
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// Breaker exposes the breaker for health reporting.
func (c *Client) Breaker() *resilience.CircuitBreaker { return c.breaker }

// Submit posts s as multipart/form-data.
func (c *Client) Submit(ctx context.Context, s Submission) (res Result, retErr error) {
	start := time.Now()
	ctx, span := telemetry.Tracer("frontdesk/upload").Start(ctx, "upload.submit")
	defer func() {
		outcome := "success"
		if retErr != nil {
			outcome = outcomeFor(retErr)
		}
		metrics.RecordUpload(outcome, time.Since(start).Seconds())
		span.SetAttributes(telemetry.UpstreamAttributes("upload", res.Status)...)
		telemetry.EndSpan(span, retErr, outcome)
	}()

	if len(s.File.Data) == 0 {
		return Result{}, &Error{Sentinel: ErrInvalid, Operation: "submit", Message: "Please capture an image or select a file to upload."}
	}

	body, contentType, err := encodeSubmission(s)
	if err != nil {
		return Result{}, &Error{Sentinel: ErrInvalid, Operation: "encode", Err: err}
	}

	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		res, callErr = c.post(ctx, body, contentType)
		return callErr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		err = &Error{Sentinel: ErrUnavailable, Operation: "submit", Err: err}
	}

	logger := log.WithContext(ctx, c.logger)
	if err != nil {
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "upload.failed").
			Int(log.FieldStatus, res.Status).
			Msg("visitor upload failed")
		return res, err
	}
	logger.Info().
		Str(log.FieldEvent, "upload.accepted").
		Int(log.FieldStatus, res.Status).
		Str("capture_method", string(s.CaptureMethod)).
		Bool("otp_verified", s.OTPVerified).
		Int("bytes", len(s.File.Data)).
		Msg("visitor upload accepted")
	return res, nil
}

func (c *Client) post(ctx context.Context, body []byte, contentType string) (Result, error) {
	endpoint := c.baseURL + "/visitors/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, &Error{Sentinel: ErrInvalid, Operation: "submit", Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if id := log.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, transportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{Status: resp.StatusCode}, &Error{Sentinel: ErrBadResponse, Operation: "submit", Status: resp.StatusCode, Err: err}
	}
	var decoded Result
	decodeErr := json.Unmarshal(raw, &decoded)
	decoded.Status = resp.StatusCode

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if decodeErr != nil {
			return decoded, &Error{Sentinel: ErrBadResponse, Operation: "submit", Status: resp.StatusCode, Err: decodeErr}
		}
		return decoded, nil
	case resp.StatusCode >= 500:
		return decoded, &Error{Sentinel: ErrBackend, Operation: "submit", Status: resp.StatusCode, Message: decoded.Message}
	default:
		return decoded, &Error{Sentinel: ErrRejected, Operation: "submit", Status: resp.StatusCode, Message: decoded.Message}
	}
}

func transportError(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Sentinel: ErrTimeout, Operation: "submit", Err: err}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &Error{Sentinel: ErrUnavailable, Operation: "submit", Err: err}
}

// encodeSubmission renders the multipart body. Optional text fields are
// omitted when empty.
func encodeSubmission(s Submission) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct {
		name, value string
		required    bool
	}{
		{"mobileNumber", s.MobileNumber, true},
		{"name", s.Name, false},
		{"companyName", s.CompanyName, false},
		{"companyPhoneNumber", s.CompanyPhoneNumber, false},
		{"address", s.Address, false},
		{"otpVerified", strconv.FormatBool(s.OTPVerified), true},
		{"captureMethod", string(s.CaptureMethod), true},
	}
	for _, f := range fields {
		if f.value == "" && !f.required {
			continue
		}
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	contentType := s.File.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="visitingCard"; filename=%q`, s.File.Name))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(s.File.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrInvalid):
		return "invalid"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
