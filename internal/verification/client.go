// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package verification sends and checks phone one-time passcodes through
// the Identity Toolkit REST API.
package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/ManuGH/frontdesk/internal/metrics"
	"github.com/ManuGH/frontdesk/internal/platform/httpx"
	"github.com/ManuGH/frontdesk/internal/resilience"
	"github.com/ManuGH/frontdesk/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint  = "https://identitytoolkit.googleapis.com/v1"
	maxResponseBytes = 64 << 10
	maxTrackedPhones = 1024
)

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// ValidCode reports whether code has the six digits the provider expects.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// Config configures the provider client.
type Config struct {
	Endpoint       string
	APIKey         string
	ResendCooldown time.Duration
	Timeout        time.Duration
}

// Session is a pending verification for one phone number.
type Session struct {
	ID     string
	Phone  string
	SentAt time.Time

	info string
}

// Client talks to the identity provider.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	breaker  *resilience.CircuitBreaker
	logger   zerolog.Logger
	now      func() time.Time

	every rate.Limit

	mu     sync.Mutex
	phones map[string]*rate.Limiter
}

// NewClient builds a verification client.
func NewClient(cfg Config) *Client {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	every := rate.Inf
	if cfg.ResendCooldown > 0 {
		every = rate.Every(cfg.ResendCooldown)
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		http:     httpx.NewClient(cfg.Timeout),
		breaker: resilience.NewCircuitBreaker("verification", 3, 30*time.Second,
			resilience.WithFailureClassifier(countsAgainstBreaker)),
		logger: log.WithComponent("verification"),
		now:    time.Now,
		every:  every,
		phones: make(map[string]*rate.Limiter),
	}
}

// Breaker exposes the breaker for health reporting.
func (c *Client) Breaker() *resilience.CircuitBreaker { return c.breaker }

type sendRequest struct {
	PhoneNumber    string `json:"phoneNumber"`
	RecaptchaToken string `json:"recaptchaToken,omitempty"`
}

type sendResponse struct {
	SessionInfo string `json:"sessionInfo"`
}

type verifyRequest struct {
	SessionInfo string `json:"sessionInfo"`
	Code        string `json:"code"`
}

type verifyResponse struct {
	PhoneNumber string `json:"phoneNumber"`
}

type providerError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SendCode asks the provider to text a code to phone (E.164). Repeated sends
// to the same phone inside the resend cooldown fail with ErrTooSoon.
func (c *Client) SendCode(ctx context.Context, phone, recaptchaToken string) (sess *Session, retErr error) {
	ctx, span := telemetry.Tracer("frontdesk/verification").Start(ctx, "verification.send")
	defer func() {
		outcome := outcomeFor(retErr)
		metrics.RecordVerification("send", outcome)
		telemetry.EndSpan(span, retErr, outcome)
	}()

	if strings.TrimSpace(phone) == "" {
		return nil, &Error{Sentinel: ErrMissingPhone, Operation: "send"}
	}
	if !c.allowSend(phone) {
		return nil, &Error{Sentinel: ErrTooSoon, Operation: "send"}
	}

	var resp sendResponse
	err := c.call(ctx, "send", "accounts:sendVerificationCode", sendRequest{
		PhoneNumber:    phone,
		RecaptchaToken: recaptchaToken,
	}, &resp)
	logger := log.WithContext(ctx, c.logger).With().Str("phone", maskPhone(phone)).Logger()
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "verification.send_failed").Msg("failed to send verification code")
		return nil, err
	}
	if resp.SessionInfo == "" {
		return nil, &Error{Sentinel: ErrProvider, Operation: "send", Err: errors.New("empty sessionInfo")}
	}

	sess = &Session{
		ID:     uuid.NewString(),
		Phone:  phone,
		SentAt: c.now(),
		info:   resp.SessionInfo,
	}
	logger.Info().
		Str(log.FieldEvent, "verification.sent").
		Str("verification_id", sess.ID).
		Msg("verification code sent")
	return sess, nil
}

// VerifyCode confirms code against a pending session.
func (c *Client) VerifyCode(ctx context.Context, sess *Session, code string) (retErr error) {
	ctx, span := telemetry.Tracer("frontdesk/verification").Start(ctx, "verification.verify")
	defer func() {
		outcome := outcomeFor(retErr)
		metrics.RecordVerification("verify", outcome)
		telemetry.EndSpan(span, retErr, outcome)
	}()

	if sess == nil || sess.info == "" {
		return &Error{Sentinel: ErrNoSession, Operation: "verify"}
	}
	if !ValidCode(code) {
		return &Error{Sentinel: ErrInvalidCode, Operation: "verify", Err: errors.New("code must be 6 digits")}
	}

	var resp verifyResponse
	err := c.call(ctx, "verify", "accounts:signInWithPhoneNumber", verifyRequest{
		SessionInfo: sess.info,
		Code:        code,
	}, &resp)
	logger := log.WithContext(ctx, c.logger).With().
		Str("phone", maskPhone(sess.Phone)).
		Str("verification_id", sess.ID).
		Logger()
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "verification.verify_failed").Msg("verification code rejected")
		return err
	}
	logger.Info().Str(log.FieldEvent, "verification.verified").Msg("phone number verified")
	return nil
}

func (c *Client) call(ctx context.Context, op, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}
	endpoint := c.endpoint + "/" + method + "?key=" + url.QueryEscape(c.apiKey)

	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return &Error{Sentinel: ErrProvider, Operation: op, Err: err}
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// url.Error carries the full URL, key included.
			var uerr *url.Error
			if errors.As(err, &uerr) {
				err = uerr.Err
			}
			return &Error{Sentinel: ErrUnavailable, Operation: op, Err: err}
		}
		defer func() { _ = resp.Body.Close() }()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return &Error{Sentinel: ErrUnavailable, Operation: op, Status: resp.StatusCode, Err: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var perr providerError
			_ = json.Unmarshal(raw, &perr)
			code := providerCode(perr.Error.Message)
			return &Error{Sentinel: sentinelFor(code), Operation: op, Status: resp.StatusCode, Code: code}
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return &Error{Sentinel: ErrProvider, Operation: op, Status: resp.StatusCode, Err: err}
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return &Error{Sentinel: ErrUnavailable, Operation: op, Err: err}
	}
	return err
}

func (c *Client) allowSend(phone string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.phones) >= maxTrackedPhones {
		for p, lim := range c.phones {
			if lim.TokensAt(now) >= 1 {
				delete(c.phones, p)
			}
		}
	}
	lim, ok := c.phones[phone]
	if !ok {
		lim = rate.NewLimiter(c.every, 1)
		c.phones[phone] = lim
	}
	return lim.AllowN(now, 1)
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrTooSoon):
		return "cooldown"
	case errors.Is(err, ErrInvalidCode), errors.Is(err, ErrCodeExpired):
		return "rejected"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
