// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package verification

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidPhone  = errors.New("verification: invalid phone number")
	ErrMissingPhone  = errors.New("verification: phone number missing")
	ErrQuotaExceeded = errors.New("verification: sms quota exceeded")
	ErrCaptchaFailed = errors.New("verification: captcha check failed")
	ErrInvalidCode   = errors.New("verification: invalid code")
	ErrCodeExpired   = errors.New("verification: code expired")
	ErrNoSession     = errors.New("verification: no pending verification")
	ErrTooSoon       = errors.New("verification: resend cooldown active")
	ErrProvider      = errors.New("verification: provider error")
	ErrUnavailable   = errors.New("verification: provider unreachable")
)

// Error carries the provider's error code alongside the mapped sentinel.
type Error struct {
	Sentinel  error
	Operation string
	Status    int
	Code      string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("verification: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Code)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Sentinel, e.Err}
	}
	return []error{e.Sentinel}
}

var providerCodes = map[string]error{
	"INVALID_PHONE_NUMBER":        ErrInvalidPhone,
	"MISSING_PHONE_NUMBER":        ErrMissingPhone,
	"QUOTA_EXCEEDED":              ErrQuotaExceeded,
	"TOO_MANY_ATTEMPTS_TRY_LATER": ErrQuotaExceeded,
	"CAPTCHA_CHECK_FAILED":        ErrCaptchaFailed,
	"MISSING_RECAPTCHA_TOKEN":     ErrCaptchaFailed,
	"INVALID_RECAPTCHA_TOKEN":     ErrCaptchaFailed,
	"INVALID_CODE":                ErrInvalidCode,
	"MISSING_CODE":                ErrInvalidCode,
	"SESSION_EXPIRED":             ErrCodeExpired,
	"CODE_EXPIRED":                ErrCodeExpired,
	"INVALID_SESSION_INFO":        ErrNoSession,
	"MISSING_SESSION_INFO":        ErrNoSession,
}

// providerCode extracts the leading code from messages such as
// "TOO_MANY_ATTEMPTS_TRY_LATER : Try again later".
func providerCode(message string) string {
	code, _, _ := strings.Cut(strings.TrimSpace(message), " ")
	return strings.TrimSuffix(code, ":")
}

func sentinelFor(code string) error {
	if s, ok := providerCodes[code]; ok {
		return s
	}
	return ErrProvider
}

// SendMessage is the kiosk text for a failed SendCode.
func SendMessage(err error) string {
	const prefix = "Failed to send OTP. "
	switch {
	case errors.Is(err, ErrInvalidPhone):
		return prefix + "Invalid phone number format."
	case errors.Is(err, ErrMissingPhone):
		return prefix + "Phone number is missing."
	case errors.Is(err, ErrQuotaExceeded):
		return prefix + "SMS quota exceeded. Try again later."
	case errors.Is(err, ErrCaptchaFailed):
		return prefix + "Please complete the reCAPTCHA verification."
	case errors.Is(err, ErrTooSoon):
		return prefix + "Please wait before requesting another code."
	default:
		return prefix + "Please try again."
	}
}

// VerifyMessage is the kiosk text for a failed VerifyCode.
func VerifyMessage(err error) string {
	const prefix = "Invalid OTP. "
	switch {
	case errors.Is(err, ErrInvalidCode):
		return prefix + "Please check the code and try again."
	case errors.Is(err, ErrCodeExpired):
		return prefix + "Code has expired. Please request a new one."
	case errors.Is(err, ErrNoSession):
		return prefix + "No confirmation result found. Please request OTP again."
	default:
		return prefix + "Please try again."
	}
}

func countsAgainstBreaker(err error) bool {
	var verr *Error
	if errors.As(err, &verr) && verr.Status >= 500 {
		return true
	}
	return errors.Is(err, ErrUnavailable)
}
