// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package wizard

import (
	"errors"

	"github.com/ManuGH/frontdesk/internal/camera"
	"github.com/ManuGH/frontdesk/internal/upload"
	"github.com/ManuGH/frontdesk/internal/verification"
)

var (
	ErrBusy                = errors.New("wizard: operation in progress")
	ErrClosed              = errors.New("wizard: closed")
	ErrWrongStep           = errors.New("wizard: not available at this step")
	ErrOTPDisabled         = errors.New("wizard: otp verification disabled")
	ErrInvalidPhone        = errors.New("wizard: invalid mobile number")
	ErrInvalidCompanyPhone = errors.New("wizard: invalid company phone number")
	ErrInvalidCode         = errors.New("wizard: invalid otp format")
	ErrNoImage             = errors.New("wizard: no image")
	ErrNotImage            = errors.New("wizard: file is not an image")
	ErrFileTooLarge        = errors.New("wizard: file too large")
)

const fallbackMessage = "Something went wrong. Please try again."

var messages = map[error]string{
	ErrBusy:                "Please wait for the current request to finish.",
	ErrClosed:              "The check-in session has ended.",
	ErrWrongStep:           "This action is not available at the current step.",
	ErrOTPDisabled:         "OTP verification is turned off.",
	ErrInvalidPhone:        "Please enter a valid 10-digit mobile number.",
	ErrInvalidCompanyPhone: "Please enter a valid company phone number (10-15 digits).",
	ErrInvalidCode:         "Please enter a valid 6-digit OTP.",
	ErrNoImage:             "Please capture an image or select a file to upload.",
	ErrNotImage:            "Please select a valid image file.",
	ErrFileTooLarge:        "Image is too large. Please choose a smaller file.",
}

// Error is a wizard failure paired with the text the kiosk shows.
type Error struct {
	Op      string
	Err     error
	Message string
}

func (e *Error) Error() string { return "wizard " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func newError(op string, err error) *Error {
	return &Error{Op: op, Err: err, Message: Message(err)}
}

// Message returns the kiosk text for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var werr *Error
	if errors.As(err, &werr) && werr.Message != "" {
		return werr.Message
	}
	for sentinel, msg := range messages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	var cerr *camera.Error
	if errors.As(err, &cerr) {
		return cerr.Message()
	}
	var uerr *upload.Error
	if errors.As(err, &uerr) {
		return upload.UserMessage(err)
	}
	var verr *verification.Error
	if errors.As(err, &verr) {
		if verr.Operation == "verify" {
			return verification.VerifyMessage(err)
		}
		return verification.SendMessage(err)
	}
	return fallbackMessage
}
