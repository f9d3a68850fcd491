// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package upload

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrRejected    = errors.New("upload: rejected by backend")
	ErrUnavailable = errors.New("upload: backend unreachable or transport failure")
	ErrBackend     = errors.New("upload: backend internal error (5xx)")
	ErrTimeout     = errors.New("upload: request timed out")
	ErrBadResponse = errors.New("upload: invalid response format")
	ErrInvalid     = errors.New("upload: invalid submission")
)

// FallbackMessage is shown when the backend gave no message of its own.
const FallbackMessage = "File upload failed. Please try again."

// Error wraps a sentinel with the HTTP status and the backend's message.
type Error struct {
	Sentinel  error
	Operation string
	Status    int
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("upload: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
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

// UserMessage is the text the kiosk shows for err.
func UserMessage(err error) string {
	var uerr *Error
	if errors.As(err, &uerr) && uerr.Message != "" {
		return uerr.Message
	}
	return FallbackMessage
}

// countsAgainstBreaker is true for failures that say the backend is unwell.
// A 4xx answer means the backend is up and deliberately said no.
func countsAgainstBreaker(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrBackend) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrBadResponse)
}
