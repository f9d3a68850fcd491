// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import (
	"context"
	"errors"
	"os"
	"syscall"
)

var (
	ErrPermissionDenied         = errors.New("camera: permission denied")
	ErrDeviceNotFound           = errors.New("camera: device not found")
	ErrDeviceBusy               = errors.New("camera: device busy")
	ErrConstraintsUnsatisfiable = errors.New("camera: constraints unsatisfiable")
	ErrAcquisitionFailed        = errors.New("camera: acquisition failed")
	ErrAcquisitionTimeout       = errors.New("camera: acquisition timed out")
	ErrAcquisitionCancelled     = errors.New("camera: acquisition cancelled")
	ErrPreviewStartFailed       = errors.New("camera: preview failed to start")
	ErrCaptureEncodeFailed      = errors.New("camera: capture encode failed")
	ErrFlashUnsupported         = errors.New("camera: flash not supported")
	ErrFlashApplyFailed         = errors.New("camera: flash apply failed")
	ErrNotReady                 = errors.New("camera: not ready")
	ErrIllegalTransition        = errors.New("camera: illegal transition")
	ErrInvalidFacing            = errors.New("camera: invalid facing mode")
)

// Reason classifies a camera failure for status reporting and metrics.
type Reason string

const (
	ReasonNone                     Reason = ""
	ReasonPermissionDenied         Reason = "permission-denied"
	ReasonDeviceNotFound           Reason = "device-not-found"
	ReasonDeviceBusy               Reason = "device-busy"
	ReasonConstraintsUnsatisfiable Reason = "constraints-unsatisfiable"
	ReasonTimeout                  Reason = "timeout"
	ReasonPreviewFailed            Reason = "preview-failed"
	ReasonCancelled                Reason = "cancelled"
	ReasonEncodeFailed             Reason = "encode-failed"
	ReasonFlashUnsupported         Reason = "flash-unsupported"
	ReasonFlashFailed              Reason = "flash-failed"
	ReasonNotReady                 Reason = "not-ready"
	ReasonIllegalTransition        Reason = "illegal-transition"
	ReasonInvalidFacing            Reason = "invalid-facing"
	ReasonUnknown                  Reason = "unknown"
)

// Error carries the failing operation and a classified reason. Err is the
// sentinel for the reason; Cause is the backend error, if any.
type Error struct {
	Op     string
	Reason Reason
	Err    error
	Cause  error
}

func newError(op string, reason Reason, cause error) *Error {
	return &Error{Op: op, Reason: reason, Err: reasonSentinel(reason), Cause: cause}
}

func (e *Error) Error() string {
	msg := "camera " + e.Op + ": " + string(e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Message is the text shown to the kiosk user.
func (e *Error) Message() string {
	switch e.Reason {
	case ReasonPermissionDenied:
		return "Failed to access any camera. Please ALLOW camera permissions and try again."
	case ReasonDeviceNotFound:
		return "Failed to access any camera. No camera found on this device."
	case ReasonDeviceBusy:
		return "Failed to access any camera. Camera is in use by another application."
	case ReasonConstraintsUnsatisfiable:
		return "Failed to access any camera. Device camera does not meet requested capabilities."
	case ReasonTimeout:
		return "Camera initialization timed out. Please check permissions and try again."
	case ReasonPreviewFailed:
		return "Failed to start camera preview. Check permissions and try again."
	case ReasonCancelled:
		return "Camera start was cancelled."
	case ReasonEncodeFailed:
		return "Failed to capture image. Please try again."
	case ReasonFlashUnsupported:
		return "Flash not supported"
	case ReasonFlashFailed:
		return "Failed to toggle flash"
	case ReasonNotReady:
		return "Camera not ready. Please wait and try again."
	case ReasonInvalidFacing:
		return "Unknown camera direction."
	case ReasonIllegalTransition:
		return "Camera is busy. Please try again."
	default:
		return "Failed to access any camera. An unexpected error occurred."
	}
}

func reasonSentinel(r Reason) error {
	switch r {
	case ReasonPermissionDenied:
		return ErrPermissionDenied
	case ReasonDeviceNotFound:
		return ErrDeviceNotFound
	case ReasonDeviceBusy:
		return ErrDeviceBusy
	case ReasonConstraintsUnsatisfiable:
		return ErrConstraintsUnsatisfiable
	case ReasonTimeout:
		return ErrAcquisitionTimeout
	case ReasonPreviewFailed:
		return ErrPreviewStartFailed
	case ReasonCancelled:
		return ErrAcquisitionCancelled
	case ReasonEncodeFailed:
		return ErrCaptureEncodeFailed
	case ReasonFlashUnsupported:
		return ErrFlashUnsupported
	case ReasonFlashFailed:
		return ErrFlashApplyFailed
	case ReasonNotReady:
		return ErrNotReady
	case ReasonIllegalTransition:
		return ErrIllegalTransition
	case ReasonInvalidFacing:
		return ErrInvalidFacing
	default:
		return ErrAcquisitionFailed
	}
}

// Classify maps a backend acquisition error onto a Reason.
func Classify(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, os.ErrPermission):
		return ReasonPermissionDenied
	case errors.Is(err, ErrDeviceNotFound), errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENODEV):
		return ReasonDeviceNotFound
	case errors.Is(err, ErrDeviceBusy), errors.Is(err, syscall.EBUSY):
		return ReasonDeviceBusy
	case errors.Is(err, ErrConstraintsUnsatisfiable):
		return ReasonConstraintsUnsatisfiable
	case errors.Is(err, ErrAcquisitionTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrAcquisitionCancelled), errors.Is(err, context.Canceled):
		return ReasonCancelled
	default:
		return ReasonUnknown
	}
}

// ReasonOf extracts the Reason from err, classifying foreign errors.
func ReasonOf(err error) Reason {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Reason
	}
	return Classify(err)
}
