// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/frontdesk/internal/camera"
	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/ManuGH/frontdesk/internal/upload"
	"github.com/ManuGH/frontdesk/internal/verification"
	"github.com/ManuGH/frontdesk/internal/wizard"
)

// errorBody is the JSON shape of every failed request. Snapshot carries the
// wizard state after a failed check-in step so the kiosk can redraw.
type errorBody struct {
	Error     string           `json:"error"`
	Message   string           `json:"message"`
	RequestID string           `json:"requestId,omitempty"`
	Snapshot  *wizard.Snapshot `json:"snapshot,omitempty"`
	Camera    *camera.Status   `json:"camera,omitempty"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters: the first match wins.
var errorTable = []errorMapping{
	{wizard.ErrBusy, http.StatusConflict, "busy"},
	{wizard.ErrClosed, http.StatusServiceUnavailable, "closed"},
	{wizard.ErrWrongStep, http.StatusConflict, "wrong_step"},
	{wizard.ErrOTPDisabled, http.StatusConflict, "otp_disabled"},
	{wizard.ErrInvalidPhone, http.StatusBadRequest, "invalid_phone"},
	{wizard.ErrInvalidCompanyPhone, http.StatusBadRequest, "invalid_company_phone"},
	{wizard.ErrInvalidCode, http.StatusBadRequest, "invalid_code"},
	{wizard.ErrNoImage, http.StatusBadRequest, "no_image"},
	{wizard.ErrNotImage, http.StatusUnsupportedMediaType, "not_image"},
	{wizard.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "file_too_large"},

	{camera.ErrInvalidFacing, http.StatusBadRequest, "invalid_facing"},
	{camera.ErrNotReady, http.StatusConflict, "camera_not_ready"},
	{camera.ErrIllegalTransition, http.StatusConflict, "camera_busy"},
	{camera.ErrAcquisitionCancelled, http.StatusConflict, "camera_cancelled"},
	{camera.ErrFlashUnsupported, http.StatusConflict, "flash_unsupported"},
	{camera.ErrPermissionDenied, http.StatusForbidden, "camera_permission_denied"},
	{camera.ErrDeviceNotFound, http.StatusServiceUnavailable, "camera_not_found"},
	{camera.ErrDeviceBusy, http.StatusServiceUnavailable, "camera_in_use"},
	{camera.ErrConstraintsUnsatisfiable, http.StatusServiceUnavailable, "camera_constraints"},
	{camera.ErrPreviewStartFailed, http.StatusServiceUnavailable, "camera_preview_failed"},
	{camera.ErrAcquisitionTimeout, http.StatusGatewayTimeout, "camera_timeout"},
	{camera.ErrAcquisitionFailed, http.StatusServiceUnavailable, "camera_failed"},
	{camera.ErrFlashApplyFailed, http.StatusInternalServerError, "flash_failed"},
	{camera.ErrCaptureEncodeFailed, http.StatusInternalServerError, "capture_failed"},

	{upload.ErrInvalid, http.StatusBadRequest, "upload_invalid"},
	{upload.ErrRejected, http.StatusUnprocessableEntity, "upload_rejected"},
	{upload.ErrTimeout, http.StatusGatewayTimeout, "upload_timeout"},
	{upload.ErrUnavailable, http.StatusServiceUnavailable, "upload_unavailable"},
	{upload.ErrBackend, http.StatusBadGateway, "upload_failed"},
	{upload.ErrBadResponse, http.StatusBadGateway, "upload_failed"},

	{verification.ErrTooSoon, http.StatusTooManyRequests, "otp_cooldown"},
	{verification.ErrQuotaExceeded, http.StatusTooManyRequests, "otp_quota"},
	{verification.ErrInvalidPhone, http.StatusBadRequest, "invalid_phone"},
	{verification.ErrMissingPhone, http.StatusBadRequest, "invalid_phone"},
	{verification.ErrCaptchaFailed, http.StatusBadRequest, "captcha_failed"},
	{verification.ErrInvalidCode, http.StatusBadRequest, "invalid_code"},
	{verification.ErrCodeExpired, http.StatusBadRequest, "code_expired"},
	{verification.ErrNoSession, http.StatusConflict, "no_session"},
	{verification.ErrUnavailable, http.StatusServiceUnavailable, "otp_unavailable"},
	{verification.ErrProvider, http.StatusBadGateway, "otp_failed"},
}

func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status and writes the kiosk message for it.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, body errorBody) {
	status, code := classify(err)
	body.Error = code
	body.Message = wizard.Message(err)
	body.RequestID = log.RequestIDFromContext(r.Context())

	logger := log.WithContext(r.Context(), s.logger)
	ev := logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = logger.Error()
	}
	ev.Err(err).
		Str(log.FieldEvent, "api.error").
		Str(log.FieldPath, r.URL.Path).
		Int(log.FieldStatus, status).
		Str("code", code).
		Msg("request failed")

	writeJSON(w, status, body)
}

func (s *Server) writeBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Error:     "bad_request",
		Message:   msg,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}
