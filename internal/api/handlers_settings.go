// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"strconv"

	"github.com/ManuGH/frontdesk/internal/settings"
)

type otpSetting struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleGetOTP(w http.ResponseWriter, _ *http.Request) {
	enabled := s.wiz.Snapshot().OTPEnabled
	writeJSON(w, http.StatusOK, otpSetting{Enabled: &enabled})
}

// handlePutOTP persists the preference and restarts the check-in.
func (s *Server) handlePutOTP(w http.ResponseWriter, r *http.Request) {
	var req otpSetting
	if err := decodeJSON(r, &req); err != nil || req.Enabled == nil {
		s.writeBadRequest(w, r, `Request body must be {"enabled": true|false}.`)
		return
	}
	snap, err := s.wiz.SetOTPEnabled(r.Context(), *req.Enabled)
	if err == nil {
		s.audit.SettingChanged(r.Context(), r.RemoteAddr, settings.KeyOTPEnabled, strconv.FormatBool(*req.Enabled))
	}
	s.respond(w, r, snap, err)
}
