// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ManuGH/frontdesk/internal/camera"
)

type facingRequest struct {
	Facing camera.Facing `json:"facing"`
}

// decodeFacing reads an optional {"facing": "..."} body. An empty body
// selects the back camera.
func decodeFacing(r *http.Request) (camera.Facing, error) {
	var req facingRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if req.Facing == "" {
		return camera.FacingEnvironment, nil
	}
	return req.Facing, nil
}

func (s *Server) handleCameraStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cam.Status())
}

func (s *Server) handleCameraDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"devices": s.cam.Devices()})
}

func (s *Server) handleCameraAcquire(w http.ResponseWriter, r *http.Request) {
	facing, err := decodeFacing(r)
	if err != nil {
		s.writeBadRequest(w, r, "Request body must be JSON.")
		return
	}
	st, err := s.cam.Acquire(r.Context(), facing)
	s.writeCamera(w, r, st, err)
}

func (s *Server) handleCameraSwitch(w http.ResponseWriter, r *http.Request) {
	st, err := s.cam.SwitchFacing(r.Context())
	s.writeCamera(w, r, st, err)
}

func (s *Server) handleCameraFlash(w http.ResponseWriter, r *http.Request) {
	st, err := s.cam.ToggleFlash(r.Context())
	s.writeCamera(w, r, st, err)
}

func (s *Server) handleCameraStop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cam.Stop(r.Context()))
}

func (s *Server) writeCamera(w http.ResponseWriter, r *http.Request, st camera.Status, err error) {
	if err != nil {
		s.writeError(w, r, err, errorBody{Camera: &st})
		return
	}
	writeJSON(w, http.StatusOK, st)
}
