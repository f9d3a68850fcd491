// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ManuGH/frontdesk/internal/wizard"
)

const jsonBodyLimit = 16 << 10

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, jsonBodyLimit))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// respond writes the wizard snapshot, or the error together with it.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, snap wizard.Snapshot, err error) {
	if err != nil {
		s.writeError(w, r, err, errorBody{Snapshot: &snap})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCheckin(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.wiz.Snapshot())
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var c wizard.Contact
	if err := decodeJSON(r, &c); err != nil {
		s.writeBadRequest(w, r, "Request body must be a contact object.")
		return
	}
	snap, err := s.wiz.SetContact(r.Context(), c)
	s.respond(w, r, snap, err)
}

type sendCodeRequest struct {
	RecaptchaToken string `json:"recaptchaToken"`
}

func (s *Server) handleSendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeBadRequest(w, r, "Request body must be JSON.")
		return
	}
	snap, err := s.wiz.SendCode(r.Context(), req.RecaptchaToken)
	s.respond(w, r, snap, err)
}

type verifyCodeRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeBadRequest(w, r, "Request body must contain the code.")
		return
	}
	snap, err := s.wiz.VerifyCode(r.Context(), req.Code)
	s.respond(w, r, snap, err)
}

func (s *Server) handleCheckinCamera(w http.ResponseWriter, r *http.Request) {
	facing, err := decodeFacing(r)
	if err != nil {
		s.writeBadRequest(w, r, "Request body must be JSON.")
		return
	}
	snap, err := s.wiz.StartCamera(r.Context(), facing)
	s.respond(w, r, snap, err)
}

func (s *Server) handleCheckinSwitch(w http.ResponseWriter, r *http.Request) {
	snap, err := s.wiz.SwitchCamera(r.Context())
	s.respond(w, r, snap, err)
}

func (s *Server) handleCheckinFlash(w http.ResponseWriter, r *http.Request) {
	snap, err := s.wiz.ToggleFlash(r.Context())
	s.respond(w, r, snap, err)
}

func (s *Server) handleCheckinStopCamera(w http.ResponseWriter, r *http.Request) {
	snap, err := s.wiz.StopCamera(r.Context())
	s.respond(w, r, snap, err)
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	snap, err := s.wiz.Capture(r.Context())
	s.respond(w, r, snap, err)
}

func (s *Server) handleRetake(w http.ResponseWriter, r *http.Request) {
	snap, err := s.wiz.Retake(r.Context())
	s.respond(w, r, snap, err)
}

// handleAttachFile accepts a multipart form with the card image in "file".
func (s *Server) handleAttachFile(w http.ResponseWriter, r *http.Request) {
	limit := s.wiz.Snapshot().MaxUploadBytes
	if r.ContentLength > limit+formOverheadBytes {
		snap := s.wiz.Snapshot()
		s.writeError(w, r, wizard.ErrFileTooLarge, errorBody{Snapshot: &snap})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverheadBytes)

	file, hdr, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			snap := s.wiz.Snapshot()
			s.writeError(w, r, wizard.ErrFileTooLarge, errorBody{Snapshot: &snap})
			return
		}
		s.writeBadRequest(w, r, "Please select a file to upload.")
		return
	}
	defer func() { _ = file.Close() }()
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		s.writeBadRequest(w, r, "Failed to read the uploaded file.")
		return
	}
	snap, err := s.wiz.AttachFile(r.Context(), hdr.Filename, data)
	s.respond(w, r, snap, err)
}

// handleArtifact serves the pending card image so the kiosk can show it.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	img, ok := s.wiz.Image()
	if !ok {
		snap := s.wiz.Snapshot()
		s.writeError(w, r, wizard.ErrNoImage, errorBody{Snapshot: &snap})
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Capture-Method", string(img.Method))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	snap, err := s.wiz.Submit(r.Context())
	s.respond(w, r, snap, err)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	snap, err := s.wiz.Back(r.Context())
	s.respond(w, r, snap, err)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.wiz.Reset(r.Context()))
}
