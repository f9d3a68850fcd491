// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package wizard sequences the kiosk check-in: contact details, optional
// phone verification, card capture or upload, and submission.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/frontdesk/internal/camera"
	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/ManuGH/frontdesk/internal/metrics"
	"github.com/ManuGH/frontdesk/internal/settings"
	"github.com/ManuGH/frontdesk/internal/telemetry"
	"github.com/ManuGH/frontdesk/internal/upload"
	"github.com/ManuGH/frontdesk/internal/verification"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Step is a position in the check-in sequence.
type Step string

const (
	StepContact Step = "contact"
	StepVerify  Step = "verify"
	StepCapture Step = "capture"
)

const (
	defaultCountryCode    = "+91"
	defaultMaxUploadBytes = 10 << 20
	submittedMessage      = "Visitor details submitted successfully."
)

// CameraController is the part of camera.Controller the wizard drives.
type CameraController interface {
	Acquire(ctx context.Context, preferred camera.Facing) (camera.Status, error)
	SwitchFacing(ctx context.Context) (camera.Status, error)
	ToggleFlash(ctx context.Context) (camera.Status, error)
	Capture(ctx context.Context) (*camera.Artifact, camera.Status, error)
	Stop(ctx context.Context) camera.Status
	Status() camera.Status
}

// Verifier sends and checks phone codes.
type Verifier interface {
	SendCode(ctx context.Context, phone, recaptchaToken string) (*verification.Session, error)
	VerifyCode(ctx context.Context, sess *verification.Session, code string) error
}

// Uploader submits a completed check-in.
type Uploader interface {
	Submit(ctx context.Context, s upload.Submission) (upload.Result, error)
}

// Config holds wizard limits.
type Config struct {
	CountryCode    string
	MaxUploadBytes int64
	OTPDefault     bool
}

// Image is the card image the wizard will submit.
type Image struct {
	Method      upload.CaptureMethod
	Name        string
	ContentType string
	Data        []byte
	Width       int
	Height      int
}

// ImageInfo describes the pending image without its bytes.
type ImageInfo struct {
	Method      upload.CaptureMethod `json:"method"`
	Name        string               `json:"name"`
	ContentType string               `json:"contentType"`
	Size        int                  `json:"size"`
	Width       int                  `json:"width,omitempty"`
	Height      int                  `json:"height,omitempty"`
}

// Snapshot is the wizard state rendered by the kiosk.
type Snapshot struct {
	CheckinID      string         `json:"checkinId"`
	Step           Step           `json:"step"`
	OTPEnabled     bool           `json:"otpEnabled"`
	OTPVerified    bool           `json:"otpVerified"`
	CodeSentAt     *time.Time     `json:"codeSentAt,omitempty"`
	Contact        Contact        `json:"contact"`
	Image          *ImageInfo     `json:"image,omitempty"`
	Busy           bool           `json:"busy"`
	Notice         *camera.Notice `json:"notice,omitempty"`
	Camera         camera.Status  `json:"camera"`
	MaxUploadBytes int64          `json:"maxUploadBytes"`
}

// Wizard is one kiosk's check-in flow. Network calls are single flight:
// a second trigger while one is running fails with ErrBusy.
type Wizard struct {
	cam      CameraController
	verifier Verifier
	uploader Uploader
	store    settings.Store
	cfg      Config
	logger   zerolog.Logger

	mu          sync.Mutex
	epoch       uint64
	checkinID   string
	step        Step
	otpEnabled  bool
	otpVerified bool
	contact     Contact
	session     *verification.Session
	image       *Image
	busy        bool
	closed      bool
	notice      *camera.Notice
}

// New builds a wizard. The OTP preference is read once from store.
func New(ctx context.Context, cfg Config, cam CameraController, verifier Verifier, uploader Uploader, store settings.Store) (*Wizard, error) {
	if cfg.CountryCode == "" {
		cfg.CountryCode = defaultCountryCode
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	enabled, err := settings.OTPEnabled(ctx, store, cfg.OTPDefault)
	if err != nil {
		return nil, fmt.Errorf("load otp preference: %w", err)
	}
	w := &Wizard{
		cam:        cam,
		verifier:   verifier,
		uploader:   uploader,
		store:      store,
		cfg:        cfg,
		logger:     log.WithComponent("wizard"),
		step:       StepContact,
		otpEnabled: enabled,
		checkinID:  uuid.NewString(),
	}
	w.logger.Info().
		Str(log.FieldEvent, "wizard.started").
		Bool("otp_enabled", enabled).
		Msg("check-in wizard ready")
	return w, nil
}

// Snapshot returns the current state.
func (w *Wizard) Snapshot() Snapshot {
	cam := w.cam.Status()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked(cam)
}

func (w *Wizard) snapshotLocked(cam camera.Status) Snapshot {
	s := Snapshot{
		CheckinID:      w.checkinID,
		Step:           w.step,
		OTPEnabled:     w.otpEnabled,
		OTPVerified:    w.otpVerified,
		Contact:        w.contact,
		Busy:           w.busy,
		Camera:         cam,
		MaxUploadBytes: w.cfg.MaxUploadBytes,
	}
	if w.session != nil {
		sent := w.session.SentAt
		s.CodeSentAt = &sent
	}
	if w.image != nil {
		s.Image = &ImageInfo{
			Method:      w.image.Method,
			Name:        w.image.Name,
			ContentType: w.image.ContentType,
			Size:        len(w.image.Data),
			Width:       w.image.Width,
			Height:      w.image.Height,
		}
	}
	if w.notice != nil {
		n := *w.notice
		s.Notice = &n
	}
	return s
}

// Image returns the pending card image, if any.
func (w *Wizard) Image() (Image, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.image == nil {
		return Image{}, false
	}
	return *w.image, true
}

func (w *Wizard) ctx(ctx context.Context) context.Context {
	return log.ContextWithCheckinID(ctx, w.checkinID)
}

func (w *Wizard) log(ctx context.Context) *zerolog.Logger {
	l := log.WithContext(ctx, w.logger)
	return &l
}

// guardLocked rejects calls after Close and at the wrong step.
func (w *Wizard) guardLocked(op string, steps ...Step) error {
	if w.closed {
		return newError(op, ErrClosed)
	}
	for _, s := range steps {
		if w.step == s {
			return nil
		}
	}
	return newError(op, ErrWrongStep)
}

// begin marks a network call in flight and returns the epoch it belongs to.
// Results from an older epoch are dropped.
func (w *Wizard) begin(op string, steps ...Step) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(op, steps...); err != nil {
		return 0, err
	}
	if w.busy {
		return 0, newError(op, ErrBusy)
	}
	w.busy = true
	w.notice = nil
	return w.epoch, nil
}

// endLocked clears busy unless a reset already started a newer epoch.
func (w *Wizard) endLocked(epoch uint64) {
	if epoch == w.epoch {
		w.busy = false
	}
}

func (w *Wizard) failLocked(err error) error {
	var werr *Error
	if !errors.As(err, &werr) {
		werr = &Error{Op: "wizard", Err: err, Message: Message(err)}
	}
	w.notice = &camera.Notice{Kind: camera.NoticeError, Text: werr.Message}
	return werr
}

// failedLocked records err as the error notice and returns a snapshot that
// already carries it.
func (w *Wizard) failedLocked(cam camera.Status, err error) (Snapshot, error) {
	err = w.failLocked(err)
	return w.snapshotLocked(cam), err
}

func (w *Wizard) succeedLocked(text string) {
	w.notice = &camera.Notice{Kind: camera.NoticeSuccess, Text: text}
}

func (w *Wizard) moveLocked(ctx context.Context, to Step) {
	if w.step == to {
		return
	}
	w.log(ctx).Info().
		Str(log.FieldEvent, "wizard.step").
		Str(log.FieldOldState, string(w.step)).
		Str(log.FieldNewState, string(to)).
		Msg("wizard step changed")
	w.step = to
}

// SetContact records the visitor's details. With OTP off it proceeds
// straight to capture.
func (w *Wizard) SetContact(ctx context.Context, c Contact) (Snapshot, error) {
	ctx = w.ctx(ctx)
	c = c.normalized()

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked("contact", StepContact); err != nil {
		return w.failedLocked(w.cam.Status(), err)
	}
	if w.busy {
		return w.failedLocked(w.cam.Status(), newError("contact", ErrBusy))
	}
	if err := c.validate(); err != nil {
		w.contact = c
		return w.failedLocked(w.cam.Status(), newError("contact", err))
	}
	if c.MobileNumber != w.contact.MobileNumber {
		w.session = nil
		w.otpVerified = false
	}
	w.contact = c
	w.notice = nil
	if !w.otpEnabled || w.otpVerified {
		w.moveLocked(ctx, StepCapture)
	}
	return w.snapshotLocked(w.cam.Status()), nil
}

// SendCode texts a code to the contact number. It also serves as resend from
// the verify step.
func (w *Wizard) SendCode(ctx context.Context, recaptchaToken string) (Snapshot, error) {
	ctx = w.ctx(ctx)
	epoch, err := w.begin("send_code", StepContact, StepVerify)
	if err != nil {
		err = w.recordFailure(err)
		return w.Snapshot(), err
	}

	w.mu.Lock()
	enabled, phone := w.otpEnabled, w.contact.MobileNumber
	w.mu.Unlock()

	switch {
	case !enabled:
		err = newError("send_code", ErrOTPDisabled)
	case !ValidMobile(phone):
		err = newError("send_code", ErrInvalidPhone)
	}

	var sess *verification.Session
	if err == nil {
		sess, err = w.verifier.SendCode(ctx, w.cfg.CountryCode+phone, recaptchaToken)
	}

	cam := w.cam.Status()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.endLocked(epoch)
	if epoch != w.epoch {
		return w.snapshotLocked(cam), newError("send_code", ErrClosed)
	}
	if err != nil {
		return w.failedLocked(cam, err)
	}
	w.session = sess
	w.otpVerified = false
	w.moveLocked(ctx, StepVerify)
	w.succeedLocked("OTP has been sent successfully!")
	return w.snapshotLocked(cam), nil
}

// VerifyCode checks the code the visitor typed.
func (w *Wizard) VerifyCode(ctx context.Context, code string) (Snapshot, error) {
	ctx = w.ctx(ctx)
	code = strings.TrimSpace(code)
	if !verification.ValidCode(code) {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.failedLocked(w.cam.Status(), newError("verify_code", ErrInvalidCode))
	}

	epoch, err := w.begin("verify_code", StepVerify)
	if err != nil {
		err = w.recordFailure(err)
		return w.Snapshot(), err
	}
	w.mu.Lock()
	sess := w.session
	w.mu.Unlock()

	err = w.verifier.VerifyCode(ctx, sess, code)

	cam := w.cam.Status()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.endLocked(epoch)
	if epoch != w.epoch {
		return w.snapshotLocked(cam), newError("verify_code", ErrClosed)
	}
	if err != nil {
		return w.failedLocked(cam, err)
	}
	w.otpVerified = true
	w.moveLocked(ctx, StepCapture)
	w.succeedLocked("Phone number verified successfully!")
	return w.snapshotLocked(cam), nil
}

func (w *Wizard) recordFailure(err error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failLocked(err)
}

// StartCamera acquires the camera facing the requested way.
func (w *Wizard) StartCamera(ctx context.Context, facing camera.Facing) (Snapshot, error) {
	return w.cameraOp(ctx, "start_camera", func(ctx context.Context) error {
		_, err := w.cam.Acquire(ctx, facing)
		return err
	})
}

// SwitchCamera flips between front and back.
func (w *Wizard) SwitchCamera(ctx context.Context) (Snapshot, error) {
	return w.cameraOp(ctx, "switch_camera", func(ctx context.Context) error {
		_, err := w.cam.SwitchFacing(ctx)
		return err
	})
}

// ToggleFlash flips the torch.
func (w *Wizard) ToggleFlash(ctx context.Context) (Snapshot, error) {
	return w.cameraOp(ctx, "toggle_flash", func(ctx context.Context) error {
		_, err := w.cam.ToggleFlash(ctx)
		return err
	})
}

// StopCamera releases the camera without leaving the step.
func (w *Wizard) StopCamera(ctx context.Context) (Snapshot, error) {
	return w.cameraOp(ctx, "stop_camera", func(ctx context.Context) error {
		w.cam.Stop(ctx)
		return nil
	})
}

// Capture takes the still image. The controller releases the camera
// afterwards.
func (w *Wizard) Capture(ctx context.Context) (Snapshot, error) {
	var art *camera.Artifact
	snap, err := w.cameraOp(ctx, "capture", func(ctx context.Context) error {
		var err error
		art, _, err = w.cam.Capture(ctx)
		return err
	})
	if err != nil || art == nil {
		return snap, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.step != StepCapture {
		return w.failedLocked(w.cam.Status(), newError("capture", ErrWrongStep))
	}
	w.image = &Image{
		Method:      upload.CaptureCamera,
		Name:        art.Filename,
		ContentType: art.MIMEType,
		Data:        art.Data,
		Width:       art.Width,
		Height:      art.Height,
	}
	w.succeedLocked("Image captured successfully!")
	return w.snapshotLocked(w.cam.Status()), nil
}

func (w *Wizard) cameraOp(ctx context.Context, op string, fn func(context.Context) error) (Snapshot, error) {
	ctx = w.ctx(ctx)
	w.mu.Lock()
	if err := w.guardLocked(op, StepCapture); err != nil {
		defer w.mu.Unlock()
		return w.failedLocked(w.cam.Status(), err)
	}
	w.notice = nil
	w.mu.Unlock()

	err := fn(ctx)

	cam := w.cam.Status()
	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.log(ctx).Warn().Err(err).Str(log.FieldOperation, op).Msg("camera operation failed")
		return w.failedLocked(cam, newError(op, err))
	}
	return w.snapshotLocked(cam), nil
}

// Retake discards the pending image.
func (w *Wizard) Retake(ctx context.Context) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked("retake", StepCapture); err != nil {
		return w.failedLocked(w.cam.Status(), err)
	}
	w.image = nil
	w.notice = nil
	w.log(w.ctx(ctx)).Debug().Str(log.FieldEvent, "wizard.retake").Msg("pending image discarded")
	return w.snapshotLocked(w.cam.Status()), nil
}

// AttachFile uses a visitor-selected file in place of a capture. The content
// type is sniffed from the bytes, not taken from the client.
func (w *Wizard) AttachFile(ctx context.Context, name string, data []byte) (Snapshot, error) {
	ctx = w.ctx(ctx)
	w.mu.Lock()
	if err := w.guardLocked("attach_file", StepCapture); err != nil {
		defer w.mu.Unlock()
		return w.failedLocked(w.cam.Status(), err)
	}
	var err error
	switch {
	case len(data) == 0:
		err = ErrNoImage
	case int64(len(data)) > w.cfg.MaxUploadBytes:
		err = ErrFileTooLarge
	}
	contentType := http.DetectContentType(data)
	if err == nil && !strings.HasPrefix(contentType, "image/") {
		err = ErrNotImage
	}
	if err != nil {
		defer w.mu.Unlock()
		return w.failedLocked(w.cam.Status(), newError("attach_file", err))
	}
	w.image = &Image{
		Method:      upload.CaptureUpload,
		Name:        name,
		ContentType: contentType,
		Data:        data,
	}
	w.notice = nil
	w.mu.Unlock()

	// A chosen file replaces the live preview.
	w.cam.Stop(ctx)
	w.log(ctx).Info().
		Str(log.FieldEvent, "wizard.file_attached").
		Str("content_type", contentType).
		Int("bytes", len(data)).
		Msg("visitor attached a card image")
	return w.Snapshot(), nil
}

// Submit uploads the check-in. On success the wizard starts over with the
// backend's message as the notice.
func (w *Wizard) Submit(ctx context.Context) (_ Snapshot, retErr error) {
	ctx = w.ctx(ctx)
	epoch, err := w.begin("submit", StepCapture)
	if err != nil {
		err = w.recordFailure(err)
		return w.Snapshot(), err
	}

	w.mu.Lock()
	img := w.image
	sub := upload.Submission{
		MobileNumber:       w.contact.MobileNumber,
		Name:               w.contact.Name,
		CompanyName:        w.contact.CompanyName,
		CompanyPhoneNumber: w.contact.CompanyPhoneNumber,
		Address:            w.contact.Address,
		OTPVerified:        w.otpEnabled && w.otpVerified,
	}
	w.mu.Unlock()

	ctx, span := telemetry.Tracer("frontdesk/wizard").Start(ctx, "wizard.submit")
	defer func() { telemetry.EndSpan(span, retErr, "submit_failed") }()

	var res upload.Result
	if img == nil {
		err = newError("submit", ErrNoImage)
	} else {
		sub.CaptureMethod = img.Method
		sub.File = upload.File{Name: img.Name, ContentType: img.ContentType, Data: img.Data}
		span.SetAttributes(telemetry.CheckinAttributes(string(StepCapture), string(img.Method), sub.OTPVerified)...)
		res, err = w.uploader.Submit(ctx, sub)
	}

	w.mu.Lock()
	w.endLocked(epoch)
	if epoch != w.epoch {
		defer w.mu.Unlock()
		return w.snapshotLocked(w.cam.Status()), newError("submit", ErrClosed)
	}
	if err != nil {
		defer w.mu.Unlock()
		return w.failedLocked(w.cam.Status(), err)
	}

	metrics.RecordCheckinSubmission(string(sub.CaptureMethod), sub.OTPVerified)
	w.log(ctx).Info().
		Str(log.FieldEvent, "wizard.submitted").
		Str("capture_method", string(sub.CaptureMethod)).
		Bool("otp_verified", sub.OTPVerified).
		Msg("check-in submitted")

	msg := res.Message
	if msg == "" {
		msg = submittedMessage
	}
	w.resetLocked(ctx)
	w.succeedLocked(msg)
	w.mu.Unlock()

	w.cam.Stop(ctx)
	return w.Snapshot(), nil
}

// Back moves one step backwards. Leaving capture always releases the camera.
func (w *Wizard) Back(ctx context.Context) (Snapshot, error) {
	ctx = w.ctx(ctx)
	w.mu.Lock()
	if err := w.guardLocked("back", StepVerify, StepCapture); err != nil {
		defer w.mu.Unlock()
		return w.failedLocked(w.cam.Status(), err)
	}
	from := w.step
	w.epoch++
	w.busy = false
	w.notice = nil
	if from == StepCapture {
		// A verified number stays verified; the visitor returns to the
		// contact form, not to a finished verify step.
		w.image = nil
	} else {
		w.session = nil
		w.otpVerified = false
	}
	w.moveLocked(ctx, StepContact)
	w.mu.Unlock()

	if from == StepCapture {
		w.cam.Stop(ctx)
	}
	return w.Snapshot(), nil
}

// SetOTPEnabled persists the verification preference and restarts at the
// contact step.
func (w *Wizard) SetOTPEnabled(ctx context.Context, enabled bool) (Snapshot, error) {
	ctx = w.ctx(ctx)
	if err := settings.SetOTPEnabled(ctx, w.store, enabled); err != nil {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.failedLocked(w.cam.Status(), fmt.Errorf("save otp preference: %w", err))
	}

	w.mu.Lock()
	leavingCapture := w.step == StepCapture
	w.otpEnabled = enabled
	w.epoch++
	w.busy = false
	w.session = nil
	w.otpVerified = false
	w.image = nil
	w.notice = nil
	w.moveLocked(ctx, StepContact)
	w.mu.Unlock()

	if leavingCapture {
		w.cam.Stop(ctx)
	}
	w.log(ctx).Info().
		Str(log.FieldEvent, "wizard.otp_toggled").
		Bool("otp_enabled", enabled).
		Msg("otp verification preference changed")
	return w.Snapshot(), nil
}

// Reset abandons the current check-in and releases the camera.
func (w *Wizard) Reset(ctx context.Context) Snapshot {
	ctx = w.ctx(ctx)
	w.mu.Lock()
	w.resetLocked(ctx)
	w.mu.Unlock()
	w.cam.Stop(ctx)
	return w.Snapshot()
}

func (w *Wizard) resetLocked(ctx context.Context) {
	w.epoch++
	w.busy = false
	w.contact = Contact{}
	w.session = nil
	w.otpVerified = false
	w.image = nil
	w.notice = nil
	w.moveLocked(ctx, StepContact)
	w.checkinID = uuid.NewString()
}

// Close ends the wizard for good. It always releases the camera.
func (w *Wizard) Close(ctx context.Context) {
	ctx = w.ctx(ctx)
	w.mu.Lock()
	w.resetLocked(ctx)
	w.closed = true
	w.mu.Unlock()
	w.cam.Stop(ctx)
	w.logger.Info().Str(log.FieldEvent, "wizard.closed").Msg("check-in wizard closed")
}
