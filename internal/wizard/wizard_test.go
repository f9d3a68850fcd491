// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package wizard_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/frontdesk/internal/camera"
	"github.com/ManuGH/frontdesk/internal/camera/cameratest"
	"github.com/ManuGH/frontdesk/internal/settings"
	"github.com/ManuGH/frontdesk/internal/upload"
	"github.com/ManuGH/frontdesk/internal/verification"
	"github.com/ManuGH/frontdesk/internal/wizard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var epoch = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type fakeVerifier struct {
	mu     sync.Mutex
	phones []string
	sendFn func(phone string) error
}

func (f *fakeVerifier) SendCode(_ context.Context, phone, _ string) (*verification.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phones = append(f.phones, phone)
	if f.sendFn != nil {
		if err := f.sendFn(phone); err != nil {
			return nil, err
		}
	}
	return &verification.Session{ID: "v-1", Phone: phone, SentAt: epoch}, nil
}

func (f *fakeVerifier) VerifyCode(_ context.Context, sess *verification.Session, code string) error {
	if sess == nil {
		return &verification.Error{Sentinel: verification.ErrNoSession, Operation: "verify"}
	}
	if code != "123456" {
		return &verification.Error{Sentinel: verification.ErrInvalidCode, Operation: "verify", Code: "INVALID_CODE"}
	}
	return nil
}

type fakeUploader struct {
	mu    sync.Mutex
	subs  []upload.Submission
	err   error
	msg   string
	gate  chan struct{}
	entry chan struct{}
}

func (f *fakeUploader) Submit(ctx context.Context, s upload.Submission) (upload.Result, error) {
	if f.entry != nil {
		f.entry <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return upload.Result{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, s)
	if f.err != nil {
		return upload.Result{}, f.err
	}
	return upload.Result{Status: 201, Message: f.msg}, nil
}

func (f *fakeUploader) submissions() []upload.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]upload.Submission(nil), f.subs...)
}

type fixture struct {
	wiz      *wizard.Wizard
	cam      *camera.Controller
	backend  *cameratest.Backend
	verifier *fakeVerifier
	uploader *fakeUploader
	store    settings.Store
}

func newFixture(t *testing.T, otp bool) *fixture {
	t.Helper()
	return newFixtureWithStore(t, otp, settings.NewMemoryStore(), wizard.Config{})
}

func newFixtureWithStore(t *testing.T, otpDefault bool, store settings.Store, cfg wizard.Config) *fixture {
	t.Helper()
	b := cameratest.New(
		cameratest.Device{ID: "/dev/video0", Label: "Rear", Facing: camera.FacingEnvironment, Torch: true},
		cameratest.Device{ID: "/dev/video2", Label: "Front", Facing: camera.FacingUser},
	)
	cam := camera.NewController(context.Background(), b, camera.DefaultOptions(), camera.WithClock(cameratest.NewClock(epoch)))
	f := &fixture{
		cam:      cam,
		backend:  b,
		verifier: &fakeVerifier{},
		uploader: &fakeUploader{msg: "Visitor checked in"},
		store:    store,
	}
	cfg.OTPDefault = otpDefault
	wiz, err := wizard.New(context.Background(), cfg, cam, f.verifier, f.uploader, store)
	require.NoError(t, err)
	f.wiz = wiz
	t.Cleanup(func() { cam.Stop(context.Background()) })
	return f
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.White)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestWizard_WithoutOTPCapturesAndSubmits(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()
	f := newFixture(t, false)

	snap, err := f.wiz.SetContact(ctx, wizard.Contact{MobileNumber: "９８７６５-４３２１０", Name: " Asha "})
	require.NoError(t, err)
	assert.Equal(t, wizard.StepCapture, snap.Step)
	assert.Equal(t, "9876543210", snap.Contact.MobileNumber)
	assert.Equal(t, "Asha", snap.Contact.Name)

	snap, err = f.wiz.StartCamera(ctx, camera.FacingEnvironment)
	require.NoError(t, err)
	assert.Equal(t, camera.StateReady, snap.Camera.State)

	snap, err = f.wiz.Capture(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Image)
	assert.Equal(t, upload.CaptureCamera, snap.Image.Method)
	assert.Equal(t, "Image captured successfully!", snap.Notice.Text)
	assert.Equal(t, camera.StateIdle, snap.Camera.State, "camera stops after capture")
	assert.Zero(t, f.backend.LiveStreams())

	firstID := snap.CheckinID
	snap, err = f.wiz.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, wizard.StepContact, snap.Step)
	assert.Empty(t, snap.Contact.MobileNumber)
	assert.Nil(t, snap.Image)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, camera.NoticeSuccess, snap.Notice.Kind)
	assert.Equal(t, "Visitor checked in", snap.Notice.Text)
	assert.NotEqual(t, firstID, snap.CheckinID)

	subs := f.uploader.submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "9876543210", subs[0].MobileNumber)
	assert.False(t, subs[0].OTPVerified)
	assert.Equal(t, upload.CaptureCamera, subs[0].CaptureMethod)
	assert.Equal(t, "image/jpeg", subs[0].File.ContentType)
	assert.True(t, strings.HasPrefix(subs[0].File.Name, "visiting_card_back_"))
}

func TestWizard_OTPFlowWithUploadedFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	snap, err := f.wiz.SetContact(ctx, wizard.Contact{MobileNumber: "9876543210"})
	require.NoError(t, err)
	assert.Equal(t, wizard.StepContact, snap.Step, "OTP keeps the visitor on contact until a code is sent")

	snap, err = f.wiz.SendCode(ctx, "captcha")
	require.NoError(t, err)
	assert.Equal(t, wizard.StepVerify, snap.Step)
	assert.Equal(t, "OTP has been sent successfully!", snap.Notice.Text)
	assert.NotNil(t, snap.CodeSentAt)
	assert.Equal(t, []string{"+919876543210"}, f.verifier.phones)

	_, err = f.wiz.VerifyCode(ctx, "12")
	require.ErrorIs(t, err, wizard.ErrInvalidCode)
	assert.Equal(t, "Please enter a valid 6-digit OTP.", wizard.Message(err))

	snap, err = f.wiz.VerifyCode(ctx, "654321")
	require.Error(t, err)
	assert.Equal(t, "Invalid OTP. Please check the code and try again.", snap.Notice.Text)
	assert.Equal(t, wizard.StepVerify, snap.Step)

	snap, err = f.wiz.VerifyCode(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, wizard.StepCapture, snap.Step)
	assert.True(t, snap.OTPVerified)
	assert.Equal(t, "Phone number verified successfully!", snap.Notice.Text)

	snap, err = f.wiz.AttachFile(ctx, "card.png", pngBytes(t))
	require.NoError(t, err)
	require.NotNil(t, snap.Image)
	assert.Equal(t, upload.CaptureUpload, snap.Image.Method)
	assert.Equal(t, "image/png", snap.Image.ContentType)

	_, err = f.wiz.Submit(ctx)
	require.NoError(t, err)
	subs := f.uploader.submissions()
	require.Len(t, subs, 1)
	assert.True(t, subs[0].OTPVerified)
	assert.Equal(t, upload.CaptureUpload, subs[0].CaptureMethod)
	assert.Equal(t, "card.png", subs[0].File.Name)
}

func TestWizard_SendCodeFailureShowsProviderMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.verifier.sendFn = func(string) error {
		return &verification.Error{Sentinel: verification.ErrQuotaExceeded, Operation: "send", Code: "QUOTA_EXCEEDED"}
	}

	_, err := f.wiz.SetContact(ctx, wizard.Contact{MobileNumber: "9876543210"})
	require.NoError(t, err)
	snap, err := f.wiz.SendCode(ctx, "captcha")
	require.ErrorIs(t, err, verification.ErrQuotaExceeded)
	assert.Equal(t, wizard.StepContact, snap.Step)
	assert.False(t, snap.Busy)
	assert.Equal(t, "Failed to send OTP. SMS quota exceeded. Try again later.", snap.Notice.Text)
}

func TestWizard_ContactValidation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		contact wizard.Contact
		want    error
		message string
	}{
		{"too short", wizard.Contact{MobileNumber: "98765"}, wizard.ErrInvalidPhone, "Please enter a valid 10-digit mobile number."},
		{"bad leading digit", wizard.Contact{MobileNumber: "5876543210"}, wizard.ErrInvalidPhone, "Please enter a valid 10-digit mobile number."},
		{"company phone too short", wizard.Contact{MobileNumber: "9876543210", CompanyPhoneNumber: "12345"}, wizard.ErrInvalidCompanyPhone, "Please enter a valid company phone number (10-15 digits)."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			snap, err := f.wiz.SetContact(ctx, tt.contact)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.message, wizard.Message(err))
			assert.Equal(t, wizard.StepContact, snap.Step)
			require.NotNil(t, snap.Notice)
			assert.Equal(t, camera.NoticeError, snap.Notice.Kind)
		})
	}
}

func TestWizard_ErrorSnapshotCarriesNotice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	snap, err := f.wiz.SetContact(ctx, wizard.Contact{MobileNumber: "123"})
	require.ErrorIs(t, err, wizard.ErrInvalidPhone)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, camera.Notice{Kind: camera.NoticeError, Text: "Please enter a valid 10-digit mobile number."}, *snap.Notice)
	assert.Equal(t, snap.Notice, f.wiz.Snapshot().Notice)

	_, err = f.wiz.SetContact(ctx, wizard.Contact{MobileNumber: "9876543210"})
	require.NoError(t, err)
	snap, err = f.wiz.SendCode(ctx, "captcha")
	require.NoError(t, err)
	require.Equal(t, camera.NoticeSuccess, snap.Notice.Kind)

	// The success notice from sending must not leak into the failure.
	snap, err = f.wiz.VerifyCode(ctx, "12")
	require.ErrorIs(t, err, wizard.ErrInvalidCode)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, camera.NoticeError, snap.Notice.Kind)
	assert.Equal(t, wizard.Message(err), snap.Notice.Text)
}

func TestWizard_NormalizeMobile(t *testing.T) {
	assert.Equal(t, "9876543210", wizard.NormalizeMobile("98765 43210"))
	assert.Equal(t, "9876543210", wizard.NormalizeMobile("９８７６５４３２１０"))
	assert.Equal(t, "9876543210", wizard.NormalizeMobile("98765432109999"))
	assert.Empty(t, wizard.NormalizeMobile("abc"))
}

func TestWizard_BackFromCaptureStopsCamera(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.wiz.SetContact(ctx, wizard.Contact{MobileNumber: "9876543210"})
	require.NoError(t, err)
	_, err = f.wiz.StartCamera(ctx, camera.FacingEnvironment)
	require.NoError(t, err)
	require.Equal(t, 1, f.backend.LiveStreams())

	snap, err := f.wiz.Back(ctx)
	require.NoError(t, err)
	assert.Equal(t, wizard.StepContact, snap.Step)
	assert.Equal(t, camera.StateIdle, snap.Camera.State)
	assert.Zero(t, f.backend.LiveStreams())
	assert.Equal(t, "9876543210", snap.Contact.MobileNumber, "contact survives back navigation")

	_, err = f.wiz.Back(ctx)
	require.ErrorIs(t, err, wizard.ErrWrongStep)
}

func TestWizard_BackFromVerifyClearsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	_, err := f.wiz.SetContact(ctx, wizard.Contact{MobileNumber: "9876543210"})
	require.NoError(t, err)
	_, err = f.wiz.SendCode(ctx, "captcha")
	require.NoError(t, err)

	snap, err := f.wiz.Back(ctx)
	require.NoError(t, err)
	assert.Equal(t, wizard.StepContact, snap.Step)
	assert.Nil(t, snap.CodeSentAt)

	_, err = f.wiz.VerifyCode(ctx, "123456")
	require.ErrorIs(t, err, wizard.ErrWrongStep)
}

func TestWizard_CameraOpsRequireCaptureStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.wiz.StartCamera(ctx, camera.FacingEnvironment)
	require.ErrorIs(t, err, wizard.ErrWrongStep)
	_, err = f.wiz.Capture(ctx)
	require.ErrorIs(t, err, wizard.ErrWrongStep)
	assert.Empty(t, f.backend.Calls(), "no hardware touched outside the capture step")
}

func TestWizard_CaptureBeforeReadyIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	_, err := f.wiz.SetContact(ctx, wizard.Contact{MobileNumber: "9876543210"})
	require.NoError(t, err)

	snap, err := f.wiz.Capture(ctx)
	require.ErrorIs(t, err, camera.ErrNotReady)
	assert.Nil(t, snap.Image)
	assert.Equal(t, "Camera not ready. Please wait and try again.", snap.Notice.Text)
}

func TestWizard_AttachFileChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWithStore(t, false, settings.NewMemoryStore(), wizard.Config{MaxUploadBytes: 1024})
	_, err := f.wiz.SetContact(ctx, wizard.Contact{MobileNumber: "9876543210"})
	require.NoError(t, err)

	_, err = f.wiz.AttachFile(ctx, "notes.txt", []byte("hello, not an image"))
	require.ErrorIs(t, err, wizard.ErrNotImage)
	assert.Equal(t, "Please select a valid image file.", wizard.Message(err))

	_, err = f.wiz.AttachFile(ctx, "huge.png", append(pngBytes(t), make([]byte, 2048)...))
	require.ErrorIs(t, err, wizard.ErrFileTooLarge)

	_, err = f.wiz.AttachFile(ctx, "empty.png", nil)
	require.ErrorIs(t, err, wizard.ErrNoImage)

	_, err = f.wiz.Submit(ctx)
	require.ErrorIs(t, err, wizard.ErrNoImage)
	assert.Equal(t, "Please capture an image or select a file to upload.", wizard.Message(err))
	assert.Empty(t, f.uploader.submissions())
}

func TestWizard_AttachFileStopsCamera(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	_, err := f.wiz.SetContact(ctx, wizard.Contact{MobileNumber: "9876543210"})
	require.NoError(t, err)
	_, err = f.wiz.StartCamera(ctx, camera.FacingUser)
	require.NoError(t, err)

	snap, err := f.wiz.AttachFile(ctx, "card.png", pngBytes(t))
	require.NoError(t, err)
	assert.Equal(t, camera.StateIdle, snap.Camera.State)
	assert.Zero(t, f.backend.LiveStreams())
}

func TestWizard_UploadFailureKeepsImageForRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	_, err := f.wiz.SetContact(ctx, wizard.Contact{MobileNumber: "9876543210"})
	require.NoError(t, err)
	_, err = f.wiz.AttachFile(ctx, "card.png", pngBytes(t))
	require.NoError(t, err)

	f.uploader.err = &upload.Error{Sentinel: upload.ErrRejected, Operation: "submit", Status: 409, Message: "Visitor already registered today"}
	snap, err := f.wiz.Submit(ctx)
	require.ErrorIs(t, err, upload.ErrRejected)
	assert.Equal(t, wizard.StepCapture, snap.Step)
	assert.NotNil(t, snap.Image)
	assert.Equal(t, "Visitor already registered today", snap.Notice.Text)

	f.uploader.err = &upload.Error{Sentinel: upload.ErrBackend, Operation: "submit", Status: 500}
	snap, err = f.wiz.Submit(ctx)
	require.Error(t, err)
	assert.Equal(t, upload.FallbackMessage, snap.Notice.Text)

	f.uploader.err = nil
	snap, err = f.wiz.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, wizard.StepContact, snap.Step)
}

func TestWizard_SubmitIsSingleFlight(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.uploader.gate = make(chan struct{})
	f.uploader.entry = make(chan struct{}, 1)

	_, err := f.wiz.SetContact(ctx, wizard.Contact{MobileNumber: "9876543210"})
	require.NoError(t, err)
	_, err = f.wiz.AttachFile(ctx, "card.png", pngBytes(t))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.wiz.Submit(ctx)
		done <- err
	}()
	<-f.uploader.entry

	assert.True(t, f.wiz.Snapshot().Busy)
	_, err = f.wiz.Submit(ctx)
	require.ErrorIs(t, err, wizard.ErrBusy)

	close(f.uploader.gate)
	require.NoError(t, <-done)
	assert.Len(t, f.uploader.submissions(), 1)
	assert.False(t, f.wiz.Snapshot().Busy)
}

func TestWizard_ResetDiscardsInFlightSubmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.uploader.gate = make(chan struct{})
	f.uploader.entry = make(chan struct{}, 1)

	_, err := f.wiz.SetContact(ctx, wizard.Contact{MobileNumber: "9876543210"})
	require.NoError(t, err)
	_, err = f.wiz.AttachFile(ctx, "card.png", pngBytes(t))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.wiz.Submit(ctx)
		done <- err
	}()
	<-f.uploader.entry

	snap := f.wiz.Reset(ctx)
	assert.Equal(t, wizard.StepContact, snap.Step)
	assert.False(t, snap.Busy)

	close(f.uploader.gate)
	err = <-done
	require.ErrorIs(t, err, wizard.ErrClosed)
	after := f.wiz.Snapshot()
	assert.Nil(t, after.Notice, "a stale submit result must not touch the new check-in")
	assert.Equal(t, wizard.StepContact, after.Step)
}

func TestWizard_SetOTPEnabledPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := settings.NewStore("sqlite", dir)
	require.NoError(t, err)
	f := newFixtureWithStore(t, true, store, wizard.Config{})
	assert.True(t, f.wiz.Snapshot().OTPEnabled)

	_, err = f.wiz.SetContact(ctx, wizard.Contact{MobileNumber: "9876543210"})
	require.NoError(t, err)
	_, err = f.wiz.SendCode(ctx, "captcha")
	require.NoError(t, err)

	snap, err := f.wiz.SetOTPEnabled(ctx, false)
	require.NoError(t, err)
	assert.False(t, snap.OTPEnabled)
	assert.Equal(t, wizard.StepContact, snap.Step)
	assert.Nil(t, snap.CodeSentAt)
	require.NoError(t, store.Close())

	reopened, err := settings.NewStore("sqlite", dir)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	g := newFixtureWithStore(t, true, reopened, wizard.Config{})
	assert.False(t, g.wiz.Snapshot().OTPEnabled, "preference survives restart")

	snap, err = g.wiz.SetContact(ctx, wizard.Contact{MobileNumber: "9876543210"})
	require.NoError(t, err)
	assert.Equal(t, wizard.StepCapture, snap.Step)
}

func TestWizard_CloseReleasesCameraAndRejectsFurtherCalls(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()
	f := newFixture(t, false)
	_, err := f.wiz.SetContact(ctx, wizard.Contact{MobileNumber: "9876543210"})
	require.NoError(t, err)
	_, err = f.wiz.StartCamera(ctx, camera.FacingEnvironment)
	require.NoError(t, err)

	f.wiz.Close(ctx)
	assert.Zero(t, f.backend.LiveStreams())
	assert.Equal(t, camera.StateIdle, f.cam.Status().State)

	_, err = f.wiz.SetContact(ctx, wizard.Contact{MobileNumber: "9876543210"})
	require.ErrorIs(t, err, wizard.ErrClosed)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", wizard.Message(nil))
	assert.Equal(t, "Please wait for the current request to finish.", wizard.Message(wizard.ErrBusy))
	assert.Equal(t, "Something went wrong. Please try again.", wizard.Message(errors.New("boom")))
	assert.Equal(t, "Invalid OTP. Code has expired. Please request a new one.",
		wizard.Message(&verification.Error{Sentinel: verification.ErrCodeExpired, Operation: "verify"}))
}
