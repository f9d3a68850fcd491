// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/frontdesk/internal/audit"
	"github.com/ManuGH/frontdesk/internal/camera"
	"github.com/ManuGH/frontdesk/internal/camera/cameratest"
	"github.com/ManuGH/frontdesk/internal/health"
	"github.com/ManuGH/frontdesk/internal/settings"
	"github.com/ManuGH/frontdesk/internal/upload"
	"github.com/ManuGH/frontdesk/internal/verification"
	"github.com/ManuGH/frontdesk/internal/wizard"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type stubVerifier struct{}

func (stubVerifier) SendCode(_ context.Context, phone, _ string) (*verification.Session, error) {
	return &verification.Session{ID: "v-1", Phone: phone, SentAt: epoch}, nil
}

func (stubVerifier) VerifyCode(_ context.Context, _ *verification.Session, code string) error {
	if code != "123456" {
		return &verification.Error{Sentinel: verification.ErrInvalidCode, Operation: "verify", Code: "INVALID_CODE"}
	}
	return nil
}

type recordingUploader struct {
	mu   sync.Mutex
	subs []upload.Submission
	err  error
}

func (u *recordingUploader) Submit(_ context.Context, s upload.Submission) (upload.Result, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.subs = append(u.subs, s)
	if u.err != nil {
		return upload.Result{}, u.err
	}
	return upload.Result{Status: http.StatusCreated, Message: "Visitor checked in"}, nil
}

func (u *recordingUploader) submissions() []upload.Submission {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]upload.Submission(nil), u.subs...)
}

type fixture struct {
	srv      *Server
	cam      *camera.Controller
	backend  *cameratest.Backend
	uploader *recordingUploader
	auditLog *bytes.Buffer
}

func newFixture(t *testing.T, otp bool, devices ...cameratest.Device) *fixture {
	t.Helper()
	if len(devices) == 0 {
		devices = []cameratest.Device{
			{ID: "/dev/video0", Label: "Rear", Facing: camera.FacingEnvironment, Torch: true},
			{ID: "/dev/video2", Label: "Front", Facing: camera.FacingUser},
		}
	}
	b := cameratest.New(devices...)
	cam := camera.NewController(context.Background(), b, camera.DefaultOptions(), camera.WithClock(cameratest.NewClock(epoch)))
	t.Cleanup(func() { cam.Stop(context.Background()) })

	up := &recordingUploader{}
	wiz, err := wizard.New(context.Background(), wizard.Config{OTPDefault: otp, MaxUploadBytes: 64 << 10}, cam, stubVerifier{}, up, settings.NewMemoryStore())
	require.NoError(t, err)

	hm := health.NewManager("test")
	hm.RegisterChecker(health.NewCameraChecker(cam))
	auditLog := &bytes.Buffer{}
	srv, err := New(Deps{Camera: cam, Wizard: wiz, Health: hm, Audit: audit.New(zerolog.New(auditLog))}, Options{PreviewFPS: 100})
	require.NoError(t, err)
	return &fixture{srv: srv, cam: cam, backend: b, uploader: up, auditLog: auditLog}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, Options{})
	require.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	ready := decodeBody[health.ReadinessResponse](t, w)
	assert.True(t, ready.Ready)
	assert.Equal(t, health.StatusHealthy, ready.Checks["camera"].Status)

	w = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "frontdesk_http_request_duration_seconds")
}

func TestNotFoundIsJSON(t *testing.T) {
	f := newFixture(t, false)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	req.Header.Set("X-Request-ID", "kiosk-1")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "kiosk-1", w.Header().Get("X-Request-ID"))
	body := decodeBody[errorBody](t, w)
	assert.Equal(t, "not_found", body.Error)
	assert.Equal(t, "kiosk-1", body.RequestID)
}

func TestCameraRoutes(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(t, http.MethodGet, "/api/v1/camera/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	devs := decodeBody[map[string][]camera.DeviceDescriptor](t, w)
	assert.Len(t, devs["devices"], 2)

	w = f.do(t, http.MethodPost, "/api/v1/camera/acquire", map[string]string{"facing": "environment"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decodeBody[camera.Status](t, w)
	assert.Equal(t, camera.StateReady, st.State)
	assert.True(t, st.FlashSupported)

	w = f.do(t, http.MethodPost, "/api/v1/camera/flash", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeBody[camera.Status](t, w).FlashEnabled)

	w = f.do(t, http.MethodPost, "/api/v1/camera/switch", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st = decodeBody[camera.Status](t, w)
	assert.Equal(t, camera.FacingUser, st.FacingActual)
	assert.False(t, st.FlashSupported)
	assert.Equal(t, 1, f.backend.LiveStreams())

	w = f.do(t, http.MethodPost, "/api/v1/camera/flash", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decodeBody[errorBody](t, w)
	assert.Equal(t, "flash_unsupported", body.Error)
	assert.Equal(t, "Flash not supported", body.Message)
	require.NotNil(t, body.Camera)
	assert.False(t, body.Camera.FlashEnabled)

	w = f.do(t, http.MethodDelete, "/api/v1/camera", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, camera.StateIdle, decodeBody[camera.Status](t, w).State)
	assert.Zero(t, f.backend.LiveStreams())

	w = f.do(t, http.MethodGet, "/api/v1/camera", nil)
	assert.Equal(t, camera.StateIdle, decodeBody[camera.Status](t, w).State)
}

func TestCameraAcquire_InvalidFacing(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(t, http.MethodPost, "/api/v1/camera/acquire", map[string]string{"facing": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_facing", decodeBody[errorBody](t, w).Error)
}

func TestCameraAcquire_PreviewFailure(t *testing.T) {
	f := newFixture(t, false, cameratest.Device{ID: "/dev/video0", Facing: camera.FacingEnvironment, FrameErr: errors.New("stream stalled")})
	w := f.do(t, http.MethodPost, "/api/v1/camera/acquire", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeBody[errorBody](t, w)
	assert.Equal(t, "camera_preview_failed", body.Error)
	assert.Equal(t, "Failed to start camera preview. Check permissions and try again.", body.Message)
	require.NotNil(t, body.Camera)
	assert.Equal(t, camera.StateFailed, body.Camera.State)
	assert.Zero(t, f.backend.LiveStreams())
}

func TestCheckinFlow_CaptureAndSubmit(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(t, http.MethodPost, "/api/v1/checkin/capture", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "wrong_step", decodeBody[errorBody](t, w).Error)

	w = f.do(t, http.MethodPost, "/api/v1/checkin/contact", wizard.Contact{MobileNumber: "98765 43210", Name: "Asha", CompanyName: "Acme"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := decodeBody[wizard.Snapshot](t, w)
	assert.Equal(t, wizard.StepCapture, snap.Step)

	w = f.do(t, http.MethodPost, "/api/v1/checkin/camera", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, camera.StateReady, decodeBody[wizard.Snapshot](t, w).Camera.State)

	w = f.do(t, http.MethodPost, "/api/v1/checkin/capture", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap = decodeBody[wizard.Snapshot](t, w)
	require.NotNil(t, snap.Image)
	assert.Equal(t, upload.CaptureCamera, snap.Image.Method)

	w = f.do(t, http.MethodGet, "/api/v1/checkin/artifact", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "camera", w.Header().Get("X-Capture-Method"))
	_, err := jpeg.Decode(w.Body)
	require.NoError(t, err)

	w = f.do(t, http.MethodPost, "/api/v1/checkin/submit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap = decodeBody[wizard.Snapshot](t, w)
	assert.Equal(t, wizard.StepContact, snap.Step)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, "Visitor checked in", snap.Notice.Text)

	subs := f.uploader.submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "9876543210", subs[0].MobileNumber)
	assert.Equal(t, "Acme", subs[0].CompanyName)

	w = f.do(t, http.MethodGet, "/api/v1/checkin/artifact", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "no_image", decodeBody[errorBody](t, w).Error)
}

func TestCheckinFlow_OTP(t *testing.T) {
	f := newFixture(t, true)

	f.do(t, http.MethodPost, "/api/v1/checkin/contact", wizard.Contact{MobileNumber: "9876543210"})
	w := f.do(t, http.MethodPost, "/api/v1/checkin/otp/send", map[string]string{"recaptchaToken": "tok"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, wizard.StepVerify, decodeBody[wizard.Snapshot](t, w).Step)

	w = f.do(t, http.MethodPost, "/api/v1/checkin/otp/verify", map[string]string{"code": "111111"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody[errorBody](t, w)
	assert.Equal(t, "invalid_code", body.Error)
	assert.Equal(t, "Invalid OTP. Please check the code and try again.", body.Message)
	require.NotNil(t, body.Snapshot)
	assert.Equal(t, wizard.StepVerify, body.Snapshot.Step)

	w = f.do(t, http.MethodPost, "/api/v1/checkin/otp/verify", map[string]string{"code": "123456"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := decodeBody[wizard.Snapshot](t, w)
	assert.True(t, snap.OTPVerified)
	assert.Equal(t, wizard.StepCapture, snap.Step)

	w = f.do(t, http.MethodPost, "/api/v1/checkin/back", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, wizard.StepContact, decodeBody[wizard.Snapshot](t, w).Step)
}

func TestContactValidation(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(t, http.MethodPost, "/api/v1/checkin/contact", wizard.Contact{MobileNumber: "12345"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody[errorBody](t, w)
	assert.Equal(t, "invalid_phone", body.Error)
	assert.Equal(t, "Please enter a valid 10-digit mobile number.", body.Message)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkin/contact", strings.NewReader(`{"mobile":1}`))
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_request", decodeBody[errorBody](t, w).Error)
}

func multipartFile(t *testing.T, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func pngBytes(t *testing.T, side int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	for i := 0; i < side; i++ {
		img.Set(i, i, color.White)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestAttachFile(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, http.MethodPost, "/api/v1/checkin/contact", wizard.Contact{MobileNumber: "9876543210"})

	post := func(name string, data []byte) *httptest.ResponseRecorder {
		body, ct := multipartFile(t, name, data)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkin/file", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(w, req)
		return w
	}

	w := post("notes.txt", []byte("just some text"))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, "Please select a valid image file.", decodeBody[errorBody](t, w).Message)

	w = post("card.png", pngBytes(t, 8))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := decodeBody[wizard.Snapshot](t, w)
	require.NotNil(t, snap.Image)
	assert.Equal(t, upload.CaptureUpload, snap.Image.Method)
	assert.Equal(t, "image/png", snap.Image.ContentType)

	big := bytes.Repeat([]byte{0x89}, 2<<20)
	w = post("huge.png", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkin/file", strings.NewReader("not multipart"))
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitFailureKeepsImage(t *testing.T) {
	f := newFixture(t, false)
	f.uploader.err = &upload.Error{Sentinel: upload.ErrBackend, Operation: "submit", Status: http.StatusBadGateway}

	f.do(t, http.MethodPost, "/api/v1/checkin/contact", wizard.Contact{MobileNumber: "9876543210"})
	body, ct := multipartFile(t, "card.png", pngBytes(t, 8))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkin/file", body)
	req.Header.Set("Content-Type", ct)
	f.srv.Handler().ServeHTTP(httptest.NewRecorder(), req)

	w := f.do(t, http.MethodPost, "/api/v1/checkin/submit", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	eb := decodeBody[errorBody](t, w)
	assert.Equal(t, upload.FallbackMessage, eb.Message)
	require.NotNil(t, eb.Snapshot)
	assert.NotNil(t, eb.Snapshot.Image)
}

func TestSettingsOTP(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(t, http.MethodGet, "/api/v1/settings/otp", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"enabled":true}`, w.Body.String())

	w = f.do(t, http.MethodPut, "/api/v1/settings/otp", map[string]bool{"enabled": false})
	assert.Equal(t, http.StatusForbidden, w.Code, "missing origin")

	put := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/settings/otp", strings.NewReader(body))
		req.Host = "kiosk.local"
		req.Header.Set("Origin", "http://kiosk.local")
		w := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(w, req)
		return w
	}

	w = put(`{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.auditLog.String())

	w = put(`{"enabled":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, decodeBody[wizard.Snapshot](t, w).OTPEnabled)
	assert.Contains(t, f.auditLog.String(), `"event_type":"settings.change"`)
	assert.Contains(t, f.auditLog.String(), `"value":"false"`)

	w = f.do(t, http.MethodGet, "/api/v1/settings/otp", nil)
	assert.JSONEq(t, `{"enabled":false}`, w.Body.String())
}

func TestPreview_NotReady(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(t, http.MethodGet, "/api/v1/camera/preview.mjpg", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "camera_not_ready", decodeBody[errorBody](t, w).Error)
}

func TestPreview_StreamsJPEGFrames(t *testing.T) {
	f := newFixture(t, false)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	_, err := f.cam.Acquire(context.Background(), camera.FacingEnvironment)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/camera/preview.mjpg", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/x-mixed-replace", mediaType)

	mr := multipart.NewReader(resp.Body, params["boundary"])
	for i := 0; i < 2; i++ {
		part, err := mr.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))
		_, err = jpeg.Decode(part)
		require.NoError(t, err)
	}

	// Stopping the session ends the stream.
	f.cam.Stop(context.Background())
	_, err = io.Copy(io.Discard, resp.Body)
	require.NoError(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{wizard.ErrBusy, http.StatusConflict, "busy"},
		{&verification.Error{Sentinel: verification.ErrTooSoon, Operation: "send"}, http.StatusTooManyRequests, "otp_cooldown"},
		{&upload.Error{Sentinel: upload.ErrTimeout, Operation: "submit"}, http.StatusGatewayTimeout, "upload_timeout"},
		{camera.ErrAcquisitionTimeout, http.StatusGatewayTimeout, "camera_timeout"},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		status, code := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
