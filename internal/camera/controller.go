// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/ManuGH/frontdesk/internal/metrics"
	"github.com/ManuGH/frontdesk/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Options tunes acquisition and capture.
type Options struct {
	AcquireTimeout      time.Duration
	Ideal               Resolution
	Min                 Resolution
	AspectRatio         float64
	MaxCaptureDimension int
	JPEGQuality         int
	MirrorFrontCapture  bool
	NoticeTTL           time.Duration
}

// DefaultOptions matches the kiosk's stock camera profile.
func DefaultOptions() Options {
	return Options{
		AcquireTimeout:      15 * time.Second,
		Ideal:               Resolution{Width: 1280, Height: 720},
		Min:                 Resolution{Width: 640, Height: 480},
		AspectRatio:         16.0 / 9.0,
		MaxCaptureDimension: 1920,
		JPEGQuality:         90,
		MirrorFrontCapture:  true,
		NoticeTTL:           2 * time.Second,
	}
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock used for guards and notices.
func WithClock(clk Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithEncoder replaces the JPEG encoder used by Capture.
func WithEncoder(fn EncodeFunc) Option {
	return func(c *Controller) { c.encode = fn }
}

// session is one acquired stream. Fields are guarded by Controller.mu; the
// hardware handles are released exactly once by whoever detaches the session.
type session struct {
	gen            uint64
	requested      Facing
	actual         Facing
	settings       StreamSettings
	fallback       bool
	stream         Stream
	preview        *preview
	guard          Timer
	ready          bool
	flashSupported bool
	flashEnabled   bool
	timedOut       bool
	startedAt      time.Time
}

func (s *session) release() {
	if s == nil {
		return
	}
	if s.guard != nil {
		s.guard.Stop()
	}
	if s.stream != nil {
		s.stream.Stop()
	}
	if s.preview != nil {
		s.preview.stop()
	}
}

// FrameCursor identifies the last frame a preview reader has seen.
type FrameCursor struct {
	Generation uint64
	Seq        uint64
}

// Controller owns the kiosk camera. At most one session is live at a time;
// the previous session's stream is always stopped before a new one is
// requested from the backend.
type Controller struct {
	media  MediaDevices
	opts   Options
	clock  Clock
	encode EncodeFunc
	logger zerolog.Logger
	tracer trace.Tracer

	// opMu serializes Acquire, SwitchFacing and Capture. Stop never takes it.
	opMu    sync.Mutex
	flashMu sync.Mutex

	mu          sync.Mutex
	state       State
	gen         uint64
	sess        *session
	acqCancel   context.CancelFunc
	devices     []DeviceDescriptor
	lastErr     *Error
	notice      *Notice
	noticeUntil time.Time
}

// NewController enumerates devices once and returns an idle controller.
func NewController(ctx context.Context, media MediaDevices, opts Options, extra ...Option) *Controller {
	c := &Controller{
		media:  media,
		opts:   opts,
		clock:  SystemClock(),
		logger: log.WithComponent("camera"),
		tracer: telemetry.Tracer("frontdesk/camera"),
		state:  StateIdle,
	}
	for _, o := range extra {
		o(c)
	}
	c.devices = NewEnumerator(media).ListVideoInputDevices(ctx)
	metrics.SetCameraState(string(StateIdle))
	return c
}

// Acquire opens a camera facing preferred (environment when empty) and
// blocks until the first preview frame is presented. A newer Acquire or a
// Stop cancels an acquisition in flight.
func (c *Controller) Acquire(ctx context.Context, preferred Facing) (Status, error) {
	if preferred == "" {
		preferred = FacingEnvironment
	}
	if !preferred.Valid() {
		return c.Status(), newError("acquire", ReasonInvalidFacing, fmt.Errorf("%q", preferred))
	}
	c.cancelInFlight()
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.acquire(ctx, preferred, "Starting camera...")
}

// SwitchFacing re-acquires with the opposite of the facing currently in
// effect. Flash state never carries over.
func (c *Controller) SwitchFacing(ctx context.Context) (Status, error) {
	c.cancelInFlight()
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	current := FacingEnvironment
	if s := c.sess; s != nil && s.stream != nil && s.settings.Facing.Valid() {
		current = s.settings.Facing
	}
	c.mu.Unlock()

	next := current.Opposite()
	c.logger.Info().
		Str(log.FieldEvent, "camera.switch").
		Str(log.FieldFacing, string(current)).
		Str(log.FieldFacingWant, string(next)).
		Msg("switching camera")
	return c.acquire(ctx, next, "Switching camera...")
}

func (c *Controller) cancelInFlight() {
	c.mu.Lock()
	cancel := c.acqCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Controller) acquire(ctx context.Context, preferred Facing, startNotice string) (_ Status, retErr error) {
	ctx, span := c.tracer.Start(ctx, "camera.acquire")
	defer func() { telemetry.EndSpan(span, retErr, string(ReasonOf(retErr))) }()
	logger := log.WithContext(ctx, c.logger)

	c.mu.Lock()
	if err := c.transitionLocked(EvAcquire); err != nil {
		st := c.statusLocked()
		c.mu.Unlock()
		return st, err
	}
	old := c.sess
	c.gen++
	sess := &session{gen: c.gen, requested: preferred, startedAt: c.clock.Now()}
	c.sess = sess
	acqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.acqCancel = cancel
	c.lastErr = nil
	c.setNoticeLocked(NoticeInfo, startNotice, 0)
	c.mu.Unlock()

	old.release()

	c.mu.Lock()
	if c.sess == sess {
		gen := sess.gen
		sess.guard = c.clock.AfterFunc(c.opts.AcquireTimeout, func() { c.onTimeout(gen) })
	}
	c.mu.Unlock()

	logger.Info().
		Str(log.FieldEvent, "camera.acquire_start").
		Str(log.FieldFacingWant, string(preferred)).
		Uint64(log.FieldGeneration, sess.gen).
		Msg("acquiring camera")

	stream, fallback, err := c.open(acqCtx, preferred, logger)
	if err != nil {
		if acqCtx.Err() != nil {
			return c.abortAcquire(acqCtx, sess)
		}
		return c.failAcquire(sess, Classify(err), err)
	}

	settings := stream.Settings()
	actual := settings.Facing
	if !actual.Valid() {
		if fallback {
			actual = FacingUnknown
		} else {
			actual = preferred
		}
	}
	flash := ProbeFlashSupport(stream)

	c.mu.Lock()
	if aerr := c.abandonedLocked(sess); aerr != nil {
		st := c.statusLocked()
		c.mu.Unlock()
		stream.Stop()
		return st, aerr
	}
	sess.stream = stream
	sess.settings = settings
	sess.fallback = fallback
	sess.actual = actual
	sess.flashSupported = flash
	sess.preview = startPreview(stream, c.logger.With().Uint64(log.FieldGeneration, sess.gen).Logger())
	p := sess.preview
	if fallback {
		c.setNoticeLocked(NoticeInfo, fmt.Sprintf("Using %s camera.", usingLabel(actual)), 3*time.Second)
	}
	c.mu.Unlock()

	span.SetAttributes(telemetry.CameraAttributes(string(preferred), string(actual), settings.DeviceID, sess.gen)...)

	select {
	case <-p.first:
		return c.completeAcquire(sess, logger)
	case <-p.done:
		select {
		case <-p.first:
			return c.completeAcquire(sess, logger)
		default:
		}
		return c.failAcquire(sess, ReasonPreviewFailed, p.err)
	case <-acqCtx.Done():
		return c.abortAcquire(acqCtx, sess)
	}
}

// open tries the preferred constraints, then any camera at all.
func (c *Controller) open(ctx context.Context, preferred Facing, logger zerolog.Logger) (Stream, bool, error) {
	stream, err := c.media.GetUserMedia(ctx, Constraints{
		Facing:      preferred,
		Ideal:       c.opts.Ideal,
		Min:         c.opts.Min,
		AspectRatio: c.opts.AspectRatio,
	})
	if err == nil {
		return stream, false, nil
	}
	if ctx.Err() != nil {
		return nil, false, err
	}
	logger.Warn().
		Err(err).
		Str(log.FieldEvent, "camera.preferred_failed").
		Str(log.FieldFacingWant, string(preferred)).
		Str(log.FieldReason, string(Classify(err))).
		Msg("preferred camera failed, trying any available camera")

	stream, err = c.media.GetUserMedia(ctx, Constraints{Lenient: true})
	if err != nil {
		return nil, true, err
	}
	return stream, true, nil
}

// abandonedLocked reports whether sess is no longer the acquisition in
// progress, and if so what the caller should be told.
func (c *Controller) abandonedLocked(sess *session) error {
	if c.sess == sess && c.state == StateAcquiring {
		return nil
	}
	if sess.timedOut {
		return newError("acquire", ReasonTimeout, nil)
	}
	return newError("acquire", ReasonCancelled, nil)
}

func (c *Controller) completeAcquire(sess *session, logger zerolog.Logger) (Status, error) {
	c.mu.Lock()
	if aerr := c.abandonedLocked(sess); aerr != nil {
		st := c.statusLocked()
		c.mu.Unlock()
		return st, aerr
	}
	if err := c.transitionLocked(EvFirstFrame); err != nil {
		st := c.statusLocked()
		c.mu.Unlock()
		return st, err
	}
	sess.ready = true
	if sess.guard != nil {
		sess.guard.Stop()
	}
	c.acqCancel = nil
	c.setNoticeLocked(NoticeSuccess, fmt.Sprintf("%s camera ready!", readyLabel(sess.actual)), c.opts.NoticeTTL)
	st := c.statusLocked()
	elapsed := c.clock.Now().Sub(sess.startedAt)
	c.mu.Unlock()

	metrics.RecordCameraAcquisition("success", "")
	metrics.ObserveCameraAcquireDuration(elapsed.Seconds())
	evt := logger.Info().
		Str(log.FieldEvent, "camera.ready").
		Str(log.FieldFacingWant, string(sess.requested)).
		Str(log.FieldFacing, string(sess.actual)).
		Str(log.FieldDevice, sess.settings.DeviceID).
		Uint64(log.FieldGeneration, sess.gen).
		Bool("fallback", sess.fallback).
		Bool("flash_supported", sess.flashSupported).
		Dur("elapsed", elapsed)
	if st.Resolution != nil {
		evt = evt.Str(log.FieldResolution, fmt.Sprintf("%dx%d", st.Resolution.Width, st.Resolution.Height))
	}
	evt.Msg("camera ready")
	return st, nil
}

func (c *Controller) failAcquire(sess *session, reason Reason, cause error) (Status, error) {
	c.mu.Lock()
	if aerr := c.abandonedLocked(sess); aerr != nil {
		st := c.statusLocked()
		c.mu.Unlock()
		return st, aerr
	}
	cerr := newError("acquire", reason, cause)
	c.sess = nil
	c.acqCancel = nil
	c.lastErr = cerr
	_ = c.transitionLocked(EvAcquireFailed)
	c.setNoticeLocked(NoticeError, cerr.Message(), 0)
	st := c.statusLocked()
	c.mu.Unlock()

	sess.release()
	metrics.RecordCameraAcquisition("failure", string(reason))
	c.logger.Warn().
		Err(cause).
		Str(log.FieldEvent, "camera.acquire_failed").
		Str(log.FieldReason, string(reason)).
		Uint64(log.FieldGeneration, sess.gen).
		Msg("camera acquisition failed")
	return st, cerr
}

// abortAcquire handles a caller that gave up or a newer Acquire that
// superseded this one. The session goes back to idle.
func (c *Controller) abortAcquire(ctx context.Context, sess *session) (Status, error) {
	c.mu.Lock()
	if aerr := c.abandonedLocked(sess); aerr != nil {
		st := c.statusLocked()
		c.mu.Unlock()
		return st, aerr
	}
	c.sess = nil
	c.acqCancel = nil
	_ = c.transitionLocked(EvStop)
	c.clearNoticeLocked()
	st := c.statusLocked()
	c.mu.Unlock()

	sess.release()
	metrics.RecordCameraAcquisition("cancelled", string(ReasonCancelled))
	c.logger.Info().
		Str(log.FieldEvent, "camera.acquire_cancelled").
		Uint64(log.FieldGeneration, sess.gen).
		Msg("camera acquisition cancelled")
	return st, newError("acquire", ReasonCancelled, context.Cause(ctx))
}

// onTimeout fires when a guard expires. Guards carry the generation of the
// session that installed them and are ignored once that session is gone or
// ready.
func (c *Controller) onTimeout(gen uint64) {
	c.mu.Lock()
	sess := c.sess
	if sess == nil || sess.gen != gen || sess.ready || c.state != StateAcquiring {
		c.mu.Unlock()
		c.logger.Debug().
			Str(log.FieldEvent, "camera.guard_stale").
			Uint64(log.FieldGeneration, gen).
			Msg("ignoring stale acquisition guard")
		return
	}
	sess.timedOut = true
	c.sess = nil
	cancel := c.acqCancel
	c.acqCancel = nil
	cerr := newError("acquire", ReasonTimeout, nil)
	c.lastErr = cerr
	_ = c.transitionLocked(EvTimeout)
	c.setNoticeLocked(NoticeError, cerr.Message(), 0)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	sess.release()
	metrics.RecordCameraAcquisition("failure", string(ReasonTimeout))
	c.logger.Warn().
		Str(log.FieldEvent, "camera.acquire_timeout").
		Uint64(log.FieldGeneration, gen).
		Dur("timeout", c.opts.AcquireTimeout).
		Msg("camera initialization timed out")
}

// ToggleFlash flips the torch on a ready session that supports it.
func (c *Controller) ToggleFlash(ctx context.Context) (Status, error) {
	c.flashMu.Lock()
	defer c.flashMu.Unlock()

	c.mu.Lock()
	sess := c.sess
	if sess == nil || c.state != StateReady || !sess.ready || !sess.flashSupported {
		st := c.statusLocked()
		c.mu.Unlock()
		metrics.RecordFlashToggle("unsupported")
		return st, newError("flash", ReasonFlashUnsupported, nil)
	}
	want := !sess.flashEnabled
	stream := sess.stream
	c.mu.Unlock()

	err := stream.ApplyTorch(ctx, want)

	c.mu.Lock()
	if c.sess != sess {
		st := c.statusLocked()
		c.mu.Unlock()
		metrics.RecordFlashToggle("failure")
		return st, newError("flash", ReasonFlashFailed, ErrAcquisitionCancelled)
	}
	if err != nil {
		c.setNoticeLocked(NoticeError, "Failed to toggle flash", c.opts.NoticeTTL)
		st := c.statusLocked()
		c.mu.Unlock()
		metrics.RecordFlashToggle("failure")
		c.logger.Warn().Err(err).Str(log.FieldEvent, "camera.flash_failed").Msg("error toggling flash")
		return st, newError("flash", ReasonFlashFailed, err)
	}
	sess.flashEnabled = want
	text := "Flash disabled"
	if want {
		text = "Flash enabled"
	}
	c.setNoticeLocked(NoticeSuccess, text, c.opts.NoticeTTL)
	st := c.statusLocked()
	c.mu.Unlock()

	metrics.RecordFlashToggle("success")
	c.logger.Info().Str(log.FieldEvent, "camera.flash").Bool("enabled", want).Msg("flash toggled")
	return st, nil
}

// Capture renders the latest preview frame. On success the camera is
// stopped; on encode failure it keeps running and the state returns to ready.
func (c *Controller) Capture(ctx context.Context) (_ *Artifact, _ Status, retErr error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	ctx, span := c.tracer.Start(ctx, "camera.capture")
	defer func() { telemetry.EndSpan(span, retErr, string(ReasonOf(retErr))) }()

	c.mu.Lock()
	sess := c.sess
	var frame image.Image
	if sess != nil && sess.ready && sess.preview != nil {
		frame, _ = sess.preview.latest()
	}
	if c.state != StateReady || frame == nil {
		st := c.statusLocked()
		c.mu.Unlock()
		metrics.RecordCameraCapture("not_ready")
		return nil, st, newError("capture", ReasonNotReady, nil)
	}
	if err := c.transitionLocked(EvCaptureStart); err != nil {
		st := c.statusLocked()
		c.mu.Unlock()
		return nil, st, err
	}
	facing := sess.actual
	opts := renderOptions{
		maxDimension: c.opts.MaxCaptureDimension,
		quality:      c.opts.JPEGQuality,
		mirror:       facing == FacingUser && c.opts.MirrorFrontCapture,
		encode:       c.encode,
	}
	c.mu.Unlock()

	art, err := c.renderFrame(ctx, frame, facing, opts)

	c.mu.Lock()
	if c.sess != sess {
		// Stopped while encoding; the session was already released.
		st := c.statusLocked()
		c.mu.Unlock()
		if err != nil {
			metrics.RecordCameraCapture("failure")
			return nil, st, newError("capture", ReasonEncodeFailed, err)
		}
		metrics.RecordCameraCapture("success")
		return art, st, nil
	}
	if err != nil {
		_ = c.transitionLocked(EvCaptureFailed)
		cerr := newError("capture", ReasonEncodeFailed, err)
		c.setNoticeLocked(NoticeError, cerr.Message(), 0)
		st := c.statusLocked()
		c.mu.Unlock()
		metrics.RecordCameraCapture("failure")
		c.logger.Error().Err(err).Str(log.FieldEvent, "camera.capture_failed").Msg("failed to encode capture")
		return nil, st, cerr
	}
	c.sess = nil
	_ = c.transitionLocked(EvCaptureDone)
	c.setNoticeLocked(NoticeSuccess, "Image captured successfully!", c.opts.NoticeTTL)
	st := c.statusLocked()
	c.mu.Unlock()

	sess.release()
	metrics.RecordCameraCapture("success")
	span.SetAttributes(telemetry.CaptureAttributes(art.Width, art.Height, art.Size(), art.Mirrored)...)
	logger := log.WithContext(ctx, c.logger)
	logger.Info().
		Str(log.FieldEvent, "camera.captured").
		Str(log.FieldFacing, string(facing)).
		Str(log.FieldResolution, fmt.Sprintf("%dx%d", art.Width, art.Height)).
		Int("bytes", art.Size()).
		Bool("mirrored", art.Mirrored).
		Msg("image captured")
	return art, st, nil
}

func (c *Controller) renderFrame(ctx context.Context, frame image.Image, facing Facing, opts renderOptions) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return render(frame, facing, opts, c.clock.Now())
}

// Stop releases the active session, cancels any acquisition in flight and
// returns to idle. It is safe to call at any time and any number of times.
func (c *Controller) Stop(_ context.Context) Status {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	cancel := c.acqCancel
	c.acqCancel = nil
	_ = c.transitionLocked(EvStop)
	c.lastErr = nil
	c.clearNoticeLocked()
	st := c.statusLocked()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	sess.release()
	return st
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Devices returns the video inputs found at construction.
func (c *Controller) Devices() []DeviceDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.devicesLocked()
}

func (c *Controller) devicesLocked() []DeviceDescriptor {
	out := make([]DeviceDescriptor, len(c.devices))
	copy(out, c.devices)
	return out
}

// DeviceCount reports how many video inputs were enumerated.
func (c *Controller) DeviceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.devices)
}

// NextFrame blocks until the ready session presents a frame newer than cur.
// It returns ErrNotReady once no session is presenting.
func (c *Controller) NextFrame(ctx context.Context, cur FrameCursor) (image.Image, FrameCursor, error) {
	c.mu.Lock()
	var p *preview
	var gen uint64
	if s := c.sess; s != nil && s.ready {
		p, gen = s.preview, s.gen
	}
	c.mu.Unlock()
	if p == nil {
		return nil, cur, ErrNotReady
	}
	after := cur.Seq
	if cur.Generation != gen {
		after = 0
	}
	img, seq, err := p.next(ctx, after)
	if err != nil {
		return nil, cur, err
	}
	return img, FrameCursor{Generation: gen, Seq: seq}, nil
}

func (c *Controller) statusLocked() Status {
	st := Status{
		State:     c.state,
		Devices:   c.devicesLocked(),
		CanSwitch: len(c.devices) >= 2,
	}
	if s := c.sess; s != nil {
		st.Ready = s.ready
		st.FacingRequested = s.requested
		st.FacingActual = s.actual
		st.DeviceID = s.settings.DeviceID
		st.Fallback = s.fallback
		st.FlashSupported = s.flashSupported
		st.FlashEnabled = s.flashEnabled
		if s.settings.Width > 0 && s.settings.Height > 0 {
			st.Resolution = &Resolution{Width: s.settings.Width, Height: s.settings.Height}
		}
	}
	if c.lastErr != nil {
		st.ErrorReason = c.lastErr.Reason
		st.ErrorMessage = c.lastErr.Message()
	}
	if c.notice != nil && (c.noticeUntil.IsZero() || c.clock.Now().Before(c.noticeUntil)) {
		n := *c.notice
		st.Notice = &n
	}
	return st
}

func (c *Controller) transitionLocked(ev EventKind) error {
	from := c.state
	next, err := Next(from, ev)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "camera.illegal_transition").
			Str(log.FieldOldState, string(from)).
			Str("trigger", ev.String()).
			Msg("rejected camera state transition")
		return newError(ev.String(), ReasonIllegalTransition, err)
	}
	c.state = next
	metrics.SetCameraState(string(next))
	lvl := zerolog.InfoLevel
	if from == next {
		lvl = zerolog.DebugLevel
	}
	c.logger.WithLevel(lvl).
		Str(log.FieldEvent, "camera.transition").
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(next)).
		Str("trigger", ev.String()).
		Uint64(log.FieldGeneration, c.gen).
		Msg("camera state changed")
	return nil
}

// setNoticeLocked posts a notice; ttl of zero keeps it until replaced.
func (c *Controller) setNoticeLocked(kind NoticeKind, text string, ttl time.Duration) {
	c.notice = &Notice{Kind: kind, Text: text}
	c.noticeUntil = time.Time{}
	if ttl > 0 {
		c.noticeUntil = c.clock.Now().Add(ttl)
	}
}

func (c *Controller) clearNoticeLocked() {
	c.notice = nil
	c.noticeUntil = time.Time{}
}

func readyLabel(f Facing) string {
	switch f {
	case FacingEnvironment:
		return "Back"
	case FacingUser:
		return "Front"
	default:
		return "Default"
	}
}

func usingLabel(f Facing) string {
	switch f {
	case FacingEnvironment, FacingUser:
		return f.Label()
	default:
		return "default"
	}
}
