// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cameratest provides a scripted media backend and a manual clock
// for exercising the camera controller without hardware.
package cameratest

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/ManuGH/frontdesk/internal/camera"
)

// FrameInterval is how often a fake stream presents a frame.
const FrameInterval = 5 * time.Millisecond

// Device is one scripted video input.
type Device struct {
	ID     string
	Label  string
	Facing camera.Facing
	// HideFacing leaves the facing out of the stream settings.
	HideFacing bool
	Width      int
	Height     int
	Torch      bool
	// CapabilitiesErr and CapabilitiesPanic break the flash probe.
	CapabilitiesErr   error
	CapabilitiesPanic bool
	TorchErr          error
	// NoFrames opens the stream but never presents a frame.
	NoFrames bool
	// FrameErr makes the first ReadFrame fail.
	FrameErr error
}

// Backend implements camera.MediaDevices. A device can hold only one live
// stream; a second open while the first is live fails with ErrDeviceBusy.
type Backend struct {
	mu           sync.Mutex
	devices      []Device
	enumerateErr error
	facingErr    map[camera.Facing]error
	lenientErr   error
	gate         chan struct{}
	calls        []camera.Constraints
	streams      []*Stream
	live         int
	maxLive      int
}

func New(devices ...Device) *Backend {
	return &Backend{devices: devices, facingErr: map[camera.Facing]error{}}
}

// FailEnumerate makes EnumerateDevices return err.
func (b *Backend) FailEnumerate(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enumerateErr = err
}

// FailFacing makes every non-lenient request for facing fail with err.
func (b *Backend) FailFacing(facing camera.Facing, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.facingErr[facing] = err
}

// FailLenient makes lenient requests fail with err.
func (b *Backend) FailLenient(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lenientErr = err
}

// Hold makes GetUserMedia block until Release is called or ctx ends.
func (b *Backend) Hold() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gate = make(chan struct{})
}

// Release unblocks held GetUserMedia calls.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gate != nil {
		close(b.gate)
		b.gate = nil
	}
}

func (b *Backend) EnumerateDevices(_ context.Context) ([]camera.DeviceDescriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enumerateErr != nil {
		return nil, b.enumerateErr
	}
	out := make([]camera.DeviceDescriptor, 0, len(b.devices))
	for _, d := range b.devices {
		out = append(out, camera.DeviceDescriptor{ID: d.ID, Label: d.Label, Facing: d.Facing})
	}
	return out, nil
}

func (b *Backend) GetUserMedia(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	b.mu.Lock()
	b.calls = append(b.calls, c)
	gate := b.gate
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c.Lenient {
		if b.lenientErr != nil {
			return nil, b.lenientErr
		}
	} else if err := b.facingErr[c.Facing]; err != nil {
		return nil, err
	}
	if len(b.devices) == 0 {
		return nil, fmt.Errorf("no video input: %w", camera.ErrDeviceNotFound)
	}

	dev := b.devices[0]
	if !c.Lenient {
		for _, d := range b.devices {
			if d.Facing == c.Facing {
				dev = d
				break
			}
		}
	}
	for _, s := range b.streams {
		if s.dev.ID == dev.ID && s.State() == camera.TrackLive {
			return nil, fmt.Errorf("%s: %w", dev.ID, camera.ErrDeviceBusy)
		}
	}

	s := newStream(b, fmt.Sprintf("track-%d", len(b.streams)+1), dev)
	b.streams = append(b.streams, s)
	b.live++
	b.maxLive = max(b.maxLive, b.live)
	return s, nil
}

func (b *Backend) streamStopped() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.live--
}

// Calls returns every constraint set passed to GetUserMedia.
func (b *Backend) Calls() []camera.Constraints {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]camera.Constraints(nil), b.calls...)
}

// Streams returns every stream opened so far, oldest first.
func (b *Backend) Streams() []*Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Stream(nil), b.streams...)
}

// LiveStreams reports how many streams are currently live.
func (b *Backend) LiveStreams() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live
}

// MaxLive reports the peak number of simultaneously live streams.
func (b *Backend) MaxLive() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxLive
}

// Stream is a fake track presenting a two-tone frame: red on the left half,
// blue on the right.
type Stream struct {
	backend *Backend
	id      string
	dev     Device
	frame   image.Image

	stopOnce sync.Once
	stopped  chan struct{}

	mu        sync.Mutex
	torch bool
	reads int
}

func newStream(b *Backend, id string, dev Device) *Stream {
	w, h := dev.Width, dev.Height
	if w == 0 || h == 0 {
		w, h = 1280, 720
	}
	return &Stream{
		backend: b,
		id:      id,
		dev:     dev,
		frame:   TwoToneFrame(w, h),
		stopped: make(chan struct{}),
	}
}

// TwoToneFrame returns a w×h image, red left half and blue right half.
func TwoToneFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.SetRGBA(x, y, red)
			} else {
				img.SetRGBA(x, y, blue)
			}
		}
	}
	return img
}

func (s *Stream) ID() string { return s.id }

// Device returns the scripted device backing the stream.
func (s *Stream) Device() Device { return s.dev }

func (s *Stream) Settings() camera.StreamSettings {
	b := s.frame.Bounds()
	settings := camera.StreamSettings{DeviceID: s.dev.ID, Width: b.Dx(), Height: b.Dy()}
	if !s.dev.HideFacing {
		settings.Facing = s.dev.Facing
	}
	return settings
}

func (s *Stream) Capabilities() (camera.Capabilities, error) {
	if s.dev.CapabilitiesPanic {
		panic("capabilities unavailable")
	}
	if s.dev.CapabilitiesErr != nil {
		return camera.Capabilities{}, s.dev.CapabilitiesErr
	}
	return camera.Capabilities{Torch: s.dev.Torch}, nil
}

func (s *Stream) ApplyTorch(_ context.Context, on bool) error {
	if s.dev.TorchErr != nil {
		return s.dev.TorchErr
	}
	if !s.dev.Torch {
		return errors.New("torch not supported")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.torch = on
	return nil
}

// Torch reports the current torch state.
func (s *Stream) Torch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.torch
}

func (s *Stream) ReadFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	s.reads++
	first := s.reads == 1
	s.mu.Unlock()

	if s.dev.FrameErr != nil {
		return nil, s.dev.FrameErr
	}
	if s.dev.NoFrames {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.stopped:
			return nil, errors.New("track ended")
		}
	}
	if !first {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.stopped:
			return nil, errors.New("track ended")
		case <-time.After(FrameInterval):
		}
	}
	select {
	case <-s.stopped:
		return nil, errors.New("track ended")
	default:
	}
	return s.frame, nil
}

func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.backend.streamStopped()
	})
}

func (s *Stream) State() camera.TrackState {
	select {
	case <-s.stopped:
		return camera.TrackEnded
	default:
		return camera.TrackLive
	}
}

// Clock is a manual camera.Clock. Timers fire synchronously from Advance.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*timer
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

type timer struct {
	clock   *Clock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) AfterFunc(d time.Duration, f func()) camera.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &timer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs every timer that became due.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*timer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

// Pending reports how many timers are armed.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}
