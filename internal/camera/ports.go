// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import (
	"context"
	"image"
	"time"
)

// Constraints describes the stream a caller would like to open. A lenient
// request accepts any video input and ignores every other field.
type Constraints struct {
	Facing      Facing
	Ideal       Resolution
	Min         Resolution
	AspectRatio float64
	Lenient     bool
}

// StreamSettings is what the hardware actually granted.
type StreamSettings struct {
	DeviceID string
	Facing   Facing
	Width    int
	Height   int
}

// Capabilities lists optional controls the active track exposes.
type Capabilities struct {
	Torch bool
}

// TrackState mirrors a media track's liveness.
type TrackState string

const (
	TrackLive  TrackState = "live"
	TrackEnded TrackState = "ended"
)

// MediaDevices is the hardware boundary. Implementations must honor ctx on
// GetUserMedia and return errors wrapping the camera sentinels where the
// cause is known.
type MediaDevices interface {
	EnumerateDevices(ctx context.Context) ([]DeviceDescriptor, error)
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live video track owned by exactly one session.
type Stream interface {
	ID() string
	Settings() StreamSettings
	Capabilities() (Capabilities, error)
	ApplyTorch(ctx context.Context, on bool) error
	// ReadFrame blocks until the next frame is available.
	ReadFrame(ctx context.Context) (image.Image, error)
	// Stop ends the track. Calling it more than once is a no-op.
	Stop()
	State() TrackState
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for guards and notices.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock returns the wall clock.
func SystemClock() Clock { return realClock{} }
