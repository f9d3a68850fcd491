// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import "time"

// Facing is the direction a camera points relative to the kiosk user.
type Facing string

const (
	FacingEnvironment Facing = "environment"
	FacingUser        Facing = "user"
	FacingUnknown     Facing = "unknown"
)

// Opposite returns the other requestable facing. Unknown maps to user because
// an unreported facing is treated as environment.
func (f Facing) Opposite() Facing {
	if f == FacingUser {
		return FacingEnvironment
	}
	return FacingUser
}

// Valid reports whether f can be requested from the media backend.
func (f Facing) Valid() bool {
	return f == FacingEnvironment || f == FacingUser
}

// Label is the short name used in notices and capture filenames.
func (f Facing) Label() string {
	switch f {
	case FacingEnvironment:
		return "back"
	case FacingUser:
		return "front"
	default:
		return "camera"
	}
}

// State is the controller lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateAcquiring State = "acquiring"
	StateReady     State = "ready"
	StateCapturing State = "capturing"
	StateFailed    State = "failed"
)

func (s State) String() string { return string(s) }

// States lists every controller state in lifecycle order.
var States = []State{StateIdle, StateAcquiring, StateReady, StateCapturing, StateFailed}

// Resolution is a width/height pair in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DeviceDescriptor describes one video input.
type DeviceDescriptor struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Facing Facing `json:"facing"`
}

// NoticeKind mirrors the kiosk message levels.
type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a transient message shown on the kiosk.
type Notice struct {
	Kind NoticeKind `json:"type"`
	Text string     `json:"text"`
}

// Status is a point-in-time snapshot of the controller.
type Status struct {
	State           State              `json:"state"`
	Ready           bool               `json:"ready"`
	FacingRequested Facing             `json:"facingRequested,omitempty"`
	FacingActual    Facing             `json:"facingActual,omitempty"`
	DeviceID        string             `json:"deviceId,omitempty"`
	Resolution      *Resolution        `json:"resolution,omitempty"`
	Fallback        bool               `json:"fallback,omitempty"`
	FlashSupported  bool               `json:"flashSupported"`
	FlashEnabled    bool               `json:"flashEnabled"`
	Devices         []DeviceDescriptor `json:"devices"`
	CanSwitch       bool               `json:"canSwitch"`
	ErrorReason     Reason             `json:"errorReason,omitempty"`
	ErrorMessage    string             `json:"errorMessage,omitempty"`
	Notice          *Notice            `json:"notice,omitempty"`
}

// Artifact is a still image rendered from the live preview.
type Artifact struct {
	Filename   string    `json:"filename"`
	MIMEType   string    `json:"mimeType"`
	Data       []byte    `json:"-"`
	DataURL    string    `json:"-"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Facing     Facing    `json:"facing"`
	Mirrored   bool      `json:"mirrored"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Size returns the encoded size in bytes.
func (a *Artifact) Size() int { return len(a.Data) }
