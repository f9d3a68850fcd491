// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import (
	"context"

	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/rs/zerolog"
)

// Enumerator lists the video inputs the media backend can see.
type Enumerator struct {
	media  MediaDevices
	logger zerolog.Logger
}

func NewEnumerator(media MediaDevices) *Enumerator {
	return &Enumerator{media: media, logger: log.WithComponent("camera-enumerator")}
}

// ListVideoInputDevices never fails. Backend errors are logged and reported
// as an empty list, which callers treat as a single camera.
func (e *Enumerator) ListVideoInputDevices(ctx context.Context) []DeviceDescriptor {
	devices, err := e.media.EnumerateDevices(ctx)
	if err != nil {
		e.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "camera.enumerate_failed").
			Msg("could not enumerate video inputs; camera switching disabled")
		return []DeviceDescriptor{}
	}
	out := make([]DeviceDescriptor, 0, len(devices))
	for _, d := range devices {
		if d.Facing == "" {
			d.Facing = FacingUnknown
		}
		out = append(out, d)
	}
	e.logger.Debug().
		Str(log.FieldEvent, "camera.enumerated").
		Int("count", len(out)).
		Msg("video inputs enumerated")
	return out
}
