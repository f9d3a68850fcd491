// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import (
	"github.com/ManuGH/frontdesk/internal/log"
)

// ProbeFlashSupport reports whether the stream's track exposes a torch.
// Capability errors and backend panics both read as unsupported.
func ProbeFlashSupport(stream Stream) (supported bool) {
	if stream == nil {
		return false
	}
	logger := log.WithComponent("camera-prober")
	defer func() {
		if r := recover(); r != nil {
			logger.Warn().
				Interface("panic", r).
				Str(log.FieldEvent, "camera.probe_panic").
				Msg("capability probe panicked")
			supported = false
		}
	}()
	caps, err := stream.Capabilities()
	if err != nil {
		logger.Debug().
			Err(err).
			Str(log.FieldEvent, "camera.probe_failed").
			Msg("capability probe failed")
		return false
	}
	return caps.Torch
}
