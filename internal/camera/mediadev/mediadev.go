// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package mediadev adapts pion/mediadevices to the camera controller.
// Facing and torch control are not exposed by V4L2 capture devices, so both
// come from the operator's device map.
package mediadev

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/ManuGH/frontdesk/internal/camera"
	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/rs/zerolog"

	// Registers the V4L2 camera driver.
	_ "github.com/pion/mediadevices/pkg/driver/camera"
)

// maxDimension bounds the resolution search; the kiosk never needs more.
const maxDimension = 4096

// DeviceConfig maps a physical camera onto a facing and an optional torch.
type DeviceConfig struct {
	ID        string
	Label     string
	Facing    camera.Facing
	TorchPath string
}

type driverAPI interface {
	enumerate() []mediadevices.MediaDeviceInfo
	open(constraints mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error)
}

type pionDriver struct{}

func (pionDriver) enumerate() []mediadevices.MediaDeviceInfo { return mediadevices.EnumerateDevices() }

func (pionDriver) open(c mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error) {
	return mediadevices.GetUserMedia(c)
}

// Backend implements camera.MediaDevices on top of pion/mediadevices.
type Backend struct {
	driver  driverAPI
	devices []DeviceConfig
	logger  zerolog.Logger

	// pion opens one driver at a time; GetUserMedia calls are serialized.
	mu  sync.Mutex
	seq int
}

func NewBackend(devices []DeviceConfig) *Backend {
	return &Backend{
		driver:  pionDriver{},
		devices: devices,
		logger:  log.WithComponent("mediadev"),
	}
}

// EnumerateDevices lists video inputs and annotates the configured ones.
func (b *Backend) EnumerateDevices(_ context.Context) ([]camera.DeviceDescriptor, error) {
	infos := b.driver.enumerate()
	out := make([]camera.DeviceDescriptor, 0, len(infos))
	for _, info := range infos {
		if info.Kind != mediadevices.VideoInput {
			continue
		}
		desc := camera.DeviceDescriptor{ID: info.DeviceID, Label: info.Label, Facing: camera.FacingUnknown}
		if cfg, ok := b.configFor(info); ok {
			desc.Facing = cfg.Facing
			if cfg.Label != "" {
				desc.Label = cfg.Label
			}
		}
		out = append(out, desc)
	}
	return out, nil
}

// configFor matches a driver device against the device map. Configured IDs
// may be the driver ID, the label, or a /dev path naming one label part.
func (b *Backend) configFor(info mediadevices.MediaDeviceInfo) (DeviceConfig, bool) {
	for _, cfg := range b.devices {
		if matchDevice(cfg.ID, info) {
			return cfg, true
		}
	}
	return DeviceConfig{}, false
}

func matchDevice(id string, info mediadevices.MediaDeviceInfo) bool {
	if id == "" {
		return false
	}
	if id == info.DeviceID || id == info.Label {
		return true
	}
	want := filepath.Base(id)
	for _, part := range strings.Split(info.Label, ";") {
		if part == id || filepath.Base(part) == want {
			return true
		}
	}
	return false
}

// pick returns the driver device for a facing, if one is mapped and present.
func (b *Backend) pick(facing camera.Facing) (mediadevices.MediaDeviceInfo, DeviceConfig, bool) {
	for _, info := range b.driver.enumerate() {
		if info.Kind != mediadevices.VideoInput {
			continue
		}
		cfg, ok := b.configFor(info)
		if ok && cfg.Facing == facing {
			return info, cfg, true
		}
	}
	return mediadevices.MediaDeviceInfo{}, DeviceConfig{}, false
}

type openResult struct {
	stream camera.Stream
	err    error
}

// GetUserMedia opens a stream. pion's call cannot be interrupted, so a
// cancelled ctx returns early and the late stream is stopped when it arrives.
func (b *Backend) GetUserMedia(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resCh := make(chan openResult, 1)
	go func() {
		s, err := b.open(c)
		resCh <- openResult{s, err}
	}()
	select {
	case res := <-resCh:
		return res.stream, res.err
	case <-ctx.Done():
		go func() {
			if res := <-resCh; res.stream != nil {
				res.stream.Stop()
			}
		}()
		return nil, ctx.Err()
	}
}

func (b *Backend) open(c camera.Constraints) (camera.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		info   mediadevices.MediaDeviceInfo
		cfg    DeviceConfig
		pinned bool
	)
	if !c.Lenient {
		info, cfg, pinned = b.pick(c.Facing)
	}

	ms, err := b.driver.open(mediadevices.MediaStreamConstraints{
		Video: func(mc *mediadevices.MediaTrackConstraints) {
			if c.Lenient {
				return
			}
			if pinned {
				mc.DeviceID = prop.StringExact(info.DeviceID)
			}
			if c.Min.Width > 0 {
				mc.Width = prop.IntRanged{Min: c.Min.Width, Ideal: c.Ideal.Width, Max: maxDimension}
				mc.Height = prop.IntRanged{Min: c.Min.Height, Ideal: c.Ideal.Height, Max: maxDimension}
			}
		},
	})
	if err != nil {
		return nil, mapOpenError(err, c.Lenient)
	}

	tracks := ms.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("stream has no video track: %w", camera.ErrDeviceNotFound)
	}
	vt, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		for _, t := range tracks {
			_ = t.Close()
		}
		return nil, fmt.Errorf("unexpected track type %T", tracks[0])
	}

	b.seq++
	settings := camera.StreamSettings{Facing: camera.FacingUnknown}
	var torch *sysfsTorch
	if pinned {
		settings.DeviceID = cfg.ID
		settings.Facing = cfg.Facing
		if cfg.TorchPath != "" {
			torch = newSysfsTorch(cfg.TorchPath)
		}
	}
	s := newStream(fmt.Sprintf("%s-%d", vt.ID(), b.seq), vt, settings, torch)
	if err := s.prime(); err != nil {
		s.Stop()
		return nil, fmt.Errorf("reading first frame: %w", err)
	}

	b.logger.Info().
		Str(log.FieldEvent, "mediadev.opened").
		Str(log.FieldDevice, settings.DeviceID).
		Str(log.FieldFacing, string(settings.Facing)).
		Str(log.FieldResolution, fmt.Sprintf("%dx%d", s.settings.Width, s.settings.Height)).
		Bool("lenient", c.Lenient).
		Msg("video track opened")
	return s, nil
}

// mapOpenError translates driver errors into camera sentinels.
func mapOpenError(err error, lenient bool) error {
	switch {
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return fmt.Errorf("%w: %w", camera.ErrPermissionDenied, err)
	case errors.Is(err, syscall.EBUSY):
		return fmt.Errorf("%w: %w", camera.ErrDeviceBusy, err)
	case errors.Is(err, syscall.ENOENT), errors.Is(err, syscall.ENODEV):
		return fmt.Errorf("%w: %w", camera.ErrDeviceNotFound, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"):
		return fmt.Errorf("%w: %w", camera.ErrPermissionDenied, err)
	case strings.Contains(msg, "busy"):
		return fmt.Errorf("%w: %w", camera.ErrDeviceBusy, err)
	case strings.Contains(msg, "failed to find"), strings.Contains(msg, "not found"):
		if lenient {
			return fmt.Errorf("%w: %w", camera.ErrDeviceNotFound, err)
		}
		return fmt.Errorf("%w: %w", camera.ErrConstraintsUnsatisfiable, err)
	}
	return err
}
