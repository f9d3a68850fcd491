// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mediadev

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/ManuGH/frontdesk/internal/camera"
	"github.com/disintegration/imaging"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/video"
)

var errTrackEnded = errors.New("mediadev: track ended")

type stream struct {
	id     string
	track  *mediadevices.VideoTrack
	reader video.Reader
	torch  *sysfsTorch

	mu       sync.Mutex
	settings camera.StreamSettings
	pending  image.Image
	torchOn  bool
	ended    bool
}

func newStream(id string, track *mediadevices.VideoTrack, settings camera.StreamSettings, torch *sysfsTorch) *stream {
	return &stream{
		id:       id,
		track:    track,
		reader:   track.NewReader(false),
		torch:    torch,
		settings: settings,
	}
}

// prime reads one frame so Settings can report the negotiated size. The
// frame is handed out by the first ReadFrame.
func (s *stream) prime() error {
	img, err := s.read()
	if err != nil {
		return err
	}
	b := img.Bounds()
	s.mu.Lock()
	s.pending = img
	s.settings.Width = b.Dx()
	s.settings.Height = b.Dy()
	s.mu.Unlock()
	return nil
}

// read copies the frame out of the driver buffer before releasing it.
func (s *stream) read() (image.Image, error) {
	img, release, err := s.reader.Read()
	if err != nil {
		return nil, err
	}
	defer release()
	return imaging.Clone(img), nil
}

func (s *stream) ID() string { return s.id }

func (s *stream) Settings() camera.StreamSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *stream) Capabilities() (camera.Capabilities, error) {
	if s.torch == nil {
		return camera.Capabilities{}, nil
	}
	if err := s.torch.check(); err != nil {
		return camera.Capabilities{}, err
	}
	return camera.Capabilities{Torch: true}, nil
}

func (s *stream) ApplyTorch(_ context.Context, on bool) error {
	if s.torch == nil {
		return camera.ErrFlashUnsupported
	}
	if err := s.torch.set(on); err != nil {
		return err
	}
	s.mu.Lock()
	s.torchOn = on
	s.mu.Unlock()
	return nil
}

// ReadFrame blocks in the driver until a frame arrives or the track is
// closed; ctx is checked between frames.
func (s *stream) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil, errTrackEnded
	}
	if img := s.pending; img != nil {
		s.pending = nil
		s.mu.Unlock()
		return img, nil
	}
	s.mu.Unlock()

	img, err := s.read()
	if err != nil {
		if s.State() == camera.TrackEnded {
			return nil, errTrackEnded
		}
		return nil, err
	}
	return img, nil
}

// Stop closes the track and switches the torch off if this stream lit it.
func (s *stream) Stop() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	torchOn := s.torchOn
	s.torchOn = false
	s.pending = nil
	s.mu.Unlock()

	if torchOn && s.torch != nil {
		_ = s.torch.set(false)
	}
	_ = s.track.Close()
}

func (s *stream) State() camera.TrackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return camera.TrackEnded
	}
	return camera.TrackLive
}
