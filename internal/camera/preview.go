// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import (
	"context"
	"image"
	"sync"

	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/rs/zerolog"
)

// preview pulls frames off a stream and keeps the latest one. Readers block
// on the changed channel, which is closed and replaced on every new frame.
type preview struct {
	stream Stream
	logger zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	first  chan struct{}

	mu      sync.Mutex
	frame   image.Image
	seq     uint64
	err     error
	changed chan struct{}
}

func startPreview(stream Stream, logger zerolog.Logger) *preview {
	ctx, cancel := context.WithCancel(context.Background())
	p := &preview{
		stream:  stream,
		logger:  logger,
		cancel:  cancel,
		done:    make(chan struct{}),
		first:   make(chan struct{}),
		changed: make(chan struct{}),
	}
	go p.run(ctx)
	return p
}

func (p *preview) run(ctx context.Context) {
	defer close(p.done)
	for {
		img, err := p.stream.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn().
					Err(err).
					Str(log.FieldEvent, "camera.preview_ended").
					Msg("preview stopped receiving frames")
			}
			p.mu.Lock()
			p.err = err
			close(p.changed)
			p.changed = make(chan struct{})
			p.mu.Unlock()
			return
		}
		if img == nil || img.Bounds().Empty() {
			continue
		}
		p.publish(img)
	}
}

func (p *preview) publish(img image.Image) {
	p.mu.Lock()
	p.frame = img
	p.seq++
	first := p.seq == 1
	close(p.changed)
	p.changed = make(chan struct{})
	p.mu.Unlock()
	if first {
		close(p.first)
	}
}

// latest returns the most recent frame and its sequence number.
func (p *preview) latest() (image.Image, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame, p.seq
}

// next blocks until a frame newer than after is available.
func (p *preview) next(ctx context.Context, after uint64) (image.Image, uint64, error) {
	for {
		p.mu.Lock()
		if p.seq > after && p.frame != nil {
			img, seq := p.frame, p.seq
			p.mu.Unlock()
			return img, seq, nil
		}
		if p.err != nil {
			p.mu.Unlock()
			return nil, after, ErrNotReady
		}
		changed := p.changed
		p.mu.Unlock()

		select {
		case <-changed:
		case <-p.done:
			img, seq := p.latest()
			if seq > after && img != nil {
				return img, seq, nil
			}
			return nil, after, ErrNotReady
		case <-ctx.Done():
			return nil, after, ctx.Err()
		}
	}
}

// stop detaches the preview from its stream and waits for the reader to exit.
func (p *preview) stop() {
	p.cancel()
	<-p.done
}
