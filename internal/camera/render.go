// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/disintegration/imaging"
)

// EncodeFunc writes img as JPEG at the given quality.
type EncodeFunc func(w io.Writer, img image.Image, quality int) error

func encodeJPEG(w io.Writer, img image.Image, quality int) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

type renderOptions struct {
	maxDimension int
	quality      int
	mirror       bool
	encode       EncodeFunc
}

// CaptureFilename names a capture after the facing that produced it.
func CaptureFilename(facing Facing, at time.Time) string {
	return fmt.Sprintf("visiting_card_%s_%d.jpg", facing.Label(), at.UnixMilli())
}

// render turns a preview frame into a JPEG artifact. The frame itself is
// never modified.
func render(frame image.Image, facing Facing, opts renderOptions, at time.Time) (*Artifact, error) {
	if frame == nil || frame.Bounds().Empty() {
		return nil, errors.New("empty frame")
	}
	out := frame
	b := frame.Bounds()
	if opts.maxDimension > 0 && max(b.Dx(), b.Dy()) > opts.maxDimension {
		out = imaging.Fit(frame, opts.maxDimension, opts.maxDimension, imaging.Lanczos)
	}
	if opts.mirror {
		out = imaging.FlipH(out)
	}

	encode := opts.encode
	if encode == nil {
		encode = encodeJPEG
	}
	var buf bytes.Buffer
	if err := encode(&buf, out, opts.quality); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, errors.New("encoder produced no data")
	}

	data := buf.Bytes()
	ob := out.Bounds()
	return &Artifact{
		Filename:   CaptureFilename(facing, at),
		MIMEType:   "image/jpeg",
		Data:       data,
		DataURL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data),
		Width:      ob.Dx(),
		Height:     ob.Dy(),
		Facing:     facing,
		Mirrored:   opts.mirror,
		CapturedAt: at,
	}, nil
}
