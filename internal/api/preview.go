// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/ManuGH/frontdesk/internal/camera"
	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/disintegration/imaging"
	"github.com/oapi-codegen/runtime"
	"golang.org/x/time/rate"
)

// handlePreview streams the live preview as multipart/x-mixed-replace JPEG
// frames until the client goes away or the session stops presenting.
// An optional fps query parameter lowers the frame rate below the configured cap.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	fps := s.opts.PreviewFPS
	var requested *int
	if err := runtime.BindQueryParameter("form", true, false, "fps", r.URL.Query(), &requested); err != nil {
		s.writeBadRequest(w, r, `Invalid query parameter "fps".`)
		return
	}
	if requested != nil && *requested > 0 && *requested < fps {
		fps = *requested
	}

	ctx := r.Context()
	img, cur, err := s.cam.NextFrame(ctx, camera.FrameCursor{})
	if err != nil {
		if ctx.Err() == nil {
			st := s.cam.Status()
			s.writeError(w, r, err, errorBody{Camera: &st})
		}
		return
	}

	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	limiter := rate.NewLimiter(rate.Limit(fps), 1)
	logger := log.WithContext(ctx, s.logger)
	var buf bytes.Buffer
	frames := 0
	for {
		buf.Reset()
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(s.opts.PreviewQuality)); err != nil {
			logger.Error().Err(err).Str(log.FieldEvent, "preview.encode_failed").Msg("preview frame encode failed")
			return
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":   {"image/jpeg"},
			"Content-Length": {strconv.Itoa(buf.Len())},
		})
		if err != nil {
			return
		}
		if _, err := part.Write(buf.Bytes()); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
		frames++

		if err := limiter.Wait(ctx); err != nil {
			break
		}
		img, cur, err = s.cam.NextFrame(ctx, cur)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, camera.ErrNotReady) {
				logger.Warn().Err(err).Str(log.FieldEvent, "preview.ended").Msg("preview stream ended")
			}
			break
		}
	}
	_ = mw.Close()
	logger.Debug().Str(log.FieldEvent, "preview.closed").Int("frames", frames).Int("fps", fps).Msg("preview stream closed")
}
