// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the kiosk HTTP API: the camera session, the check-in
// wizard, the OTP preference, and health and metrics endpoints.
package api

import (
	"context"
	"errors"
	"image"
	"net/http"

	"github.com/ManuGH/frontdesk/internal/api/middleware"
	"github.com/ManuGH/frontdesk/internal/audit"
	"github.com/ManuGH/frontdesk/internal/camera"
	"github.com/ManuGH/frontdesk/internal/health"
	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/ManuGH/frontdesk/internal/wizard"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	defaultPreviewFPS     = 15
	defaultPreviewQuality = 75
	// multipart envelope allowance on top of the image limit
	formOverheadBytes = 1 << 20
)

// Camera is the session controller surface the API drives directly.
type Camera interface {
	Status() camera.Status
	Devices() []camera.DeviceDescriptor
	Acquire(ctx context.Context, preferred camera.Facing) (camera.Status, error)
	SwitchFacing(ctx context.Context) (camera.Status, error)
	ToggleFlash(ctx context.Context) (camera.Status, error)
	Stop(ctx context.Context) camera.Status
	NextFrame(ctx context.Context, cur camera.FrameCursor) (image.Image, camera.FrameCursor, error)
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Camera Camera
	Wizard *wizard.Wizard
	Health *health.Manager
	Audit  *audit.Logger
}

// Options tunes the HTTP surface.
type Options struct {
	AllowedOrigins []string
	RateLimitRPM   int
	TracingService string
	PreviewFPS     int
	PreviewQuality int
}

// Server is the kiosk HTTP API.
type Server struct {
	cam     Camera
	wiz     *wizard.Wizard
	health  *health.Manager
	audit   *audit.Logger
	opts    Options
	logger  zerolog.Logger
	handler http.Handler
}

// New wires the router. Camera and Wizard are required.
func New(deps Deps, opts Options) (*Server, error) {
	if deps.Camera == nil {
		return nil, errors.New("api: camera is required")
	}
	if deps.Wizard == nil {
		return nil, errors.New("api: wizard is required")
	}
	if deps.Health == nil {
		deps.Health = health.NewManager("")
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewLogger()
	}
	if opts.PreviewFPS <= 0 {
		opts.PreviewFPS = defaultPreviewFPS
	}
	if opts.PreviewQuality <= 0 || opts.PreviewQuality > 100 {
		opts.PreviewQuality = defaultPreviewQuality
	}
	s := &Server{
		cam:    deps.Camera,
		wiz:    deps.Wizard,
		health: deps.Health,
		audit:  deps.Audit,
		opts:   opts,
		logger: log.WithComponent("api"),
	}
	doc, err := LoadOpenAPI(context.Background())
	if err != nil {
		return nil, err
	}
	validator, err := newRequestValidator(s, doc)
	if err != nil {
		return nil, err
	}
	s.handler = s.routes(validator)
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes(validator *requestValidator) http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            true,
		AllowedOrigins:        s.opts.AllowedOrigins,
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.opts.TracingService,
		EnableLogging:         true,
		RateLimitRPM:          s.opts.RateLimitRPM,
	})

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(validator.Handler)
		r.Get("/openapi.yaml", s.handleOpenAPI)

		r.Route("/camera", func(r chi.Router) {
			r.Get("/", s.handleCameraStatus)
			r.Get("/devices", s.handleCameraDevices)
			r.Post("/acquire", s.handleCameraAcquire)
			r.Post("/switch", s.handleCameraSwitch)
			r.Post("/flash", s.handleCameraFlash)
			r.Delete("/", s.handleCameraStop)
			r.Get("/preview.mjpg", s.handlePreview)
		})

		r.Route("/checkin", func(r chi.Router) {
			r.Get("/", s.handleCheckin)
			r.Post("/contact", s.handleContact)
			r.With(middleware.OTPRateLimit()).Post("/otp/send", s.handleSendCode)
			r.Post("/otp/verify", s.handleVerifyCode)
			r.Post("/camera", s.handleCheckinCamera)
			r.Post("/camera/switch", s.handleCheckinSwitch)
			r.Post("/camera/flash", s.handleCheckinFlash)
			r.Delete("/camera", s.handleCheckinStopCamera)
			r.Post("/capture", s.handleCapture)
			r.Post("/retake", s.handleRetake)
			r.Post("/file", s.handleAttachFile)
			r.Get("/artifact", s.handleArtifact)
			r.Post("/submit", s.handleSubmit)
			r.Post("/back", s.handleBack)
			r.Post("/reset", s.handleReset)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Use(middleware.CSRFProtection(s.opts.AllowedOrigins))
			r.Get("/otp", s.handleGetOTP)
			r.Put("/otp", s.handlePutOTP)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "Not found.", RequestID: log.RequestIDFromContext(r.Context())})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method_not_allowed", Message: "Method not allowed.", RequestID: log.RequestIDFromContext(r.Context())})
	})
	return r
}

