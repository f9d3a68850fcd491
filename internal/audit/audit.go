// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package audit provides structured audit logging for operator actions.
// It follows the WHO/WHAT/WHEN pattern for compliance and forensics.
package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/rs/zerolog"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Configuration events
	EventConfigReload      EventType = "config.reload"
	EventConfigReloadError EventType = "config.reload.error"

	// Kiosk settings events
	EventSettingsChange EventType = "settings.change"

	// Admin events
	EventAdminLogin        EventType = "admin.login"
	EventAdminLoginFailure EventType = "admin.login.failure"
	EventAdminLogout       EventType = "admin.logout"
	EventVisitorUpdate     EventType = "visitor.update"
	EventVisitorDelete     EventType = "visitor.delete"
	EventVisitorExport     EventType = "visitor.export"
)

// Results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Event represents a structured audit event.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Type       EventType         `json:"type"`
	Actor      string            `json:"actor"`    // WHO: operator name, client IP, or "system"
	Action     string            `json:"action"`   // WHAT: human-readable action description
	Resource   string            `json:"resource"` // e.g. a setting key, visitor ID or export path
	Result     string            `json:"result"`
	RemoteAddr string            `json:"remote_addr"`
	RequestID  string            `json:"request_id"`
	Details    map[string]string `json:"details,omitempty"`
}

// Logger provides audit logging functionality.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new audit logger with a dedicated "audit" component.
func NewLogger() *Logger {
	return New(log.WithComponent("audit"))
}

// New wraps an existing logger.
func New(base zerolog.Logger) *Logger {
	return &Logger{logger: base.With().Str("log_type", "audit").Logger()}
}

// Log writes an audit event to the audit log. Events carry no level, so
// only a disabled global level suppresses them.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ev := l.logger.Log().
		Time("timestamp", event.Timestamp).
		Str("event_type", string(event.Type)).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("result", event.Result)

	if event.RemoteAddr != "" {
		ev.Str("remote_addr", event.RemoteAddr)
	}
	if event.RequestID != "" {
		ev.Str(log.FieldRequestID, event.RequestID)
	}
	for key, value := range event.Details {
		ev.Str(key, value)
	}

	ev.Msg("audit event")
}

// LogFromContext fills the request ID from ctx before logging.
func (l *Logger) LogFromContext(ctx context.Context, event Event) {
	if event.RequestID == "" {
		event.RequestID = log.RequestIDFromContext(ctx)
	}
	l.Log(event)
}

// ConfigReload logs a configuration reload.
func (l *Logger) ConfigReload(actor, result string, details map[string]string) {
	typ := EventConfigReload
	if result != ResultSuccess {
		typ = EventConfigReloadError
	}
	l.Log(Event{
		Type:     typ,
		Actor:    actor,
		Action:   "reloaded configuration",
		Resource: "config",
		Result:   result,
		Details:  details,
	})
}

// SettingChanged logs a kiosk setting written through the API.
func (l *Logger) SettingChanged(ctx context.Context, remoteAddr, key, value string) {
	l.LogFromContext(ctx, Event{
		Type:       EventSettingsChange,
		Actor:      remoteAddr,
		Action:     "changed kiosk setting",
		Resource:   key,
		Result:     ResultSuccess,
		RemoteAddr: remoteAddr,
		Details:    map[string]string{"value": value},
	})
}

// AdminLogin logs an admin login attempt. The password is never passed in.
func (l *Logger) AdminLogin(ctx context.Context, username string, err error) {
	ev := Event{
		Type:     EventAdminLogin,
		Actor:    username,
		Action:   "admin login",
		Resource: "admin",
		Result:   ResultSuccess,
	}
	if err != nil {
		ev.Type = EventAdminLoginFailure
		ev.Result = ResultFailure
	}
	l.LogFromContext(ctx, ev)
}

// AdminLogout logs the stored admin key being cleared.
func (l *Logger) AdminLogout(ctx context.Context, reason string) {
	l.LogFromContext(ctx, Event{
		Type:     EventAdminLogout,
		Actor:    "operator",
		Action:   "cleared admin key",
		Resource: "admin",
		Result:   ResultSuccess,
		Details:  map[string]string{"reason": reason},
	})
}

// VisitorChanged logs an update or delete of one visitor record.
func (l *Logger) VisitorChanged(ctx context.Context, typ EventType, id string, err error) {
	action := "updated visitor"
	if typ == EventVisitorDelete {
		action = "deleted visitor"
	}
	l.LogFromContext(ctx, Event{
		Type:     typ,
		Actor:    "operator",
		Action:   action,
		Resource: id,
		Result:   resultOf(err),
	})
}

// VisitorExport logs a CSV export.
func (l *Logger) VisitorExport(ctx context.Context, path string, rows int) {
	l.LogFromContext(ctx, Event{
		Type:     EventVisitorExport,
		Actor:    "operator",
		Action:   "exported visitors",
		Resource: path,
		Result:   ResultSuccess,
		Details:  map[string]string{"rows": strconv.Itoa(rows)},
	})
}

func resultOf(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
