// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package settings persists the kiosk's operator preferences.
package settings

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
)

// Keys stored by the kiosk.
const (
	KeyOTPEnabled  = "otp.enabled"
	KeyAdminAPIKey = "admin.api_key"
)

// SQLiteFile is the settings database name inside the data directory.
const SQLiteFile = "settings.sqlite"

// ErrNotFound is returned by Get for a key that was never set.
var ErrNotFound = errors.New("settings: key not found")

// Store is a small string key/value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// NewStore opens the configured backend. An empty dir falls back to memory.
func NewStore(backend, dir string) (Store, error) {
	if backend == "" {
		backend = "sqlite"
	}
	switch backend {
	case "sqlite":
		if dir == "" {
			return NewMemoryStore(), nil
		}
		return NewSQLiteStore(filepath.Join(dir, SQLiteFile))
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown settings backend: %s (supported: sqlite, memory)", backend)
	}
}

// OTPEnabled returns the persisted OTP preference, or def when unset or
// unreadable.
func OTPEnabled(ctx context.Context, s Store, def bool) (bool, error) {
	raw, err := s.Get(ctx, KeyOTPEnabled)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("settings: %s: %w", KeyOTPEnabled, err)
	}
	return v, nil
}

func SetOTPEnabled(ctx context.Context, s Store, enabled bool) error {
	return s.Set(ctx, KeyOTPEnabled, strconv.FormatBool(enabled))
}

// AdminAPIKey returns the stored admin key, or "" when not logged in.
func AdminAPIKey(ctx context.Context, s Store) (string, error) {
	key, err := s.Get(ctx, KeyAdminAPIKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return key, err
}

func SetAdminAPIKey(ctx context.Context, s Store, key string) error {
	return s.Set(ctx, KeyAdminAPIKey, key)
}

func ClearAdminAPIKey(ctx context.Context, s Store) error {
	return s.Delete(ctx, KeyAdminAPIKey)
}
