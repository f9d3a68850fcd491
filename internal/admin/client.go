// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package admin talks to the visitor backend's admin API and shapes the
// visitor listing for operators.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuGH/frontdesk/internal/log"
	"github.com/ManuGH/frontdesk/internal/platform/httpx"
	"github.com/rs/zerolog"
)

const maxResponseBytes = 8 << 20

var (
	ErrUnauthorized = errors.New("admin: authentication failed")
	ErrNotFound     = errors.New("admin: visitor not found")
	ErrRejected     = errors.New("admin: request rejected")
	ErrUnavailable  = errors.New("admin: backend unavailable")
	ErrBadResponse  = errors.New("admin: invalid response format")
)

var fallbackMessages = map[string]string{
	"login":  "Login failed. Please try again.",
	"list":   "Failed to load visitor data. Please try again later.",
	"update": "Failed to update visitor. Please try again.",
	"delete": "Failed to delete visitor. Please try again.",
}

// Error is an admin API failure with the backend's message when it sent one.
type Error struct {
	Sentinel  error
	Operation string
	Status    int
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("admin: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Sentinel, e.Err}
	}
	return []error{e.Sentinel}
}

// UserMessage is the operator-facing text for err.
func UserMessage(err error) string {
	var aerr *Error
	if !errors.As(err, &aerr) {
		return "Request failed. Please try again."
	}
	if errors.Is(err, ErrUnauthorized) && aerr.Operation != "login" {
		return "Authentication failed. Please log in again."
	}
	if aerr.Message != "" {
		return aerr.Message
	}
	if msg, ok := fallbackMessages[aerr.Operation]; ok {
		return msg
	}
	return "Request failed. Please try again."
}

// Visitor is one check-in record as the backend stores it.
type Visitor struct {
	ID                   string    `json:"_id"`
	Name                 string    `json:"name,omitempty"`
	CompanyName          string    `json:"companyName,omitempty"`
	PersonalPhoneNumber  string    `json:"personalPhoneNumber"`
	CompanyPhoneNumber   string    `json:"companyPhoneNumber,omitempty"`
	Address              string    `json:"address,omitempty"`
	OTPVerified          bool      `json:"otpVerified"`
	CaptureMethod        string    `json:"captureMethod,omitempty"`
	VisitingCardImageURL string    `json:"visitingCardImageUrl,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Client calls {baseURL}/admin/login and {baseURL}/api/admin/visitors.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient builds a client. apiKey may be empty until Login.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpx.NewClient(timeout),
		logger:  log.WithComponent("admin"),
	}
}

// APIKey returns the key in use.
func (c *Client) APIKey() string { return c.apiKey }

// Login exchanges credentials for an admin API key and keeps it.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body := map[string]string{"username": username, "password": password}
	var resp struct {
		AdminAPIKey string `json:"adminApiKey"`
	}
	if err := c.do(ctx, "login", http.MethodPost, "/admin/login", body, &resp, false); err != nil {
		return "", err
	}
	if resp.AdminAPIKey == "" {
		return "", &Error{Sentinel: ErrBadResponse, Operation: "login", Err: errors.New("empty adminApiKey")}
	}
	c.apiKey = resp.AdminAPIKey
	c.logger.Info().Str(log.FieldEvent, "admin.login").Str("user", username).Msg("admin login succeeded")
	return resp.AdminAPIKey, nil
}

// List fetches every visitor record.
func (c *Client) List(ctx context.Context) ([]Visitor, error) {
	var resp struct {
		Data []Visitor `json:"data"`
	}
	if err := c.do(ctx, "list", http.MethodGet, "/api/admin/visitors", nil, &resp, true); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		resp.Data = []Visitor{}
	}
	return resp.Data, nil
}

// Update replaces the editable fields of visitor id and returns the stored record.
func (c *Client) Update(ctx context.Context, id string, u VisitorUpdate) (Visitor, error) {
	if err := ValidateUpdate(u); err != nil {
		var ferr *FieldError
		errors.As(err, &ferr)
		return Visitor{}, &Error{Sentinel: ErrRejected, Operation: "update", Message: ferr.Message, Err: err}
	}
	var resp struct {
		Data Visitor `json:"data"`
	}
	if err := c.do(ctx, "update", http.MethodPut, "/api/admin/visitors/"+url.PathEscape(id), u, &resp, true); err != nil {
		return Visitor{}, err
	}
	return resp.Data, nil
}

// Delete removes visitor id.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "delete", http.MethodDelete, "/api/admin/visitors/"+url.PathEscape(id), nil, nil, true)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any, auth bool) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Sentinel: ErrUnavailable, Operation: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		if c.apiKey == "" {
			return &Error{Sentinel: ErrUnauthorized, Operation: op, Err: errors.New("not logged in")}
		}
		req.Header.Set("Admin-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Sentinel: ErrUnavailable, Operation: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Sentinel: ErrUnavailable, Operation: op, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &msg)
		aerr := &Error{Operation: op, Status: resp.StatusCode, Message: msg.Message}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			aerr.Sentinel = ErrUnauthorized
		case resp.StatusCode == http.StatusNotFound:
			aerr.Sentinel = ErrNotFound
		case resp.StatusCode >= 500:
			aerr.Sentinel = ErrUnavailable
		default:
			aerr.Sentinel = ErrRejected
		}
		c.logger.Warn().
			Str(log.FieldOperation, op).
			Int(log.FieldStatus, resp.StatusCode).
			Str(log.FieldPath, path).
			Msg("admin request failed")
		return aerr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Sentinel: ErrBadResponse, Operation: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}
