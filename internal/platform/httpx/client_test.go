// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransport_Defaults(t *testing.T) {
	transport := NewTransport(0)
	assert.Equal(t, defaultMaxIdleConns, transport.MaxIdleConns)
	assert.Equal(t, defaultMaxIdleConnsPerHost, transport.MaxIdleConnsPerHost)
	assert.Equal(t, defaultIdleConnTimeout, transport.IdleConnTimeout)
	assert.Equal(t, defaultDialTimeout, transport.TLSHandshakeTimeout)
}

func TestNewTransport_CapsTimeouts(t *testing.T) {
	transport := NewTransport(30 * time.Second)
	assert.Equal(t, defaultDialTimeout, transport.TLSHandshakeTimeout)
	assert.Equal(t, defaultResponseHeaderTimeout, transport.ResponseHeaderTimeout)

	short := 1500 * time.Millisecond
	transport = NewTransport(short)
	assert.Equal(t, short, transport.TLSHandshakeTimeout)
	assert.Equal(t, short, transport.ResponseHeaderTimeout)
}

func TestNewClient_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(0)
	assert.Equal(t, defaultClientTimeout, client.Timeout)

	resp, err := client.Get(srv.URL + "/visitors/upload?key=secret")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestSanitizeURL(t *testing.T) {
	assert.Equal(t,
		"https://identitytoolkit.googleapis.com/v1/accounts:sendVerificationCode",
		SanitizeURL("https://identitytoolkit.googleapis.com/v1/accounts:sendVerificationCode?key=AIza-secret"))
	assert.Equal(t, "http://backend.local/api", SanitizeURL("http://admin:pw@backend.local/api"))
	assert.Equal(t, "invalid-url-redacted", SanitizeURL("http://[::1"))
}
