// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMiddleware_LogsStatus(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Level: "debug"})
	defer Configure(Config{})

	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/camera", nil)
	req = req.WithContext(ContextWithRequestID(req.Context(), "req-7"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	sc := bufio.NewScanner(&buf)
	var found map[string]any
	for sc.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		if entry[FieldEvent] == "request.handled" {
			found = entry
		}
	}
	require.NotNil(t, found)
	require.EqualValues(t, http.StatusTeapot, found[FieldStatus])
	require.Equal(t, "/api/v1/camera", found[FieldPath])
	require.Equal(t, "req-7", found[FieldRequestID])
	require.Equal(t, "warn", found["level"])
}
