// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package admin

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) (*httptest.Server, *[]Visitor) {
	t.Helper()
	records := fixtures()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/login", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["username"] != "admin" || creds["password"] != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"adminApiKey":"key-123"}`))
	})
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Admin-API-Key") != "key-123" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			h(w, r)
		}
	}
	mux.HandleFunc("GET /api/admin/visitors", authed(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": records})
	}))
	mux.HandleFunc("PUT /api/admin/visitors/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		var u VisitorUpdate
		_ = json.NewDecoder(r.Body).Decode(&u)
		for i := range records {
			if records[i].ID == r.PathValue("id") {
				records[i].Name = u.Name
				records[i].PersonalPhoneNumber = u.PersonalPhoneNumber
				records[i].OTPVerified = u.OTPVerified
				_ = json.NewEncoder(w).Encode(map[string]any{"data": records[i]})
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Visitor not found"}`))
	}))
	mux.HandleFunc("DELETE /api/admin/visitors/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		for i := range records {
			if records[i].ID == r.PathValue("id") {
				records = append(records[:i], records[i+1:]...)
				_, _ = w.Write([]byte(`{"message":"Visitor deleted"}`))
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &records
}

func TestClient_LoginListUpdateDelete(t *testing.T) {
	srv, records := newBackend(t)
	ctx := context.Background()
	c := NewClient(srv.URL, "", 5*time.Second)

	_, err := c.List(ctx)
	require.ErrorIs(t, err, ErrUnauthorized, "no key yet")

	key, err := c.Login(ctx, "admin", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "key-123", key)
	assert.Equal(t, "key-123", c.APIKey())

	list, err := c.List(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(fixtures(), list); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}

	u := UpdateFrom(list[0])
	u.Name = "Asha R."
	u.OTPVerified = false
	updated, err := c.Update(ctx, "a", u)
	require.NoError(t, err)
	assert.Equal(t, "Asha R.", updated.Name)
	assert.False(t, updated.OTPVerified)

	require.NoError(t, c.Delete(ctx, "b"))
	assert.Len(t, *records, 2)

	err = c.Delete(ctx, "zzz")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Failed to delete visitor. Please try again.", UserMessage(err))
}

func TestClient_LoginFailureUsesBackendMessage(t *testing.T) {
	srv, _ := newBackend(t)
	c := NewClient(srv.URL, "", 5*time.Second)

	_, err := c.Login(context.Background(), "admin", "wrong")
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "Invalid credentials", UserMessage(err))
	assert.Empty(t, c.APIKey())
}

func TestClient_StaleKeyIsUnauthorized(t *testing.T) {
	srv, _ := newBackend(t)
	c := NewClient(srv.URL, "expired", 5*time.Second)
	_, err := c.List(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "Authentication failed. Please log in again.", UserMessage(err))
}

func TestClient_UpdateValidatesLocally(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits++ }))
	defer srv.Close()

	c := NewClient(srv.URL, "key", time.Second)
	_, err := c.Update(context.Background(), "a", VisitorUpdate{PersonalPhoneNumber: "123"})
	require.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, "Personal Mobile Number is required and must be 10 digits starting with 6-9.", UserMessage(err))
	assert.Zero(t, hits)
}

func TestWriteCSV(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	recs := fixtures()[:1]
	recs[0].UpdatedAt = base.Add(24 * time.Hour)
	recs[0].VisitingCardImageURL = "https://cdn.example/cards/a.jpg"

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, recs, ist))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	want := [][]string{
		exportHeader,
		{"Asha Rao", "Acme Tools", "9876543210", "", "MG Road, Bengaluru", "Yes", "camera", "01-02-2025 14:30:00", "02-02-2025 14:30:00", "https://cdn.example/cards/a.jpg"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestExportFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 3, 9, 18, 0, 0, 0, time.UTC)

	path, err := ExportFile(context.Background(), dir, fixtures(), now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "visitors-data-2025-03-09.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Equal(t, "No", rows[2][5])
	assert.Equal(t, "", rows[1][8], "zero timestamps export empty")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
