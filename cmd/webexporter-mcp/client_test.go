package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallSendsKeyAndPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		assert.Equal(t, "/api/v1/spiders/start", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"tab_id":2}`, string(b))
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	body, err := newAPIClient(srv.URL, "k").call(context.Background(), http.MethodPost, "/api/v1/spiders/start", map[string]any{"tab_id": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"success\": true\n}", pretty(body))
}

func TestCallMapsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"success":false,"error":{"code":"SPIDER_RUNNING","message":"busy"}}`))
	}))
	defer srv.Close()

	_, err := newAPIClient(srv.URL, "").call(context.Background(), http.MethodGet, "/x", nil)
	assert.EqualError(t, err, "[SPIDER_RUNNING] busy")
}

func TestCallNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newAPIClient(srv.URL, "").call(context.Background(), http.MethodGet, "/x", nil)
	assert.EqualError(t, err, "API returned 502 Bad Gateway")
}

func TestPrettyLeavesText(t *testing.T) {
	assert.Equal(t, "a\nb\n", pretty([]byte("a\nb\n")))
}
