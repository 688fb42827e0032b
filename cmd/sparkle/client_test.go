package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_GetDecodesSuccessResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/allowedStatuses", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]string{"incomplete", "done"})
	}))
	defer srv.Close()

	c := &client{base: srv.URL, http: srv.Client()}
	var statuses []string
	require.NoError(t, c.get("/api/allowedStatuses", &statuses))
	require.Equal(t, []string{"incomplete", "done"}, statuses)
}

func TestClient_PostSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"kind":    "validation_error",
			"message": "tagline must not be empty",
		})
	}))
	defer srv.Close()

	c := &client{base: srv.URL, http: srv.Client()}
	err := c.post("/api/createItem", map[string]string{"tagline": "  "}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "tagline must not be empty")
}

func TestClient_NoContentLeavesOutUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := &client{base: srv.URL, http: srv.Client()}
	var out map[string]string
	require.NoError(t, c.post("/api/alterTagline", map[string]string{"itemId": "1", "tagline": "x"}, &out))
	require.Nil(t, out)
}
