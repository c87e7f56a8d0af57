package brewlinesdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartFermentationSendsOptionalTarget(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/brews/b1/fermentation", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"id":"b1","status":"fermenting","progress":5}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	b, err := c.StartFermentation(context.Background(), "b1", 1.05, 0)
	require.NoError(t, err)
	assert.Equal(t, "fermenting", b.Status)
	assert.NotContains(t, got, "target_days")

	_, err = c.StartFermentation(context.Background(), "b1", 1.05, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 10, got["target_days"])
}

func TestEventsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "brew", r.URL.Query().Get("entity_kind"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"items":[{"id":1,"type":"brew.started","entity_kind":"brew","entity_id":"b1"}]}`))
	}))
	defer srv.Close()

	items, err := New(srv.URL).Events(context.Background(), 5, "brew", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "brew.started", items[0].Type)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"session_active"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).StartSession(context.Background(), "r1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "session_active")
}
