package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerLoadMissingIsNotAnError(t *testing.T) {
	srv := NewServer(NewMemory(), "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/workspace/layout?projectPath=/proj&layoutName=x", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "No saved layout found", body["message"])
}

func TestServerRequiresScope(t *testing.T) {
	srv := NewServer(NewMemory(), "")
	for _, target := range []string{"/api/workspace/layout", "/api/workspace/layouts/list"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, rec.Body.String(), "detail")
	}
}

func TestServerSaveAndList(t *testing.T) {
	srv := NewServer(NewMemory(), "")
	data, err := json.Marshal(sampleSnapshot("/proj", "L"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/workspace/layout", bytes.NewReader(data)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Layout 'L' saved successfully")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/workspace/layouts/list?scopeRef=/proj", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.True(t, list.Success)
	assert.Equal(t, []string{"L"}, list.Layouts)
}

func TestServerRejectsBadBody(t *testing.T) {
	srv := NewServer(NewMemory(), "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/workspace/layout", bytes.NewReader([]byte("nope"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/workspace/layout", bytes.NewReader([]byte(`{"layoutTree":{}}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerMount(t *testing.T) {
	srv := NewServer(NewMemory(), "")
	srv.Mount(http.MethodGet, "/ws", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestServerUseWrapsMountedRoutes(t *testing.T) {
	srv := NewServer(NewMemory(), "")
	var seen []string
	srv.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = append(seen, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	})
	srv.Mount(http.MethodGet, "/ws", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, p := range []string{"/health", "/ws"} {
		srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	assert.Equal(t, []string{"/health", "/ws"}, seen)
}
