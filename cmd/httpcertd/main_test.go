package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodecert/verifyhttp/pkg/config"
)

const testManifest = `
schemaVersion: "1.0.0"
endpoints:
  - url: /hello
    method: GET
    status: 200
    body: "hi there"
    responseHeaders:
      content-type: text/plain
  - url: /assets
    isFallbackPath: true
    body: "fallback body"
`

func newTestServer(t *testing.T) *httpServer {
	t.Helper()
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(testManifest), 0o644))

	cfg := &config.Config{
		ListenAddr:   ":0",
		ManifestPath: manifestPath,
		AdminRPS:     1,
		AdminBurst:   5,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := newServer(cfg, logger)
	require.NoError(t, err)
	return s
}

func TestHandleCertifiedRequestServesManifestBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hi there", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("IC-Certificate"))
	assert.NotEmpty(t, rec.Header().Get("IC-CertificateExpression"))
}

func TestHandleCertifiedRequestServesFallbackForDescendant(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/assets/logo.png", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleCertifiedRequest404sForUncertifiedPath(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/not-certified", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRecertifyReloadsManifest(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/recertify", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
