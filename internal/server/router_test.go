package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edulms/media/internal/media"
	"github.com/edulms/media/internal/metrics"
	"github.com/edulms/media/internal/storage"
)

type nopStore struct{}

func (nopStore) Create(context.Context, *media.Record) error { return nil }

func (nopStore) GetByID(context.Context, uuid.UUID) (*media.Record, error) {
	return nil, media.ErrNotFound
}

func (nopStore) List(context.Context, int, int) ([]media.Record, error) { return nil, nil }

func (nopStore) Delete(context.Context, uuid.UUID) error { return media.ErrNotFound }

func newTestDeps(t *testing.T, reg *prometheus.Registry) (Deps, string) {
	t.Helper()
	dir := t.TempDir()

	var opts []storage.Option
	if reg != nil {
		rec, err := metrics.NewPrometheusRecorder(reg)
		require.NoError(t, err)
		opts = append(opts, storage.WithRecorder(rec))
	}

	store, err := storage.New(context.Background(), storage.Config{
		Kind:             storage.KindFilesystem,
		UploadDir:        dir,
		MaxSizeBytes:     1024 * 1024,
		AllowedMIMETypes: []string{"image/png"},
	}, nil, opts...)
	require.NoError(t, err)

	svc := media.NewService(nopStore{}, store, nil)
	deps := Deps{
		Media:   media.NewHandler(svc, store.Config().MaxSizeBytes, nil),
		Storage: store.Config(),
	}
	if reg != nil {
		deps.Gatherer = reg
	}
	return deps, dir
}

func TestHealth(t *testing.T) {
	deps, _ := newTestDeps(t, nil)

	rec := httptest.NewRecorder()
	NewRouter(deps).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var h Health
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&h))
	require.Equal(t, Health{Status: "ok", Storage: "filesystem"}, h)
}

func TestHealth_DatabaseDown(t *testing.T) {
	deps, _ := newTestDeps(t, nil)
	deps.Ping = func(context.Context) error { return errors.New("connection refused") }

	rec := httptest.NewRecorder()
	NewRouter(deps).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var h Health
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&h))
	require.Equal(t, "degraded", h.Status)
	require.Equal(t, "unreachable", h.Database)
}

func TestStaticUploads(t *testing.T) {
	deps, dir := newTestDeps(t, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "avatars"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "avatars", "a.png"), []byte("png"), 0o644))
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/avatars/a.png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "png", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/avatars/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticUploads_OnlyForFilesystem(t *testing.T) {
	deps, dir := newTestDeps(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("png"), 0o644))
	deps.Storage.Kind = storage.KindMediaCDN

	rec := httptest.NewRecorder()
	NewRouter(deps).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/a.png", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	deps, _ := newTestDeps(t, reg)
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/storage?identifier=missing.png", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `media_storage_operation_errors_total{backend="filesystem",code="not_found",operation="delete"} 1`)
}

func TestSwaggerDoc(t *testing.T) {
	deps, _ := newTestDeps(t, nil)

	rec := httptest.NewRecorder()
	NewRouter(deps).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Media Storage API")
}

// Every routed API endpoint must be documented.
func TestSwaggerDoc_CoversRoutes(t *testing.T) {
	deps, _ := newTestDeps(t, nil)

	rec := httptest.NewRecorder()
	NewRouter(deps).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		BasePath string                    `json:"basePath"`
		Paths    map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))

	documented := make(map[string]bool)
	for p, ops := range doc.Paths {
		for method := range ops {
			documented[strings.ToUpper(method)+" "+doc.BasePath+p] = true
		}
	}

	api := chi.NewRouter()
	api.Route("/api/v1", deps.Media.Routes)
	err := chi.Walk(api, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		route = strings.TrimSuffix(strings.ReplaceAll(route, "/*", ""), "/")
		require.True(t, documented[method+" "+route], "undocumented route %s %s", method, route)
		return nil
	})
	require.NoError(t, err)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	deps, _ := newTestDeps(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Run(ctx, "127.0.0.1:0", NewRouter(deps), zap.NewNop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
