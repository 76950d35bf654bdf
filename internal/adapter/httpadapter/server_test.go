package httpadapter_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-hotspot-etl/internal/adapter/httpadapter"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

func serve(t *testing.T, srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, slog.Default())
	assert.Equal(t, http.StatusOK, serve(t, srv, "/healthz").Code)
}

func TestReadyz(t *testing.T) {
	ready := httpadapter.NewServer(":0", &mockReadiness{}, slog.Default())
	assert.Equal(t, http.StatusOK, serve(t, ready, "/readyz").Code)

	notReady := httpadapter.NewServer(":0", &mockReadiness{err: errors.New("not ready yet")}, slog.Default())
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, notReady, "/readyz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, slog.Default())
	rec := serve(t, srv, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestUnknownRoute(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, slog.Default())
	assert.Equal(t, http.StatusNotFound, serve(t, srv, "/hotspots").Code)
}

func TestChecks(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, httpadapter.Checks{}.CheckReadiness(ctx))
	require.NoError(t, httpadapter.Checks{&mockReadiness{}, &mockReadiness{}}.CheckReadiness(ctx))

	err := httpadapter.Checks{
		&mockReadiness{},
		&mockReadiness{err: errors.New("reports stage idle")},
		&mockReadiness{err: errors.New("store down")},
	}.CheckReadiness(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reports stage idle")
	assert.Contains(t, err.Error(), "store down")
}
