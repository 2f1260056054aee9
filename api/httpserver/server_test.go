package httpserver

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type pingRegistrar struct{}

func (pingRegistrar) RegisterRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("pong"))
	})
}

func newTestBaseServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv, err := New(&HTTPServerConfig{
		Log:           slog.Default(),
		DrainDuration: time.Millisecond,
	}, pingRegistrar{})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestBaseServer(t)

	require.Equal(t, http.StatusOK, get(t, ts.URL+"/livez").StatusCode)
	require.Equal(t, http.StatusOK, get(t, ts.URL+"/readyz").StatusCode)
	require.Equal(t, http.StatusOK, get(t, ts.URL+"/ping").StatusCode)
}

func TestDrainUndrain(t *testing.T) {
	ts := newTestBaseServer(t)

	require.Equal(t, http.StatusOK, get(t, ts.URL+"/drain").StatusCode)
	require.Equal(t, http.StatusServiceUnavailable, get(t, ts.URL+"/readyz").StatusCode)

	// Draining an already-draining server is not an error.
	require.Equal(t, http.StatusOK, get(t, ts.URL+"/drain").StatusCode)

	require.Equal(t, http.StatusOK, get(t, ts.URL+"/undrain").StatusCode)
	require.Equal(t, http.StatusOK, get(t, ts.URL+"/readyz").StatusCode)
}
