package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/medidash/internal/config"
	"github.com/medicore/medidash/internal/dashboard"
	"github.com/medicore/medidash/internal/fixture"
	"github.com/medicore/medidash/internal/query"
	"github.com/medicore/medidash/internal/warehouse"
)

// testServer returns a Server over an empty sqlite warehouse.
func testServer(t *testing.T, writeTimeout time.Duration) *Server {
	return testServerOpts(t, writeTimeout)
}

// withHandlerDelay makes every timeout-wrapped handler sleep
// for d before running.
func withHandlerDelay(d time.Duration) Option {
	return func(s *Server) { s.handlerDelay = d }
}

func testServerOpts(
	t *testing.T, writeTimeout time.Duration, opts ...Option,
) *Server {
	t.Helper()
	fx := fixture.NewSQLite(t)
	wh, err := warehouse.Open(context.Background(), warehouse.Options{
		Driver: query.DriverSQLite,
		DSN:    fx.Path,
	})
	require.NoError(t, err, "opening warehouse")
	t.Cleanup(func() { wh.Close() })

	cfg := config.Config{
		Host:         "127.0.0.1",
		DataDir:      t.TempDir(),
		WriteTimeout: writeTimeout,
	}
	return New(cfg, wh, dashboard.NewRunner(wh), opts...)
}

// decodeTimeout reports whether resp is the JSON 503 written by
// withTimeout.
func decodeTimeout(resp *http.Response) bool {
	if resp.StatusCode != http.StatusServiceUnavailable {
		return false
	}
	var je jsonError
	if json.NewDecoder(resp.Body).Decode(&je) != nil {
		return false
	}
	return je.Error == "request timed out"
}

func assertTimeoutResponse(t *testing.T, resp *http.Response) {
	t.Helper()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.True(t, decodeTimeout(resp), "expected JSON 503 timeout, got %d", resp.StatusCode)
}

// newTestContext returns a recorder and a GET request carrying
// rawQuery.
func newTestContext(
	t *testing.T, rawQuery string,
) (*httptest.ResponseRecorder, *http.Request) {
	t.Helper()
	target := "/test"
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, target, nil)
}

func assertRecorderStatus(
	t *testing.T, w *httptest.ResponseRecorder, code int,
) {
	t.Helper()
	require.Equal(t, code, w.Code, "body: %s", w.Body.String())
}

func assertContentType(
	t *testing.T, w *httptest.ResponseRecorder, want string,
) {
	t.Helper()
	assert.Equal(t, want, w.Header().Get("Content-Type"))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
