package app

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
)

func TestHandler_Health(t *testing.T) {
	a, _ := newTestApp(t, nil)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())
}

func TestHandler_Resolve(t *testing.T) {
	testCases := []struct {
		name       string
		query      string
		wantStatus int
		wantState  string
		check      func(t *testing.T, v ResolutionView)
	}{
		{
			name:       "concrete redirect",
			query:      "role=streaming_source&type=props.Bag",
			wantStatus: http.StatusOK,
			wantState:  "resolved",
			check: func(t *testing.T, v ResolutionView) {
				assert.Equal(t, "stream.LineSource", v.Adapter)
				assert.Equal(t, "props.MapBag", v.Via)
				assert.Equal(t, "declared", v.Strategy)
				assert.Equal(t, map[string]string{"separator": "="}, v.Options)
			},
		},
		{
			name:       "not found",
			query:      "role=inspector&type=props.Bag",
			wantStatus: http.StatusNotFound,
			wantState:  "not_found",
		},
		{
			name:       "fallback",
			query:      "role=inspector&type=props.Bag&fallback=true",
			wantStatus: http.StatusOK,
			wantState:  "resolved",
			check: func(t *testing.T, v ResolutionView) {
				assert.True(t, v.Fallback)
				assert.Equal(t, "null_substitute", v.Role)
				assert.Equal(t, "nullobj", v.Module)
			},
		},
	}

	a, _ := newTestApp(t, nil)
	require.NoError(t, a.Start())
	h := a.Handler()

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/resolve?"+tc.query, nil))

			require.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var v ResolutionView
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
			assert.Equal(t, tc.wantState, v.State)
			if tc.check != nil {
				tc.check(t, v)
			}
		})
	}
}

func TestHandler_ResolveBadRequest(t *testing.T) {
	a, _ := newTestApp(t, nil)
	h := a.Handler()

	for _, query := range []string{"role=Bad%20Role&type=props.Bag", "role=inspector", "role=inspector&type=props.Bag&fallback=maybe"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/resolve?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	a, _ := newTestApp(t, func(c *Config) { c.ServerPort = 0 })
	ctx, cancel := context.WithCancel(context.Background())

	addrCh := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, func(addr string) { addrCh <- addr }) }()

	var addr string
	select {
	case addr = <-addrCh:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK\n", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
