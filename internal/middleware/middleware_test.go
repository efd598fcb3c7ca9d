package middlewareinternal

import (
	"bufio"
	"compress/gzip"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const snapshotBody = `{"timestampMillis":1,"recentGcEvents":[]}`

func snapshotHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(snapshotBody))
	})
}

func TestLoggingMiddleware(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	defer logger.Sync()

	handler := LoggingMiddleware(logger.Sugar())(snapshotHandler())

	req := httptest.NewRequest(http.MethodGet, "/eidolon/api/metrics/snapshot", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, snapshotBody, rec.Body.String())
}

func TestLoggingMiddleware_RecordsStatusAndSize(t *testing.T) {
	data := &responseData{}
	lw := &loggingResponseWriter{ResponseWriter: httptest.NewRecorder(), responseData: data}

	lw.WriteHeader(http.StatusServiceUnavailable)
	_, err := lw.Write([]byte(`{"status":"no data yet"}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, data.status)
	assert.Equal(t, len(`{"status":"no data yet"}`), data.size)
}

// hijackRecorder is a recorder that supports connection takeover.
type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	server, client := net.Pipe()
	client.Close()
	return server, bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server)), nil
}

func TestLoggingMiddleware_PassesHijack(t *testing.T) {
	logger := zap.NewNop().Sugar()
	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}

	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := http.NewResponseController(w).Hijack()
		require.NoError(t, err)
		conn.Close()
	}))
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/eidolon/ws/metrics", nil))

	assert.True(t, rec.hijacked)
}

func TestLoggingMiddleware_DefaultStatus(t *testing.T) {
	var lw *loggingResponseWriter
	handler := LoggingMiddleware(zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lw = w.(*loggingResponseWriter)
		w.Write([]byte("pong"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/eidolon/ping", nil))

	require.NotNil(t, lw)
	assert.Equal(t, http.StatusOK, lw.responseData.status)
	assert.Equal(t, 4, lw.responseData.size)
}

func TestGzipMiddleware_NoGzipSupport(t *testing.T) {
	handler := GzipMiddleware(snapshotHandler())

	req := httptest.NewRequest(http.MethodGet, "/eidolon/api/metrics/snapshot", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, snapshotBody, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
}

func TestGzipMiddleware_WithGzipSupport(t *testing.T) {
	handler := GzipMiddleware(snapshotHandler())

	// Pooled writers are reused across requests
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/eidolon/api/metrics/snapshot", nil)
		req.Header.Set("Accept-Encoding", "gzip, deflate")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

		reader, err := gzip.NewReader(rec.Body)
		require.NoError(t, err)
		body, err := io.ReadAll(reader)
		require.NoError(t, err)
		reader.Close()
		assert.JSONEq(t, snapshotBody, string(body))
	}
}

func TestGzipMiddleware_SkipsWebsocketUpgrade(t *testing.T) {
	var sawWrapped bool
	handler := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawWrapped = w.(gzipWriter)
		w.WriteHeader(http.StatusSwitchingProtocols)
	}))

	req := httptest.NewRequest(http.MethodGet, "/eidolon/ws/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, sawWrapped)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
}
