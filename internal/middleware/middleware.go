// Package middlewareinternal provides HTTP middleware for the agent endpoints.
//
// It includes middleware for logging HTTP requests and responses, and for
// compressing response bodies using gzip compression. Websocket upgrades pass
// through both untouched so the connection can be hijacked.
package middlewareinternal

import (
	"bufio"
	"compress/gzip"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Schera-ole/eidolon/internal/pool"
)

type (
	responseData struct {
		status int
		size   int
	}

	loggingResponseWriter struct {
		http.ResponseWriter
		responseData *responseData
	}
)

func (r *loggingResponseWriter) Write(b []byte) (int, error) {
	size, err := r.ResponseWriter.Write(b)
	r.responseData.size += size
	return size, err
}

func (r *loggingResponseWriter) WriteHeader(statusCode int) {
	r.ResponseWriter.WriteHeader(statusCode)
	r.responseData.status = statusCode
}

// Hijack hands the connection over to a websocket upgrade.
func (r *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.responseData.status = http.StatusSwitchingProtocols
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func (r *loggingResponseWriter) Flush() {
	_ = http.NewResponseController(r.ResponseWriter).Flush()
}

func (r *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// LoggingMiddleware creates a middleware that logs HTTP requests and responses.
// Stream upgrades are logged at info, everything else at debug.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := &loggingResponseWriter{
				ResponseWriter: w,
				responseData:   &responseData{status: http.StatusOK},
			}

			next.ServeHTTP(lw, r)

			fields := []any{
				"uri", r.RequestURI,
				"method", r.Method,
				"status", lw.responseData.status,
				"duration", time.Since(start),
				"size", lw.responseData.size,
			}
			if lw.responseData.status == http.StatusSwitchingProtocols {
				logger.Infow("stream session ended", fields...)
				return
			}
			logger.Debugw("request served", fields...)
		})
	}
}

// compressor is a pooled gzip writer, detached from any response while idle.
type compressor struct {
	*gzip.Writer
}

func (c compressor) Reset() {
	c.Writer.Reset(io.Discard)
}

var compressors = pool.New(func() compressor {
	w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
	return compressor{Writer: w}
})

type gzipWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (w gzipWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

// GzipMiddleware creates a middleware that compresses response bodies using gzip.
func GzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") || isUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		w.Header().Del("Content-Length")
		gz := compressors.Get()
		gz.Writer.Reset(w)
		defer func() {
			gz.Close()
			compressors.Put(gz)
		}()
		next.ServeHTTP(gzipWriter{ResponseWriter: w, Writer: gz}, r)
	})
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
