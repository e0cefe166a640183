package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"modbus-voltage-bridge/internal/logger"
)

type contextKey string

const ctxKeyRequestID contextKey = "request_id"

// maxRequestBodySize caps form and JSON bodies
const maxRequestBodySize = 64 << 10

// requestIDMiddleware tags each request with the client's X-Request-ID or a
// fresh UUID.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs method, path, status and duration at debug level
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.LogDebug("🌐 %s %s -> %d (%s) [%v]", r.Method, r.URL.Path, wrapped.status,
			time.Since(start).Round(time.Microsecond), r.Context().Value(ctxKeyRequestID))
	})
}

// recoveryMiddleware turns a handler panic into a 500
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.LogError("Panic in HTTP handler %s %s: %v", r.Method, r.URL.Path, err)
				writeInternalError(w, msgInternalError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func bodySizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}
