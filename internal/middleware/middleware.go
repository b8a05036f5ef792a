// Package middleware holds the HTTP middleware of the DataPulse API.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	apperrors "datapulse/internal/errors"
	"datapulse/internal/infrastructure"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request an ID, reusing the caller's X-Request-ID
// when present. The ID is stored under chi's key so middleware.GetReqID
// works, and doubles as the log trace_id until a span replaces it.
// This should be the FIRST middleware in the chain.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, requestID)
		ctx = infrastructure.WithTraceID(ctx, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RealIP extracts the real client IP using Chi's implementation
func RealIP(next http.Handler) http.Handler {
	return middleware.RealIP(next)
}

// SecurityHeaders adds security-related headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// UploadLimiter throttles upload requests and caps their body size
type UploadLimiter struct {
	limiter  *rate.Limiter
	maxBytes int64
	logger   *slog.Logger
}

// NewUploadLimiter allows rps uploads per second with the given burst
func NewUploadLimiter(rps float64, burst int, maxBytes int64, logger *slog.Logger) *UploadLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadLimiter{
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		maxBytes: maxBytes,
		logger:   logger.With(slog.String("component", "upload_limiter")),
	}
}

// Handler implements rate limiting middleware
func (l *UploadLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if !l.limiter.Allow() {
			l.logger.WarnContext(ctx, "upload rate limit exceeded",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			w.Header().Set("Retry-After", "1")
			problem := apperrors.NewProblemDetails(
				http.StatusTooManyRequests,
				apperrors.TypeRateLimit,
				"Too Many Requests",
				"Upload rate limit exceeded, retry shortly",
				r.URL.Path,
			).WithExtension("trace_id", infrastructure.GetTraceID(ctx))
			render.Render(w, r, problem)
			return
		}

		if l.maxBytes > 0 {
			if r.ContentLength > l.maxBytes {
				render.Render(w, r, apperrors.NewProblemDetails(
					http.StatusRequestEntityTooLarge,
					apperrors.TypePayloadTooLarge,
					"Payload Too Large",
					fmt.Sprintf("Upload exceeds %d bytes", l.maxBytes),
					r.URL.Path,
				))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, l.maxBytes)
		}

		next.ServeHTTP(w, r)
	})
}
