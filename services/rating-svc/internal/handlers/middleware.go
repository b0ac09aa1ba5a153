package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"busbar/pkg/apperror"
	"busbar/pkg/auth"
	"busbar/pkg/logger"
	"busbar/pkg/metrics"
)

const requestIDHeader = "X-Request-ID"

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// requestID propagates X-Request-ID or assigns a new one, and puts a
// request-scoped logger on the context.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey, id)
		ctx = logger.NewContext(ctx, logger.WithRequestID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLog logs every request once it completes.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", timer.Elapsed().Milliseconds(),
		}

		log := logger.FromContext(r.Context())
		if ww.Status() >= http.StatusInternalServerError {
			log.Error("HTTP request failed", fields...)
		} else {
			log.Info("HTTP request completed", fields...)
		}
	})
}

// instrument records request metrics labelled by route pattern.
func instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m != nil {
				m.HTTPRequestsInFlight.Inc()
				defer m.HTTPRequestsInFlight.Dec()
			}

			timer := metrics.NewTimer()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.RecordHTTPRequest(r.Method, route, strconv.Itoa(status), timer.Elapsed())
		})
	}
}

// authenticate resolves the caller from the bearer token. A nil validator
// disables authentication and marks every request anonymous.
func authenticate(v TokenValidator, adminRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Identity{Anonymous: true})))
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeError(w, r, apperror.New(apperror.CodeUnauthenticated, "bearer token required"))
				return
			}

			claims, err := v.Validate(strings.TrimSpace(token))
			if err != nil {
				logger.FromContext(r.Context()).Warn("token validation failed", "error", err)
				writeError(w, r, apperror.Wrap(err, apperror.CodeUnauthenticated, "invalid token"))
				return
			}

			id := Identity{
				UserID: claims.UserID(),
				Role:   claims.Role,
				Admin:  adminRole != "" && claims.Role == adminRole,
			}
			ctx := WithIdentity(r.Context(), id)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With("user_id", id.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireAdmin rejects callers without the admin role.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetIdentity(r.Context())
		if !id.Anonymous && !id.Admin {
			writeError(w, r, apperror.New(apperror.CodePermissionDenied, "admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
