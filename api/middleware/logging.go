package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/angelmondragon/scentmarket-backend/pkg/logger"
)

// wrapWriter returns a writer that records status and byte count. Existing
// wrappers are reused so stacked middleware share one recorder.
func wrapWriter(w http.ResponseWriter, r *http.Request) chimw.WrapResponseWriter {
	if ww, ok := w.(chimw.WrapResponseWriter); ok {
		return ww
	}
	return chimw.NewWrapResponseWriter(w, r.ProtoMajor)
}

func responseStatus(ww chimw.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}

func routeOf(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// Logging writes one access log line per request. 5xx responses log at warn;
// error details are logged by the response writer itself.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			ww := wrapWriter(w, r)
			start := time.Now()

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := responseStatus(ww)
			level := zerolog.InfoLevel
			if status >= http.StatusInternalServerError {
				level = zerolog.WarnLevel
			}
			ctx = logg.WithFields(ctx, map[string]any{
				"route":       routeOf(r),
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			logg.Log(ctx, level, "request.complete", nil)
		})
	}
}
