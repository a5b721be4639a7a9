package middleware

import (
	"net/http"
	"time"

	"github.com/angelmondragon/scentmarket-backend/pkg/metrics"
)

// Metrics records request count and latency labelled by the matched route.
func Metrics(recorder *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if recorder == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := wrapWriter(w, r)
			start := time.Now()
			next.ServeHTTP(ww, r)
			recorder.Observe(r.Method, routeOf(r), responseStatus(ww), time.Since(start))
		})
	}
}
