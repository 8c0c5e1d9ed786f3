package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Collect returns chi middleware recording request counts and latency.
// Requests are labelled by route pattern rather than raw path.
func (r *Recorder) Collect(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		start := time.Now()

		defer func() {
			if req.URL.Path == "/metrics" {
				return
			}
			route := routePattern(req)
			r.httpRequests.WithLabelValues(strconv.Itoa(ww.Status()), req.Method, route).Inc()
			r.responseTimes.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}()

		next.ServeHTTP(ww, req)
	})
}

func routePattern(req *http.Request) string {
	if rctx := chi.RouteContext(req.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
