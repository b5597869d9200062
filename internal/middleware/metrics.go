package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/xelth-com/colocacion/internal/logger"
	"github.com/xelth-com/colocacion/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument records request count and latency by route template and logs
// server errors
func Instrument(m *metrics.Metrics) mux.MiddlewareFunc {
	log := logger.Component("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := "unmatched"
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			elapsed := time.Since(start)
			m.HTTPRequest(r.Method, route, strconv.Itoa(rec.status), elapsed.Seconds())

			if rec.status >= http.StatusInternalServerError {
				log.Error().
					Str("method", r.Method).
					Str("route", route).
					Int("status", rec.status).
					Dur("elapsed", elapsed).
					Msg("request failed")
			}
		})
	}
}
