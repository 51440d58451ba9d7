package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/23skdu/embedview/internal/health"
	"github.com/23skdu/embedview/internal/limiter"
	"github.com/23skdu/embedview/internal/meta"
	"github.com/23skdu/embedview/internal/metrics"
	"github.com/23skdu/embedview/internal/security"
)

// Routes served by NewRouter.
const (
	RouteIndex     = "/"
	RouteTSNEData  = "/api/tsne_data"
	RouteImage     = meta.ImageRoute
	RouteNeighbors = "/api/neighbors/{idx:[0-9]+}"
	RouteHealthz   = "/healthz"
	RouteReadyz    = "/readyz"
)

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// loggingMiddleware logs request details and latency and records request metrics.
func loggingMiddleware(logger zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			route := routeName(r)
			metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			metrics.HTTPRequestDurationSeconds.WithLabelValues(route).Observe(elapsed.Seconds())

			logger.Debug().
				Str("method", r.Method).
				Str("route", route).
				Int("status", rec.status).
				Dur("elapsed", elapsed).
				Msg("request")
		})
	}
}

// NewRouter creates and configures the HTTP router.
func NewRouter(handler *Handler, hm *health.HealthManager, rl *limiter.RateLimiter) *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(handler.logger))
	r.Use(security.Headers)

	r.Handle(RouteHealthz, hm.LivenessHandler()).Methods(http.MethodGet)
	r.Handle(RouteReadyz, hm.ReadinessHandler()).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(rl.Middleware)
	api.HandleFunc(RouteIndex, handler.HandleIndex).Methods(http.MethodGet)
	api.HandleFunc(RouteTSNEData, handler.HandleTSNEData).Methods(http.MethodGet)
	api.HandleFunc(RouteImage, handler.HandleImage).Methods(http.MethodGet)
	api.HandleFunc(RouteNeighbors, handler.HandleNeighbors).Methods(http.MethodGet)

	return r
}
