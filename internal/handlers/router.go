package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the API routes, the metrics endpoint and middleware.
// A nil limiter disables rate limiting.
func NewRouter(h *WeatherHandler, limiter *RateLimiter, gatherer prometheus.Gatherer) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestID)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	api := router.NewRoute().Subrouter()
	if limiter != nil {
		api.Use(limiter.Middleware)
	}
	h.RegisterRoutes(api)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "route not found", http.StatusNotFound)
	})

	return router
}
