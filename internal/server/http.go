package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const healthTimeout = 2 * time.Second

// HealthCheck reports whether the session currently has a room stream attached.
type HealthCheck func(ctx context.Context) (attached bool, err error)

// NewHTTPServer wires the operator routes (health, metrics) for the client.
// check can be nil.
func NewHTTPServer(addr string, gatherer prometheus.Gatherer, check HealthCheck, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{"status": "ok"}
		code := http.StatusOK
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			attached, err := check(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("health check failed")
				status["status"] = "unavailable"
				code = http.StatusServiceUnavailable
			}
			status["attached"] = attached
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
