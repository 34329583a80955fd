// Copyright 2025 Certen Protocol
//
// Request metrics, exposed at GET /metrics in Prometheus exposition
// format. This is the oracle's one observability surface; the service
// itself stays stateless.

package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astral_http_requests_total",
		Help: "Total HTTP requests by route, tier and status.",
	}, []string{"route", "tier", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "astral_http_request_duration_seconds",
		Help:    "Request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	rateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astral_rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter, by tier.",
	}, []string{"tier"})

	signerNonce = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "astral_signer_nonce",
		Help: "Next nonce the attestation signer will draw.",
	})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func observeRequest(route, tier string, start time.Time, status int) {
	requestsTotal.WithLabelValues(route, tier, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}

func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}
