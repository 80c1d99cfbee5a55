// Package health exposes liveness and readiness of a supervised run over HTTP.
package health

import (
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CheckTimeout bounds a single probe call.
const CheckTimeout = time.Second

// Probe reports the state of a supervised run.
type Probe interface {
	// Live fails once the shared resources are gone.
	Live() error
	// Ready fails while no worker is running.
	Ready() error
}

// NewHandler serves /live and /ready from p. When reg is not nil the check
// results are also exported as metrics under namespace.
func NewHandler(p Probe, reg prometheus.Registerer, namespace string) healthcheck.Handler {
	var h healthcheck.Handler
	if reg != nil {
		h = healthcheck.NewMetricsHandler(reg, namespace)
	} else {
		h = healthcheck.NewHandler()
	}
	h.AddLivenessCheck("shared-resources", healthcheck.Timeout(p.Live, CheckTimeout))
	h.AddReadinessCheck("workers", healthcheck.Timeout(p.Ready, CheckTimeout))
	return h
}

// NewMux routes /live and /ready to h and, when g is not nil, /metrics to g.
func NewMux(h healthcheck.Handler, g prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", h.LiveEndpoint)
	mux.HandleFunc("/ready", h.ReadyEndpoint)
	if g != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}
	return mux
}
