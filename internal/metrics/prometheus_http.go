package metrics

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler returns an http.Handler serving Prometheus metrics for reg. The
// Admin API does not use it; it builds its /metrics handler with promhttp.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
