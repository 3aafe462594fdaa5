// Package exporters exposes job metrics over HTTP and Server-Sent Events.
package exporters

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler returns the Prometheus metrics HTTP handler.
// It serves every promauto-registered metric.
func HTTPHandler() http.Handler {
	return promhttp.Handler()
}
