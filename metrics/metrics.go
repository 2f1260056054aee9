// Package metrics exposes service counters in Prometheus text format on
// a dedicated listener, kept off the request-serving port.
package metrics

import (
	"context"
	"net/http"

	vm "github.com/VictoriaMetrics/metrics"
)

// Service counters. Registered at package init so handlers can bump
// them without wiring.
var (
	SignRequests      = vm.NewCounter("odis_sign_requests_total")
	PartialSignatures = vm.NewCounter("odis_partial_signatures_total")
	QuotaDenials      = vm.NewCounter("odis_quota_denials_total")
	AuthFailures      = vm.NewCounter("odis_auth_failures_total")
	DuplicateRequests = vm.NewCounter("odis_duplicate_requests_total")
	CombineSuccesses  = vm.NewCounter("odis_combine_successes_total")
	CombineFailures   = vm.NewCounter("odis_combine_failures_total")
)

// MetricsServer serves the /metrics endpoint.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr. An empty addr returns
// a server whose ListenAndServe is a no-op, so callers need no nil
// checks.
func New(addr string) (*MetricsServer, error) {
	if addr == "" {
		return &MetricsServer{}, nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		vm.WritePrometheus(w, true)
	})

	return &MetricsServer{srv: &http.Server{Addr: addr, Handler: mux}}, nil
}

// ListenAndServe starts serving metrics.
func (m *MetricsServer) ListenAndServe() error {
	if m.srv == nil {
		return nil
	}
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}
