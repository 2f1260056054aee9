// Package httpserver is the shared base HTTP server for the ODIS signer
// and combiner binaries. It owns the pieces both services need around
// their domain routes: request-ID/real-IP/recoverer middleware, request
// logging, liveness and readiness endpoints, drain/undrain control for
// load balancers, an optional metrics listener, optional pprof, and
// graceful shutdown.
//
// Services implement RouteRegistrar and hand themselves to New; the
// base server mounts their routes next to the standard ones.
package httpserver
