// Package edge is the HTTP surface of the router.
//
// The data plane handler turns each request into a routing decision and
// executes it: redirects are answered directly, everything else is proxied
// to the frontend origin, rewritten when the decision says so. The admin
// handler exposes health, readiness, Prometheus metrics and an explain
// endpoint for operators.
package edge
