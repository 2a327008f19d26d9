// Package telemetry wires OpenTelemetry tracing and meters for the edge router.
//
// It centralises tracer provider setup and offers helpers that record routing
// decisions as span attributes and metric instruments, so operators can
// correlate redirects and rewrites with upstream behaviour.
package telemetry
