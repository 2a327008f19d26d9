package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/calendis/calendis-edge/pkg/domain"
)

var (
	metricsOnce          sync.Once
	metricsInitErr       error
	decisionCounter      metric.Int64Counter
	upstreamErrorCounter metric.Int64Counter
	reloadCounter        metric.Int64Counter
	requestLatency       metric.Float64Histogram
)

// DecisionMetrics captures the fields recorded for one routed request.
type DecisionMetrics struct {
	Decision domain.Decision
	Duration time.Duration
}

// RecordDecision emits counters and histograms for a routing decision.
func RecordDecision(ctx context.Context, m DecisionMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := decisionAttributes(m.Decision)
	decisionCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if m.Duration > 0 {
		requestLatency.Record(ctx, float64(m.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
}

// RecordUpstreamError counts a failed proxy attempt.
func RecordUpstreamError(ctx context.Context, cls domain.Classification) {
	if err := ensureMetrics(); err != nil {
		return
	}
	upstreamErrorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("routing.environment", string(cls.Environment)),
		attribute.String("routing.subdomain", string(cls.Subdomain)),
	))
}

// RecordReload counts configuration reload attempts by result.
func RecordReload(ctx context.Context, ok bool) {
	if err := ensureMetrics(); err != nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	reloadCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reload.result", result)))
}

func decisionAttributes(d domain.Decision) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("routing.environment", string(d.Classification.Environment)),
		attribute.String("routing.subdomain", string(d.Classification.Subdomain)),
		attribute.String("routing.kind", string(d.Kind)),
		attribute.String("routing.rule", d.Rule),
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("calendis.edge")

		decisionCounter, metricsInitErr = meter.Int64Counter(
			"edge.routing.decisions_total",
			metric.WithDescription("Routing decisions partitioned by environment, subdomain, kind and rule"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		upstreamErrorCounter, metricsInitErr = meter.Int64Counter(
			"edge.upstream.errors_total",
			metric.WithDescription("Requests that failed to reach the frontend origin"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		reloadCounter, metricsInitErr = meter.Int64Counter(
			"edge.config.reloads_total",
			metric.WithDescription("Configuration reload attempts by result"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		requestLatency, metricsInitErr = meter.Float64Histogram(
			"edge.request.duration_ms",
			metric.WithDescription("Time spent routing and serving a request"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}

// RecordRoutingEvent attaches the decision to the provided span. Cookie
// values are never recorded, only their presence.
func RecordRoutingEvent(span trace.Span, d domain.Decision, hasSession, hasDemo bool) {
	if span == nil || !span.IsRecording() {
		return
	}

	attrs := append(decisionAttributes(d),
		attribute.Bool("routing.session.present", hasSession),
		attribute.Bool("routing.demo.present", hasDemo),
	)
	span.SetAttributes(attrs...)

	switch d.Kind {
	case domain.DecisionRedirect:
		span.AddEvent("routing.redirect", trace.WithAttributes(
			attribute.String("http.response.header.location", d.Location),
			attribute.Int("http.response.status_code", d.Status),
		))
	case domain.DecisionRewrite, domain.DecisionNotFound:
		span.AddEvent("routing.rewrite", trace.WithAttributes(
			attribute.String("routing.target", d.Path),
		))
	}
}
