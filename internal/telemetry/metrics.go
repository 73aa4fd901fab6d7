package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter       metric.Int64Counter
	RequestDuration      metric.Float64Histogram
	GraphCalls           metric.Int64Counter
	GraphCallDuration    metric.Float64Histogram
	AutomationExecutions metric.Int64Counter
	WebhookEvents        metric.Int64Counter
	CircuitBreakerState  metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("sociohiro-backend")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	graphCalls, err := meter.Int64Counter(
		"graph_api.calls.total",
		metric.WithDescription("Instagram Graph API calls by operation and outcome"),
	)
	if err != nil {
		return nil, err
	}

	graphCallDuration, err := meter.Float64Histogram(
		"graph_api.call.duration",
		metric.WithDescription("Instagram Graph API call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	automationExecutions, err := meter.Int64Counter(
		"automation.executions.total",
		metric.WithDescription("Automation rule executions by action and outcome"),
	)
	if err != nil {
		return nil, err
	}

	webhookEvents, err := meter.Int64Counter(
		"webhook.events.total",
		metric.WithDescription("Instagram webhook events received"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:       requestCounter,
		RequestDuration:      requestDuration,
		GraphCalls:           graphCalls,
		GraphCallDuration:    graphCallDuration,
		AutomationExecutions: automationExecutions,
		WebhookEvents:        webhookEvents,
		CircuitBreakerState:  circuitBreakerState,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordGraphCall records one Graph API call. reason is empty on success.
func (m *Metrics) RecordGraphCall(operation, reason string, duration float64) {
	if m == nil {
		return
	}
	outcome := "success"
	if reason != "" {
		outcome = "error"
	}
	attrs := []attribute.KeyValue{
		attribute.String("graph.operation", operation),
		attribute.String("graph.outcome", outcome),
		attribute.String("graph.reason", reason),
	}

	m.GraphCalls.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.GraphCallDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordAutomationExecution records a rule firing attempt
func (m *Metrics) RecordAutomationExecution(action string, success bool) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("automation.action", action),
		attribute.Bool("automation.success", success),
	}

	m.AutomationExecutions.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordWebhookEvent records a normalized webhook event
func (m *Metrics) RecordWebhookEvent(eventType string) {
	if m == nil {
		return
	}
	m.WebhookEvents.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("webhook.event_type", eventType)))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
