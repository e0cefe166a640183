package metrics

import (
	"net/http"
	"time"
)

// MetricsCollector is what the bridge reports into.
//
// Implementations:
//   - PrometheusMetrics: client_golang collectors on a private registry
//   - NullMetrics: no-op, used when metrics are disabled
type MetricsCollector interface {
	// ObserveModbusOperation records one register exchange.
	// op is "read", "write" or "check".
	ObserveModbusOperation(op string, duration time.Duration, err error)

	// IncrementMQTTPublishes counts successful state publishes
	IncrementMQTTPublishes()

	// IncrementMQTTErrors counts failed publish/subscribe calls
	IncrementMQTTErrors()

	// IncrementControlMessages counts inbound control messages by outcome:
	// "applied", "ignored", "rejected" or "failed"
	IncrementControlMessages(outcome string)

	// SetModbusConnected and SetMQTTConnected mirror the last connectivity check
	SetModbusConnected(connected bool)
	SetMQTTConnected(connected bool)

	// RecordError counts errors passed to the error handler
	RecordError(component string)

	// Handler exposes the metrics over HTTP, nil if there is nothing to expose
	Handler() http.Handler
}

var (
	_ MetricsCollector = (*PrometheusMetrics)(nil)
	_ MetricsCollector = (*NullMetrics)(nil)
)
