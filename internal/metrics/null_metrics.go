package metrics

import (
	"net/http"
	"time"
)

// NullMetrics discards everything. Used when metrics.enabled is false.
type NullMetrics struct{}

func NewNullMetrics() *NullMetrics {
	return &NullMetrics{}
}

func (nm *NullMetrics) ObserveModbusOperation(op string, duration time.Duration, err error) {}

func (nm *NullMetrics) IncrementMQTTPublishes() {}

func (nm *NullMetrics) IncrementMQTTErrors() {}

func (nm *NullMetrics) IncrementControlMessages(outcome string) {}

func (nm *NullMetrics) SetModbusConnected(connected bool) {}

func (nm *NullMetrics) SetMQTTConnected(connected bool) {}

func (nm *NullMetrics) RecordError(component string) {}

func (nm *NullMetrics) Handler() http.Handler { return nil }
