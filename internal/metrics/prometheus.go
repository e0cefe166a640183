package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voltage_bridge"

// PrometheusMetrics registers its collectors on a private registry so that
// several instances can coexist in tests.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	modbusOps       *prometheus.CounterVec
	modbusErrors    *prometheus.CounterVec
	modbusDuration  *prometheus.HistogramVec
	mqttPublishes   prometheus.Counter
	mqttErrors      prometheus.Counter
	controlMessages *prometheus.CounterVec
	modbusConnected prometheus.Gauge
	mqttConnected   prometheus.Gauge
	handledErrors   *prometheus.CounterVec
}

// NewPrometheusMetrics creates the collectors and registers them together
// with the Go runtime and process collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	pm := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		modbusOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modbus_operations_total",
			Help:      "Modbus register operations attempted.",
		}, []string{"op"}),
		modbusErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modbus_errors_total",
			Help:      "Modbus register operations that failed.",
		}, []string{"op"}),
		modbusDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "modbus_operation_duration_seconds",
			Help:      "Duration of connect, operate and close for one register exchange.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"op"}),
		mqttPublishes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_publishes_total",
			Help:      "State messages published.",
		}),
		mqttErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_errors_total",
			Help:      "MQTT publish or subscribe calls that failed.",
		}),
		controlMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_messages_total",
			Help:      "Inbound control messages by outcome.",
		}, []string{"outcome"}),
		modbusConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "modbus_connected",
			Help:      "1 if the last Modbus connectivity check succeeded.",
		}),
		mqttConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "1 if the MQTT session is believed connected.",
		}),
		handledErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handled_errors_total",
			Help:      "Errors logged by the error handler, by component.",
		}, []string{"component"}),
	}

	pm.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		pm.modbusOps,
		pm.modbusErrors,
		pm.modbusDuration,
		pm.mqttPublishes,
		pm.mqttErrors,
		pm.controlMessages,
		pm.modbusConnected,
		pm.mqttConnected,
		pm.handledErrors,
	)

	return pm
}

func (pm *PrometheusMetrics) ObserveModbusOperation(op string, duration time.Duration, err error) {
	pm.modbusOps.WithLabelValues(op).Inc()
	pm.modbusDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		pm.modbusErrors.WithLabelValues(op).Inc()
	}
}

func (pm *PrometheusMetrics) IncrementMQTTPublishes() {
	pm.mqttPublishes.Inc()
}

func (pm *PrometheusMetrics) IncrementMQTTErrors() {
	pm.mqttErrors.Inc()
}

func (pm *PrometheusMetrics) IncrementControlMessages(outcome string) {
	pm.controlMessages.WithLabelValues(outcome).Inc()
}

func (pm *PrometheusMetrics) SetModbusConnected(connected bool) {
	pm.modbusConnected.Set(boolToFloat(connected))
}

func (pm *PrometheusMetrics) SetMQTTConnected(connected bool) {
	pm.mqttConnected.Set(boolToFloat(connected))
}

func (pm *PrometheusMetrics) RecordError(component string) {
	pm.handledErrors.WithLabelValues(component).Inc()
}

// Handler serves the private registry in the Prometheus text format
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
