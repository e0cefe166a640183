package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveModbusOperation(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.ObserveModbusOperation("read", 10*time.Millisecond, nil)
	pm.ObserveModbusOperation("read", 20*time.Millisecond, errors.New("timeout"))
	pm.ObserveModbusOperation("write", 5*time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.modbusOps.WithLabelValues("read")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.modbusErrors.WithLabelValues("read")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.modbusOps.WithLabelValues("write")))
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.modbusErrors.WithLabelValues("write")))
}

func TestConnectivityGauges(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.SetModbusConnected(true)
	pm.SetMQTTConnected(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.modbusConnected))
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.mqttConnected))

	pm.SetModbusConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.modbusConnected))
}

func TestCounters(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementMQTTPublishes()
	pm.IncrementMQTTPublishes()
	pm.IncrementMQTTErrors()
	pm.IncrementControlMessages("applied")
	pm.IncrementControlMessages("ignored")
	pm.IncrementControlMessages("ignored")
	pm.RecordError("modbus")

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.mqttPublishes))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.mqttErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.controlMessages.WithLabelValues("ignored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.handledErrors.WithLabelValues("modbus")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()
	pm.IncrementMQTTPublishes()

	rec := httptest.NewRecorder()
	pm.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "voltage_bridge_mqtt_publishes_total 1"))
}

func TestNullMetrics(t *testing.T) {
	var m MetricsCollector = NewNullMetrics()
	m.ObserveModbusOperation("read", time.Second, nil)
	m.RecordError("x")
	assert.Nil(t, m.Handler())
}
