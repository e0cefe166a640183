package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status           string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp        time.Time `json:"timestamp"`
	Uptime           string    `json:"uptime"`
	ModbusOnline     bool      `json:"modbus_online"`
	MQTTConnected    bool      `json:"mqtt_connected"`
	LastSuccessfulOp string    `json:"last_successful_operation"`
	ErrorCount       int       `json:"error_count"`
	SuccessCount     int       `json:"success_count"`
	Version          string    `json:"version,omitempty"`
}

// HealthChecker provides health information
type HealthChecker interface {
	IsModbusOnline() bool
	IsMQTTConnected() bool
	GetLastSuccessTime() time.Time
	GetErrorCount() int
	GetSuccessCount() int
}

// HealthHandler serves /health
type HealthHandler struct {
	startTime     time.Time
	healthChecker HealthChecker
	version       string
}

// NewHealthHandler creates a new health check handler
func NewHealthHandler(healthChecker HealthChecker, version string) *HealthHandler {
	return &HealthHandler{
		startTime:     time.Now(),
		healthChecker: healthChecker,
		version:       version,
	}
}

// ServeHTTP answers 503 when unhealthy and 200 otherwise
func (hh *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := hh.getHealthStatus()

	w.Header().Set("Content-Type", "application/json")

	statusCode := http.StatusOK
	if status.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	w.WriteHeader(statusCode)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(status); err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode health status: %v", err), http.StatusInternalServerError)
	}
}

func (hh *HealthHandler) getHealthStatus() HealthStatus {
	now := time.Now()

	modbusOnline := hh.healthChecker.IsModbusOnline()
	mqttConnected := hh.healthChecker.IsMQTTConnected()
	lastSuccess := hh.healthChecker.GetLastSuccessTime()
	errorCount := hh.healthChecker.GetErrorCount()
	successCount := hh.healthChecker.GetSuccessCount()

	lastOpStr := "never"
	if !lastSuccess.IsZero() {
		timeSince := now.Sub(lastSuccess)
		if timeSince < time.Minute {
			lastOpStr = fmt.Sprintf("%d seconds ago", int(timeSince.Seconds()))
		} else if timeSince < time.Hour {
			lastOpStr = fmt.Sprintf("%d minutes ago", int(timeSince.Minutes()))
		} else {
			lastOpStr = fmt.Sprintf("%d hours ago", int(timeSince.Hours()))
		}
	}

	// Modbus offline is unhealthy, a lost broker only degrades
	status := "healthy"
	if !modbusOnline {
		status = "unhealthy"
	} else {
		if total := errorCount + successCount; errorCount > 0 && total > 0 {
			errorRate := float64(errorCount) / float64(total) * 100.0
			if errorRate > 50.0 {
				status = "unhealthy"
			} else if errorRate > 20.0 {
				status = "degraded"
			}
		}
		if status == "healthy" && !mqttConnected {
			status = "degraded"
		}
	}

	return HealthStatus{
		Status:           status,
		Timestamp:        now,
		Uptime:           formatDuration(now.Sub(hh.startTime)),
		ModbusOnline:     modbusOnline,
		MQTTConnected:    mqttConnected,
		LastSuccessfulOp: lastOpStr,
		ErrorCount:       errorCount,
		SuccessCount:     successCount,
		Version:          hh.version,
	}
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours %d minutes", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%d days %d hours", int(d.Hours())/24, int(d.Hours())%24)
	}
}

// engineHealth adapts the engine to HealthChecker
type engineHealth struct {
	engine Engine
}

func (h engineHealth) IsModbusOnline() bool {
	return h.engine.Status().Modbus.Connected
}

func (h engineHealth) IsMQTTConnected() bool {
	return h.engine.Status().MQTT.Connected
}

func (h engineHealth) GetLastSuccessTime() time.Time {
	return h.engine.Health().LastSuccess()
}

func (h engineHealth) GetErrorCount() int {
	_, failed := h.engine.Health().Counts()
	return failed
}

func (h engineHealth) GetSuccessCount() int {
	success, _ := h.engine.Health().Counts()
	return success
}
