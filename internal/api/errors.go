package api

import (
	"encoding/json"
	"net/http"

	"modbus-voltage-bridge/internal/logger"
)

// Response messages returned to API clients
const (
	msgInvalidChannel     = "Invalid channel. Use 1 or 2."
	msgReadFailed         = "Failed to read voltage."
	msgInvalidJSON        = "Invalid JSON payload."
	msgInvalidFormat      = "Invalid channel or voltage format."
	msgSetFailed          = "Failed to set voltage."
	msgSetOK              = "Voltage set successfully."
	msgInvalidModbus      = "Invalid Modbus configuration."
	msgModbusUpdated      = "Modbus configuration updated."
	msgInvalidMQTT        = "Invalid MQTT configuration."
	msgMQTTUpdated        = "MQTT configuration updated."
	msgEmptyBaseTopic     = "Base topic cannot be empty."
	msgBaseTopicUpdated   = "MQTT base topic updated."
	msgInternalError      = "Internal server error."
	msgMetricsUnavailable = "Metrics are disabled."
)

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			logger.LogDebug("API response write failed: %v", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, message)
}
