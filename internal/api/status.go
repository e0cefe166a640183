package api

import (
	"net/http"

	"modbus-voltage-bridge/internal/bridge"
	"modbus-voltage-bridge/internal/device"
	"modbus-voltage-bridge/internal/logger"
)

// voltageUnavailable stands in for a channel that could not be read
const voltageUnavailable = "N/A"

// IndexResponse is the status document served on /
type IndexResponse struct {
	Voltage1 any `json:"voltage_1"`
	Voltage2 any `json:"voltage_2"`
	bridge.StatusReport
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	resp := IndexResponse{
		Voltage1: s.readOrUnavailable(r, device.Channel1),
		Voltage2: s.readOrUnavailable(r, device.Channel2),
	}
	resp.StatusReport = s.engine.Status()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) readOrUnavailable(r *http.Request, ch device.Channel) any {
	v, err := s.engine.ReadVoltage(r.Context(), ch)
	if err != nil {
		logger.LogDebug("Status read of %s failed: %v", ch, err)
		return voltageUnavailable
	}
	return v
}
