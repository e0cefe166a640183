package api

import (
	"net/http"
	"strconv"
	"strings"

	bridgeerrors "modbus-voltage-bridge/internal/errors"
	"modbus-voltage-bridge/internal/logger"
	"modbus-voltage-bridge/internal/modbus"
)

// ModbusConfigResponse answers /update_config
type ModbusConfigResponse struct {
	Message   string `json:"message"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	UnitID    uint8  `json:"unit_id"`
	Connected bool   `json:"connected"`
}

// MQTTConfigResponse answers /update_mqtt
type MQTTConfigResponse struct {
	Message   string `json:"message"`
	Broker    string `json:"broker"`
	Port      int    `json:"port"`
	Connected bool   `json:"connected"`
}

// TopicResponse answers /update_mqtt_topic
type TopicResponse struct {
	Message      string `json:"message"`
	BaseTopic    string `json:"base_topic"`
	ControlTopic string `json:"control_topic"`
	StateTopic   string `json:"state_topic"`
}

func (s *Server) handleUpdateModbus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeBadRequest(w, msgInvalidModbus)
		return
	}

	host := strings.TrimSpace(r.PostForm.Get("host"))
	port, err := strconv.Atoi(strings.TrimSpace(r.PostForm.Get("port")))
	if err != nil {
		writeBadRequest(w, msgInvalidModbus)
		return
	}
	unitID := uint64(modbus.DefaultUnitID)
	if raw := strings.TrimSpace(r.PostForm.Get("unit_id")); raw != "" {
		unitID, err = strconv.ParseUint(raw, 10, 8)
		if err != nil {
			writeBadRequest(w, msgInvalidModbus)
			return
		}
	}

	st, err := s.engine.ReconfigureModbus(r.Context(), host, port, uint8(unitID))
	if err != nil {
		s.writeReconfigureError(w, err, msgInvalidModbus)
		return
	}

	ep := s.engine.Status().Modbus.Endpoint
	writeJSON(w, http.StatusOK, ModbusConfigResponse{
		Message:   msgModbusUpdated,
		Host:      ep.Host,
		Port:      ep.Port,
		UnitID:    ep.UnitID,
		Connected: st.Connected,
	})
}

func (s *Server) handleUpdateMQTT(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeBadRequest(w, msgInvalidMQTT)
		return
	}

	broker := strings.TrimSpace(r.PostForm.Get("mqtt_broker"))
	port, err := strconv.Atoi(strings.TrimSpace(r.PostForm.Get("mqtt_port")))
	if err != nil {
		writeBadRequest(w, msgInvalidMQTT)
		return
	}

	st, err := s.engine.ReconfigureMQTT(r.Context(), broker, port)
	if err != nil {
		s.writeReconfigureError(w, err, msgInvalidMQTT)
		return
	}

	writeJSON(w, http.StatusOK, MQTTConfigResponse{
		Message:   msgMQTTUpdated,
		Broker:    broker,
		Port:      port,
		Connected: st.Connected,
	})
}

func (s *Server) handleUpdateTopic(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeBadRequest(w, msgEmptyBaseTopic)
		return
	}

	snap, err := s.engine.RebindTopic(r.PostForm.Get("base_topic"))
	if err != nil {
		s.writeReconfigureError(w, err, msgEmptyBaseTopic)
		return
	}

	writeJSON(w, http.StatusOK, TopicResponse{
		Message:      msgBaseTopicUpdated,
		BaseTopic:    snap.Base,
		ControlTopic: snap.Control,
		StateTopic:   snap.State,
	})
}

func (s *Server) writeReconfigureError(w http.ResponseWriter, err error, badRequest string) {
	if bridgeerrors.IsValidation(err) {
		writeBadRequest(w, badRequest)
		return
	}
	logger.LogError("Reconfiguration failed: %v", err)
	writeInternalError(w, msgInternalError)
}
