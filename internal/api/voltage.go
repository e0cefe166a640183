package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"modbus-voltage-bridge/internal/device"
	bridgeerrors "modbus-voltage-bridge/internal/errors"
	"modbus-voltage-bridge/internal/logger"
)

// VoltageResponse answers /get_voltage
type VoltageResponse struct {
	Channel int     `json:"channel"`
	Voltage float64 `json:"voltage"`
}

// SetVoltageResponse answers a successful /set_voltage
type SetVoltageResponse struct {
	Message string  `json:"message"`
	Channel int     `json:"channel"`
	Voltage float64 `json:"voltage"`
}

func (s *Server) handleGetVoltage(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.URL.Query().Get("channel"))
	if err != nil {
		writeBadRequest(w, msgInvalidChannel)
		return
	}
	ch, err := device.ParseChannel(n)
	if err != nil {
		writeBadRequest(w, msgInvalidChannel)
		return
	}

	v, err := s.engine.ReadVoltage(r.Context(), ch)
	if err != nil {
		logger.LogWarn("Read of channel %d failed: %v", n, err)
		writeInternalError(w, msgReadFailed)
		return
	}

	writeJSON(w, http.StatusOK, VoltageResponse{Channel: n, Voltage: v})
}

// handleSetVoltageJSON accepts {"channel": <int>, "voltage": <number>}
func (s *Server) handleSetVoltageJSON(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, msgInvalidJSON)
		return
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || len(fields) == 0 {
		writeBadRequest(w, msgInvalidJSON)
		return
	}
	if _, err := dec.Token(); err != io.EOF {
		writeBadRequest(w, msgInvalidJSON)
		return
	}

	chNum, chOK := fields["channel"].(json.Number)
	vNum, vOK := fields["voltage"].(json.Number)
	if !chOK || !vOK {
		writeBadRequest(w, msgInvalidFormat)
		return
	}
	n, err := chNum.Int64()
	if err != nil {
		writeBadRequest(w, msgInvalidFormat)
		return
	}
	v, err := vNum.Float64()
	if err != nil {
		writeBadRequest(w, msgInvalidFormat)
		return
	}

	s.setVoltage(w, r, n, v)
}

// handleSetVoltageQuery accepts ?channel=<int>&voltage=<float>
func (s *Server) handleSetVoltageQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n, err := strconv.ParseInt(q.Get("channel"), 10, 64)
	if err != nil {
		writeBadRequest(w, msgInvalidFormat)
		return
	}
	v, err := strconv.ParseFloat(q.Get("voltage"), 64)
	if err != nil {
		writeBadRequest(w, msgInvalidFormat)
		return
	}

	s.setVoltage(w, r, n, v)
}

func (s *Server) setVoltage(w http.ResponseWriter, r *http.Request, n int64, v float64) {
	if n < 1 || n > 2 {
		writeBadRequest(w, msgInvalidChannel)
		return
	}
	ch, err := device.ParseChannel(int(n))
	if err != nil {
		writeBadRequest(w, msgInvalidChannel)
		return
	}

	if err := s.engine.SetVoltage(r.Context(), ch, v); err != nil {
		if errors.Is(err, bridgeerrors.ErrInvalidVoltage) {
			lo, hi := ch.Range()
			writeBadRequest(w, fmt.Sprintf("Invalid voltage for channel %d. Use %g to %g V.", n, lo, hi))
			return
		}
		logger.LogWarn("Set of channel %d to %.2f V failed: %v", n, v, err)
		writeInternalError(w, msgSetFailed)
		return
	}

	writeJSON(w, http.StatusOK, SetVoltageResponse{Message: msgSetOK, Channel: int(n), Voltage: v})
}

// handleSetVoltageForm serves the HTML form post. It always redirects home;
// failures are only logged.
func (s *Server) handleSetVoltageForm(w http.ResponseWriter, r *http.Request) {
	defer http.Redirect(w, r, "/", http.StatusSeeOther)

	if err := r.ParseForm(); err != nil {
		logger.LogDebug("Unparsable voltage form: %v", err)
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(r.PostForm.Get("channel")))
	if err != nil {
		return
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(r.PostForm.Get("voltage")), 64)
	if err != nil {
		return
	}
	ch, err := device.ParseChannel(n)
	if err != nil {
		return
	}

	if err := s.engine.SetVoltage(r.Context(), ch, v); err != nil {
		logger.LogWarn("Form set of channel %d to %.2f V failed: %v", n, v, err)
	}
}
