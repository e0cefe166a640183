package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"modbus-voltage-bridge/internal/device"
	bridgeerrors "modbus-voltage-bridge/internal/errors"
)

// ErrIgnoredTopic marks a message the control loop deliberately skipped:
// anything under the state prefix, or outside the current control prefix.
var ErrIgnoredTopic = errors.New("topic not handled by control loop")

// ControlCommand is a decoded control message
type ControlCommand struct {
	Channel device.Channel
	Voltage float64
}

// HandleControlMessage runs one inbound message through the control state
// machine: filter, parse, validate channel, validate voltage, apply.
// Propagation of the new state happens inside SetVoltage.
func (e *Engine) HandleControlMessage(ctx context.Context, topic string, payload []byte) error {
	snap := e.ns.Snapshot()

	// our own state publications must never loop back into writes
	if topic == snap.State || strings.HasPrefix(topic, snap.State+"/") {
		return ErrIgnoredTopic
	}
	if topic != snap.Control && !strings.HasPrefix(topic, snap.Control+"/") {
		return ErrIgnoredTopic
	}

	cmd, err := ParseControlPayload(payload)
	if err != nil {
		return err
	}

	if err := e.SetVoltage(ctx, cmd.Channel, cmd.Voltage); err != nil {
		return fmt.Errorf("control %s: %w", topic, err)
	}
	return nil
}

// ParseControlPayload decodes {"channel": <1|2>, "voltage": <number>}.
// channel must be an integral JSON number naming a known channel and voltage
// any JSON number. Range checking is left to SetVoltage.
func ParseControlPayload(payload []byte) (ControlCommand, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return ControlCommand{}, fmt.Errorf("%w: %v", bridgeerrors.ErrMalformedControlPayload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return ControlCommand{}, fmt.Errorf("%w: trailing data after object", bridgeerrors.ErrMalformedControlPayload)
	}
	if fields == nil {
		return ControlCommand{}, fmt.Errorf("%w: payload is not an object", bridgeerrors.ErrMalformedControlPayload)
	}

	rawChannel, ok := fields["channel"]
	if !ok {
		return ControlCommand{}, fmt.Errorf("%w: missing channel", bridgeerrors.ErrMalformedControlPayload)
	}
	rawVoltage, ok := fields["voltage"]
	if !ok {
		return ControlCommand{}, fmt.Errorf("%w: missing voltage", bridgeerrors.ErrMalformedControlPayload)
	}

	ch, err := channelFromJSON(rawChannel)
	if err != nil {
		return ControlCommand{}, err
	}

	num, ok := rawVoltage.(json.Number)
	if !ok {
		return ControlCommand{}, bridgeerrors.NewValidationError(bridgeerrors.ErrInvalidVoltage, "voltage", "number", rawVoltage)
	}
	v, err := num.Float64()
	if err != nil {
		return ControlCommand{}, bridgeerrors.NewValidationError(bridgeerrors.ErrInvalidVoltage, "voltage", "number", num.String())
	}

	return ControlCommand{Channel: ch, Voltage: v}, nil
}

func channelFromJSON(raw interface{}) (device.Channel, error) {
	invalid := bridgeerrors.NewValidationError(bridgeerrors.ErrInvalidChannel, "channel", "1 or 2", raw)

	num, ok := raw.(json.Number)
	if !ok {
		return 0, invalid
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, invalid
	}
	ch, err := device.ParseChannel(int(f))
	if err != nil {
		return 0, invalid
	}
	return ch, nil
}

// onControlMessage is the MQTT subscription callback. Failures are logged
// and dropped; there is no reply channel.
func (e *Engine) onControlMessage(topic string, payload []byte) {
	err := e.HandleControlMessage(context.Background(), topic, payload)

	switch {
	case err == nil:
		e.metrics.IncrementControlMessages("applied")
	case errors.Is(err, ErrIgnoredTopic):
		e.metrics.IncrementControlMessages("ignored")
		e.log.LogDebug("Ignoring message on %s", topic)
	case bridgeerrors.IsValidation(err):
		e.metrics.IncrementControlMessages("rejected")
		e.errs.Handle(err)
	default:
		e.metrics.IncrementControlMessages("failed")
		e.errs.Handle(err)
	}
}
