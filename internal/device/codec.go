// Package device maps the voltage source's two output channels onto its
// holding registers. Register values are hundredths of a volt.
package device

import (
	"fmt"
	"math"

	bridgeerrors "modbus-voltage-bridge/internal/errors"
)

// Channel identifies one of the two outputs of the voltage source
type Channel int

const (
	Channel1 Channel = 1
	Channel2 Channel = 2
)

// Scale is the number of register units per volt
const Scale = 100

type channelSpec struct {
	address uint16
	min     float64
	max     float64
}

var channelTable = map[Channel]channelSpec{
	Channel1: {address: 0x0000, min: 0, max: 5},
	Channel2: {address: 0x0001, min: 0, max: 10},
}

// Channels returns every channel in ascending order
func Channels() []Channel {
	return []Channel{Channel1, Channel2}
}

// ParseChannel converts an integer into a Channel
func ParseChannel(n int) (Channel, error) {
	ch := Channel(n)
	if _, ok := channelTable[ch]; !ok {
		return 0, bridgeerrors.NewValidationError(bridgeerrors.ErrInvalidChannel, "channel", "1 or 2", n)
	}
	return ch, nil
}

// Valid reports whether ch is a known channel
func (ch Channel) Valid() bool {
	_, ok := channelTable[ch]
	return ok
}

// Range returns the inclusive voltage bounds of the channel
func (ch Channel) Range() (min, max float64) {
	spec := channelTable[ch]
	return spec.min, spec.max
}

func (ch Channel) String() string {
	return fmt.Sprintf("channel_%d", int(ch))
}

// AddressOf returns the holding register backing ch
func AddressOf(ch Channel) (uint16, error) {
	spec, ok := channelTable[ch]
	if !ok {
		return 0, bridgeerrors.NewValidationError(bridgeerrors.ErrInvalidChannel, "channel", "1 or 2", int(ch))
	}
	return spec.address, nil
}

// ValidateVoltage checks v against the channel's closed interval
func ValidateVoltage(ch Channel, v float64) error {
	spec, ok := channelTable[ch]
	if !ok {
		return bridgeerrors.NewValidationError(bridgeerrors.ErrInvalidChannel, "channel", "1 or 2", int(ch))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < spec.min || v > spec.max {
		return bridgeerrors.NewValidationError(bridgeerrors.ErrInvalidVoltage, "voltage",
			fmt.Sprintf("%.2f-%.2f V for channel %d", spec.min, spec.max, int(ch)), v)
	}
	return nil
}

// Encode converts volts to register units, rounding to the nearest unit.
// Callers validate the range first; values outside uint16 saturate.
func Encode(v float64) uint16 {
	raw := math.Round(v * Scale)
	if raw <= 0 {
		return 0
	}
	if raw >= math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(raw)
}

// Decode converts register units to volts
func Decode(raw uint16) float64 {
	return float64(raw) / Scale
}
