package device

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridgeerrors "modbus-voltage-bridge/internal/errors"
)

func TestAddressOf(t *testing.T) {
	addr, err := AddressOf(Channel1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0000), addr)

	addr, err = AddressOf(Channel2)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0001), addr)

	for _, bad := range []Channel{0, 3, -1} {
		_, err := AddressOf(bad)
		assert.True(t, errors.Is(err, bridgeerrors.ErrInvalidChannel), "channel %d", bad)
	}
}

func TestParseChannel(t *testing.T) {
	ch, err := ParseChannel(2)
	require.NoError(t, err)
	assert.Equal(t, Channel2, ch)

	_, err = ParseChannel(3)
	assert.ErrorIs(t, err, bridgeerrors.ErrInvalidChannel)
}

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		volts float64
		raw   uint16
	}{
		{0, 0},
		{2.5, 250},
		{3.3, 330},
		{5.0, 500},
		{9.99, 999},
		{10.0, 1000},
		{1.236, 124}, // nearest unit
		{1.234, 123},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.raw, Encode(tt.volts), "Encode(%v)", tt.volts)
	}

	assert.Equal(t, 2.5, Decode(250))
	assert.Equal(t, 0.0, Decode(0))
	assert.Equal(t, 10.0, Decode(1000))
}

func TestEncodeSaturates(t *testing.T) {
	assert.Equal(t, uint16(0), Encode(-1))
	assert.Equal(t, uint16(math.MaxUint16), Encode(1e6))
}

func TestRoundTripWithinValidRange(t *testing.T) {
	for _, ch := range Channels() {
		lo, hi := ch.Range()
		for v := lo; v <= hi; v += 0.037 {
			got := Decode(Encode(v))
			assert.InDelta(t, v, got, 0.01, "channel %d voltage %v", ch, v)
		}
	}
}

func TestValidateVoltage(t *testing.T) {
	tests := []struct {
		name    string
		ch      Channel
		v       float64
		wantErr error
	}{
		{"ch1 lower bound", Channel1, 0, nil},
		{"ch1 upper bound", Channel1, 5.0, nil},
		{"ch1 above", Channel1, 5.01, bridgeerrors.ErrInvalidVoltage},
		{"ch1 below", Channel1, -0.01, bridgeerrors.ErrInvalidVoltage},
		{"ch2 upper bound", Channel2, 10.0, nil},
		{"ch2 above", Channel2, 10.01, bridgeerrors.ErrInvalidVoltage},
		{"ch2 nan", Channel2, math.NaN(), bridgeerrors.ErrInvalidVoltage},
		{"unknown channel", Channel(3), 1, bridgeerrors.ErrInvalidChannel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVoltage(tt.ch, tt.v)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestChannelString(t *testing.T) {
	assert.Equal(t, "channel_1", Channel1.String())
	assert.True(t, Channel2.Valid())
	assert.False(t, Channel(0).Valid())
}
