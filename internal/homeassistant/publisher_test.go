package homeassistant

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbus-voltage-bridge/internal/device"
	"modbus-voltage-bridge/internal/topics"
)

type recordingClient struct {
	topics   []string
	payloads [][]byte
	failOn   string
}

func (c *recordingClient) PublishRetained(topic string, payload []byte) error {
	if topic == c.failOn {
		return errors.New("not authorized")
	}
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload)
	return nil
}

var testSettings = Settings{
	DiscoveryPrefix: "homeassistant",
	DeviceID:        "bench_psu",
	DeviceName:      "Bench PSU",
	Manufacturer:    "Generic",
	Model:           "2-channel DAC",
}

func snapshotFor(base string) topics.Snapshot {
	return topics.Snapshot{Base: base, Control: base + topics.ControlSuffix, State: base + topics.StateSuffix}
}

func TestPublishDiscovery(t *testing.T) {
	client := &recordingClient{}
	p := NewPublisher(client, testSettings)

	require.NoError(t, p.PublishDiscovery(snapshotFor("modbus")))
	require.Equal(t, []string{
		"homeassistant/number/bench_psu_channel_1/config",
		"homeassistant/number/bench_psu_channel_2/config",
	}, client.topics)

	var cfg NumberConfig
	require.NoError(t, json.Unmarshal(client.payloads[1], &cfg))
	assert.Equal(t, "Channel 2 voltage", cfg.Name)
	assert.Equal(t, "bench_psu_channel_2", cfg.UniqueID)
	assert.Equal(t, "modbus/control/channel_2", cfg.CommandTopic)
	assert.Equal(t, "modbus/state/channel_2", cfg.StateTopic)
	assert.Equal(t, 0.0, cfg.Min)
	assert.Equal(t, 10.0, cfg.Max)
	assert.Equal(t, 0.01, cfg.Step)
	assert.Equal(t, []string{"bench_psu"}, cfg.Device.Identifiers)
}

func TestCommandTemplateRendersControlPayload(t *testing.T) {
	p := NewPublisher(&recordingClient{}, testSettings)
	cfg := p.NumberConfig(device.Channel1, snapshotFor("power"))

	assert.Equal(t, `{"channel": 1, "voltage": {{ value }}}`, cfg.CommandTemplate)
	assert.Equal(t, "power/control/channel_1", cfg.CommandTopic)
	assert.Equal(t, 5.0, cfg.Max)
}

func TestPublishDiscoveryContinuesPastFailure(t *testing.T) {
	client := &recordingClient{failOn: "homeassistant/number/bench_psu_channel_1/config"}
	p := NewPublisher(client, testSettings)

	err := p.PublishDiscovery(snapshotFor("modbus"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_1")
	assert.Equal(t, []string{"homeassistant/number/bench_psu_channel_2/config"}, client.topics)
}
