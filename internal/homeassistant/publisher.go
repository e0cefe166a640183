package homeassistant

import (
	"encoding/json"
	"errors"
	"fmt"

	"modbus-voltage-bridge/internal/device"
	"modbus-voltage-bridge/internal/logger"
	"modbus-voltage-bridge/internal/topics"
)

// RetainedPublisher is the part of the MQTT session discovery needs
type RetainedPublisher interface {
	PublishRetained(topic string, payload []byte) error
}

// Settings describe the device as Home Assistant shows it
type Settings struct {
	DiscoveryPrefix string
	DeviceID        string
	DeviceName      string
	Manufacturer    string
	Model           string
}

// Publisher announces each output channel to Home Assistant as a number
// entity wired to the bridge's control and state topics
type Publisher struct {
	client   RetainedPublisher
	settings Settings
}

// NewPublisher creates a new discovery publisher
func NewPublisher(client RetainedPublisher, settings Settings) *Publisher {
	return &Publisher{client: client, settings: settings}
}

// DiscoveryTopic is where the config document for ch is retained
func (p *Publisher) DiscoveryTopic(ch device.Channel) string {
	return fmt.Sprintf("%s/number/%s_%s/config", p.settings.DiscoveryPrefix, p.settings.DeviceID, ch)
}

// NumberConfig builds the discovery document for ch under the topics in snap
func (p *Publisher) NumberConfig(ch device.Channel, snap topics.Snapshot) NumberConfig {
	lo, hi := ch.Range()
	return NumberConfig{
		Name:              fmt.Sprintf("Channel %d voltage", int(ch)),
		UniqueID:          fmt.Sprintf("%s_%s", p.settings.DeviceID, ch),
		CommandTopic:      fmt.Sprintf("%s/%s", snap.Control, ch),
		CommandTemplate:   fmt.Sprintf(`{"channel": %d, "voltage": {{ value }}}`, int(ch)),
		StateTopic:        topics.StateTopicFor(snap.State, int(ch)),
		ValueTemplate:     "{{ value_json.voltage }}",
		Min:               lo,
		Max:               hi,
		Step:              1.0 / device.Scale,
		Mode:              "box",
		UnitOfMeasurement: "V",
		DeviceClass:       "voltage",
		Device: DeviceInfo{
			Name:         p.settings.DeviceName,
			Identifiers:  []string{p.settings.DeviceID},
			Manufacturer: p.settings.Manufacturer,
			Model:        p.settings.Model,
		},
	}
}

// PublishDiscovery publishes the config of every channel. A channel that
// fails does not stop the others.
func (p *Publisher) PublishDiscovery(snap topics.Snapshot) error {
	var errs []error
	for _, ch := range device.Channels() {
		payload, err := json.Marshal(p.NumberConfig(ch, snap))
		if err != nil {
			errs = append(errs, fmt.Errorf("error serializing configuration for %s: %w", ch, err))
			continue
		}

		topic := p.DiscoveryTopic(ch)
		if err := p.client.PublishRetained(topic, payload); err != nil {
			errs = append(errs, fmt.Errorf("error publishing discovery for %s: %w", ch, err))
			continue
		}
		logger.LogDebug("📡 Published discovery for %s: %s", ch, topic)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	logger.LogInfo("📡 Home Assistant discovery published under %s", snap.Base)
	return nil
}

// NumberConfig configuration for a Home Assistant number entity
type NumberConfig struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	CommandTopic      string     `json:"command_topic"`
	CommandTemplate   string     `json:"command_template"`
	StateTopic        string     `json:"state_topic"`
	ValueTemplate     string     `json:"value_template"`
	Min               float64    `json:"min"`
	Max               float64    `json:"max"`
	Step              float64    `json:"step"`
	Mode              string     `json:"mode"`
	UnitOfMeasurement string     `json:"unit_of_measurement"`
	DeviceClass       string     `json:"device_class"`
	Device            DeviceInfo `json:"device"`
}

// DeviceInfo information about the device
type DeviceInfo struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
}
