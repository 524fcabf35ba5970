package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/sweeney/vent-controller/internal/logic"
)

// DiscoveryPrefix is Home Assistant's default discovery topic prefix.
const DiscoveryPrefix = "homeassistant"

// NodeID groups the controller's entities under one discovery node.
const NodeID = "vent_controller"

// DiscoveryMessage is one retained entity config.
type DiscoveryMessage struct {
	Topic   string
	Payload []byte
}

// DiscoveryDevice ties entities to one device in Home Assistant.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// DiscoveryConfig is the entity config Home Assistant reads.
type DiscoveryConfig struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	StateTopic        string          `json:"state_topic"`
	ValueTemplate     string          `json:"value_template"`
	DeviceClass       string          `json:"device_class,omitempty"`
	StateClass        string          `json:"state_class,omitempty"`
	UnitOfMeasurement string          `json:"unit_of_measurement,omitempty"`
	PayloadOn         string          `json:"payload_on,omitempty"`
	PayloadOff        string          `json:"payload_off,omitempty"`
	Icon              string          `json:"icon,omitempty"`
	Device            DiscoveryDevice `json:"device"`
}

var device = DiscoveryDevice{
	Identifiers:  []string{NodeID},
	Name:         "Vent Controller",
	Manufacturer: "sweeney",
	Model:        "vent-controller",
}

// DiscoveryTopic returns the config topic for an entity.
func DiscoveryTopic(component, object string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", DiscoveryPrefix, component, NodeID, object)
}

// DiscoveryMessages builds the configs for the vent, dehumidifier, venting
// mode and the five smoothed metrics.
func DiscoveryMessages() ([]DiscoveryMessage, error) {
	type entity struct {
		component, object string
		cfg               DiscoveryConfig
	}

	entities := []entity{
		{"binary_sensor", "vent", DiscoveryConfig{
			Name:          "Vent",
			ValueTemplate: "{{ value_json.ventilation.vent }}",
			DeviceClass:   "opening",
			PayloadOn:     VentState(true),
			PayloadOff:    VentState(false),
		}},
		{"binary_sensor", "dehumidifier", DiscoveryConfig{
			Name:          "Dehumidifier",
			ValueTemplate: "{{ value_json.ventilation.dehumidifier }}",
			DeviceClass:   "running",
			PayloadOn:     OnOff(true),
			PayloadOff:    OnOff(false),
		}},
		{"sensor", "mode", DiscoveryConfig{
			Name:          "Venting mode",
			ValueTemplate: "{{ value_json.ventilation.mode }}",
			Icon:          "mdi:hvac",
		}},
	}
	for _, m := range logic.AllMetrics {
		entities = append(entities, entity{"sensor", m.String(), metricConfig(m)})
	}

	msgs := make([]DiscoveryMessage, 0, len(entities))
	for _, e := range entities {
		e.cfg.UniqueID = NodeID + "_" + e.object
		e.cfg.StateTopic = TopicState
		e.cfg.Device = device
		payload, err := json.Marshal(e.cfg)
		if err != nil {
			return nil, fmt.Errorf("marshal %s discovery: %w", e.object, err)
		}
		msgs = append(msgs, DiscoveryMessage{Topic: DiscoveryTopic(e.component, e.object), Payload: payload})
	}
	return msgs, nil
}

func metricConfig(m logic.Metric) DiscoveryConfig {
	cfg := DiscoveryConfig{
		ValueTemplate: fmt.Sprintf("{{ value_json.ventilation.metrics.%s.value }}", m),
		StateClass:    "measurement",
	}
	switch m {
	case logic.IndoorTemp:
		cfg.Name, cfg.DeviceClass = "Indoor temperature", "temperature"
	case logic.IndoorHumidity:
		cfg.Name, cfg.DeviceClass = "Indoor humidity", "humidity"
	case logic.OutdoorTemp:
		cfg.Name, cfg.DeviceClass = "Outdoor temperature", "temperature"
	case logic.OutdoorHumidity:
		cfg.Name, cfg.DeviceClass = "Outdoor humidity", "humidity"
	case logic.OutdoorAQI:
		cfg.Name, cfg.DeviceClass = "Outdoor AQI", "aqi"
	}
	if m != logic.OutdoorAQI {
		cfg.UnitOfMeasurement = m.Unit()
	}
	return cfg
}
