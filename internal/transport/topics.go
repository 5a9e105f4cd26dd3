// Package transport connects plantd to an MQTT broker.
package transport

// Default topic layout used by the dashboard.
const (
	DefaultTopicPrefix  = "plants"
	DefaultHelloTopic   = "plants/test"
	DefaultHelloPayload = "Hello World"
)

// Topics derives the device-scoped topic names.
type Topics struct {
	Prefix   string
	DeviceID string
}

// Telemetry is the retained snapshot topic, e.g. "plants/A1B2C3D4E5F6".
func (t Topics) Telemetry() string {
	prefix := t.Prefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/" + t.DeviceID
}

// Command is the inbound command topic, e.g. "plants/A1B2C3D4E5F6/cmd".
func (t Topics) Command() string {
	return t.Telemetry() + "/cmd"
}
