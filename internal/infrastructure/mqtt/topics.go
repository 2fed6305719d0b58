package mqtt

import "strings"

// Message kinds carried in the last topic segment.
const (
	KindTelemetry = "telemetry"
	KindAlert     = "alert"
	KindCommand   = "command"
	KindStatus    = "status"
)

// gatewaySegment takes the device slot in the gateway's own status topic.
const gatewaySegment = "gateway"

// Topics builds device topics of the form {product}/{domain}/{deviceId}/{kind}.
//
//	topics := mqtt.NewTopics("prod", "solar")
//	topics.Command("P42")          // "prod/solar/P42/command"
//	topics.Pattern(KindTelemetry)  // "prod/solar/+/telemetry"
type Topics struct {
	Product string
	Domain  string
}

// NewTopics returns a topic builder for the given namespace segments.
func NewTopics(product, domain string) Topics {
	return Topics{Product: product, Domain: domain}
}

// Device returns the topic for a single device and message kind.
func (t Topics) Device(deviceID, kind string) string {
	return strings.Join([]string{t.Product, t.Domain, deviceID, kind}, "/")
}

// Command returns the topic the gateway publishes device commands on.
func (t Topics) Command(deviceID string) string {
	return t.Device(deviceID, KindCommand)
}

// Telemetry returns the topic a device publishes telemetry on.
func (t Topics) Telemetry(deviceID string) string {
	return t.Device(deviceID, KindTelemetry)
}

// Pattern returns the subscription filter matching every device for kind.
func (t Topics) Pattern(kind string) string {
	return t.Device("+", kind)
}

// GatewayStatus returns the retained online/offline status topic.
func (t Topics) GatewayStatus() string {
	return t.Device(gatewaySegment, KindStatus)
}
