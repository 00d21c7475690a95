package mqttflow

// QoS is the MQTT delivery guarantee level.
type QoS byte

// QoS levels.
const (
	// QoS0 delivers at most once, without acknowledgement.
	QoS0 QoS = 0
	// QoS1 delivers at least once, acknowledged by PUBACK.
	QoS1 QoS = 1
	// QoS2 delivers exactly once through the PUBREC/PUBREL/PUBCOMP handshake.
	QoS2 QoS = 2
)

// String returns the string representation of the QoS level.
func (q QoS) String() string {
	switch q {
	case QoS0:
		return "at most once"
	case QoS1:
		return "at least once"
	case QoS2:
		return "exactly once"
	default:
		return "invalid"
	}
}

// Valid returns true for QoS 0, 1 and 2.
func (q QoS) Valid() bool {
	return q <= QoS2
}

// Message represents an MQTT application message.
// It is used both for outbound publishing and inbound delivery,
// and is passed by value.
type Message struct {
	// Topic is the topic name to publish to or received from.
	Topic string

	// Payload is the application message payload.
	Payload Payload

	// QoS is the Quality of Service level.
	QoS QoS

	// Retain indicates if this is a retained message.
	Retain bool
}

// MessageHandler handles inbound application messages.
type MessageHandler func(msg Message)
