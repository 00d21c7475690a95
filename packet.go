package mqttflow

// ProtocolVersion is the MQTT protocol level negotiated for a connection.
type ProtocolVersion byte

// Supported protocol levels.
const (
	// ProtocolV311 is MQTT 3.1.1 (protocol level 4).
	ProtocolV311 ProtocolVersion = 4
	// ProtocolV5 is MQTT 5.0 (protocol level 5).
	ProtocolV5 ProtocolVersion = 5
)

// String returns the string representation of the protocol version.
func (v ProtocolVersion) String() string {
	switch v {
	case ProtocolV311:
		return "3.1.1"
	case ProtocolV5:
		return "5.0"
	default:
		return "unknown"
	}
}

// Valid returns true for supported protocol versions.
func (v ProtocolVersion) Valid() bool {
	return v == ProtocolV311 || v == ProtocolV5
}

// RawPacket is an already demarcated control packet: the packet type,
// the low nibble of the first fixed header byte and the body that follows
// the remaining length. Framing is done by the transport.
type RawPacket struct {
	Type  PacketType
	Flags byte
	Body  []byte
}

// Packet is the interface that all typed control packets implement.
type Packet interface {
	// Type returns the packet type.
	Type() PacketType
}

// OutboundPacket is a packet the client sends.
type OutboundPacket interface {
	Packet

	// Serialize encodes the packet into a raw envelope.
	// Errors are reserved for packets that break an invariant.
	Serialize(version ProtocolVersion) (RawPacket, error)
}

// PacketWithID is implemented by packets that have a packet identifier.
type PacketWithID interface {
	Packet

	// GetPacketID returns the packet identifier.
	GetPacketID() uint16
}
