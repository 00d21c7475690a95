package mqttflow

import "bytes"

// Subscription is a topic filter with its requested maximum QoS.
type Subscription struct {
	TopicFilter string
	QoS         QoS
}

// Subscribe represents an MQTT SUBSCRIBE packet.
type Subscribe struct {
	PacketID      uint16
	Subscriptions []Subscription
}

// Type returns the packet type.
func (p *Subscribe) Type() PacketType { return PacketSUBSCRIBE }

// GetPacketID returns the packet identifier.
func (p *Subscribe) GetPacketID() uint16 { return p.PacketID }

// Serialize encodes the packet identifier followed by the filter/QoS pairs.
func (p *Subscribe) Serialize(version ProtocolVersion) (RawPacket, error) {
	if p.PacketID == 0 {
		return RawPacket{}, ErrPacketIDRequired
	}
	if len(p.Subscriptions) == 0 {
		return RawPacket{}, ErrNoSubscriptions
	}

	var buf bytes.Buffer
	encodeUint16(&buf, p.PacketID)

	if version == ProtocolV5 {
		var props Properties
		if err := props.encode(&buf); err != nil {
			return RawPacket{}, err
		}
	}

	for _, sub := range p.Subscriptions {
		if !sub.QoS.Valid() {
			return RawPacket{}, ErrInvalidQoS
		}
		if err := encodeString(&buf, sub.TopicFilter); err != nil {
			return RawPacket{}, err
		}
		buf.WriteByte(byte(sub.QoS))
	}

	return RawPacket{Type: PacketSUBSCRIBE, Flags: flagsReserved, Body: buf.Bytes()}, nil
}
