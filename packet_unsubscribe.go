package mqttflow

import "bytes"

// Unsubscribe represents an MQTT UNSUBSCRIBE packet.
type Unsubscribe struct {
	PacketID     uint16
	TopicFilters []string
}

// Type returns the packet type.
func (p *Unsubscribe) Type() PacketType { return PacketUNSUBSCRIBE }

// GetPacketID returns the packet identifier.
func (p *Unsubscribe) GetPacketID() uint16 { return p.PacketID }

// Serialize encodes the packet identifier followed by the topic filters.
func (p *Unsubscribe) Serialize(version ProtocolVersion) (RawPacket, error) {
	if p.PacketID == 0 {
		return RawPacket{}, ErrPacketIDRequired
	}
	if len(p.TopicFilters) == 0 {
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

	for _, filter := range p.TopicFilters {
		if err := encodeString(&buf, filter); err != nil {
			return RawPacket{}, err
		}
	}

	return RawPacket{Type: PacketUNSUBSCRIBE, Flags: flagsReserved, Body: buf.Bytes()}, nil
}
