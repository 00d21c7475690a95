package mqttflow

import "bytes"

// UnsubAck represents an MQTT UNSUBACK packet.
type UnsubAck struct {
	PacketID uint16

	// ReasonCodes is only carried under MQTT 5.0, one per topic filter.
	ReasonCodes []ReasonCode
}

// Type returns the packet type.
func (p *UnsubAck) Type() PacketType { return PacketUNSUBACK }

// GetPacketID returns the packet identifier.
func (p *UnsubAck) GetPacketID() uint16 { return p.PacketID }

// ParseUnsubAck decodes an UNSUBACK envelope.
func ParseUnsubAck(raw RawPacket, version ProtocolVersion) (*UnsubAck, error) {
	if raw.Type != PacketUNSUBACK {
		return nil, newParseError(raw.Type, ErrInvalidPacketType)
	}
	if raw.Flags != 0 {
		return nil, newParseError(raw.Type, ErrInvalidPacketFlags)
	}

	r := bytes.NewReader(raw.Body)
	packetID, err := decodePacketID(r)
	if err != nil {
		return nil, newParseError(raw.Type, err)
	}

	ack := &UnsubAck{PacketID: packetID}
	if version == ProtocolV5 {
		ack.ReasonCodes, err = decodeReasonCodes(r, version)
		if err != nil {
			return nil, newParseError(raw.Type, err)
		}
	}

	return ack, nil
}
