package mqttflow

import (
	"bytes"
	"errors"
)

// ErrMissingReasonCodes is returned for an acknowledgement without reason codes.
var ErrMissingReasonCodes = errors.New("missing reason codes")

// SubAck represents an MQTT SUBACK packet.
type SubAck struct {
	PacketID uint16

	// ReasonCodes holds one granted QoS or failure code per requested filter.
	ReasonCodes []ReasonCode
}

// Type returns the packet type.
func (p *SubAck) Type() PacketType { return PacketSUBACK }

// GetPacketID returns the packet identifier.
func (p *SubAck) GetPacketID() uint16 { return p.PacketID }

// ParseSubAck decodes a SUBACK envelope.
func ParseSubAck(raw RawPacket, version ProtocolVersion) (*SubAck, error) {
	if raw.Type != PacketSUBACK {
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

	codes, err := decodeReasonCodes(r, version)
	if err != nil {
		return nil, newParseError(raw.Type, err)
	}
	if len(codes) == 0 {
		return nil, newParseError(raw.Type, ErrMissingReasonCodes)
	}

	return &SubAck{PacketID: packetID, ReasonCodes: codes}, nil
}

// decodeReasonCodes reads the optional MQTT 5.0 properties and the trailing
// reason code list shared by SUBACK and UNSUBACK.
func decodeReasonCodes(r *bytes.Reader, version ProtocolVersion) ([]ReasonCode, error) {
	if version == ProtocolV5 {
		var props Properties
		if err := props.decode(r); err != nil {
			return nil, err
		}
	}

	codes := make([]ReasonCode, 0, r.Len())
	for r.Len() > 0 {
		b, _ := r.ReadByte()
		codes = append(codes, ReasonCode(b))
	}
	return codes, nil
}
