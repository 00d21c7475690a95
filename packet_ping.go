package mqttflow

import "errors"

// ErrUnexpectedBody is returned for a packet that must have an empty body.
var ErrUnexpectedBody = errors.New("unexpected packet body")

// PingReq represents an MQTT PINGREQ packet.
type PingReq struct{}

// Type returns the packet type.
func (p *PingReq) Type() PacketType { return PacketPINGREQ }

// Serialize encodes the packet. PINGREQ has no body.
func (p *PingReq) Serialize(_ ProtocolVersion) (RawPacket, error) {
	return RawPacket{Type: PacketPINGREQ}, nil
}

// PingResp represents an MQTT PINGRESP packet.
type PingResp struct{}

// Type returns the packet type.
func (p *PingResp) Type() PacketType { return PacketPINGRESP }

// ParsePingResp decodes a PINGRESP envelope.
func ParsePingResp(raw RawPacket, _ ProtocolVersion) (*PingResp, error) {
	if raw.Type != PacketPINGRESP {
		return nil, newParseError(raw.Type, ErrInvalidPacketType)
	}
	if raw.Flags != 0 {
		return nil, newParseError(raw.Type, ErrInvalidPacketFlags)
	}
	if len(raw.Body) != 0 {
		return nil, newParseError(raw.Type, ErrUnexpectedBody)
	}
	return &PingResp{}, nil
}
