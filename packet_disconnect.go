package mqttflow

// Disconnect represents an MQTT DISCONNECT packet sent by the client.
type Disconnect struct {
	// ReasonCode is only carried under MQTT 5.0.
	ReasonCode ReasonCode
}

// Type returns the packet type.
func (p *Disconnect) Type() PacketType { return PacketDISCONNECT }

// Serialize encodes the packet. Normal disconnection under MQTT 5.0 and every
// MQTT 3.1.1 disconnect have an empty body.
func (p *Disconnect) Serialize(version ProtocolVersion) (RawPacket, error) {
	raw := RawPacket{Type: PacketDISCONNECT}
	if version == ProtocolV5 && p.ReasonCode != ReasonSuccess {
		raw.Body = []byte{byte(p.ReasonCode)}
	}
	return raw, nil
}
