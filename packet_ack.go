package mqttflow

import (
	"bytes"
)

// AckKind identifies one of the publish acknowledgement packets.
type AckKind byte

// Acknowledgement kinds.
const (
	AckPubAck AckKind = iota
	AckPubRec
	AckPubRel
	AckPubComp
)

// String returns the string representation of the acknowledgement kind.
func (k AckKind) String() string {
	return k.packetType().String()
}

func (k AckKind) packetType() PacketType {
	switch k {
	case AckPubAck:
		return PacketPUBACK
	case AckPubRec:
		return PacketPUBREC
	case AckPubRel:
		return PacketPUBREL
	case AckPubComp:
		return PacketPUBCOMP
	default:
		return 0
	}
}

// Acknowledgement represents a PUBACK, PUBREC, PUBREL or PUBCOMP packet.
type Acknowledgement struct {
	Kind     AckKind
	PacketID uint16

	// ReasonCode is only carried under MQTT 5.0.
	ReasonCode ReasonCode
}

// Type returns the packet type.
func (a *Acknowledgement) Type() PacketType { return a.Kind.packetType() }

// GetPacketID returns the packet identifier.
func (a *Acknowledgement) GetPacketID() uint16 { return a.PacketID }

// Serialize encodes the acknowledgement. PUBREL gets the reserved 0b0010 flags.
func (a *Acknowledgement) Serialize(version ProtocolVersion) (RawPacket, error) {
	packetType := a.Kind.packetType()
	if packetType == 0 {
		return RawPacket{}, ErrInvalidPacketType
	}
	if a.PacketID == 0 {
		return RawPacket{}, ErrInvalidPacketID
	}

	var buf bytes.Buffer
	encodeUint16(&buf, a.PacketID)

	// Reason code may be omitted on success when there are no properties.
	if version == ProtocolV5 && a.ReasonCode != ReasonSuccess {
		buf.WriteByte(byte(a.ReasonCode))
	}

	var flags byte
	if a.Kind == AckPubRel {
		flags = flagsReserved
	}

	return RawPacket{Type: packetType, Flags: flags, Body: buf.Bytes()}, nil
}

// ParseAcknowledgement decodes a PUBACK, PUBREC, PUBREL or PUBCOMP envelope.
func ParseAcknowledgement(raw RawPacket, version ProtocolVersion) (*Acknowledgement, error) {
	kind, err := parseAckKind(raw)
	if err != nil {
		return nil, newParseError(raw.Type, err)
	}

	r := bytes.NewReader(raw.Body)
	packetID, err := decodePacketID(r)
	if err != nil {
		return nil, newParseError(raw.Type, err)
	}

	ack := &Acknowledgement{Kind: kind, PacketID: packetID}

	if version == ProtocolV5 && r.Len() > 0 {
		code, _ := r.ReadByte()
		ack.ReasonCode = ReasonCode(code)

		if r.Len() > 0 {
			var props Properties
			if err := props.decode(r); err != nil {
				return nil, newParseError(raw.Type, err)
			}
		}
	}

	return ack, nil
}

func parseAckKind(raw RawPacket) (AckKind, error) {
	var kind AckKind
	switch raw.Type {
	case PacketPUBACK:
		kind = AckPubAck
	case PacketPUBREC:
		kind = AckPubRec
	case PacketPUBREL:
		if raw.Flags != flagsReserved {
			return 0, ErrInvalidPacketFlags
		}
		return AckPubRel, nil
	case PacketPUBCOMP:
		kind = AckPubComp
	default:
		return 0, ErrInvalidPacketType
	}

	if raw.Flags != 0 {
		return 0, ErrInvalidPacketFlags
	}
	return kind, nil
}
