package mqttflow

import (
	"bytes"
	"io"
	"unicode/utf8"
)

// Publish represents an MQTT PUBLISH packet.
type Publish struct {
	// Message is the application message carried by the packet.
	Message Message

	// PacketID is the packet identifier. Zero means absent, which is
	// required for QoS 0 and forbidden otherwise.
	PacketID uint16

	// DUP indicates a retransmission.
	DUP bool
}

// Type returns the packet type.
func (p *Publish) Type() PacketType { return PacketPUBLISH }

// GetPacketID returns the packet identifier.
func (p *Publish) GetPacketID() uint16 { return p.PacketID }

// Validate checks the QoS level against the packet identifier.
func (p *Publish) Validate() error {
	if !p.Message.QoS.Valid() {
		return ErrInvalidQoS
	}
	if p.Message.QoS > QoS0 && p.PacketID == 0 {
		return ErrPacketIDRequired
	}
	if p.Message.QoS == QoS0 && p.PacketID != 0 {
		return ErrPacketIDNotAllowed
	}
	return nil
}

// Serialize encodes topic, optional packet identifier, properties (MQTT 5.0 only)
// and payload, in that order.
func (p *Publish) Serialize(version ProtocolVersion) (RawPacket, error) {
	if err := p.Validate(); err != nil {
		return RawPacket{}, err
	}

	var buf bytes.Buffer
	if err := encodeString(&buf, p.Message.Topic); err != nil {
		return RawPacket{}, err
	}

	if p.Message.QoS > QoS0 {
		encodeUint16(&buf, p.PacketID)
	}

	if version == ProtocolV5 {
		props := publishProperties(p.Message.Payload)
		if err := props.encode(&buf); err != nil {
			return RawPacket{}, err
		}
	}

	buf.Write(p.Message.Payload.Bytes())

	return RawPacket{
		Type:  PacketPUBLISH,
		Flags: publishFlags(p.Message.QoS, p.Message.Retain, p.DUP),
		Body:  buf.Bytes(),
	}, nil
}

func publishProperties(payload Payload) *Properties {
	var props Properties
	if payload.Kind() == PayloadString {
		props.Set(PropPayloadFormatIndicator, payloadFormatUTF8)
		if contentType, ok := payload.ContentType(); ok {
			props.Set(PropContentType, contentType)
		}
	}
	return &props
}

// ParsePublish decodes a PUBLISH envelope.
func ParsePublish(raw RawPacket, version ProtocolVersion) (*Publish, error) {
	if raw.Type != PacketPUBLISH {
		return nil, newParseError(raw.Type, ErrInvalidPacketType)
	}

	qos, retain, dup, err := parsePublishFlags(raw.Flags)
	if err != nil {
		return nil, newParseError(raw.Type, err)
	}

	r := bytes.NewReader(raw.Body)
	topic, err := decodeString(r)
	if err != nil {
		return nil, newParseError(raw.Type, err)
	}

	var packetID uint16
	if qos > QoS0 {
		packetID, err = decodePacketID(r)
		if err != nil {
			return nil, newParseError(raw.Type, err)
		}
	}

	var props Properties
	if version == ProtocolV5 {
		if err := props.decode(r); err != nil {
			return nil, newParseError(raw.Type, err)
		}
	}

	payload, err := parsePayload(r, &props)
	if err != nil {
		return nil, newParseError(raw.Type, err)
	}

	return &Publish{
		Message: Message{
			Topic:   topic,
			Payload: payload,
			QoS:     qos,
			Retain:  retain,
		},
		PacketID: packetID,
		DUP:      dup,
	}, nil
}

// parsePayload treats the remaining bytes as payload. A UTF-8 payload format
// indicator turns them back into a string payload.
func parsePayload(r *bytes.Reader, props *Properties) (Payload, error) {
	if r.Len() == 0 {
		return EmptyPayload(), nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return Payload{}, err
	}

	if props.GetByte(PropPayloadFormatIndicator) != payloadFormatUTF8 {
		return BytesPayload(data), nil
	}

	if !utf8.Valid(data) {
		return Payload{}, ErrInvalidUTF8
	}
	return StringPayload(string(data)).WithContentType(props.GetString(PropContentType)), nil
}
