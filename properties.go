package mqttflow

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// PropertyID represents an MQTT v5.0 property identifier.
type PropertyID byte

// Properties that may appear in PUBLISH, the acknowledgements, SUBSCRIBE,
// UNSUBSCRIBE, their acks and DISCONNECT. CONNECT, CONNACK and AUTH only
// properties are rejected as unknown.
const (
	PropPayloadFormatIndicator PropertyID = 0x01
	PropMessageExpiryInterval  PropertyID = 0x02
	PropContentType            PropertyID = 0x03
	PropResponseTopic          PropertyID = 0x08
	PropCorrelationData        PropertyID = 0x09
	PropSubscriptionIdentifier PropertyID = 0x0B
	PropSessionExpiryInterval  PropertyID = 0x11
	PropServerReference        PropertyID = 0x1C
	PropReasonString           PropertyID = 0x1F
	PropTopicAlias             PropertyID = 0x23
	PropUserProperty           PropertyID = 0x26
)

// payloadFormatUTF8 is the PropPayloadFormatIndicator value for UTF-8 payloads.
const payloadFormatUTF8 byte = 0x01

// Property errors.
var (
	ErrUnknownPropertyID = errors.New("unknown property identifier")
	ErrPropertyOverflow  = errors.New("property exceeds declared property length")
)

// StringPair is a UTF-8 string pair, used for user properties.
type StringPair struct {
	Key   string
	Value string
}

// propertyCodec encodes and decodes the value of one property data type.
type propertyCodec struct {
	encode func(buf *bytes.Buffer, value any) error
	decode func(r *bytes.Reader) (any, error)
}

var (
	byteCodec = propertyCodec{
		encode: func(buf *bytes.Buffer, value any) error {
			b, _ := value.(byte)
			return buf.WriteByte(b)
		},
		decode: func(r *bytes.Reader) (any, error) {
			b, err := r.ReadByte()
			if err != nil {
				return nil, io.ErrUnexpectedEOF
			}
			return b, nil
		},
	}

	twoByteCodec = propertyCodec{
		encode: func(buf *bytes.Buffer, value any) error {
			v, _ := value.(uint16)
			encodeUint16(buf, v)
			return nil
		},
		decode: func(r *bytes.Reader) (any, error) { return decodeUint16(r) },
	}

	fourByteCodec = propertyCodec{
		encode: func(buf *bytes.Buffer, value any) error {
			v, _ := value.(uint32)
			buf.Write(binary.BigEndian.AppendUint32(nil, v))
			return nil
		},
		decode: func(r *bytes.Reader) (any, error) {
			var b [4]byte
			if _, err := io.ReadFull(r, b[:]); err != nil {
				return nil, io.ErrUnexpectedEOF
			}
			return binary.BigEndian.Uint32(b[:]), nil
		},
	}

	varintCodec = propertyCodec{
		encode: func(buf *bytes.Buffer, value any) error {
			v, _ := value.(uint32)
			return encodeVarint(buf, v)
		},
		decode: func(r *bytes.Reader) (any, error) { return decodeVarint(r) },
	}

	stringCodec = propertyCodec{
		encode: func(buf *bytes.Buffer, value any) error {
			s, _ := value.(string)
			return encodeString(buf, s)
		},
		decode: func(r *bytes.Reader) (any, error) { return decodeString(r) },
	}

	binaryCodec = propertyCodec{
		encode: func(buf *bytes.Buffer, value any) error {
			b, _ := value.([]byte)
			return encodeBinary(buf, b)
		},
		decode: func(r *bytes.Reader) (any, error) { return decodeBinary(r) },
	}

	stringPairCodec = propertyCodec{
		encode: func(buf *bytes.Buffer, value any) error {
			sp, _ := value.(StringPair)
			if err := encodeString(buf, sp.Key); err != nil {
				return err
			}
			return encodeString(buf, sp.Value)
		},
		decode: func(r *bytes.Reader) (any, error) {
			key, err := decodeString(r)
			if err != nil {
				return nil, err
			}
			value, err := decodeString(r)
			if err != nil {
				return nil, err
			}
			return StringPair{Key: key, Value: value}, nil
		},
	}
)

var propertyCodecs = map[PropertyID]propertyCodec{
	PropPayloadFormatIndicator: byteCodec,
	PropMessageExpiryInterval:  fourByteCodec,
	PropContentType:            stringCodec,
	PropResponseTopic:          stringCodec,
	PropCorrelationData:        binaryCodec,
	PropSubscriptionIdentifier: varintCodec,
	PropSessionExpiryInterval:  fourByteCodec,
	PropServerReference:        stringCodec,
	PropReasonString:           stringCodec,
	PropTopicAlias:             twoByteCodec,
	PropUserProperty:           stringPairCodec,
}

// Properties is an ordered collection of MQTT v5.0 properties.
// The zero value is empty and ready to use.
type Properties struct {
	props []property
}

type property struct {
	id    PropertyID
	value any
}

// Len returns the number of properties in the collection.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.props)
}

// Get returns the value of the first property with the given ID, or nil.
func (p *Properties) Get(id PropertyID) any {
	for i := range p.Len() {
		if p.props[i].id == id {
			return p.props[i].value
		}
	}
	return nil
}

// Set replaces the value of a property or appends it.
func (p *Properties) Set(id PropertyID, value any) {
	for i := range p.props {
		if p.props[i].id == id {
			p.props[i].value = value
			return
		}
	}
	p.props = append(p.props, property{id: id, value: value})
}

// GetByte returns the byte value of a property, or 0 if not found.
func (p *Properties) GetByte(id PropertyID) byte {
	b, _ := p.Get(id).(byte)
	return b
}

// GetString returns the string value of a property, or "" if not found.
func (p *Properties) GetString(id PropertyID) string {
	s, _ := p.Get(id).(string)
	return s
}

// encode appends the property length and the properties.
func (p *Properties) encode(buf *bytes.Buffer) error {
	var body bytes.Buffer
	for i := range p.Len() {
		prop := p.props[i]
		codec, ok := propertyCodecs[prop.id]
		if !ok {
			return ErrUnknownPropertyID
		}
		body.WriteByte(byte(prop.id))
		if err := codec.encode(&body, prop.value); err != nil {
			return err
		}
	}

	if err := encodeVarint(buf, uint32(body.Len())); err != nil {
		return err
	}
	buf.Write(body.Bytes())
	return nil
}

// decode reads the property length and the properties.
func (p *Properties) decode(r *bytes.Reader) error {
	length, err := decodeVarint(r)
	if err != nil {
		return err
	}
	if int(length) > r.Len() {
		return io.ErrUnexpectedEOF
	}

	end := r.Len() - int(length)
	for r.Len() > end {
		id, _ := r.ReadByte()
		codec, ok := propertyCodecs[PropertyID(id)]
		if !ok {
			return ErrUnknownPropertyID
		}

		value, err := codec.decode(r)
		if err != nil {
			return err
		}
		if r.Len() < end {
			return ErrPropertyOverflow
		}

		p.props = append(p.props, property{id: PropertyID(id), value: value})
	}
	return nil
}
