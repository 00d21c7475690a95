package mqttflow

import (
	"strconv"
	"unicode/utf8"
)

// PayloadKind identifies how a payload was constructed.
type PayloadKind byte

const (
	// PayloadEmpty is a payload without content.
	PayloadEmpty PayloadKind = iota
	// PayloadBytes is a payload of raw bytes.
	PayloadBytes
	// PayloadString is a UTF-8 payload with an optional content type.
	PayloadString
)

// String returns the string representation of the payload kind.
func (k PayloadKind) String() string {
	switch k {
	case PayloadEmpty:
		return "empty"
	case PayloadBytes:
		return "bytes"
	case PayloadString:
		return "string"
	default:
		return "unknown"
	}
}

// Payload is the content of an MQTT message.
// The zero value is an empty payload. Payloads are immutable values.
type Payload struct {
	kind        PayloadKind
	data        []byte
	text        string
	contentType string
}

// EmptyPayload returns a payload without content.
func EmptyPayload() Payload {
	return Payload{}
}

// BytesPayload returns a payload holding a copy of b.
// An empty b yields an empty payload.
func BytesPayload(b []byte) Payload {
	if len(b) == 0 {
		return Payload{}
	}
	data := make([]byte, len(b))
	copy(data, b)
	return Payload{kind: PayloadBytes, data: data}
}

// StringPayload returns a UTF-8 payload without a content type.
func StringPayload(s string) Payload {
	return Payload{kind: PayloadString, text: s}
}

// WithContentType returns a copy of a string payload carrying the content type.
// Other payload kinds are returned unchanged.
func (p Payload) WithContentType(contentType string) Payload {
	if p.kind != PayloadString {
		return p
	}
	p.contentType = contentType
	return p
}

// Kind returns how the payload was constructed.
func (p Payload) Kind() PayloadKind {
	return p.kind
}

// IsEmpty returns true for an empty payload.
func (p Payload) IsEmpty() bool {
	return p.kind == PayloadEmpty
}

// Len returns the encoded size of the payload in bytes.
func (p Payload) Len() int {
	switch p.kind {
	case PayloadBytes:
		return len(p.data)
	case PayloadString:
		return len(p.text)
	default:
		return 0
	}
}

// Bytes returns the wire bytes of the payload. The result must not be modified.
func (p Payload) Bytes() []byte {
	switch p.kind {
	case PayloadBytes:
		return p.data
	case PayloadString:
		return []byte(p.text)
	default:
		return nil
	}
}

// Text returns the payload as a string.
// Byte payloads are decoded as UTF-8; ok is false for an empty payload
// or bytes that are not valid UTF-8.
func (p Payload) Text() (string, bool) {
	switch p.kind {
	case PayloadBytes:
		if !utf8.Valid(p.data) {
			return "", false
		}
		return string(p.data), true
	case PayloadString:
		return p.text, true
	default:
		return "", false
	}
}

// ContentType returns the content type of a string payload.
// ok is false for empty and byte payloads, and for strings without one.
func (p Payload) ContentType() (string, bool) {
	if p.kind != PayloadString || p.contentType == "" {
		return "", false
	}
	return p.contentType, true
}

// String returns a short description suitable for logs.
func (p Payload) String() string {
	switch p.kind {
	case PayloadBytes:
		if len(p.data) == 1 {
			return "1 byte"
		}
		return strconv.Itoa(len(p.data)) + " bytes"
	case PayloadString:
		if p.contentType != "" {
			return p.contentType + ": " + p.text
		}
		return p.text
	default:
		return "empty"
	}
}
