package mqttflow

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"unicode/utf8"
)

// Encoding errors.
var (
	ErrStringTooLong      = errors.New("string exceeds maximum length of 65535 bytes")
	ErrBinaryTooLong      = errors.New("binary data exceeds maximum length of 65535 bytes")
	ErrInvalidUTF8        = errors.New("invalid UTF-8 string")
	ErrStringContainsNull = errors.New("string contains null character")
	ErrVarintTooLarge     = errors.New("variable byte integer exceeds maximum value")
	ErrVarintMalformed    = errors.New("malformed variable byte integer")
)

const (
	maxUint16         = 65535
	maxVarint         = 268435455 // 0x0FFFFFFF
	varintContinueBit = 0x80
	varintValueMask   = 0x7F
)

// encodeString appends a UTF-8 string with 2-byte big-endian length prefix.
func encodeString(buf *bytes.Buffer, s string) error {
	if len(s) > maxUint16 {
		return ErrStringTooLong
	}
	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}
	if containsNull(s) {
		return ErrStringContainsNull
	}

	encodeUint16(buf, uint16(len(s)))
	buf.WriteString(s)
	return nil
}

// decodeString reads a UTF-8 string with 2-byte big-endian length prefix.
// A length prefix pointing past the end of the body is io.ErrUnexpectedEOF.
func decodeString(r *bytes.Reader) (string, error) {
	length, err := decodeUint16(r)
	if err != nil {
		return "", err
	}
	if length == 0 {
		return "", nil
	}
	if int(length) > r.Len() {
		return "", io.ErrUnexpectedEOF
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}

	s := string(buf)
	if !utf8.ValidString(s) {
		return "", ErrInvalidUTF8
	}
	if containsNull(s) {
		return "", ErrStringContainsNull
	}
	return s, nil
}

func containsNull(s string) bool {
	for i := range len(s) {
		if s[i] == 0 {
			return true
		}
	}
	return false
}

// encodeBinary appends binary data with 2-byte big-endian length prefix.
func encodeBinary(buf *bytes.Buffer, data []byte) error {
	if len(data) > maxUint16 {
		return ErrBinaryTooLong
	}
	encodeUint16(buf, uint16(len(data)))
	buf.Write(data)
	return nil
}

// decodeBinary reads binary data with 2-byte big-endian length prefix.
func decodeBinary(r *bytes.Reader) ([]byte, error) {
	length, err := decodeUint16(r)
	if err != nil {
		return nil, err
	}
	if int(length) > r.Len() {
		return nil, io.ErrUnexpectedEOF
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// encodeUint16 appends a 2-byte big-endian integer.
func encodeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

// decodeUint16 reads a 2-byte big-endian integer.
func decodeUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// decodePacketID reads a packet identifier. Truncation and zero are both rejected.
func decodePacketID(r *bytes.Reader) (uint16, error) {
	id, err := decodeUint16(r)
	if err != nil {
		return 0, ErrMissingPacketID
	}
	if id == 0 {
		return 0, ErrInvalidPacketID
	}
	return id, nil
}

// encodeVarint appends a variable byte integer.
func encodeVarint(buf *bytes.Buffer, value uint32) error {
	if value > maxVarint {
		return ErrVarintTooLarge
	}

	for {
		encodedByte := byte(value & varintValueMask)
		value >>= 7
		if value > 0 {
			encodedByte |= varintContinueBit
		}
		buf.WriteByte(encodedByte)
		if value == 0 {
			return nil
		}
	}
}

// decodeVarint reads a variable byte integer of at most four bytes.
func decodeVarint(r *bytes.Reader) (uint32, error) {
	var value uint32
	var multiplier uint32 = 1

	for i := 0; ; i++ {
		if i == 4 {
			return 0, ErrVarintMalformed
		}

		encodedByte, err := r.ReadByte()
		if err != nil {
			return 0, io.ErrUnexpectedEOF
		}

		value += uint32(encodedByte&varintValueMask) * multiplier
		if encodedByte&varintContinueBit == 0 {
			return value, nil
		}
		multiplier *= 128
	}
}

// varintSize returns the number of bytes needed to encode a variable byte integer.
func varintSize(value uint32) int {
	switch {
	case value < 128:
		return 1
	case value < 16384:
		return 2
	case value < 2097152:
		return 3
	default:
		return 4
	}
}
