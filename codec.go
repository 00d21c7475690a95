package mqttflow

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

var (
	ErrPacketTooLarge    = errors.New("packet exceeds maximum size")
	ErrUnknownPacketType = errors.New("unknown packet type")
)

// ParseInbound decodes a raw envelope received from the broker into its typed packet.
// Packet kinds a client never receives are rejected as malformed.
func ParseInbound(raw RawPacket, version ProtocolVersion) (Packet, error) {
	if !version.Valid() {
		return nil, ErrUnsupportedProtocolVersion
	}

	switch raw.Type {
	case PacketPUBLISH:
		return ParsePublish(raw, version)
	case PacketPUBACK, PacketPUBREC, PacketPUBREL, PacketPUBCOMP:
		return ParseAcknowledgement(raw, version)
	case PacketSUBACK:
		return ParseSubAck(raw, version)
	case PacketUNSUBACK:
		return ParseUnsubAck(raw, version)
	case PacketPINGRESP:
		return ParsePingResp(raw, version)
	case PacketCONNECT, PacketSUBSCRIBE, PacketUNSUBSCRIBE, PacketPINGREQ:
		return nil, newParseError(raw.Type, ErrInvalidPacketType)
	default:
		return nil, newParseError(raw.Type, ErrUnknownPacketType)
	}
}

// ReadRawPacket reads one fixed header and body from a byte stream.
// If maxSize is greater than 0, bodies larger than maxSize return ErrPacketTooLarge.
func ReadRawPacket(r io.ByteReader, maxSize uint32) (RawPacket, error) {
	first, err := r.ReadByte()
	if err != nil {
		return RawPacket{}, err
	}

	length, err := readVarint(r)
	if err != nil {
		return RawPacket{}, err
	}
	if maxSize > 0 && length > maxSize {
		return RawPacket{}, ErrPacketTooLarge
	}

	raw := RawPacket{
		Type:  PacketType(first >> 4),
		Flags: first & 0x0F,
	}
	if length == 0 {
		return raw, nil
	}

	raw.Body = make([]byte, length)
	if br, ok := r.(io.Reader); ok {
		if _, err := io.ReadFull(br, raw.Body); err != nil {
			return RawPacket{}, io.ErrUnexpectedEOF
		}
		return raw, nil
	}
	for i := range raw.Body {
		if raw.Body[i], err = r.ReadByte(); err != nil {
			return RawPacket{}, io.ErrUnexpectedEOF
		}
	}
	return raw, nil
}

func readVarint(r io.ByteReader) (uint32, error) {
	var value uint32
	var multiplier uint32 = 1

	for i := range 4 {
		b, err := r.ReadByte()
		if err != nil {
			if i == 0 && errors.Is(err, io.EOF) {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		value += uint32(b&varintValueMask) * multiplier
		if b&varintContinueBit == 0 {
			return value, nil
		}
		multiplier *= 128
	}
	return 0, ErrVarintMalformed
}

// WriteRawPacket writes the fixed header and body of a raw envelope.
// If maxSize is greater than 0, bodies larger than maxSize return ErrPacketTooLarge.
func WriteRawPacket(w io.Writer, raw RawPacket, maxSize uint32) (int, error) {
	if !raw.Type.Valid() {
		return 0, ErrInvalidPacketType
	}
	if maxSize > 0 && uint32(len(raw.Body)) > maxSize {
		return 0, ErrPacketTooLarge
	}

	var buf bytes.Buffer
	buf.Grow(1 + varintSize(uint32(len(raw.Body))) + len(raw.Body))
	buf.WriteByte(byte(raw.Type)<<4 | raw.Flags&0x0F)
	if err := encodeVarint(&buf, uint32(len(raw.Body))); err != nil {
		return 0, err
	}
	buf.Write(raw.Body)

	return w.Write(buf.Bytes())
}

// newFrameReader buffers r unless it already supports byte reads.
func newFrameReader(r io.Reader) io.ByteReader {
	if br, ok := r.(io.ByteReader); ok {
		return br
	}
	return bufio.NewReader(r)
}
