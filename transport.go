package mqttflow

import (
	"io"
	"sync"
	"time"
)

// Transport carries demarcated packets to the broker.
// Establishing the connection and the CONNECT handshake are done by its owner.
type Transport interface {
	// WritePacket sends one packet.
	WritePacket(raw RawPacket) error

	// Close closes the underlying connection.
	Close() error
}

// deadliner is implemented by net.Conn.
type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// StreamTransport frames packets over a byte stream such as a net.Conn.
type StreamTransport struct {
	rw           io.ReadWriteCloser
	reader       io.ByteReader
	maxSize      uint32
	writeTimeout time.Duration

	writeMu sync.Mutex
}

// NewStreamTransport wraps rw. Inbound packets with bodies larger than maxSize
// are rejected; zero disables the limit.
func NewStreamTransport(rw io.ReadWriteCloser, maxSize uint32) *StreamTransport {
	return &StreamTransport{
		rw:      rw,
		reader:  newFrameReader(rw),
		maxSize: maxSize,
	}
}

// SetWriteTimeout bounds every write when the stream supports deadlines.
func (t *StreamTransport) SetWriteTimeout(d time.Duration) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.writeTimeout = d
}

// WritePacket writes the fixed header and body of raw.
func (t *StreamTransport) WritePacket(raw RawPacket) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if d, ok := t.rw.(deadliner); ok && t.writeTimeout > 0 {
		_ = d.SetWriteDeadline(time.Now().Add(t.writeTimeout))
		defer func() { _ = d.SetWriteDeadline(time.Time{}) }()
	}

	_, err := WriteRawPacket(t.rw, raw, 0)
	return err
}

// ReadPacket reads the next packet from the stream. It must be called from a
// single goroutine.
func (t *StreamTransport) ReadPacket() (RawPacket, error) {
	return ReadRawPacket(t.reader, t.maxSize)
}

// Close closes the stream.
func (t *StreamTransport) Close() error {
	return t.rw.Close()
}

// Serve feeds every packet read from t into conn until the stream fails.
// A read error reports the connection as disconnected; malformed packets
// tear it down. The read error is returned.
func (t *StreamTransport) Serve(conn *Conn) error {
	for {
		raw, err := t.ReadPacket()
		if err != nil {
			conn.connectionLost(err)
			return err
		}
		if err := conn.HandlePacket(raw); err != nil {
			return err
		}
	}
}
