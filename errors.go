package mqttflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for packet encoding and decoding - check with errors.Is().
var (
	// ErrMalformedPacket is the base of every ParseError.
	ErrMalformedPacket = errors.New("malformed packet")

	ErrInvalidPacketType          = errors.New("invalid packet type")
	ErrInvalidPacketFlags         = errors.New("invalid packet flags")
	ErrInvalidQoS                 = errors.New("invalid QoS level")
	ErrMissingPacketID            = errors.New("missing packet identifier")
	ErrInvalidPacketID            = errors.New("invalid packet identifier")
	ErrUnsupportedProtocolVersion = errors.New("unsupported protocol version")
)

// Sentinel errors for caller misuse when building outbound packets.
var (
	// ErrPacketIDRequired is returned when a QoS > 0 PUBLISH has no packet identifier.
	ErrPacketIDRequired = errors.New("packet identifier required for QoS > 0")

	// ErrPacketIDNotAllowed is returned when a QoS 0 PUBLISH carries a packet identifier.
	ErrPacketIDNotAllowed = errors.New("packet identifier not allowed for QoS 0")

	// ErrNoSubscriptions is returned for a SUBSCRIBE or UNSUBSCRIBE without topic filters.
	ErrNoSubscriptions = errors.New("at least one topic filter required")
)

// Sentinel errors for request outcomes - check with errors.Is().
var (
	// ErrSessionCleared is returned when a QoS 2 publish had already been
	// released with PUBREL and the broker did not resume the session.
	ErrSessionCleared = errors.New("session cleared before publish completed")

	// ErrRequestTimeout is returned when a request got no response after its retry.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrRequestAbandoned is returned when the caller gave up on a pending request.
	ErrRequestAbandoned = errors.New("request abandoned")

	// ErrPublishFailed is the base of every PublishError.
	ErrPublishFailed = errors.New("publish failed")
)

// Sentinel events and errors for the connection lifecycle.
var (
	// ErrConnected is emitted when the collaborator reports an established connection.
	ErrConnected = errors.New("connected")

	// ErrDisconnected is emitted when the connection drops or is closed.
	ErrDisconnected = errors.New("disconnected")

	// ErrConnectionLost is the base of every ConnectionLostError.
	ErrConnectionLost = errors.New("connection lost")

	// ErrKeepAliveTimeout is the cause of a connection loss from a failed ping.
	ErrKeepAliveTimeout = errors.New("keep-alive timeout")

	// ErrNotConnected is returned when an operation requires an active connection.
	ErrNotConnected = errors.New("not connected")

	// ErrClientClosed is returned when an operation is attempted on a closed connection.
	ErrClientClosed = errors.New("client closed")
)

// EventHandler receives connection lifecycle events.
type EventHandler func(conn *Conn, event error)

// ParseError describes a malformed inbound packet.
// It matches ErrMalformedPacket and its cause with errors.Is().
type ParseError struct {
	err        error
	PacketType PacketType
	Cause      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed %s packet: %v", e.PacketType, e.Cause)
}

func (e *ParseError) Unwrap() []error { return []error{e.err, e.Cause} }

// newParseError creates a ParseError for the given packet type.
func newParseError(packetType PacketType, cause error) *ParseError {
	return &ParseError{
		err:        ErrMalformedPacket,
		PacketType: packetType,
		Cause:      cause,
	}
}

// PublishError contains details about a publish rejected by the broker.
// Extract with errors.As().
type PublishError struct {
	err        error
	Topic      string
	PacketID   uint16
	ReasonCode ReasonCode
}

func (e *PublishError) Error() string {
	return "publish failed: " + e.ReasonCode.String()
}

func (e *PublishError) Unwrap() error { return e.err }

// NewPublishError creates a new PublishError.
func NewPublishError(topic string, packetID uint16, reason ReasonCode) *PublishError {
	return &PublishError{
		err:        ErrPublishFailed,
		Topic:      topic,
		PacketID:   packetID,
		ReasonCode: reason,
	}
}

// ConnectionLostError contains details about an unexpected disconnection.
// Extract with errors.As().
type ConnectionLostError struct {
	err   error
	Cause error
}

func (e *ConnectionLostError) Error() string {
	if e.Cause != nil {
		return "connection lost: " + e.Cause.Error()
	}
	return "connection lost"
}

func (e *ConnectionLostError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.err}
	}
	return []error{e.err, e.Cause}
}

// NewConnectionLostError creates a new ConnectionLostError.
func NewConnectionLostError(cause error) *ConnectionLostError {
	return &ConnectionLostError{
		err:   ErrConnectionLost,
		Cause: cause,
	}
}
