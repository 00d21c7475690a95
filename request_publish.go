package mqttflow

import "time"

type publishPhase int

const (
	publishIdle publishPhase = iota
	publishAwaitingPubAck
	publishAwaitingPubRec
	publishAwaitingPubComp
	publishDone
)

func (p publishPhase) String() string {
	switch p {
	case publishIdle:
		return "idle"
	case publishAwaitingPubAck:
		return "awaiting PUBACK"
	case publishAwaitingPubRec:
		return "awaiting PUBREC"
	case publishAwaitingPubComp:
		return "awaiting PUBCOMP"
	case publishDone:
		return "done"
	default:
		return "unknown"
	}
}

// PublishRequest delivers one application message with its QoS handshake.
//
// QoS 0 completes on the first write. QoS 1 waits for PUBACK. QoS 2 waits for
// PUBREC, answers with PUBREL and waits for PUBCOMP. The last unacknowledged
// packet is resent whenever the retry interval elapses and after a reconnect.
type PublishRequest struct {
	message  Message
	phase    publishPhase
	packetID uint16
	retry    resendTimer
}

// NewPublishRequest creates a publish request. A zero retry interval sends
// each packet once per connection.
func NewPublishRequest(msg Message, retryInterval time.Duration) *PublishRequest {
	return &PublishRequest{
		message: msg,
		retry:   resendTimer{interval: retryInterval},
	}
}

// Message returns the message being published.
func (r *PublishRequest) Message() Message { return r.message }

// PacketID returns the assigned packet identifier, zero before start and for QoS 0.
func (r *PublishRequest) PacketID() uint16 { return r.packetID }

// AcknowledgedPub returns true once PUBREC was received for a QoS 2 publish.
func (r *PublishRequest) AcknowledgedPub() bool { return r.phase == publishAwaitingPubComp }

// usesSendQuota reports whether the request occupies a receive maximum slot.
func (r *PublishRequest) usesSendQuota() bool { return r.message.QoS > QoS0 }

// Start writes the PUBLISH packet. An invalid QoS fails before any packet
// identifier is taken.
func (r *PublishRequest) Start(ctx RequestContext) Result[struct{}] {
	if r.phase != publishIdle {
		return Pending[struct{}]()
	}

	if !r.message.QoS.Valid() {
		r.phase = publishDone
		return Failure[struct{}](ErrInvalidQoS)
	}

	if r.message.QoS == QoS0 {
		r.phase = publishDone
		ctx.Write(&Publish{Message: r.message})
		return Success(struct{}{})
	}

	id, err := ctx.NextPacketID()
	if err != nil {
		r.phase = publishDone
		return Failure[struct{}](err)
	}
	r.packetID = id

	if r.message.QoS == QoS1 {
		r.phase = publishAwaitingPubAck
	} else {
		r.phase = publishAwaitingPubRec
	}

	ctx.Write(&Publish{Message: r.message, PacketID: id})
	r.retry.arm(ctx)
	return Pending[struct{}]()
}

// Process advances the handshake on a correlated acknowledgement.
func (r *PublishRequest) Process(ctx RequestContext, packet Packet) Result[struct{}] {
	ack, ok := packet.(*Acknowledgement)
	if !ok || r.packetID == 0 || ack.PacketID != r.packetID {
		return Pending[struct{}]()
	}

	switch {
	case ack.Kind == AckPubAck && r.phase == publishAwaitingPubAck:
		return r.finish(ack.ReasonCode)

	case ack.Kind == AckPubRec && (r.phase == publishAwaitingPubRec || r.phase == publishAwaitingPubComp):
		r.retry.cancel()
		if ack.ReasonCode.IsError() {
			return r.finish(ack.ReasonCode)
		}
		r.phase = publishAwaitingPubComp
		r.send(ctx)
		r.retry.arm(ctx)
		return Pending[struct{}]()

	case ack.Kind == AckPubComp && r.phase == publishAwaitingPubComp:
		return r.finish(ack.ReasonCode)
	}

	return Pending[struct{}]()
}

// HandleEvent resends the last unacknowledged packet when the retry timer fires.
func (r *PublishRequest) HandleEvent(ctx RequestContext, event any) Result[struct{}] {
	if !r.retry.fired(event) || !r.inFlight() {
		return Pending[struct{}]()
	}

	ctx.Logger().Debug("publish retry", LogFields{
		LogFieldPacketID: r.packetID,
		LogFieldPhase:    r.phase.String(),
	})
	r.send(ctx)
	r.retry.arm(ctx)
	return Pending[struct{}]()
}

// Connected replays the current phase. A QoS 2 publish already released
// with PUBREL cannot continue in a new session and fails.
func (r *PublishRequest) Connected(ctx RequestContext, sessionPresent bool) Result[struct{}] {
	if !r.inFlight() {
		return Pending[struct{}]()
	}

	if !sessionPresent && r.phase == publishAwaitingPubComp {
		r.retry.cancel()
		r.phase = publishDone
		return Failure[struct{}](ErrSessionCleared)
	}

	r.send(ctx)
	r.retry.arm(ctx)
	return Pending[struct{}]()
}

// Disconnected stops retrying and keeps the packet identifier and phase.
func (r *PublishRequest) Disconnected(_ RequestContext) Result[struct{}] {
	r.retry.cancel()
	return Pending[struct{}]()
}

func (r *PublishRequest) inFlight() bool {
	return r.phase > publishIdle && r.phase < publishDone
}

// send writes the packet the current phase is waiting on an answer for.
func (r *PublishRequest) send(ctx RequestContext) {
	if r.phase == publishAwaitingPubComp {
		ctx.Write(&Acknowledgement{Kind: AckPubRel, PacketID: r.packetID})
		return
	}
	ctx.Write(&Publish{Message: r.message, PacketID: r.packetID, DUP: true})
}

func (r *PublishRequest) finish(reason ReasonCode) Result[struct{}] {
	r.retry.cancel()
	r.phase = publishDone
	if reason.IsError() {
		return Failure[struct{}](NewPublishError(r.message.Topic, r.packetID, reason))
	}
	return Success(struct{}{})
}
