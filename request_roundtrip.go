package mqttflow

import "time"

// roundTrip is the resend-once policy shared by SUBSCRIBE, UNSUBSCRIBE and PINGREQ:
// the first timeout resends the packet, the second one fails the request.
type roundTrip struct {
	timer  resendTimer
	resent bool
}

func newRoundTrip(timeout time.Duration) roundTrip {
	return roundTrip{timer: resendTimer{interval: timeout}}
}

// expire handles a timeout event. It returns true when the request must fail.
// Unrelated events and the first timeout return false, the latter after resending.
func (rt *roundTrip) expire(ctx RequestContext, event any, resend func()) bool {
	if !rt.timer.fired(event) {
		return false
	}
	if rt.resent {
		return true
	}
	rt.resent = true
	resend()
	rt.timer.arm(ctx)
	return false
}

// restart sends again on a fresh connection, with a fresh resend allowance.
func (rt *roundTrip) restart(ctx RequestContext, send func()) {
	rt.resent = false
	send()
	rt.timer.arm(ctx)
}

// SubscribeRequest subscribes to topic filters and yields one reason code per filter.
type SubscribeRequest struct {
	subscriptions []Subscription
	packetID      uint16
	rt            roundTrip
}

// NewSubscribeRequest creates a subscribe request. A zero timeout waits indefinitely.
func NewSubscribeRequest(timeout time.Duration, subs ...Subscription) *SubscribeRequest {
	return &SubscribeRequest{
		subscriptions: subs,
		rt:            newRoundTrip(timeout),
	}
}

// PacketID returns the assigned packet identifier.
func (r *SubscribeRequest) PacketID() uint16 { return r.packetID }

func (r *SubscribeRequest) Start(ctx RequestContext) Result[[]ReasonCode] {
	if len(r.subscriptions) == 0 {
		return Failure[[]ReasonCode](ErrNoSubscriptions)
	}

	id, err := ctx.NextPacketID()
	if err != nil {
		return Failure[[]ReasonCode](err)
	}
	r.packetID = id

	r.rt.restart(ctx, func() { r.send(ctx) })
	return Pending[[]ReasonCode]()
}

func (r *SubscribeRequest) Process(_ RequestContext, packet Packet) Result[[]ReasonCode] {
	ack, ok := packet.(*SubAck)
	if !ok || ack.PacketID != r.packetID {
		return Pending[[]ReasonCode]()
	}
	r.rt.timer.cancel()
	return Success(ack.ReasonCodes)
}

func (r *SubscribeRequest) HandleEvent(ctx RequestContext, event any) Result[[]ReasonCode] {
	if r.rt.expire(ctx, event, func() { r.send(ctx) }) {
		return Failure[[]ReasonCode](ErrRequestTimeout)
	}
	return Pending[[]ReasonCode]()
}

func (r *SubscribeRequest) Connected(ctx RequestContext, _ bool) Result[[]ReasonCode] {
	r.rt.restart(ctx, func() { r.send(ctx) })
	return Pending[[]ReasonCode]()
}

func (r *SubscribeRequest) Disconnected(_ RequestContext) Result[[]ReasonCode] {
	r.rt.timer.cancel()
	return Pending[[]ReasonCode]()
}

func (r *SubscribeRequest) send(ctx RequestContext) {
	ctx.Write(&Subscribe{PacketID: r.packetID, Subscriptions: r.subscriptions})
}

// UnsubscribeRequest removes topic filters. Under MQTT 3.1.1, where UNSUBACK
// carries no reason codes, it yields one success code per filter.
type UnsubscribeRequest struct {
	filters  []string
	packetID uint16
	rt       roundTrip
}

// NewUnsubscribeRequest creates an unsubscribe request. A zero timeout waits indefinitely.
func NewUnsubscribeRequest(timeout time.Duration, filters ...string) *UnsubscribeRequest {
	return &UnsubscribeRequest{
		filters: filters,
		rt:      newRoundTrip(timeout),
	}
}

// PacketID returns the assigned packet identifier.
func (r *UnsubscribeRequest) PacketID() uint16 { return r.packetID }

func (r *UnsubscribeRequest) Start(ctx RequestContext) Result[[]ReasonCode] {
	if len(r.filters) == 0 {
		return Failure[[]ReasonCode](ErrNoSubscriptions)
	}

	id, err := ctx.NextPacketID()
	if err != nil {
		return Failure[[]ReasonCode](err)
	}
	r.packetID = id

	r.rt.restart(ctx, func() { r.send(ctx) })
	return Pending[[]ReasonCode]()
}

func (r *UnsubscribeRequest) Process(_ RequestContext, packet Packet) Result[[]ReasonCode] {
	ack, ok := packet.(*UnsubAck)
	if !ok || ack.PacketID != r.packetID {
		return Pending[[]ReasonCode]()
	}
	r.rt.timer.cancel()

	codes := ack.ReasonCodes
	if len(codes) == 0 {
		codes = make([]ReasonCode, len(r.filters))
	}
	return Success(codes)
}

func (r *UnsubscribeRequest) HandleEvent(ctx RequestContext, event any) Result[[]ReasonCode] {
	if r.rt.expire(ctx, event, func() { r.send(ctx) }) {
		return Failure[[]ReasonCode](ErrRequestTimeout)
	}
	return Pending[[]ReasonCode]()
}

func (r *UnsubscribeRequest) Connected(ctx RequestContext, _ bool) Result[[]ReasonCode] {
	r.rt.restart(ctx, func() { r.send(ctx) })
	return Pending[[]ReasonCode]()
}

func (r *UnsubscribeRequest) Disconnected(_ RequestContext) Result[[]ReasonCode] {
	r.rt.timer.cancel()
	return Pending[[]ReasonCode]()
}

func (r *UnsubscribeRequest) send(ctx RequestContext) {
	ctx.Write(&Unsubscribe{PacketID: r.packetID, TopicFilters: r.filters})
}

// PingRequest sends PINGREQ and waits for PINGRESP. It fails as soon as the
// connection drops, since a ping only proves liveness of the current connection.
type PingRequest struct {
	rt roundTrip
}

// NewPingRequest creates a ping request. A zero timeout waits indefinitely.
func NewPingRequest(timeout time.Duration) *PingRequest {
	return &PingRequest{rt: newRoundTrip(timeout)}
}

func (r *PingRequest) Start(ctx RequestContext) Result[struct{}] {
	r.rt.restart(ctx, func() { ctx.Write(&PingReq{}) })
	return Pending[struct{}]()
}

func (r *PingRequest) Process(_ RequestContext, packet Packet) Result[struct{}] {
	if _, ok := packet.(*PingResp); !ok {
		return Pending[struct{}]()
	}
	r.rt.timer.cancel()
	return Success(struct{}{})
}

func (r *PingRequest) HandleEvent(ctx RequestContext, event any) Result[struct{}] {
	if r.rt.expire(ctx, event, func() { ctx.Write(&PingReq{}) }) {
		return Failure[struct{}](ErrRequestTimeout)
	}
	return Pending[struct{}]()
}

func (r *PingRequest) Connected(_ RequestContext, _ bool) Result[struct{}] {
	return Pending[struct{}]()
}

func (r *PingRequest) Disconnected(_ RequestContext) Result[struct{}] {
	r.rt.timer.cancel()
	return Failure[struct{}](ErrNotConnected)
}
