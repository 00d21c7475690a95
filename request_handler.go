package mqttflow

import (
	"slices"
	"time"
)

// RequestHandler owns the outstanding requests of one connection.
//
// It hands each request a RequestContext, routes inbound packets and
// lifecycle signals to every pending request in submission order, and
// releases packet IDs and timers when a request terminates. It also answers
// inbound publishes from the broker.
//
// A RequestHandler is not safe for concurrent use; every method must be
// called from the connection's event loop.
type RequestHandler struct {
	send      func(OutboundPacket) error
	scheduler Scheduler
	opts      *connOptions
	logger    Logger
	metrics   connMetrics

	ids     *PacketIDManager
	flow    *FlowController
	inbound *qos2Inbound

	active    []*requestEntry
	queued    []*requestEntry
	seq       uint64
	connected bool

	now func() time.Time
}

// NewRequestHandler creates a request handler writing packets through send
// and arming timers on scheduler. An error from send means the packet was not
// sent; the request that wrote it fails with that error.
func NewRequestHandler(send func(OutboundPacket) error, scheduler Scheduler, opts ...Option) *RequestHandler {
	return newRequestHandler(send, scheduler, applyOptions(opts...))
}

func newRequestHandler(send func(OutboundPacket) error, scheduler Scheduler, opts *connOptions) *RequestHandler {
	return &RequestHandler{
		send:      send,
		scheduler: scheduler,
		opts:      opts,
		logger:    opts.logger,
		metrics:   newConnMetrics(opts.metrics),
		ids:       NewPacketIDManager(),
		flow:      NewFlowController(opts.receiveMaximum),
		inbound:   newQoS2Inbound(),
		now:       time.Now,
	}
}

// SubmitRequest adds a request to the handler and returns its sequence number.
// done is called exactly once with the terminal result.
//
// A publish with QoS > 0 waits in a queue while the receive maximum is reached.
// Submitting while disconnected fails with ErrNotConnected.
func SubmitRequest[T any](h *RequestHandler, req Request[T], done func(Result[T])) uint64 {
	tr := &typedRequest[T]{req: req, done: done}
	h.seq++
	e := &requestEntry{
		h:      h,
		seq:    h.seq,
		req:    tr,
		kind:   requestKind(req),
		logger: h.logger.WithFields(LogFields{LogFieldRequest: h.seq}),
	}
	if q, ok := any(req).(interface{ usesSendQuota() bool }); ok {
		e.needsQuota = q.usesSendQuota()
	}

	h.submit(e)
	return e.seq
}

func (h *RequestHandler) submit(e *requestEntry) {
	if !h.connected {
		e.req.abort(ErrNotConnected)
		e.req.deliver()
		return
	}

	if e.needsQuota {
		if len(h.queued) > 0 || !h.flow.TryAcquire() {
			e.logger.Debug("publish queued by receive maximum", LogFields{
				"queued": len(h.queued) + 1,
			})
			h.queued = append(h.queued, e)
			return
		}
		e.holdsQuota = true
	}

	h.start(e)
}

func (h *RequestHandler) start(e *requestEntry) {
	e.started = h.now()
	h.active = append(h.active, e)
	h.metrics.requestStarted()

	done, err := e.req.start(e)
	h.settle(e, done, err)
}

func (h *RequestHandler) startQueued() {
	for h.connected && len(h.queued) > 0 && h.flow.TryAcquire() {
		e := h.queued[0]
		h.queued = h.queued[1:]
		e.holdsQuota = true
		h.start(e)
	}
}

// settle terminates the entry when its request finished or one of its
// writes failed. A failed write overrides the request's own outcome.
func (h *RequestHandler) settle(e *requestEntry, done bool, err error) {
	if e.writeErr != nil && !e.done {
		e.req.abort(e.writeErr)
		done, err = true, e.writeErr
	}
	if done {
		h.finish(e, err)
	}
}

// finish releases everything the entry holds and reports its result.
func (h *RequestHandler) finish(e *requestEntry, err error) {
	if e.done {
		return
	}
	e.done = true

	for _, t := range e.timers {
		t.stop()
	}
	e.timers = nil

	for _, id := range e.packetIDs {
		_ = h.ids.Release(id)
	}
	e.packetIDs = nil

	h.active = slices.DeleteFunc(h.active, func(x *requestEntry) bool { return x == e })
	if e.holdsQuota {
		e.holdsQuota = false
		h.flow.Release()
	}

	elapsed := h.now().Sub(e.started)
	h.metrics.requestFinished(e.kind, elapsed, err)
	if err != nil {
		e.logger.Debug("request failed", LogFields{LogFieldError: err.Error(), LogFieldDuration: elapsed})
	} else {
		e.logger.Debug("request completed", LogFields{LogFieldDuration: elapsed})
	}

	e.req.deliver()
	h.startQueued()
}

// each offers a call to every active request. Requests terminated by an
// earlier callback in the same pass are skipped.
func (h *RequestHandler) each(fn func(e *requestEntry) (bool, error)) {
	for _, e := range slices.Clone(h.active) {
		if e.done {
			continue
		}
		done, err := fn(e)
		h.settle(e, done, err)
	}
}

// HandlePacket routes an inbound packet. Publishes and PUBREL from the broker
// are answered directly; everything else is offered to the pending requests.
func (h *RequestHandler) HandlePacket(packet Packet) {
	h.metrics.packetReceived(packet.Type())
	h.logger.Debug("received packet", packetFields(packet))

	switch p := packet.(type) {
	case *Publish:
		h.receivePublish(p)
		return
	case *Acknowledgement:
		if p.Kind == AckPubRel {
			h.receivePubRel(p)
			return
		}
	}

	h.each(func(e *requestEntry) (bool, error) {
		return e.req.process(e, packet)
	})
}

// Connected resumes the pending requests on an established connection.
// Without a present session, inbound QoS 2 state is discarded.
func (h *RequestHandler) Connected(sessionPresent bool) {
	h.connected = true
	if !sessionPresent {
		h.inbound.clear()
	}
	h.logger.Debug("connection established", LogFields{
		LogFieldSessionPresent: sessionPresent,
		"pending":              len(h.active),
	})

	h.each(func(e *requestEntry) (bool, error) {
		e.resending = true
		defer func() { e.resending = false }()
		return e.req.connected(e, sessionPresent)
	})
	h.startQueued()
}

// Disconnected suspends the pending requests.
func (h *RequestHandler) Disconnected() {
	if !h.connected {
		return
	}
	h.connected = false

	h.each(func(e *requestEntry) (bool, error) {
		return e.req.disconnected(e)
	})
}

// IsConnected returns true between Connected and Disconnected.
func (h *RequestHandler) IsConnected() bool {
	return h.connected
}

// Abandon fails a pending or queued request with err.
// It returns false if the request already terminated.
func (h *RequestHandler) Abandon(seq uint64, err error) bool {
	for i, e := range h.queued {
		if e.seq == seq {
			h.queued = slices.Delete(h.queued, i, i+1)
			e.done = true
			e.req.abort(err)
			e.req.deliver()
			return true
		}
	}

	for _, e := range h.active {
		if e.seq == seq {
			e.req.abort(err)
			h.finish(e, err)
			return true
		}
	}
	return false
}

// Close fails every pending and queued request with err.
func (h *RequestHandler) Close(err error) {
	h.connected = false

	queued := h.queued
	h.queued = nil
	for _, e := range queued {
		e.done = true
		e.req.abort(err)
		e.req.deliver()
	}

	for _, e := range slices.Clone(h.active) {
		e.req.abort(err)
		h.finish(e, err)
	}
}

// Pending returns the number of active and queued requests.
func (h *RequestHandler) Pending() int {
	return len(h.active) + len(h.queued)
}

// SetReceiveMaximum applies the receive maximum announced by the broker.
func (h *RequestHandler) SetReceiveMaximum(maximum uint16) {
	h.flow.SetReceiveMaximum(maximum)
	h.startQueued()
}

func (h *RequestHandler) write(packet OutboundPacket) error {
	if err := h.send(packet); err != nil {
		return err
	}
	h.metrics.packetSent(packet.Type())
	h.logger.Debug("sent packet", packetFields(packet))
	return nil
}

func (h *RequestHandler) receivePublish(p *Publish) {
	switch p.Message.QoS {
	case QoS0:
		h.deliver(p.Message)

	case QoS1:
		h.deliver(p.Message)
		_ = h.write(&Acknowledgement{Kind: AckPubAck, PacketID: p.PacketID})

	case QoS2:
		if !h.inbound.store(p.PacketID, p.Message) {
			h.logger.Debug("duplicate QoS 2 publish", LogFields{LogFieldPacketID: p.PacketID})
		}
		_ = h.write(&Acknowledgement{Kind: AckPubRec, PacketID: p.PacketID})
	}
}

func (h *RequestHandler) receivePubRel(p *Acknowledgement) {
	comp := &Acknowledgement{Kind: AckPubComp, PacketID: p.PacketID}

	if msg, ok := h.inbound.release(p.PacketID); ok {
		h.deliver(msg)
	} else {
		h.logger.Warn("PUBREL for unknown packet ID", LogFields{LogFieldPacketID: p.PacketID})
		if h.opts.version == ProtocolV5 {
			comp.ReasonCode = ReasonPacketIDNotFound
		}
	}

	_ = h.write(comp)
}

func (h *RequestHandler) deliver(msg Message) {
	h.metrics.messageDelivered(msg.QoS)
	if h.opts.onMessage != nil {
		h.opts.onMessage(msg)
	}
}

func packetFields(packet Packet) LogFields {
	fields := LogFields{LogFieldPacketType: packet.Type().String()}
	if p, ok := packet.(PacketWithID); ok && p.GetPacketID() != 0 {
		fields[LogFieldPacketID] = p.GetPacketID()
	}
	return fields
}

func requestKind(req any) string {
	switch req.(type) {
	case *PublishRequest:
		return "publish"
	case *SubscribeRequest:
		return "subscribe"
	case *UnsubscribeRequest:
		return "unsubscribe"
	case *PingRequest:
		return "ping"
	default:
		return "custom"
	}
}

// anyRequest erases the result type of a Request so requests of every kind
// can share one ordered list.
type anyRequest interface {
	start(ctx RequestContext) (bool, error)
	process(ctx RequestContext, packet Packet) (bool, error)
	handleEvent(ctx RequestContext, event any) (bool, error)
	connected(ctx RequestContext, sessionPresent bool) (bool, error)
	disconnected(ctx RequestContext) (bool, error)
	abort(err error)
	deliver()
}

type typedRequest[T any] struct {
	req    Request[T]
	done   func(Result[T])
	result Result[T]
}

func (t *typedRequest[T]) settle(r Result[T]) (bool, error) {
	if !r.Done() {
		return false, nil
	}
	t.result = r
	return true, r.Err()
}

func (t *typedRequest[T]) start(ctx RequestContext) (bool, error) {
	return t.settle(t.req.Start(ctx))
}

func (t *typedRequest[T]) process(ctx RequestContext, packet Packet) (bool, error) {
	return t.settle(t.req.Process(ctx, packet))
}

func (t *typedRequest[T]) handleEvent(ctx RequestContext, event any) (bool, error) {
	return t.settle(t.req.HandleEvent(ctx, event))
}

func (t *typedRequest[T]) connected(ctx RequestContext, sessionPresent bool) (bool, error) {
	return t.settle(t.req.Connected(ctx, sessionPresent))
}

func (t *typedRequest[T]) disconnected(ctx RequestContext) (bool, error) {
	return t.settle(t.req.Disconnected(ctx))
}

func (t *typedRequest[T]) abort(err error) {
	t.result = Failure[T](err)
}

func (t *typedRequest[T]) deliver() {
	if t.done != nil {
		t.done(t.result)
	}
}

// requestEntry is the RequestContext of one request.
type requestEntry struct {
	h      *RequestHandler
	seq    uint64
	req    anyRequest
	kind   string
	logger Logger

	packetIDs []uint16
	timers    []*entryTimer

	needsQuota bool
	holdsQuota bool
	resending  bool
	done       bool
	writeErr   error
	started    time.Time
}

func (e *requestEntry) Write(packet OutboundPacket) {
	if e.done {
		return
	}
	if e.writeErr != nil {
		return
	}
	if err := e.h.write(packet); err != nil {
		e.writeErr = err
		return
	}
	if e.resending {
		e.h.metrics.retransmission(packet.Type())
	}
}

func (e *requestEntry) NextPacketID() (uint16, error) {
	id, err := e.h.ids.Allocate()
	if err != nil {
		return 0, err
	}
	e.packetIDs = append(e.packetIDs, id)
	return id, nil
}

func (e *requestEntry) ScheduleEvent(event any, after time.Duration) Scheduled {
	t := &entryTimer{entry: e}
	t.handle = e.h.scheduler.Schedule(after, func() { t.fire(event) })
	e.timers = append(e.timers, t)
	return t
}

func (e *requestEntry) Logger() Logger {
	return e.logger
}

func (e *requestEntry) dispatch(event any) {
	if e.done {
		return
	}
	e.resending = true
	done, err := e.req.handleEvent(e, event)
	e.resending = false
	e.h.settle(e, done, err)
}

// entryTimer is a timer owned by a request; it is stopped when the request terminates.
type entryTimer struct {
	entry   *requestEntry
	handle  Scheduled
	stopped bool
}

func (t *entryTimer) Cancel() {
	if t.stopped {
		return
	}
	t.stop()
	t.entry.timers = slices.DeleteFunc(t.entry.timers, func(x *entryTimer) bool { return x == t })
}

func (t *entryTimer) stop() {
	t.stopped = true
	if t.handle != nil {
		t.handle.Cancel()
	}
}

func (t *entryTimer) fire(event any) {
	if t.stopped {
		return
	}
	t.stopped = true
	t.entry.timers = slices.DeleteFunc(t.entry.timers, func(x *entryTimer) bool { return x == t })
	t.entry.dispatch(event)
}
