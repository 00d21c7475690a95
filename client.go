package mqttflow

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Conn drives the MQTT protocol over one established connection.
//
// The owner of the network connection reports lifecycle changes through
// Connected and Disconnected and feeds inbound packets to HandlePacket.
// Application calls block until their exchange with the broker completes.
// All protocol state is owned by an EventLoop, so Conn is safe for
// concurrent use.
type Conn struct {
	transport Transport
	options   *connOptions
	logger    Logger
	metrics   connMetrics

	loop      *EventLoop
	handler   *RequestHandler
	keepAlive *KeepAlive
	limiter   *rate.Limiter

	// Loop-confined
	connected bool

	closed atomic.Bool
}

// NewConn creates a connection engine writing through transport. It starts
// disconnected; call Connected once the broker accepted the session.
func NewConn(transport Transport, opts ...Option) *Conn {
	options := applyOptions(opts...)

	c := &Conn{
		transport: transport,
		options:   options,
		logger:    options.logger,
		metrics:   newConnMetrics(options.metrics),
		loop:      NewEventLoop(),
	}

	scheduler := options.scheduler
	if scheduler == nil {
		scheduler = c.loop
	}

	c.handler = newRequestHandler(c.writePacket, scheduler, options)
	c.keepAlive = NewKeepAlive(keepAliveDuration(options.keepAlive), options.reschedulePings, scheduler,
		c.ping, c.keepAliveFailed)

	if options.publishLimit > 0 {
		c.limiter = rate.NewLimiter(options.publishLimit, options.publishBurst)
	}

	return c
}

// Version returns the protocol version of the connection.
func (c *Conn) Version() ProtocolVersion {
	return c.options.version
}

// Publish sends a message and waits until its QoS handshake completes.
// If ctx is done first the publish is abandoned and its packet ID released.
func (c *Conn) Publish(ctx context.Context, msg Message) error {
	if !msg.QoS.Valid() {
		return ErrInvalidQoS
	}
	if err := ValidateTopicName(msg.Topic); err != nil {
		return err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	_, err := call(ctx, c, func() Request[struct{}] {
		return NewPublishRequest(msg, c.options.retryInterval)
	})
	return err
}

// Subscribe subscribes to topic filters and returns the reason code granted for each.
func (c *Conn) Subscribe(ctx context.Context, subs ...Subscription) ([]ReasonCode, error) {
	if len(subs) == 0 {
		return nil, ErrNoSubscriptions
	}
	for _, sub := range subs {
		if err := ValidateTopicFilter(sub.TopicFilter); err != nil {
			return nil, err
		}
	}
	return call(ctx, c, func() Request[[]ReasonCode] {
		return NewSubscribeRequest(c.options.requestTimeout, subs...)
	})
}

// Unsubscribe removes topic filters and returns the reason code for each.
func (c *Conn) Unsubscribe(ctx context.Context, filters ...string) ([]ReasonCode, error) {
	if len(filters) == 0 {
		return nil, ErrNoSubscriptions
	}
	if err := validateTopicFilters(filters); err != nil {
		return nil, err
	}
	return call(ctx, c, func() Request[[]ReasonCode] {
		return NewUnsubscribeRequest(c.options.requestTimeout, filters...)
	})
}

// Ping sends PINGREQ and waits for PINGRESP.
func (c *Conn) Ping(ctx context.Context) error {
	_, err := call(ctx, c, func() Request[struct{}] {
		return NewPingRequest(c.options.requestTimeout)
	})
	return err
}

// call submits a request on the loop and waits for its result.
func call[T any](ctx context.Context, c *Conn, newRequest func() Request[T]) (T, error) {
	var zero T
	if c.closed.Load() {
		return zero, ErrClientClosed
	}

	results := make(chan Result[T], 1)
	seqs := make(chan uint64, 1)
	var abandoned atomic.Bool

	err := c.loop.Execute(func() {
		if abandoned.Load() {
			return
		}
		seqs <- SubmitRequest(c.handler, newRequest(), func(r Result[T]) {
			results <- r
		})
	})
	if err != nil {
		return zero, ErrClientClosed
	}

	select {
	case r := <-results:
		return r.Value(), r.Err()
	case <-ctx.Done():
		abandoned.Store(true)

		// A request that terminated before the abandon ran keeps its result.
		completed := false
		settled := make(chan struct{})
		if err := c.loop.Execute(func() {
			defer close(settled)
			if len(results) > 0 {
				completed = true
				return
			}
			select {
			case seq := <-seqs:
				c.handler.Abandon(seq, ErrRequestAbandoned)
			default:
			}
		}); err == nil {
			select {
			case <-settled:
			case <-c.loop.Done():
			}
		}
		if completed {
			r := <-results
			return r.Value(), r.Err()
		}
		return zero, ctx.Err()
	case <-c.loop.Done():
		select {
		case r := <-results:
			return r.Value(), r.Err()
		default:
			return zero, ErrClientClosed
		}
	}
}

// HandlePacket parses an inbound packet and hands it to the protocol engine.
// A malformed packet tears the connection down and its ParseError is returned.
func (c *Conn) HandlePacket(raw RawPacket) error {
	packet, err := ParseInbound(raw, c.options.version)
	if err != nil {
		c.logger.Error("malformed packet", LogFields{
			LogFieldPacketType: raw.Type.String(),
			LogFieldError:      err.Error(),
		})
		_ = c.loop.Execute(func() { c.teardown(err) })
		return err
	}

	if err := c.loop.Execute(func() { c.handler.HandlePacket(packet) }); err != nil {
		return ErrClientClosed
	}
	return nil
}

// Connected reports that the connection to the broker is established.
// sessionPresent is the flag from CONNACK.
func (c *Conn) Connected(sessionPresent bool) error {
	return c.execute(func() {
		c.connected = true
		c.logger.Info("connected", LogFields{LogFieldSessionPresent: sessionPresent})

		c.keepAlive.Connected()
		c.handler.Connected(sessionPresent)
		c.emit(ErrConnected)
	})
}

// Disconnected reports that the connection is about to close or was closed.
// Pending requests are kept and resume on the next Connected.
func (c *Conn) Disconnected() error {
	return c.execute(func() {
		if c.disconnect() {
			c.emit(ErrDisconnected)
		}
	})
}

// SetKeepAlive overrides the keep-alive interval, as announced by the broker's
// Server Keep Alive property.
func (c *Conn) SetKeepAlive(seconds uint16) error {
	return c.execute(func() {
		c.keepAlive.SetInterval(keepAliveDuration(seconds))
	})
}

// SetReceiveMaximum applies the Receive Maximum announced by the broker.
func (c *Conn) SetReceiveMaximum(maximum uint16) error {
	return c.execute(func() {
		c.handler.SetReceiveMaximum(maximum)
	})
}

// Close sends DISCONNECT, fails every pending request with ErrClientClosed
// and closes the transport. It does not wait for the loop to stop; use Done.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	return c.execute(func() {
		wasConnected := c.connected
		if wasConnected {
			_ = c.writePacket(&Disconnect{})
		}
		c.keepAlive.Remove()
		c.connected = false
		c.handler.Close(ErrClientClosed)

		if err := c.transport.Close(); err != nil {
			c.logger.Debug("transport close failed", LogFields{LogFieldError: err.Error()})
		}
		if wasConnected {
			c.emit(ErrDisconnected)
		}
		c.loop.Close()
	})
}

// Done is closed once the connection is closed and its loop stopped.
func (c *Conn) Done() <-chan struct{} {
	return c.loop.Done()
}

func (c *Conn) execute(fn func()) error {
	if err := c.loop.Execute(fn); err != nil {
		return ErrClientClosed
	}
	return nil
}

// writePacket serializes and sends a packet. It runs on the loop.
// Only a serialize error is returned: the packet was never sent. A transport
// failure tears the connection down and the packet is resent after reconnect.
func (c *Conn) writePacket(packet OutboundPacket) error {
	raw, err := packet.Serialize(c.options.version)
	if err != nil {
		c.logger.Error("failed to serialize packet", LogFields{
			LogFieldPacketType: packet.Type().String(),
			LogFieldError:      err.Error(),
		})
		err = fmt.Errorf("serialize %s: %w", packet.Type(), err)
		c.emit(err)
		return err
	}

	c.keepAlive.OnWrite()

	if err := c.transport.WritePacket(raw); err != nil {
		c.logger.Warn("failed to write packet", LogFields{
			LogFieldPacketType: packet.Type().String(),
			LogFieldError:      err.Error(),
		})
		// Tear down after the current handler returns.
		_ = c.loop.Execute(func() { c.teardown(err) })
	}
	return nil
}

// connectionLost reports a broken connection from outside the loop.
func (c *Conn) connectionLost(cause error) {
	_ = c.loop.Execute(func() { c.teardown(cause) })
}

// teardown closes a connection that can no longer be used. It runs on the loop.
func (c *Conn) teardown(cause error) {
	if !c.disconnect() {
		return
	}
	if err := c.transport.Close(); err != nil {
		c.logger.Debug("transport close failed", LogFields{LogFieldError: err.Error()})
	}

	c.logger.Warn("connection lost", LogFields{LogFieldError: cause.Error()})
	c.emit(NewConnectionLostError(cause))
}

// disconnect suspends keep-alive and the pending requests. It reports
// whether the connection was up.
func (c *Conn) disconnect() bool {
	if !c.connected {
		return false
	}
	c.connected = false
	c.keepAlive.Disconnecting()
	c.handler.Disconnected()
	return true
}

// ping issues a keep-alive ping. It runs on the loop.
func (c *Conn) ping(done func(error)) {
	timeout := c.keepAlive.Interval()
	SubmitRequest(c.handler, NewPingRequest(timeout), func(r Result[struct{}]) {
		done(r.Err())
	})
}

func (c *Conn) keepAliveFailed(err error) {
	c.metrics.keepAliveFailure()
	c.teardown(fmt.Errorf("%w: %w", ErrKeepAliveTimeout, err))
}

func (c *Conn) emit(event error) {
	if c.options.onEvent != nil {
		c.options.onEvent(c, event)
	}
}

func keepAliveDuration(seconds uint16) time.Duration {
	return time.Duration(seconds) * time.Second
}
