package mqttflow

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerHarness struct {
	h         *RequestHandler
	sched     *manualScheduler
	sent      []OutboundPacket
	delivered []Message
	metrics   *MemoryMetrics
}

func newHarness(t *testing.T, opts ...Option) *handlerHarness {
	t.Helper()
	hh := &handlerHarness{sched: &manualScheduler{}, metrics: NewMemoryMetrics()}
	opts = append([]Option{
		WithMetrics(hh.metrics),
		WithMessageHandler(func(msg Message) { hh.delivered = append(hh.delivered, msg) }),
	}, opts...)
	hh.h = NewRequestHandler(func(p OutboundPacket) error {
		if _, err := p.Serialize(hh.h.opts.version); err != nil {
			return err
		}
		hh.sent = append(hh.sent, p)
		return nil
	}, hh.sched, opts...)
	hh.h.Connected(false)
	return hh
}

// outcome captures the terminal result of a submitted request.
type outcome[T any] struct {
	calls  int
	result Result[T]
}

func (o *outcome[T]) done(r Result[T]) {
	o.calls++
	o.result = r
}

func submit[T any](hh *handlerHarness, req Request[T]) (*outcome[T], uint64) {
	o := &outcome[T]{}
	seq := SubmitRequest(hh.h, req, o.done)
	return o, seq
}

func TestRequestHandlerNotConnected(t *testing.T) {
	hh := newHarness(t)
	hh.h.Disconnected()
	assert.False(t, hh.h.IsConnected())

	o, _ := submit(hh, NewPublishRequest(Message{Topic: "a"}, time.Second))
	assert.Equal(t, 1, o.calls)
	assert.ErrorIs(t, o.result.Err(), ErrNotConnected)
	assert.Empty(t, hh.sent)
	assert.Zero(t, hh.h.Pending())
}

func TestRequestHandlerPublishQoS0(t *testing.T) {
	hh := newHarness(t)

	o, _ := submit(hh, NewPublishRequest(Message{Topic: "a"}, time.Second))
	assert.Equal(t, 1, o.calls)
	assert.Equal(t, ResultSuccess, o.result.Status())
	assert.Equal(t, []PacketType{PacketPUBLISH}, packetTypes(hh.sent))
	assert.Zero(t, hh.h.Pending())
}

func TestRequestHandlerPublishQoS1(t *testing.T) {
	hh := newHarness(t)

	o, _ := submit(hh, NewPublishRequest(Message{Topic: "a", QoS: QoS1}, time.Second))
	assert.Zero(t, o.calls)
	assert.Equal(t, 1, hh.h.Pending())
	assert.True(t, hh.h.ids.IsUsed(1))
	assert.Equal(t, float64(1), hh.metrics.GetGauge(MetricRequestsInFlight, nil).Value())

	hh.h.HandlePacket(&Acknowledgement{Kind: AckPubAck, PacketID: 1})

	assert.Equal(t, 1, o.calls)
	assert.NoError(t, o.result.Err())
	assert.False(t, hh.h.ids.IsUsed(1))
	assert.Zero(t, hh.h.Pending())
	assert.Zero(t, hh.sched.armed())
	assert.Equal(t, float64(0), hh.metrics.GetGauge(MetricRequestsInFlight, nil).Value())
	assert.Equal(t, uint64(1), hh.metrics.GetHistogram(MetricRequestLatency, MetricLabels{LabelRequest: "publish"}).Count())
}

func TestRequestHandlerUnsendablePublish(t *testing.T) {
	longTopic := strings.Repeat("t", 70000)

	t.Run("QoS 0 fails instead of succeeding", func(t *testing.T) {
		hh := newHarness(t)

		o, _ := submit(hh, NewPublishRequest(Message{Topic: longTopic}, time.Second))
		assert.Equal(t, 1, o.calls)
		assert.ErrorIs(t, o.result.Err(), ErrStringTooLong)
		assert.Empty(t, hh.sent)
		assert.Zero(t, hh.h.Pending())
	})

	t.Run("QoS 1 fails and releases what it holds", func(t *testing.T) {
		hh := newHarness(t, WithReceiveMaximum(1))

		o, _ := submit(hh, NewPublishRequest(Message{Topic: longTopic, QoS: QoS1}, time.Second))
		assert.Equal(t, 1, o.calls)
		assert.ErrorIs(t, o.result.Err(), ErrStringTooLong)
		assert.Empty(t, hh.sent)
		assert.Zero(t, hh.h.Pending())
		assert.False(t, hh.h.ids.IsUsed(1))
		assert.Zero(t, hh.sched.armed())
		assert.Equal(t, uint16(0), hh.h.flow.InFlight())

		next, _ := submit(hh, NewPublishRequest(Message{Topic: "a", QoS: QoS1}, time.Second))
		assert.Zero(t, next.calls)
		assert.Equal(t, []PacketType{PacketPUBLISH}, packetTypes(hh.sent))

		failed := hh.metrics.GetCounter(MetricRequestsFailed, MetricLabels{LabelRequest: "publish"})
		require.NotNil(t, failed)
		assert.Equal(t, float64(1), failed.Value())
		assert.Equal(t, float64(1), hh.metrics.GetCounter(MetricPacketsSent, MetricLabels{LabelPacketType: "PUBLISH"}).Value())
	})

	t.Run("invalid QoS fails without a packet ID", func(t *testing.T) {
		hh := newHarness(t)

		o, _ := submit(hh, NewPublishRequest(Message{Topic: "a", QoS: 3}, time.Second))
		assert.Equal(t, 1, o.calls)
		assert.ErrorIs(t, o.result.Err(), ErrInvalidQoS)
		assert.Empty(t, hh.sent)
		assert.Zero(t, hh.h.ids.InUse())

		hh.sched.Advance(10 * time.Second)
		assert.Zero(t, hh.h.Pending())
		assert.Equal(t, 1, o.calls)
	})
}

func TestRequestHandlerRetryThroughScheduler(t *testing.T) {
	hh := newHarness(t)
	submit(hh, NewPublishRequest(Message{Topic: "a", QoS: QoS1}, time.Second))

	hh.sched.Advance(time.Second)

	require.Len(t, hh.sent, 2)
	assert.True(t, hh.sent[1].(*Publish).DUP)
	retrans := hh.metrics.GetCounter(MetricRetransmissions, MetricLabels{LabelPacketType: "PUBLISH"})
	require.NotNil(t, retrans)
	assert.Equal(t, float64(1), retrans.Value())
	assert.Equal(t, float64(2), hh.metrics.GetCounter(MetricPacketsSent, MetricLabels{LabelPacketType: "PUBLISH"}).Value())
}

func TestRequestHandlerRoutesByPacketID(t *testing.T) {
	hh := newHarness(t)

	first, _ := submit(hh, NewSubscribeRequest(time.Second, Subscription{TopicFilter: "a"}))
	second, _ := submit(hh, NewSubscribeRequest(time.Second, Subscription{TopicFilter: "b"}))
	ping, _ := submit(hh, NewPingRequest(time.Second))

	hh.h.HandlePacket(&SubAck{PacketID: 2, ReasonCodes: []ReasonCode{ReasonGrantedQoS1}})
	assert.Zero(t, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, []ReasonCode{ReasonGrantedQoS1}, second.result.Value())

	hh.h.HandlePacket(&PingResp{})
	assert.Zero(t, first.calls)
	assert.Equal(t, 1, ping.calls)
	assert.Equal(t, 1, hh.h.Pending())
}

func TestRequestHandlerTimeout(t *testing.T) {
	hh := newHarness(t)
	o, _ := submit(hh, NewSubscribeRequest(time.Second, Subscription{TopicFilter: "a"}))

	hh.sched.Advance(2 * time.Second)

	assert.ErrorIs(t, o.result.Err(), ErrRequestTimeout)
	assert.False(t, hh.h.ids.IsUsed(1))
	failed := hh.metrics.GetCounter(MetricRequestsFailed, MetricLabels{LabelRequest: "subscribe"})
	require.NotNil(t, failed)
	assert.Equal(t, float64(1), failed.Value())
}

func TestRequestHandlerReconnect(t *testing.T) {
	hh := newHarness(t)

	pub1, _ := submit(hh, NewPublishRequest(Message{Topic: "a", QoS: QoS1}, time.Second))
	pub2, _ := submit(hh, NewPublishRequest(Message{Topic: "b", QoS: QoS2}, time.Second))
	ping, _ := submit(hh, NewPingRequest(time.Second))
	hh.sent = nil

	hh.h.Disconnected()
	assert.ErrorIs(t, ping.result.Err(), ErrNotConnected)
	assert.Zero(t, hh.sched.armed())

	hh.sched.Advance(time.Minute)
	assert.Empty(t, hh.sent)

	hh.h.Connected(true)
	require.Len(t, hh.sent, 2)
	assert.Equal(t, uint16(1), hh.sent[0].(*Publish).PacketID, "resent in submission order")
	assert.Equal(t, uint16(2), hh.sent[1].(*Publish).PacketID)
	assert.Zero(t, pub1.calls)
	assert.Zero(t, pub2.calls)
	assert.Equal(t, float64(2), hh.metrics.GetCounter(MetricRetransmissions, MetricLabels{LabelPacketType: "PUBLISH"}).Value())
}

func TestRequestHandlerSessionCleared(t *testing.T) {
	hh := newHarness(t)

	o, _ := submit(hh, NewPublishRequest(Message{Topic: "a", QoS: QoS2}, time.Second))
	hh.h.HandlePacket(&Acknowledgement{Kind: AckPubRec, PacketID: 1})

	hh.h.Disconnected()
	hh.h.Connected(false)

	assert.ErrorIs(t, o.result.Err(), ErrSessionCleared)
	assert.False(t, hh.h.ids.IsUsed(1))
}

func TestRequestHandlerReceiveMaximum(t *testing.T) {
	hh := newHarness(t, WithReceiveMaximum(1))

	first, _ := submit(hh, NewPublishRequest(Message{Topic: "a", QoS: QoS1}, time.Second))
	second, _ := submit(hh, NewPublishRequest(Message{Topic: "b", QoS: QoS1}, time.Second))
	qos0, _ := submit(hh, NewPublishRequest(Message{Topic: "c"}, time.Second))

	assert.Equal(t, 1, qos0.calls, "QoS 0 bypasses the receive maximum")
	assert.Equal(t, []string{"a", "c"}, sentTopics(hh.sent))
	assert.Equal(t, 2, hh.h.Pending())

	hh.h.HandlePacket(&Acknowledgement{Kind: AckPubAck, PacketID: 1})
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, []string{"a", "c", "b"}, sentTopics(hh.sent))
	assert.Equal(t, uint16(2), hh.sent[2].(*Publish).PacketID)

	hh.h.HandlePacket(&Acknowledgement{Kind: AckPubAck, PacketID: 2})
	assert.Equal(t, 1, second.calls)
}

func TestRequestHandlerRaisedReceiveMaximum(t *testing.T) {
	hh := newHarness(t, WithReceiveMaximum(1))

	submit(hh, NewPublishRequest(Message{Topic: "a", QoS: QoS1}, time.Second))
	submit(hh, NewPublishRequest(Message{Topic: "b", QoS: QoS1}, time.Second))
	submit(hh, NewPublishRequest(Message{Topic: "c", QoS: QoS1}, time.Second))
	assert.Len(t, hh.sent, 1)

	hh.h.SetReceiveMaximum(3)
	assert.Equal(t, []string{"a", "b", "c"}, sentTopics(hh.sent))
}

func TestRequestHandlerQueueWaitsForConnection(t *testing.T) {
	hh := newHarness(t, WithReceiveMaximum(1))

	submit(hh, NewPublishRequest(Message{Topic: "a", QoS: QoS1}, time.Second))
	queued, _ := submit(hh, NewPublishRequest(Message{Topic: "b", QoS: QoS1}, time.Second))

	hh.h.Disconnected()
	hh.h.SetReceiveMaximum(5)
	assert.Len(t, hh.sent, 1)
	assert.Zero(t, queued.calls)

	hh.h.Connected(true)
	assert.Equal(t, []string{"a", "a", "b"}, sentTopics(hh.sent))
}

func TestRequestHandlerAbandon(t *testing.T) {
	t.Run("active", func(t *testing.T) {
		hh := newHarness(t)
		o, seq := submit(hh, NewSubscribeRequest(time.Second, Subscription{TopicFilter: "a"}))

		assert.True(t, hh.h.Abandon(seq, ErrRequestAbandoned))
		assert.ErrorIs(t, o.result.Err(), ErrRequestAbandoned)
		assert.Zero(t, hh.sched.armed())
		assert.False(t, hh.h.ids.IsUsed(1))

		assert.False(t, hh.h.Abandon(seq, ErrRequestAbandoned))
		assert.Equal(t, 1, o.calls)

		hh.h.HandlePacket(&SubAck{PacketID: 1, ReasonCodes: []ReasonCode{0}})
		assert.Equal(t, 1, o.calls)
	})

	t.Run("queued", func(t *testing.T) {
		hh := newHarness(t, WithReceiveMaximum(1))
		submit(hh, NewPublishRequest(Message{Topic: "a", QoS: QoS1}, time.Second))
		o, seq := submit(hh, NewPublishRequest(Message{Topic: "b", QoS: QoS1}, time.Second))

		assert.True(t, hh.h.Abandon(seq, ErrRequestAbandoned))
		assert.ErrorIs(t, o.result.Err(), ErrRequestAbandoned)
		assert.Equal(t, 1, hh.h.Pending())

		hh.h.HandlePacket(&Acknowledgement{Kind: AckPubAck, PacketID: 1})
		assert.Len(t, hh.sent, 1)
	})
}

func TestRequestHandlerClose(t *testing.T) {
	hh := newHarness(t, WithReceiveMaximum(1))

	active, _ := submit(hh, NewPublishRequest(Message{Topic: "a", QoS: QoS1}, time.Second))
	queued, _ := submit(hh, NewPublishRequest(Message{Topic: "b", QoS: QoS1}, time.Second))
	sub, _ := submit(hh, NewSubscribeRequest(time.Second, Subscription{TopicFilter: "c"}))

	hh.h.Close(ErrClientClosed)

	for _, err := range []error{active.result.Err(), queued.result.Err(), sub.result.Err()} {
		assert.ErrorIs(t, err, ErrClientClosed)
	}
	assert.Zero(t, hh.h.Pending())
	assert.Zero(t, hh.sched.armed())
	assert.Zero(t, hh.h.ids.InUse())
	assert.False(t, hh.h.IsConnected())
}

func TestRequestHandlerInboundPublish(t *testing.T) {
	t.Run("QoS 0", func(t *testing.T) {
		hh := newHarness(t)
		msg := Message{Topic: "in", Payload: StringPayload("x")}

		hh.h.HandlePacket(&Publish{Message: msg})
		assert.Equal(t, []Message{msg}, hh.delivered)
		assert.Empty(t, hh.sent)
	})

	t.Run("QoS 1", func(t *testing.T) {
		hh := newHarness(t)
		msg := Message{Topic: "in", QoS: QoS1}

		hh.h.HandlePacket(&Publish{Message: msg, PacketID: 9})
		assert.Equal(t, []Message{msg}, hh.delivered)
		assert.Equal(t, []OutboundPacket{&Acknowledgement{Kind: AckPubAck, PacketID: 9}}, hh.sent)
		assert.Equal(t, float64(1), hh.metrics.GetCounter(MetricMessagesDelivered, MetricLabels{LabelQoS: "1"}).Value())
	})

	t.Run("QoS 2 delivers once on PUBREL", func(t *testing.T) {
		hh := newHarness(t)
		msg := Message{Topic: "in", QoS: QoS2}

		hh.h.HandlePacket(&Publish{Message: msg, PacketID: 9})
		hh.h.HandlePacket(&Publish{Message: msg, PacketID: 9, DUP: true})
		assert.Empty(t, hh.delivered)

		hh.h.HandlePacket(&Acknowledgement{Kind: AckPubRel, PacketID: 9})
		assert.Equal(t, []Message{msg}, hh.delivered)
		assert.Equal(t, []OutboundPacket{
			&Acknowledgement{Kind: AckPubRec, PacketID: 9},
			&Acknowledgement{Kind: AckPubRec, PacketID: 9},
			&Acknowledgement{Kind: AckPubComp, PacketID: 9},
		}, hh.sent)
	})

	t.Run("unknown PUBREL", func(t *testing.T) {
		tests := []struct {
			version ProtocolVersion
			reason  ReasonCode
		}{
			{ProtocolV5, ReasonPacketIDNotFound},
			{ProtocolV311, ReasonSuccess},
		}
		for _, tt := range tests {
			hh := newHarness(t, WithProtocolVersion(tt.version))
			hh.h.HandlePacket(&Acknowledgement{Kind: AckPubRel, PacketID: 4})

			assert.Empty(t, hh.delivered)
			assert.Equal(t, []OutboundPacket{
				&Acknowledgement{Kind: AckPubComp, PacketID: 4, ReasonCode: tt.reason},
			}, hh.sent, tt.version.String())
		}
	})

	t.Run("new session discards pending QoS 2", func(t *testing.T) {
		hh := newHarness(t)
		hh.h.HandlePacket(&Publish{Message: Message{Topic: "in", QoS: QoS2}, PacketID: 9})

		hh.h.Disconnected()
		hh.h.Connected(false)
		hh.h.HandlePacket(&Acknowledgement{Kind: AckPubRel, PacketID: 9})
		assert.Empty(t, hh.delivered)
	})

	t.Run("resumed session keeps pending QoS 2", func(t *testing.T) {
		hh := newHarness(t)
		hh.h.HandlePacket(&Publish{Message: Message{Topic: "in", QoS: QoS2}, PacketID: 9})

		hh.h.Disconnected()
		hh.h.Connected(true)
		hh.h.HandlePacket(&Acknowledgement{Kind: AckPubRel, PacketID: 9})
		assert.Len(t, hh.delivered, 1)
	})
}

func TestRequestKind(t *testing.T) {
	assert.Equal(t, "publish", requestKind(&PublishRequest{}))
	assert.Equal(t, "subscribe", requestKind(&SubscribeRequest{}))
	assert.Equal(t, "unsubscribe", requestKind(&UnsubscribeRequest{}))
	assert.Equal(t, "ping", requestKind(&PingRequest{}))
	assert.Equal(t, "custom", requestKind(struct{}{}))
}

func sentTopics(packets []OutboundPacket) []string {
	var topics []string
	for _, p := range packets {
		if pub, ok := p.(*Publish); ok {
			topics = append(topics, pub.Message.Topic)
		}
	}
	return topics
}
