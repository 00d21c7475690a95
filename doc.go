// Package mqttflow is the protocol engine of an MQTT 3.1.1 and 5.0 client.
//
// It turns demarcated control packets into typed values and back, and drives
// the multi-step exchanges the protocol requires: QoS 1 and QoS 2 publish
// handshakes with retry and reconnect-aware resumption, subscribe, unsubscribe
// and keep-alive pinging. Dialing, the CONNECT handshake and topic routing
// belong to the caller.
//
// # Packets
//
// Every packet is parsed from and serialized to a RawPacket, the packet type,
// fixed header flags and body that remain once the stream is framed:
//
//	pub := &mqttflow.Publish{
//	    Message:  mqttflow.Message{Topic: "sensors/temp", Payload: mqttflow.StringPayload("21.5"), QoS: mqttflow.QoS1},
//	    PacketID: 7,
//	}
//	raw, err := pub.Serialize(mqttflow.ProtocolV5)
//
//	pkt, err := mqttflow.ParseInbound(raw, mqttflow.ProtocolV5)
//
// ReadRawPacket and WriteRawPacket frame packets on a byte stream.
//
// # Requests
//
// A Request is a resumable state machine. Each call (Start, Process,
// HandleEvent, Connected, Disconnected) answers Pending, Success or Failure.
// RequestHandler owns the requests of one connection, allocates packet IDs,
// enforces the receive maximum and answers publishes from the broker.
//
// # Connections
//
// Conn ties a Transport, a RequestHandler and the KeepAlive stage to one
// EventLoop, so timers and inbound packets never race:
//
//	transport := mqttflow.NewStreamTransport(netConn, 0)
//	conn := mqttflow.NewConn(transport,
//	    mqttflow.WithProtocolVersion(mqttflow.ProtocolV311),
//	    mqttflow.WithKeepAlive(30),
//	    mqttflow.WithMessageHandler(func(msg mqttflow.Message) { ... }),
//	)
//	go transport.Serve(conn)
//
//	// after CONNACK
//	conn.Connected(sessionPresent)
//	err := conn.Publish(ctx, msg)
//
// # Errors
//
// Sentinel errors are matched with errors.Is. ParseError, PublishError and
// ConnectionLostError carry details and are extracted with errors.As.
package mqttflow
