package mqttflow

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// manualScheduler is a Scheduler driven by Advance instead of the wall clock.
type manualScheduler struct {
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	at       time.Duration
	seq      int
	fn       func()
	canceled bool
	fired    bool
}

func (t *manualTimer) Cancel() { t.canceled = true }

func (s *manualScheduler) Schedule(after time.Duration, fn func()) Scheduled {
	s.seq++
	t := &manualTimer{at: s.now + after, seq: s.seq, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock forward, firing due timers in deadline order.
func (s *manualScheduler) Advance(d time.Duration) {
	target := s.now + d
	for {
		next := s.nextDue(target)
		if next == nil {
			break
		}
		s.now = next.at
		next.fired = true
		next.fn()
	}
	s.now = target
}

func (s *manualScheduler) nextDue(target time.Duration) *manualTimer {
	var next *manualTimer
	for _, t := range s.timers {
		if t.canceled || t.fired || t.at > target {
			continue
		}
		if next == nil || t.at < next.at || (t.at == next.at && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

// armed returns the number of timers that have neither fired nor been canceled.
func (s *manualScheduler) armed() int {
	n := 0
	for _, t := range s.timers {
		if !t.canceled && !t.fired {
			n++
		}
	}
	return n
}

// fakeContext is a RequestContext recording everything a request does.
type fakeContext struct {
	sched   *manualScheduler
	written []OutboundPacket
	lastID  uint16
	idErr   error
	onEvent func(event any)
}

func newFakeContext() *fakeContext {
	return &fakeContext{sched: &manualScheduler{}}
}

func (c *fakeContext) Write(packet OutboundPacket) {
	c.written = append(c.written, packet)
}

func (c *fakeContext) NextPacketID() (uint16, error) {
	if c.idErr != nil {
		return 0, c.idErr
	}
	c.lastID++
	return c.lastID, nil
}

func (c *fakeContext) ScheduleEvent(event any, after time.Duration) Scheduled {
	return c.sched.Schedule(after, func() {
		if c.onEvent != nil {
			c.onEvent(event)
		}
	})
}

func (c *fakeContext) Logger() Logger { return NewNoOpLogger() }

// recordingTransport is a Transport keeping every written packet.
type recordingTransport struct {
	mu       sync.Mutex
	packets  []RawPacket
	writeErr error
	closed   bool

	// onWrite runs after a packet has been recorded.
	onWrite func()
}

var errTransportBroken = errors.New("transport broken")

func (t *recordingTransport) WritePacket(raw RawPacket) error {
	t.mu.Lock()
	if t.writeErr != nil {
		t.mu.Unlock()
		return t.writeErr
	}
	t.packets = append(t.packets, raw)
	onWrite := t.onWrite
	t.mu.Unlock()

	if onWrite != nil {
		onWrite()
	}
	return nil
}

func (t *recordingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *recordingTransport) written() []RawPacket {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.packets)
}

func (t *recordingTransport) types() []PacketType {
	var types []PacketType
	for _, raw := range t.written() {
		types = append(types, raw.Type)
	}
	return types
}

func (t *recordingTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *recordingTransport) setWriteErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// onLoop runs fn on the connection's event loop and waits for it.
func onLoop(t *testing.T, c *Conn, fn func()) {
	t.Helper()
	done := make(chan struct{})
	require.NoError(t, c.loop.Execute(func() {
		fn()
		close(done)
	}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event loop stalled")
	}
}

// flush waits until every task queued before the call has run.
func flush(t *testing.T, c *Conn) {
	t.Helper()
	onLoop(t, c, func() {})
}

func mustSerialize(t *testing.T, packet OutboundPacket, version ProtocolVersion) RawPacket {
	t.Helper()
	raw, err := packet.Serialize(version)
	require.NoError(t, err)
	return raw
}

// packetTypes lists the types of written packets.
func packetTypes(packets []OutboundPacket) []PacketType {
	types := make([]PacketType, 0, len(packets))
	for _, p := range packets {
		types = append(types, p.Type())
	}
	return types
}
