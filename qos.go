package mqttflow

import (
	"errors"
)

var (
	ErrPacketIDExhausted = errors.New("no available packet IDs")
	ErrPacketIDNotFound  = errors.New("packet ID not found")
)

// PacketIDManager manages allocation and release of packet IDs (1-65535).
// An ID is never handed out again until its holder releases it.
// It is confined to the connection's event loop.
type PacketIDManager struct {
	used   map[uint16]struct{}
	next   uint16
	maxIDs int
}

// NewPacketIDManager creates a new packet ID manager.
func NewPacketIDManager() *PacketIDManager {
	return &PacketIDManager{
		used:   make(map[uint16]struct{}),
		next:   1,
		maxIDs: 65535,
	}
}

// Allocate returns the next available packet ID.
func (m *PacketIDManager) Allocate() (uint16, error) {
	if len(m.used) >= m.maxIDs {
		return 0, ErrPacketIDExhausted
	}

	for {
		id := m.next
		m.next++
		if m.next == 0 {
			m.next = 1
		}
		if _, ok := m.used[id]; !ok {
			m.used[id] = struct{}{}
			return id, nil
		}
	}
}

// Release releases a packet ID for reuse.
func (m *PacketIDManager) Release(id uint16) error {
	if _, ok := m.used[id]; !ok {
		return ErrPacketIDNotFound
	}
	delete(m.used, id)
	return nil
}

// IsUsed returns true if the packet ID is currently in use.
func (m *PacketIDManager) IsUsed(id uint16) bool {
	_, ok := m.used[id]
	return ok
}

// InUse returns the count of packet IDs currently in use.
func (m *PacketIDManager) InUse() int {
	return len(m.used)
}

// qos2Inbound holds QoS 2 messages received from the broker between
// PUBREC and PUBREL. Delivery happens once, when PUBREL arrives.
type qos2Inbound struct {
	messages map[uint16]Message
}

func newQoS2Inbound() *qos2Inbound {
	return &qos2Inbound{messages: make(map[uint16]Message)}
}

// store records the message and reports whether the packet ID was new.
func (s *qos2Inbound) store(packetID uint16, msg Message) bool {
	if _, ok := s.messages[packetID]; ok {
		return false
	}
	s.messages[packetID] = msg
	return true
}

// release removes and returns the message held under packetID.
func (s *qos2Inbound) release(packetID uint16) (Message, bool) {
	msg, ok := s.messages[packetID]
	if ok {
		delete(s.messages, packetID)
	}
	return msg, ok
}

func (s *qos2Inbound) len() int {
	return len(s.messages)
}

func (s *qos2Inbound) clear() {
	clear(s.messages)
}
