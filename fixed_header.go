package mqttflow

// PacketType represents an MQTT control packet type.
type PacketType byte

// MQTT control packet types.
const (
	PacketCONNECT     PacketType = 1
	PacketCONNACK     PacketType = 2
	PacketPUBLISH     PacketType = 3
	PacketPUBACK      PacketType = 4
	PacketPUBREC      PacketType = 5
	PacketPUBREL      PacketType = 6
	PacketPUBCOMP     PacketType = 7
	PacketSUBSCRIBE   PacketType = 8
	PacketSUBACK      PacketType = 9
	PacketUNSUBSCRIBE PacketType = 10
	PacketUNSUBACK    PacketType = 11
	PacketPINGREQ     PacketType = 12
	PacketPINGRESP    PacketType = 13
	PacketDISCONNECT  PacketType = 14
	PacketAUTH        PacketType = 15
)

var packetTypeNames = [...]string{
	PacketCONNECT:     "CONNECT",
	PacketCONNACK:     "CONNACK",
	PacketPUBLISH:     "PUBLISH",
	PacketPUBACK:      "PUBACK",
	PacketPUBREC:      "PUBREC",
	PacketPUBREL:      "PUBREL",
	PacketPUBCOMP:     "PUBCOMP",
	PacketSUBSCRIBE:   "SUBSCRIBE",
	PacketSUBACK:      "SUBACK",
	PacketUNSUBSCRIBE: "UNSUBSCRIBE",
	PacketUNSUBACK:    "UNSUBACK",
	PacketPINGREQ:     "PINGREQ",
	PacketPINGRESP:    "PINGRESP",
	PacketDISCONNECT:  "DISCONNECT",
	PacketAUTH:        "AUTH",
}

// String returns the name of the packet type, or "UNKNOWN".
func (p PacketType) String() string {
	if !p.Valid() {
		return "UNKNOWN"
	}
	return packetTypeNames[p]
}

// Valid returns true if the packet type is valid.
func (p PacketType) Valid() bool {
	return p >= PacketCONNECT && p <= PacketAUTH
}

// Fixed header flag values.
const (
	// flagsReserved is the mandatory low nibble of PUBREL, SUBSCRIBE and UNSUBSCRIBE.
	flagsReserved byte = 0x02

	publishFlagRetain byte = 0x01
	publishFlagQoS1   byte = 0x02
	publishFlagQoS2   byte = 0x04
	publishFlagDUP    byte = 0x08
)

// publishFlags packs the PUBLISH fixed header flags.
func publishFlags(qos QoS, retain, dup bool) byte {
	var flags byte
	if retain {
		flags |= publishFlagRetain
	}
	switch qos {
	case QoS1:
		flags |= publishFlagQoS1
	case QoS2:
		flags |= publishFlagQoS2
	}
	if dup {
		flags |= publishFlagDUP
	}
	return flags
}

// parsePublishFlags unpacks the PUBLISH fixed header flags.
// Both QoS bits set is rejected rather than resolved to either level.
func parsePublishFlags(flags byte) (qos QoS, retain, dup bool, err error) {
	if flags&0xF0 != 0 {
		return 0, false, false, ErrInvalidPacketFlags
	}

	switch flags & (publishFlagQoS1 | publishFlagQoS2) {
	case 0:
		qos = QoS0
	case publishFlagQoS1:
		qos = QoS1
	case publishFlagQoS2:
		qos = QoS2
	default:
		return 0, false, false, ErrInvalidQoS
	}

	return qos, flags&publishFlagRetain != 0, flags&publishFlagDUP != 0, nil
}
