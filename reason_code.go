package mqttflow

// ReasonCode represents an MQTT v5.0 reason code. Under MQTT 3.1.1 the
// SUBACK return codes map onto the same values.
type ReasonCode byte

// Reason codes a client receives in acknowledgements or sends itself.
const (
	// Success / Normal disconnection / Granted QoS 0
	ReasonSuccess ReasonCode = 0x00
	// Granted QoS 1
	ReasonGrantedQoS1 ReasonCode = 0x01
	// Granted QoS 2
	ReasonGrantedQoS2 ReasonCode = 0x02
	// No matching subscribers
	ReasonNoMatchingSubscribers ReasonCode = 0x10
	// No subscription existed
	ReasonNoSubscriptionExisted ReasonCode = 0x11
	// Unspecified error
	ReasonUnspecifiedError ReasonCode = 0x80
	// Implementation specific error
	ReasonImplSpecificError ReasonCode = 0x83
	// Not authorized
	ReasonNotAuthorized ReasonCode = 0x87
	// Keep Alive timeout
	ReasonKeepAliveTimeout ReasonCode = 0x8D
	// Topic Filter invalid
	ReasonTopicFilterInvalid ReasonCode = 0x8F
	// Topic Name invalid
	ReasonTopicNameInvalid ReasonCode = 0x90
	// Packet Identifier in use
	ReasonPacketIDInUse ReasonCode = 0x91
	// Packet Identifier not found
	ReasonPacketIDNotFound ReasonCode = 0x92
	// Quota exceeded
	ReasonQuotaExceeded ReasonCode = 0x97
	// Payload format invalid
	ReasonPayloadFormatInvalid ReasonCode = 0x99
	// Shared Subscriptions not supported
	ReasonSharedSubsNotSupported ReasonCode = 0x9E
	// Subscription Identifiers not supported
	ReasonSubIDsNotSupported ReasonCode = 0xA1
	// Wildcard Subscriptions not supported
	ReasonWildcardSubsNotSupported ReasonCode = 0xA2
)

var reasonCodeStrings = map[ReasonCode]string{
	ReasonSuccess:                  "Success",
	ReasonGrantedQoS1:              "Granted QoS 1",
	ReasonGrantedQoS2:              "Granted QoS 2",
	ReasonNoMatchingSubscribers:    "No matching subscribers",
	ReasonNoSubscriptionExisted:    "No subscription existed",
	ReasonUnspecifiedError:         "Unspecified error",
	ReasonImplSpecificError:        "Implementation specific error",
	ReasonNotAuthorized:            "Not authorized",
	ReasonKeepAliveTimeout:         "Keep Alive timeout",
	ReasonTopicFilterInvalid:       "Topic Filter invalid",
	ReasonTopicNameInvalid:         "Topic Name invalid",
	ReasonPacketIDInUse:            "Packet Identifier in use",
	ReasonPacketIDNotFound:         "Packet Identifier not found",
	ReasonQuotaExceeded:            "Quota exceeded",
	ReasonPayloadFormatInvalid:     "Payload format invalid",
	ReasonSharedSubsNotSupported:   "Shared Subscriptions not supported",
	ReasonSubIDsNotSupported:       "Subscription Identifiers not supported",
	ReasonWildcardSubsNotSupported: "Wildcard Subscriptions not supported",
}

// String returns the human-readable description of the reason code.
func (r ReasonCode) String() string {
	if s, ok := reasonCodeStrings[r]; ok {
		return s
	}
	return "Unknown reason code"
}

// IsError returns true if the reason code indicates an error (>= 0x80).
func (r ReasonCode) IsError() bool {
	return r >= 0x80
}

// GrantedQoS returns the QoS granted by a SUBACK reason code.
// ok is false for failure codes.
func (r ReasonCode) GrantedQoS() (QoS, bool) {
	switch r {
	case ReasonSuccess:
		return QoS0, true
	case ReasonGrantedQoS1:
		return QoS1, true
	case ReasonGrantedQoS2:
		return QoS2, true
	default:
		return 0, false
	}
}
