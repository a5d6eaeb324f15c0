package packets

// MQTT Control Packet types
const (
	RESERVED    = 0
	CONNECT     = 1
	CONNACK     = 2
	PUBLISH     = 3
	PUBACK      = 4
	PUBREC      = 5
	PUBREL      = 6
	PUBCOMP     = 7
	SUBSCRIBE   = 8
	SUBACK      = 9
	UNSUBSCRIBE = 10
	UNSUBACK    = 11
	PINGREQ     = 12
	PINGRESP    = 13
	DISCONNECT  = 14
)

// PacketNames maps packet types to human-readable names
var PacketNames = map[uint8]string{
	RESERVED:    "RESERVED",
	CONNECT:     "CONNECT",
	CONNACK:     "CONNACK",
	PUBLISH:     "PUBLISH",
	PUBACK:      "PUBACK",
	PUBREC:      "PUBREC",
	PUBREL:      "PUBREL",
	PUBCOMP:     "PUBCOMP",
	SUBSCRIBE:   "SUBSCRIBE",
	SUBACK:      "SUBACK",
	UNSUBSCRIBE: "UNSUBSCRIBE",
	UNSUBACK:    "UNSUBACK",
	PINGREQ:     "PINGREQ",
	PINGRESP:    "PINGRESP",
	DISCONNECT:  "DISCONNECT",
}

// Protocol identification sent in CONNECT.
const (
	ProtocolName  = "MQTT"
	ProtocolLevel = 4 // MQTT 3.1.1
)

// QoS levels
const (
	QoS0 = 0 // At most once
	QoS1 = 1 // At least once
	QoS2 = 2 // Exactly once
)

// CONNACK return codes (v3.1.1)
const (
	ConnAccepted                     = 0
	ConnRefusedUnacceptableProtocol  = 1
	ConnRefusedIdentifierRejected    = 2
	ConnRefusedServerUnavailable     = 3
	ConnRefusedBadUsernameOrPassword = 4
	ConnRefusedNotAuthorized         = 5
)

// ConnackReturnCodeNames maps CONNACK return codes to the refusal reason.
var ConnackReturnCodeNames = map[uint8]string{
	ConnAccepted:                     "accepted",
	ConnRefusedUnacceptableProtocol:  "unacceptable protocol version",
	ConnRefusedIdentifierRejected:    "identifier rejected",
	ConnRefusedServerUnavailable:     "server unavailable",
	ConnRefusedBadUsernameOrPassword: "bad user name or password",
	ConnRefusedNotAuthorized:         "not authorized",
}

// SUBACK return codes
const (
	SubackQoS0    = 0x00
	SubackQoS1    = 0x01
	SubackQoS2    = 0x02
	SubackFailure = 0x80
)

// Fixed header flag bits.
const (
	flagRetain   = 0x01
	flagQoSMask  = 0x06
	flagDup      = 0x08
	flagReserved = 0x02 // required on SUBSCRIBE, UNSUBSCRIBE and PUBREL
)

// MaxRemainingLength is the largest value the 4-byte remaining length can hold.
const MaxRemainingLength = 268435455
