package edgemq

// QoS represents the MQTT Quality of Service level.
type QoS uint8

// MQTT Quality of Service levels.
const (
	// AtMostOnce (QoS 0) - Fire and forget delivery.
	// Published while disconnected, the message waits in a small offline
	// backlog and is sent once on the next connection. It is never retried.
	AtMostOnce QoS = 0

	// AtLeastOnce (QoS 1) - Acknowledged delivery.
	// The message stays in the pending ledger until PUBACK arrives and is
	// resent with the DUP flag while unacknowledged.
	AtLeastOnce QoS = 1

	// ExactlyOnce (QoS 2) - Assured delivery.
	// The message is always delivered exactly once using a four-step handshake
	// (PUBLISH, PUBREC, PUBREL, PUBCOMP). The ledger entry is removed only
	// when PUBCOMP arrives.
	ExactlyOnce QoS = 2
)

func (q QoS) valid() bool {
	return q <= ExactlyOnce
}
