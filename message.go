package edgemq

// Message is an inbound PUBLISH as seen by a subscription handler.
//
// Payload is owned by the handler; the client does not reuse it.
type Message struct {
	Topic   string
	Payload []byte
	QoS     QoS

	// Retained is set when the broker delivers a stored retained message.
	Retained bool

	// Duplicate is set when the broker marked the PUBLISH as a
	// redelivery. QoS 2 duplicates are filtered before dispatch.
	Duplicate bool
}

// MessageHandler is called when a message is received on a subscribed topic.
//
// Handlers run on the connection goroutine, in arrival order, before the
// acknowledgement is written. A slow handler delays every later packet.
type MessageHandler func(*Client, Message)
