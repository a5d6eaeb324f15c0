package edgemq

import (
	"errors"
	"fmt"

	"github.com/gonzalop/edgemq/internal/packets"
)

// handleIncoming processes a packet received in the established state.
// A non-nil error closes the connection.
func (c *Client) handleIncoming(pkt packets.Packet) error {
	switch p := pkt.(type) {
	case *packets.PublishPacket:
		return c.handlePublish(p)

	case *packets.PubackPacket:
		c.completePublication(p.PacketID, "PUBACK")

	case *packets.PubrecPacket:
		return c.handlePubrec(p)

	case *packets.PubrelPacket:
		return c.handlePubrel(p)

	case *packets.PubcompPacket:
		c.completePublication(p.PacketID, "PUBCOMP")

	case *packets.SubackPacket:
		c.handleSuback(p)

	case *packets.UnsubackPacket:
		// Nothing to track

	case *packets.PingreqPacket:
		return c.send(&packets.PingrespPacket{})

	case *packets.PingrespPacket:
		c.opts.Logger.Debug("received PINGRESP")

	case *packets.DisconnectPacket:
		return errors.New("server sent DISCONNECT")

	default:
		return fmt.Errorf("%w: unexpected %s", ErrProtocolViolation, packets.PacketNames[pkt.Type()])
	}
	return nil
}

// handlePublish delivers an incoming PUBLISH and acknowledges it.
func (c *Client) handlePublish(p *packets.PublishPacket) error {
	// For QoS 2, check if we've already received this packet
	if p.QoS == packets.QoS2 {
		if _, exists := c.receivedQoS2[p.PacketID]; exists {
			// Duplicate QoS 2 message - send PUBREC but don't deliver again
			c.opts.Logger.Debug("duplicate QoS 2 publish", "packet_id", p.PacketID)
			return c.send(&packets.PubrecPacket{PacketID: p.PacketID})
		}
		c.receivedQoS2[p.PacketID] = struct{}{}
	}

	c.deliver(Message{
		Topic:     p.Topic,
		Payload:   p.Payload,
		QoS:       QoS(p.QoS),
		Retained:  p.Retain,
		Duplicate: p.Dup,
	})

	switch p.QoS {
	case packets.QoS1:
		return c.send(&packets.PubackPacket{PacketID: p.PacketID})
	case packets.QoS2:
		return c.send(&packets.PubrecPacket{PacketID: p.PacketID})
	}
	return nil
}

// deliver calls the handlers registered for the message topic, or the
// default handler when none match.
func (c *Client) deliver(msg Message) {
	handlers := c.subscriptions.handlers(msg.Topic, c.opts.WildcardDispatch)
	if len(handlers) == 0 && c.opts.DefaultPublishHandler != nil {
		handlers = append(handlers, c.opts.DefaultPublishHandler)
	}
	if len(handlers) == 0 {
		c.opts.Logger.Debug("no handler for message", "topic", msg.Topic)
		return
	}

	for _, handler := range handlers {
		c.callHandler(applyHandlerInterceptors(handler, c.opts.HandlerInterceptors), msg)
	}
}

func (c *Client) callHandler(handler MessageHandler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.opts.Logger.Error("message handler panicked", "topic", msg.Topic, "panic", r)
		}
	}()
	handler(c, msg)
}

// completePublication removes a pending publication once its final
// acknowledgement arrives: PUBACK for QoS 1, PUBCOMP for QoS 2.
func (c *Client) completePublication(id uint16, ack string) {
	if !c.pending.ack(id) {
		c.opts.Logger.Debug("acknowledgement for unknown packet", "type", ack, "packet_id", id)
	}
}

// handlePubrec processes a PUBREC packet (QoS 2, step 1).
func (c *Client) handlePubrec(p *packets.PubrecPacket) error {
	if !c.pending.release(p.PacketID, c.now()) {
		c.opts.Logger.Debug("PUBREC for unknown packet", "packet_id", p.PacketID)
	}
	return c.send(&packets.PubrelPacket{PacketID: p.PacketID})
}

// handlePubrel processes a PUBREL packet (QoS 2, step 2).
func (c *Client) handlePubrel(p *packets.PubrelPacket) error {
	delete(c.receivedQoS2, p.PacketID)
	return c.send(&packets.PubcompPacket{PacketID: p.PacketID})
}

// handleSuback logs refused subscriptions; the registry keeps them so they
// are requested again on the next connection.
func (c *Client) handleSuback(p *packets.SubackPacket) {
	for i, code := range p.ReturnCodes {
		if code == packets.SubackFailure {
			c.opts.Logger.Warn("subscription refused", "packet_id", p.PacketID, "index", i)
		}
	}
}
