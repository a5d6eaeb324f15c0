package packets

import (
	"encoding/binary"
	"fmt"
	"io"
)

// SubscribePacket represents an MQTT SUBSCRIBE control packet.
type SubscribePacket struct {
	PacketID uint16
	Topics   []string
	QoS      []uint8 // requested QoS for each topic; missing entries are 0
}

// Type returns the packet type.
func (p *SubscribePacket) Type() uint8 {
	return SUBSCRIBE
}

// Encode serializes the SUBSCRIBE packet into dst.
func (p *SubscribePacket) Encode(dst []byte) ([]byte, error) {
	if len(p.Topics) == 0 {
		return dst, fmt.Errorf("%w: SUBSCRIBE without topics", ErrMalformedPacket)
	}

	remainingLength := 2
	for _, topic := range p.Topics {
		if err := checkFieldLength("topic filter", len(topic)); err != nil {
			return dst, err
		}
		remainingLength += 2 + len(topic) + 1
	}

	header := FixedHeader{PacketType: SUBSCRIBE, Flags: flagReserved, RemainingLength: remainingLength}
	dst = header.appendBytes(dst)
	dst = binary.BigEndian.AppendUint16(dst, p.PacketID)

	for i, topic := range p.Topics {
		qos := uint8(QoS0)
		if i < len(p.QoS) {
			qos = p.QoS[i]
		}
		dst = appendString(dst, topic)
		dst = append(dst, qos&0x03)
	}

	return dst, nil
}

// WriteTo writes the SUBSCRIBE packet to the writer.
func (p *SubscribePacket) WriteTo(w io.Writer) (int64, error) {
	return writeEncoded(w, p)
}

// DecodeSubscribe decodes a SUBSCRIBE packet from the buffer.
func DecodeSubscribe(buf []byte) (*SubscribePacket, error) {
	id, err := decodePacketID(buf, "SUBSCRIBE")
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, fmt.Errorf("%w: SUBSCRIBE with packet ID 0", ErrMalformedPacket)
	}

	pkt := &SubscribePacket{PacketID: id}
	offset := 2

	for offset < len(buf) {
		topic, n, err := decodeString(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("failed to decode topic filter: %w", err)
		}
		offset += n

		if offset >= len(buf) {
			return nil, fmt.Errorf("%w: missing QoS byte for topic %q", ErrMalformedPacket, topic)
		}
		qos := buf[offset]
		offset++
		if qos > QoS2 {
			return nil, fmt.Errorf("%w: requested QoS byte 0x%02X", ErrMalformedPacket, qos)
		}

		pkt.Topics = append(pkt.Topics, topic)
		pkt.QoS = append(pkt.QoS, qos)
	}

	if len(pkt.Topics) == 0 {
		return nil, fmt.Errorf("%w: SUBSCRIBE without topics", ErrMalformedPacket)
	}

	return pkt, nil
}
