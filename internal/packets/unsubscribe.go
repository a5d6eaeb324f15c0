package packets

import (
	"encoding/binary"
	"fmt"
	"io"
)

// UnsubscribePacket represents an MQTT UNSUBSCRIBE control packet.
type UnsubscribePacket struct {
	PacketID uint16
	Topics   []string
}

// Type returns the packet type.
func (p *UnsubscribePacket) Type() uint8 {
	return UNSUBSCRIBE
}

// Encode serializes the UNSUBSCRIBE packet into dst.
func (p *UnsubscribePacket) Encode(dst []byte) ([]byte, error) {
	if len(p.Topics) == 0 {
		return dst, fmt.Errorf("%w: UNSUBSCRIBE without topics", ErrMalformedPacket)
	}

	remainingLength := 2
	for _, topic := range p.Topics {
		if err := checkFieldLength("topic filter", len(topic)); err != nil {
			return dst, err
		}
		remainingLength += 2 + len(topic)
	}

	header := FixedHeader{PacketType: UNSUBSCRIBE, Flags: flagReserved, RemainingLength: remainingLength}
	dst = header.appendBytes(dst)
	dst = binary.BigEndian.AppendUint16(dst, p.PacketID)
	for _, topic := range p.Topics {
		dst = appendString(dst, topic)
	}

	return dst, nil
}

// WriteTo writes the UNSUBSCRIBE packet to the writer.
func (p *UnsubscribePacket) WriteTo(w io.Writer) (int64, error) {
	return writeEncoded(w, p)
}

// DecodeUnsubscribe decodes an UNSUBSCRIBE packet from the buffer.
func DecodeUnsubscribe(buf []byte) (*UnsubscribePacket, error) {
	id, err := decodePacketID(buf, "UNSUBSCRIBE")
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, fmt.Errorf("%w: UNSUBSCRIBE with packet ID 0", ErrMalformedPacket)
	}

	pkt := &UnsubscribePacket{PacketID: id}
	offset := 2
	for offset < len(buf) {
		topic, n, err := decodeString(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("failed to decode topic filter: %w", err)
		}
		pkt.Topics = append(pkt.Topics, topic)
		offset += n
	}

	if len(pkt.Topics) == 0 {
		return nil, fmt.Errorf("%w: UNSUBSCRIBE without topics", ErrMalformedPacket)
	}

	return pkt, nil
}
