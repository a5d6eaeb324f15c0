package packets

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PublishPacket represents an MQTT PUBLISH control packet.
type PublishPacket struct {
	// Fixed header flags
	Dup    bool
	QoS    uint8
	Retain bool

	// Variable header
	Topic    string
	PacketID uint16 // Only present if QoS > 0

	// Payload
	Payload []byte
}

// Type returns the packet type.
func (p *PublishPacket) Type() uint8 {
	return PUBLISH
}

// Flags returns the fixed header flag nibble.
func (p *PublishPacket) Flags() uint8 {
	var flags uint8
	if p.Dup {
		flags |= flagDup
	}
	flags |= (p.QoS & 0x03) << 1
	if p.Retain {
		flags |= flagRetain
	}
	return flags
}

// Encode serializes the PUBLISH packet into dst.
func (p *PublishPacket) Encode(dst []byte) ([]byte, error) {
	if p.QoS > QoS2 {
		return dst, fmt.Errorf("%w: PUBLISH with QoS %d", ErrInvalidFlags, p.QoS)
	}
	if err := checkFieldLength("topic", len(p.Topic)); err != nil {
		return dst, err
	}

	variableHeaderLen := 2 + len(p.Topic)
	if p.QoS > 0 {
		variableHeaderLen += 2
	}
	remainingLength := variableHeaderLen + len(p.Payload)
	if remainingLength > MaxRemainingLength {
		return dst, fmt.Errorf("%w: PUBLISH of %d bytes", ErrPacketTooLarge, remainingLength)
	}

	header := FixedHeader{
		PacketType:      PUBLISH,
		Flags:           p.Flags(),
		RemainingLength: remainingLength,
	}
	dst = header.appendBytes(dst)

	dst = appendString(dst, p.Topic)
	if p.QoS > 0 {
		dst = binary.BigEndian.AppendUint16(dst, p.PacketID)
	}
	dst = append(dst, p.Payload...)

	return dst, nil
}

// WriteTo writes the PUBLISH packet to the writer.
func (p *PublishPacket) WriteTo(w io.Writer) (int64, error) {
	return writeEncoded(w, p)
}

// DecodePublish decodes a PUBLISH packet from the buffer and fixed header.
func DecodePublish(buf []byte, fixedHeader *FixedHeader) (*PublishPacket, error) {
	pkt := &PublishPacket{
		Dup:    fixedHeader.Flags&flagDup != 0,
		QoS:    (fixedHeader.Flags >> 1) & 0x03,
		Retain: fixedHeader.Flags&flagRetain != 0,
	}
	if pkt.QoS > QoS2 {
		return nil, fmt.Errorf("%w: PUBLISH with QoS 3", ErrInvalidFlags)
	}

	offset := 0

	topic, n, err := decodeString(buf[offset:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode topic: %w", err)
	}
	pkt.Topic = topic
	offset += n

	if pkt.QoS > 0 {
		if offset+2 > len(buf) {
			return nil, fmt.Errorf("%w: buffer too short for packet ID", ErrMalformedPacket)
		}
		pkt.PacketID = binary.BigEndian.Uint16(buf[offset : offset+2])
		if pkt.PacketID == 0 {
			return nil, fmt.Errorf("%w: QoS %d PUBLISH with packet ID 0", ErrMalformedPacket, pkt.QoS)
		}
		offset += 2
	}

	// Payload is the rest of the buffer
	pkt.Payload = make([]byte, len(buf)-offset)
	copy(pkt.Payload, buf[offset:])

	return pkt, nil
}
