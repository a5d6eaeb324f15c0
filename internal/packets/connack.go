package packets

import (
	"fmt"
	"io"
)

// ConnackPacket represents an MQTT CONNACK control packet.
type ConnackPacket struct {
	SessionPresent bool
	ReturnCode     uint8
}

// Type returns the packet type.
func (p *ConnackPacket) Type() uint8 {
	return CONNACK
}

// Encode serializes the CONNACK packet into dst.
func (p *ConnackPacket) Encode(dst []byte) ([]byte, error) {
	header := FixedHeader{PacketType: CONNACK, RemainingLength: 2}
	dst = header.appendBytes(dst)

	var ackFlags uint8
	if p.SessionPresent {
		ackFlags |= 0x01
	}
	return append(dst, ackFlags, p.ReturnCode), nil
}

// WriteTo writes the CONNACK packet to the writer.
func (p *ConnackPacket) WriteTo(w io.Writer) (int64, error) {
	return writeEncoded(w, p)
}

// DecodeConnack decodes a CONNACK packet from the buffer.
func DecodeConnack(buf []byte) (*ConnackPacket, error) {
	if len(buf) != 2 {
		return nil, fmt.Errorf("%w: CONNACK body must be 2 bytes, got %d", ErrMalformedPacket, len(buf))
	}

	return &ConnackPacket{
		SessionPresent: buf[0]&0x01 != 0,
		ReturnCode:     buf[1],
	}, nil
}
