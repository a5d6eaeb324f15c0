package packets

import (
	"encoding/binary"
	"io"
)

// PubackPacket represents an MQTT PUBACK control packet (QoS 1 acknowledgment).
type PubackPacket struct {
	PacketID uint16
}

// Type returns the packet type.
func (p *PubackPacket) Type() uint8 {
	return PUBACK
}

// Encode serializes the PUBACK packet into dst.
func (p *PubackPacket) Encode(dst []byte) ([]byte, error) {
	return appendIDPacket(dst, PUBACK, 0, p.PacketID), nil
}

// WriteTo writes the PUBACK packet to the writer.
func (p *PubackPacket) WriteTo(w io.Writer) (int64, error) {
	return writeEncoded(w, p)
}

// DecodePuback decodes a PUBACK packet from the buffer.
func DecodePuback(buf []byte) (*PubackPacket, error) {
	id, err := decodePacketID(buf, "PUBACK")
	if err != nil {
		return nil, err
	}
	return &PubackPacket{PacketID: id}, nil
}

// appendIDPacket appends a frame whose body is only a packet identifier.
// PUBACK, PUBREC, PUBREL, PUBCOMP and UNSUBACK share this layout.
func appendIDPacket(dst []byte, packetType, flags uint8, id uint16) []byte {
	header := FixedHeader{PacketType: packetType, Flags: flags, RemainingLength: 2}
	dst = header.appendBytes(dst)
	return binary.BigEndian.AppendUint16(dst, id)
}
