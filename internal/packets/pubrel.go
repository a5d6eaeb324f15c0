package packets

import "io"

// PubrelPacket represents an MQTT PUBREL control packet (QoS 2, step 2).
// Its fixed header always carries flags 0x02.
type PubrelPacket struct {
	PacketID uint16
}

// Type returns the packet type.
func (p *PubrelPacket) Type() uint8 {
	return PUBREL
}

// Encode serializes the PUBREL packet into dst.
func (p *PubrelPacket) Encode(dst []byte) ([]byte, error) {
	return appendIDPacket(dst, PUBREL, flagReserved, p.PacketID), nil
}

// WriteTo writes the PUBREL packet to the writer.
func (p *PubrelPacket) WriteTo(w io.Writer) (int64, error) {
	return writeEncoded(w, p)
}

// DecodePubrel decodes a PUBREL packet from the buffer.
func DecodePubrel(buf []byte) (*PubrelPacket, error) {
	id, err := decodePacketID(buf, "PUBREL")
	if err != nil {
		return nil, err
	}
	return &PubrelPacket{PacketID: id}, nil
}
