package packets

import "io"

// PubrecPacket represents an MQTT PUBREC control packet (QoS 2, step 1).
type PubrecPacket struct {
	PacketID uint16
}

// Type returns the packet type.
func (p *PubrecPacket) Type() uint8 {
	return PUBREC
}

// Encode serializes the PUBREC packet into dst.
func (p *PubrecPacket) Encode(dst []byte) ([]byte, error) {
	return appendIDPacket(dst, PUBREC, 0, p.PacketID), nil
}

// WriteTo writes the PUBREC packet to the writer.
func (p *PubrecPacket) WriteTo(w io.Writer) (int64, error) {
	return writeEncoded(w, p)
}

// DecodePubrec decodes a PUBREC packet from the buffer.
func DecodePubrec(buf []byte) (*PubrecPacket, error) {
	id, err := decodePacketID(buf, "PUBREC")
	if err != nil {
		return nil, err
	}
	return &PubrecPacket{PacketID: id}, nil
}

// PubcompPacket represents an MQTT PUBCOMP control packet (QoS 2, step 3).
type PubcompPacket struct {
	PacketID uint16
}

// Type returns the packet type.
func (p *PubcompPacket) Type() uint8 {
	return PUBCOMP
}

// Encode serializes the PUBCOMP packet into dst.
func (p *PubcompPacket) Encode(dst []byte) ([]byte, error) {
	return appendIDPacket(dst, PUBCOMP, 0, p.PacketID), nil
}

// WriteTo writes the PUBCOMP packet to the writer.
func (p *PubcompPacket) WriteTo(w io.Writer) (int64, error) {
	return writeEncoded(w, p)
}

// DecodePubcomp decodes a PUBCOMP packet from the buffer.
func DecodePubcomp(buf []byte) (*PubcompPacket, error) {
	id, err := decodePacketID(buf, "PUBCOMP")
	if err != nil {
		return nil, err
	}
	return &PubcompPacket{PacketID: id}, nil
}
