package packets

import "io"

// PingreqPacket represents an MQTT PINGREQ control packet.
type PingreqPacket struct{}

// Type returns the packet type.
func (p *PingreqPacket) Type() uint8 {
	return PINGREQ
}

// Encode serializes the PINGREQ packet into dst.
func (p *PingreqPacket) Encode(dst []byte) ([]byte, error) {
	return append(dst, PINGREQ<<4, 0), nil
}

// WriteTo writes the PINGREQ packet to the writer.
func (p *PingreqPacket) WriteTo(w io.Writer) (int64, error) {
	return writeEncoded(w, p)
}
