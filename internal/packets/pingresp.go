package packets

import "io"

// PingrespPacket represents an MQTT PINGRESP control packet.
type PingrespPacket struct{}

// Type returns the packet type.
func (p *PingrespPacket) Type() uint8 {
	return PINGRESP
}

// Encode serializes the PINGRESP packet into dst.
func (p *PingrespPacket) Encode(dst []byte) ([]byte, error) {
	return append(dst, PINGRESP<<4, 0), nil
}

// WriteTo writes the PINGRESP packet to the writer.
func (p *PingrespPacket) WriteTo(w io.Writer) (int64, error) {
	return writeEncoded(w, p)
}
