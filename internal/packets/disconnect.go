package packets

import "io"

// DisconnectPacket represents an MQTT DISCONNECT control packet.
type DisconnectPacket struct{}

// Type returns the packet type.
func (p *DisconnectPacket) Type() uint8 {
	return DISCONNECT
}

// Encode serializes the DISCONNECT packet into dst.
func (p *DisconnectPacket) Encode(dst []byte) ([]byte, error) {
	return append(dst, DISCONNECT<<4, 0), nil
}

// WriteTo writes the DISCONNECT packet to the writer.
func (p *DisconnectPacket) WriteTo(w io.Writer) (int64, error) {
	return writeEncoded(w, p)
}
