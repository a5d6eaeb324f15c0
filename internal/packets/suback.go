package packets

import (
	"encoding/binary"
	"io"
)

// SubackPacket represents an MQTT SUBACK control packet.
type SubackPacket struct {
	PacketID    uint16
	ReturnCodes []uint8 // one per requested topic, SubackFailure on refusal
}

// Type returns the packet type.
func (p *SubackPacket) Type() uint8 {
	return SUBACK
}

// Encode serializes the SUBACK packet into dst.
func (p *SubackPacket) Encode(dst []byte) ([]byte, error) {
	header := FixedHeader{PacketType: SUBACK, RemainingLength: 2 + len(p.ReturnCodes)}
	dst = header.appendBytes(dst)
	dst = binary.BigEndian.AppendUint16(dst, p.PacketID)
	return append(dst, p.ReturnCodes...), nil
}

// WriteTo writes the SUBACK packet to the writer.
func (p *SubackPacket) WriteTo(w io.Writer) (int64, error) {
	return writeEncoded(w, p)
}

// DecodeSuback decodes a SUBACK packet from the buffer.
func DecodeSuback(buf []byte) (*SubackPacket, error) {
	id, err := decodePacketID(buf, "SUBACK")
	if err != nil {
		return nil, err
	}

	codes := make([]uint8, len(buf)-2)
	copy(codes, buf[2:])

	return &SubackPacket{PacketID: id, ReturnCodes: codes}, nil
}
