package packets

import (
	"fmt"
	"io"
)

// FixedHeader represents the fixed header present in all MQTT control packets.
// Format: [PacketType + Flags (1 byte)][Remaining Length (1-4 bytes)]
type FixedHeader struct {
	PacketType      uint8
	Flags           uint8
	RemainingLength int
}

// appendBytes appends the encoded fixed header to dst.
func (h *FixedHeader) appendBytes(dst []byte) []byte {
	dst = append(dst, (h.PacketType<<4)|(h.Flags&0x0F))
	return appendVarInt(dst, h.RemainingLength)
}

// WriteTo writes the fixed header to the writer.
func (h *FixedHeader) WriteTo(w io.Writer) (int64, error) {
	// 1 byte type+flags + max 4 bytes length
	var buf [1 + maxVarIntBytes]byte
	n, err := w.Write(h.appendBytes(buf[:0]))
	return int64(n), err
}

// DecodeFixedHeader reads and decodes a fixed header from the reader.
// A stream that ends before the first byte returns io.EOF unwrapped so
// callers can tell a graceful close from a truncated frame.
func DecodeFixedHeader(r io.Reader) (*FixedHeader, error) {
	var buf [1]byte

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}

	firstByte := buf[0]
	packetType := firstByte >> 4
	flags := firstByte & 0x0F

	remainingLength, err := decodeVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode remaining length: %w", err)
	}

	return &FixedHeader{
		PacketType:      packetType,
		Flags:           flags,
		RemainingLength: remainingLength,
	}, nil
}

// validateFlags checks the flag nibble against the pattern fixed by the
// protocol for every type except PUBLISH.
func (h *FixedHeader) validateFlags() error {
	switch h.PacketType {
	case PUBLISH:
		if h.Flags&flagQoSMask == flagQoSMask {
			return fmt.Errorf("%w: PUBLISH with QoS 3", ErrInvalidFlags)
		}
		return nil
	case SUBSCRIBE, UNSUBSCRIBE, PUBREL:
		if h.Flags != flagReserved {
			return fmt.Errorf("%w: %s flags 0x%X", ErrInvalidFlags, PacketNames[h.PacketType], h.Flags)
		}
	default:
		if h.Flags != 0 {
			return fmt.Errorf("%w: %s flags 0x%X", ErrInvalidFlags, PacketNames[h.PacketType], h.Flags)
		}
	}
	return nil
}
