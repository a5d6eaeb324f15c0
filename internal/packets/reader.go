package packets

import (
	"errors"
	"fmt"
	"io"
)

// ReadPacket reads one complete MQTT 3.1.1 packet from the reader.
//
// A stream that closes cleanly between frames yields io.EOF unwrapped.
// A frame cut short yields an error wrapping io.ErrUnexpectedEOF. The
// maxIncomingPacket parameter bounds the remaining length; 0 or a value
// above MaxRemainingLength selects MaxRemainingLength.
func ReadPacket(r io.Reader, maxIncomingPacket int) (Packet, error) {
	header, err := DecodeFixedHeader(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode fixed header: %w", err)
	}

	if header.PacketType == RESERVED || header.PacketType > DISCONNECT {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPacketType, header.PacketType)
	}
	if err := header.validateFlags(); err != nil {
		return nil, err
	}

	maxPacketSize := maxIncomingPacket
	if maxPacketSize <= 0 || maxPacketSize > MaxRemainingLength {
		maxPacketSize = MaxRemainingLength
	}
	if header.RemainingLength > maxPacketSize {
		return nil, fmt.Errorf("%w: %d exceeds maximum %d", ErrPacketTooLarge, header.RemainingLength, maxPacketSize)
	}

	var remaining []byte
	if header.RemainingLength > 0 {
		bufPtr := GetBuffer(header.RemainingLength)
		defer PutBuffer(bufPtr)
		remaining = (*bufPtr)[:header.RemainingLength]

		if _, err := io.ReadFull(r, remaining); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("failed to read %s body: %w", PacketNames[header.PacketType], err)
		}
	}

	return decodeBody(header, remaining)
}

// decodeBody dispatches the body to the decoder for the header's type.
// Decoders copy anything they keep because remaining is pooled.
func decodeBody(header *FixedHeader, remaining []byte) (Packet, error) {
	switch header.PacketType {
	case CONNECT:
		return DecodeConnect(remaining)
	case CONNACK:
		return DecodeConnack(remaining)
	case PUBLISH:
		return DecodePublish(remaining, header)
	case PUBACK:
		if err := expectLength(header, 2); err != nil {
			return nil, err
		}
		return DecodePuback(remaining)
	case PUBREC:
		if err := expectLength(header, 2); err != nil {
			return nil, err
		}
		return DecodePubrec(remaining)
	case PUBREL:
		if err := expectLength(header, 2); err != nil {
			return nil, err
		}
		return DecodePubrel(remaining)
	case PUBCOMP:
		if err := expectLength(header, 2); err != nil {
			return nil, err
		}
		return DecodePubcomp(remaining)
	case SUBSCRIBE:
		return DecodeSubscribe(remaining)
	case SUBACK:
		return DecodeSuback(remaining)
	case UNSUBSCRIBE:
		return DecodeUnsubscribe(remaining)
	case UNSUBACK:
		if err := expectLength(header, 2); err != nil {
			return nil, err
		}
		return DecodeUnsuback(remaining)
	case PINGREQ:
		return &PingreqPacket{}, expectLength(header, 0)
	case PINGRESP:
		return &PingrespPacket{}, expectLength(header, 0)
	case DISCONNECT:
		return &DisconnectPacket{}, expectLength(header, 0)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownPacketType, header.PacketType)
}

func expectLength(header *FixedHeader, n int) error {
	if header.RemainingLength != n {
		return fmt.Errorf("%w: %s remaining length %d, want %d",
			ErrMalformedPacket, PacketNames[header.PacketType], header.RemainingLength, n)
	}
	return nil
}
