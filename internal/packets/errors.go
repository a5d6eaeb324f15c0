package packets

import "errors"

var (
	// ErrMalformedRemainingLength is returned when the remaining length
	// field keeps its continuation bit set past the fourth byte.
	ErrMalformedRemainingLength = errors.New("malformed remaining length")

	// ErrUnknownPacketType is returned for the reserved type nibbles 0 and 15.
	ErrUnknownPacketType = errors.New("unknown packet type")

	// ErrInvalidFlags is returned when the fixed header flags do not match
	// the bit pattern required for the packet type.
	ErrInvalidFlags = errors.New("invalid fixed header flags")

	// ErrMalformedPacket is returned when a packet body cannot be decoded.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrPacketTooLarge is returned when the remaining length exceeds the
	// configured incoming limit.
	ErrPacketTooLarge = errors.New("packet too large")
)
