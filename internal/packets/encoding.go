package packets

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxFieldLength is the longest string or binary field a 2-byte length
// prefix can describe.
const MaxFieldLength = 65535

// checkFieldLength rejects fields that do not fit their length prefix.
func checkFieldLength(field string, n int) error {
	if n > MaxFieldLength {
		return fmt.Errorf("%w: %s of %d bytes exceeds %d", ErrMalformedPacket, field, n, MaxFieldLength)
	}
	return nil
}

// appendString appends an MQTT UTF-8 string: a 2-byte big-endian length
// followed by the bytes. Callers check s with checkFieldLength first.
func appendString(dst []byte, s string) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(s)))
	return append(dst, s...)
}

// appendBinary appends length-prefixed binary data, as used for the will
// message.
func appendBinary(dst []byte, data []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(data)))
	return append(dst, data...)
}

// decodeBinary returns the length-prefixed field at the start of buf and
// the number of bytes it occupies. The result aliases buf.
func decodeBinary(buf []byte) ([]byte, int, error) {
	if len(buf) < 2 {
		return nil, 0, fmt.Errorf("%w: missing length prefix", ErrMalformedPacket)
	}

	end := 2 + int(binary.BigEndian.Uint16(buf))
	if len(buf) < end {
		return nil, 0, fmt.Errorf("%w: field needs %d bytes, have %d", ErrMalformedPacket, end, len(buf))
	}
	return buf[2:end], end, nil
}

// decodeString is decodeBinary for UTF-8 strings. NUL characters and
// invalid UTF-8 are rejected.
func decodeString(buf []byte) (string, int, error) {
	raw, n, err := decodeBinary(buf)
	if err != nil {
		return "", 0, err
	}

	s := string(raw)
	if strings.IndexByte(s, 0) >= 0 {
		return "", 0, fmt.Errorf("%w: string contains null byte", ErrMalformedPacket)
	}
	if !utf8.ValidString(s) {
		return "", 0, fmt.Errorf("%w: invalid UTF-8 string", ErrMalformedPacket)
	}
	return s, n, nil
}

// decodePacketID reads the 2-byte identifier that opens every
// acknowledgement body.
func decodePacketID(buf []byte, name string) (uint16, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("%w: buffer too short for %s packet", ErrMalformedPacket, name)
	}
	return binary.BigEndian.Uint16(buf[0:2]), nil
}
