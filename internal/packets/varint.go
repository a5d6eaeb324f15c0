package packets

import (
	"fmt"
	"io"
)

// maxVarIntBytes is the longest remaining length encoding MQTT allows.
const maxVarIntBytes = 4

// appendVarInt appends the Variable Byte Integer encoding of value to dst.
// This is the Remaining Length field of the Fixed Header (MQTT 3.1.1
// section 2.2.3). It returns the extended slice.
func appendVarInt(dst []byte, value int) []byte {
	if value < 0 || value > MaxRemainingLength {
		panic(fmt.Sprintf("value %d out of range for variable byte integer", value))
	}

	for {
		digit := byte(value % 128)
		value /= 128
		if value > 0 {
			digit |= 0x80
		}
		dst = append(dst, digit)
		if value == 0 {
			break
		}
	}
	return dst
}

// decodeVarInt reads a Variable Byte Integer from the reader.
// At most four bytes are consumed; a continuation bit on the fourth byte
// yields ErrMalformedRemainingLength.
func decodeVarInt(r io.Reader) (int, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = &byteReader{r: r}
	}

	value := 0
	multiplier := 1
	for i := 0; i < maxVarIntBytes; i++ {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		value += int(b&0x7F) * multiplier
		if b&0x80 == 0 {
			return value, nil
		}
		multiplier *= 128
	}
	return 0, ErrMalformedRemainingLength
}

// byteReader wraps an io.Reader to implement io.ByteReader
type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func (br *byteReader) ReadByte() (byte, error) {
	_, err := io.ReadFull(br.r, br.buf[:])
	return br.buf[0], err
}
