package packets

import "io"

// Packet is the interface that all MQTT control packets must implement.
type Packet interface {
	// Type returns the MQTT control packet type.
	Type() uint8

	// WriteTo writes the packet to the writer.
	// It returns the number of bytes written and any error encountered.
	WriteTo(w io.Writer) (int64, error)
}

// Encoder is implemented by every packet in this package and appends the
// complete frame, fixed header included, to dst.
type Encoder interface {
	Encode(dst []byte) ([]byte, error)
}

// writeEncoded serializes p into a pooled buffer and writes it in a single
// call so a frame is never split across writes.
func writeEncoded(w io.Writer, p Encoder) (int64, error) {
	bufPtr := GetBuffer(pooledBufferSize)
	defer PutBuffer(bufPtr)

	data, err := p.Encode((*bufPtr)[:0])
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}
