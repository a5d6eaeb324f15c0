package packets

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Connect flag bits.
const (
	connectFlagCleanSession = 0x02
	connectFlagWill         = 0x04
	connectFlagWillQoSShift = 3
	connectFlagWillRetain   = 0x20
	connectFlagPassword     = 0x40
	connectFlagUsername     = 0x80
)

// ConnectPacket represents an MQTT CONNECT control packet.
//
// The flags byte is derived from the fields: a will is present when
// WillTopic is set, credentials when Username or Password is non-nil.
type ConnectPacket struct {
	// Protocol name and level; zero values encode as "MQTT" and 4.
	ProtocolName  string
	ProtocolLevel uint8

	CleanSession bool

	// Keep alive timer in seconds
	KeepAlive uint16

	ClientID string

	// Will fields
	WillTopic   string
	WillMessage []byte
	WillQoS     uint8
	WillRetain  bool

	// Credentials; nil means absent, which differs from an empty value.
	Username *string
	Password *string
}

// Type returns the packet type.
func (p *ConnectPacket) Type() uint8 {
	return CONNECT
}

// HasWill reports whether the packet carries a will message.
func (p *ConnectPacket) HasWill() bool {
	return p.WillTopic != ""
}

// Flags computes the connect flags byte.
func (p *ConnectPacket) Flags() uint8 {
	var flags uint8
	if p.CleanSession {
		flags |= connectFlagCleanSession
	}
	if p.HasWill() {
		flags |= connectFlagWill
		flags |= (p.WillQoS & 0x03) << connectFlagWillQoSShift
		if p.WillRetain {
			flags |= connectFlagWillRetain
		}
	}
	if p.Password != nil {
		flags |= connectFlagPassword
	}
	if p.Username != nil {
		flags |= connectFlagUsername
	}
	return flags
}

// Encode serializes the CONNECT packet into dst.
func (p *ConnectPacket) Encode(dst []byte) ([]byte, error) {
	name := p.ProtocolName
	if name == "" {
		name = ProtocolName
	}
	level := p.ProtocolLevel
	if level == 0 {
		level = ProtocolLevel
	}

	if err := p.checkFields(name); err != nil {
		return dst, err
	}

	// Name + Level + Flags + KeepAlive
	remainingLength := 2 + len(name) + 1 + 1 + 2
	remainingLength += 2 + len(p.ClientID)
	if p.HasWill() {
		remainingLength += 2 + len(p.WillTopic) + 2 + len(p.WillMessage)
	}
	if p.Username != nil {
		remainingLength += 2 + len(*p.Username)
	}
	if p.Password != nil {
		remainingLength += 2 + len(*p.Password)
	}
	if remainingLength > MaxRemainingLength {
		return dst, fmt.Errorf("%w: CONNECT of %d bytes", ErrPacketTooLarge, remainingLength)
	}

	header := FixedHeader{PacketType: CONNECT, RemainingLength: remainingLength}
	dst = header.appendBytes(dst)

	// Variable header
	dst = appendString(dst, name)
	dst = append(dst, level, p.Flags())
	dst = binary.BigEndian.AppendUint16(dst, p.KeepAlive)

	// Payload
	dst = appendString(dst, p.ClientID)
	if p.HasWill() {
		dst = appendString(dst, p.WillTopic)
		dst = appendBinary(dst, p.WillMessage)
	}
	if p.Username != nil {
		dst = appendString(dst, *p.Username)
	}
	if p.Password != nil {
		dst = appendString(dst, *p.Password)
	}

	return dst, nil
}

func (p *ConnectPacket) checkFields(name string) error {
	fields := []struct {
		name string
		n    int
	}{
		{"protocol name", len(name)},
		{"client ID", len(p.ClientID)},
		{"will topic", len(p.WillTopic)},
		{"will message", len(p.WillMessage)},
	}
	for _, f := range fields {
		if err := checkFieldLength(f.name, f.n); err != nil {
			return err
		}
	}
	if p.Username != nil {
		if err := checkFieldLength("username", len(*p.Username)); err != nil {
			return err
		}
	}
	if p.Password != nil {
		return checkFieldLength("password", len(*p.Password))
	}
	return nil
}

// WriteTo writes the CONNECT packet to the writer.
func (p *ConnectPacket) WriteTo(w io.Writer) (int64, error) {
	return writeEncoded(w, p)
}

// DecodeConnect decodes a CONNECT packet from the buffer.
func DecodeConnect(buf []byte) (*ConnectPacket, error) {
	if len(buf) < 10 {
		return nil, fmt.Errorf("%w: buffer too short for CONNECT packet", ErrMalformedPacket)
	}

	pkt := &ConnectPacket{}
	offset := 0

	protocolName, n, err := decodeString(buf[offset:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode protocol name: %w", err)
	}
	pkt.ProtocolName = protocolName
	offset += n

	if offset+4 > len(buf) {
		return nil, fmt.Errorf("%w: buffer too short for CONNECT variable header", ErrMalformedPacket)
	}
	pkt.ProtocolLevel = buf[offset]
	flags := buf[offset+1]
	pkt.KeepAlive = binary.BigEndian.Uint16(buf[offset+2 : offset+4])
	offset += 4

	if flags&0x01 != 0 {
		return nil, fmt.Errorf("%w: reserved connect flag set", ErrMalformedPacket)
	}
	pkt.CleanSession = flags&connectFlagCleanSession != 0

	clientID, n, err := decodeString(buf[offset:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode client ID: %w", err)
	}
	pkt.ClientID = clientID
	offset += n

	if flags&connectFlagWill != 0 {
		pkt.WillQoS = (flags >> connectFlagWillQoSShift) & 0x03
		pkt.WillRetain = flags&connectFlagWillRetain != 0

		willTopic, n, err := decodeString(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("failed to decode will topic: %w", err)
		}
		pkt.WillTopic = willTopic
		offset += n

		willMessage, n, err := decodeBinary(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("failed to decode will message: %w", err)
		}
		// Copy willMessage because the underlying buffer is reused
		pkt.WillMessage = make([]byte, len(willMessage))
		copy(pkt.WillMessage, willMessage)
		offset += n
	}

	if flags&connectFlagUsername != 0 {
		username, n, err := decodeString(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("failed to decode username: %w", err)
		}
		pkt.Username = &username
		offset += n
	}

	if flags&connectFlagPassword != 0 {
		password, _, err := decodeString(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("failed to decode password: %w", err)
		}
		pkt.Password = &password
	}

	return pkt, nil
}
