package edgemq

import (
	"sync"
	"time"

	"github.com/gonzalop/edgemq/internal/packets"
)

// offlineLimit caps both the ledger and the QoS 0 backlog while the
// client is not established. The oldest entries are dropped first.
const offlineLimit = 10

// pendingPublication tracks an outbound QoS 1 or 2 PUBLISH until the
// final acknowledgement arrives.
type pendingPublication struct {
	id     uint16
	packet *packets.PublishPacket
	qos    QoS
	sentAt time.Time

	// sends counts transmissions; every send after the first carries DUP.
	sends int

	// released is set once PUBREC arrived; PUBREL is then the frame to
	// retransmit instead of the PUBLISH.
	released bool
}

// frame returns the packet to transmit next for this entry.
func (p *pendingPublication) frame() packets.Packet {
	if p.released {
		return &packets.PubrelPacket{PacketID: p.id}
	}
	pub := *p.packet
	pub.Dup = p.sends > 0
	return &pub
}

// ledger is the ordered set of unacknowledged publications plus the QoS 0
// backlog. It also issues packet identifiers so an identifier in use by a
// pending entry is never handed out twice.
type ledger struct {
	mu           sync.Mutex
	entries      []*pendingPublication
	backlog      []*packets.PublishPacket
	nextPacketID uint16
}

// nextID generates the next packet ID (1-65535, cycling), skipping IDs
// held by pending entries. The caller must hold l.mu.
func (l *ledger) nextID() uint16 {
	for range 65535 {
		l.nextPacketID++
		if l.nextPacketID == 0 {
			l.nextPacketID = 1
		}
		if l.find(l.nextPacketID) < 0 {
			return l.nextPacketID
		}
	}
	// Every identifier is pending; reuse the next one.
	return l.nextPacketID
}

// allocateID issues an identifier for a packet that is not tracked, such
// as SUBSCRIBE or UNSUBSCRIBE.
func (l *ledger) allocateID() uint16 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextID()
}

// add assigns an identifier to pub and appends it. When the client is
// offline the ledger is trimmed to the newest offlineLimit entries.
func (l *ledger) add(pub *packets.PublishPacket, qos QoS, offline bool) *pendingPublication {
	l.mu.Lock()
	defer l.mu.Unlock()

	pub.PacketID = l.nextID()
	entry := &pendingPublication{id: pub.PacketID, packet: pub, qos: qos}
	l.entries = append(l.entries, entry)

	if offline && len(l.entries) > offlineLimit {
		dropped := len(l.entries) - offlineLimit
		clear(l.entries[:dropped])
		l.entries = l.entries[dropped:]
	}
	return entry
}

// transmit marks entry as sent at now and returns the frame to write.
// It returns nil when the entry has been acknowledged in the meantime.
func (l *ledger) transmit(entry *pendingPublication, now time.Time) packets.Packet {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.find(entry.id) < 0 {
		return nil
	}
	return l.markSent(entry, now)
}

// markSent must be called with l.mu held.
func (l *ledger) markSent(entry *pendingPublication, now time.Time) packets.Packet {
	pkt := entry.frame()
	entry.sends++
	entry.sentAt = now
	return pkt
}

// ack removes the entry for id. It is the completion step for both PUBACK
// and PUBCOMP.
func (l *ledger) ack(id uint16) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.find(id)
	if i < 0 {
		return false
	}
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	return true
}

// release records PUBREC for id so later retries send PUBREL.
func (l *ledger) release(id uint16, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.find(id)
	if i < 0 {
		return false
	}
	entry := l.entries[i]
	entry.released = true
	entry.sentAt = now
	return true
}

// flush returns the frame for every entry in order and marks each sent.
func (l *ledger) flush(now time.Time) []packets.Packet {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]packets.Packet, 0, len(l.entries))
	for _, entry := range l.entries {
		out = append(out, l.markSent(entry, now))
	}
	return out
}

// unsent returns frames for entries that were never written and marks
// them sent.
func (l *ledger) unsent(now time.Time) []packets.Packet {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []packets.Packet
	for _, entry := range l.entries {
		if entry.sends == 0 {
			out = append(out, l.markSent(entry, now))
		}
	}
	return out
}

// due returns frames for entries last sent more than age before now and
// marks them sent again.
func (l *ledger) due(now time.Time, age time.Duration) []packets.Packet {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []packets.Packet
	for _, entry := range l.entries {
		if now.Sub(entry.sentAt) > age {
			out = append(out, l.markSent(entry, now))
		}
	}
	return out
}

// queue stores a QoS 0 PUBLISH produced while offline.
func (l *ledger) queue(pub *packets.PublishPacket) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.backlog = append(l.backlog, pub)
	if len(l.backlog) > offlineLimit {
		dropped := len(l.backlog) - offlineLimit
		clear(l.backlog[:dropped])
		l.backlog = l.backlog[dropped:]
	}
}

// drainBacklog removes and returns the queued QoS 0 publications.
func (l *ledger) drainBacklog() []*packets.PublishPacket {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.backlog
	l.backlog = nil
	return out
}

// ids returns the pending identifiers in ledger order.
func (l *ledger) ids() []uint16 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]uint16, len(l.entries))
	for i, entry := range l.entries {
		out[i] = entry.id
	}
	return out
}

func (l *ledger) backlogLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.backlog)
}

// find must be called with l.mu held.
func (l *ledger) find(id uint16) int {
	for i, entry := range l.entries {
		if entry.id == id {
			return i
		}
	}
	return -1
}
