package edgemq

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gonzalop/edgemq/internal/packets"
)

// Client is an MQTT 3.1.1 client that keeps a broker connection alive on
// its own. Create it with New and drive it with Run; Publish, Subscribe and
// Unsubscribe may be called from any goroutine, before or during Run.
type Client struct {
	// Configuration
	opts     *clientOptions
	settings Settings

	// Connection. conn is opened in OPEN and released in CLOSE; connLock
	// guards it and serialises every write.
	conn     net.Conn
	connLock sync.Mutex

	// Owned by the state machine goroutine
	reader          io.Reader
	lastEstablished time.Time // last moment the connection was known up
	lastError       error
	established     bool
	receivedQoS2    map[uint16]struct{} // inbound QoS 2 IDs awaiting PUBREL

	state   atomic.Int32
	running atomic.Bool

	// sessionLock orders queueing by callers that see the client offline
	// against the switch to ESTABLISH.
	sessionLock sync.Mutex

	// Session state, shared with application goroutines
	subscriptions registry
	pending       ledger

	// Publish with interceptors applied
	publish PublishFunc

	// Stats (atomic)
	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
	reconnectCount  atomic.Uint64

	// Clock; replaced in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a client for the broker described by settings.
//
// No connection is made until Run is called. Keep alive is clamped to at
// least 10 seconds; zero selects 60 seconds. The session is always clean.
//
// Example:
//
//	client, err := edgemq.New(edgemq.Settings{
//	    Host:     "broker.local",
//	    ClientID: "camera-1",
//	}, edgemq.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go client.Run(ctx)
func New(settings Settings, opts ...Option) (*Client, error) {
	normalized, err := settings.normalize()
	if err != nil {
		return nil, err
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.Logger == nil {
		options.Logger = defaultOptions().Logger
	}
	options.Logger = options.Logger.With("lib", "edgemq")
	if options.ConnectTimeout <= 0 {
		options.ConnectTimeout = DefaultConnectTimeout
	}

	c := &Client{
		opts:         options,
		settings:     normalized,
		receivedQoS2: make(map[uint16]struct{}),
		now:          time.Now,
		sleep:        sleepContext,
	}
	c.state.Store(int32(StateOpen))
	c.publish = applyPublishInterceptors(c.publishMessage, options.PublishInterceptors)

	return c, nil
}

// ClientID returns the identifier sent in CONNECT.
func (c *Client) ClientID() string {
	return c.settings.ClientID
}

// KeepAlive returns the effective keep alive interval after clamping.
func (c *Client) KeepAlive() time.Duration {
	return c.settings.KeepAlive
}

// State returns the current phase of the connection state machine.
func (c *Client) State() State {
	return State(c.state.Load())
}

// IsConnected returns true if the client is currently in the established
// state. This method is thread-safe.
func (c *Client) IsConnected() bool {
	return c.State() == StateEstablish
}

// Publish sends a message to topic.
//
// QoS 1 and 2 messages get a packet identifier and stay in the pending
// ledger until acknowledged, surviving reconnects. If the client is not
// established the message is only queued: QoS 1 and 2 in the ledger,
// QoS 0 in a separate backlog that is sent once on the next connection.
// While offline both queues keep only their newest ten entries.
//
// Publish returns an error for an invalid topic or QoS, or when an
// immediate QoS 0 write fails. Transmission failures of QoS 1 and 2
// messages are recovered by retransmission and never reported here.
//
// Example:
//
//	err := client.Publish("camera-1/motion", []byte("detected"), edgemq.AtLeastOnce, false)
func (c *Client) Publish(topic string, payload []byte, qos QoS, retain bool) error {
	return c.publish(topic, payload, qos, retain)
}

func (c *Client) publishMessage(topic string, payload []byte, qos QoS, retain bool) error {
	if err := validatePublishTopic(topic); err != nil {
		return err
	}
	if !qos.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}

	pub := &packets.PublishPacket{
		Topic:   topic,
		QoS:     uint8(qos),
		Retain:  retain,
		Payload: bytes.Clone(payload),
	}

	if qos == AtMostOnce {
		if c.whileOffline(func() { c.pending.queue(pub) }) {
			c.opts.Logger.Debug("queued QoS 0 publish while offline", "topic", topic)
			return nil
		}
		return c.send(pub)
	}

	var entry *pendingPublication
	if c.whileOffline(func() { entry = c.pending.add(pub, qos, true) }) {
		c.opts.Logger.Debug("queued publish while offline", "topic", topic, "packet_id", entry.id, "qos", qos)
		return nil
	}
	entry = c.pending.add(pub, qos, false)

	if pkt := c.pending.transmit(entry, c.now()); pkt != nil {
		if err := c.send(pkt); err != nil {
			c.opts.Logger.Debug("publish deferred to retransmission", "packet_id", entry.id, "error", err)
		}
	}
	return nil
}

// whileOffline runs queue and returns true if the client is not
// established. The state machine sends everything queued this way when it
// enters ESTABLISH.
func (c *Client) whileOffline(queue func()) bool {
	c.sessionLock.Lock()
	defer c.sessionLock.Unlock()

	if c.IsConnected() {
		return false
	}
	queue()
	return true
}

// Subscribe registers handler for messages on topic.
//
// The subscription is kept across reconnects and sent again after every
// handshake. Subscribing to a topic that is already registered replaces
// its QoS and handler. If the client is established a SUBSCRIBE is sent
// immediately.
//
// Example:
//
//	client.Subscribe("camera-1/cmd", edgemq.AtLeastOnce, func(c *edgemq.Client, msg edgemq.Message) {
//	    fmt.Printf("command: %s\n", msg.Payload)
//	})
func (c *Client) Subscribe(topic string, qos QoS, handler MessageHandler) error {
	if err := validateSubscribeTopic(topic); err != nil {
		return err
	}
	if !qos.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}

	c.sessionLock.Lock()
	c.subscriptions.put(subscription{topic: topic, qos: qos, handler: handler})
	connected := c.IsConnected()
	c.sessionLock.Unlock()

	if !connected {
		return nil
	}
	pkt := &packets.SubscribePacket{
		PacketID: c.pending.allocateID(),
		Topics:   []string{topic},
		QoS:      []uint8{uint8(qos)},
	}
	if err := c.send(pkt); err != nil {
		c.opts.Logger.Debug("SUBSCRIBE deferred to next connection", "topic", topic, "error", err)
	}
	return nil
}

// Unsubscribe removes the subscription for topic. If the client is
// established an UNSUBSCRIBE is sent immediately.
func (c *Client) Unsubscribe(topic string) error {
	if err := validateSubscribeTopic(topic); err != nil {
		return err
	}

	if !c.subscriptions.remove(topic) {
		c.opts.Logger.Debug("unsubscribe from unknown topic", "topic", topic)
	}

	if !c.IsConnected() {
		return nil
	}
	pkt := &packets.UnsubscribePacket{
		PacketID: c.pending.allocateID(),
		Topics:   []string{topic},
	}
	if err := c.send(pkt); err != nil {
		c.opts.Logger.Debug("UNSUBSCRIBE not sent", "topic", topic, "error", err)
	}
	return nil
}

// Disconnect sends DISCONNECT if the client is established and closes the
// connection. The state machine then goes through CLOSE and WAIT and
// reconnects after the usual delay; cancel the Run context to stop it.
//
// Disconnect waits until the state machine has left the established state
// or ctx is done.
func (c *Client) Disconnect(ctx context.Context) error {
	c.opts.Logger.Debug("disconnecting from server")

	var err error
	if c.IsConnected() {
		err = c.send(&packets.DisconnectPacket{})
	}
	c.closeConn()

	for c.IsConnected() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return err
}

// send writes one packet. A failed write closes the connection so the
// state machine's pending read fails and it moves to CLOSE.
func (c *Client) send(pkt packets.Packet) error {
	c.connLock.Lock()
	defer c.connLock.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.settings.KeepAlive))
	if _, err := pkt.WriteTo(&countingWriter{Writer: c.conn, c: c}); err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to write %s: %w", packets.PacketNames[pkt.Type()], err)
	}
	c.packetsSent.Add(1)
	return nil
}

// closeConn closes the connection without releasing it; the state machine
// releases it in CLOSE.
func (c *Client) closeConn() {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
}

// buildConnectPacket creates a CONNECT packet with the client's settings.
func (c *Client) buildConnectPacket() *packets.ConnectPacket {
	pkt := &packets.ConnectPacket{
		ProtocolName:  packets.ProtocolName,
		ProtocolLevel: packets.ProtocolLevel,
		CleanSession:  true,
		KeepAlive:     uint16(c.settings.KeepAlive / time.Second),
		ClientID:      c.settings.ClientID,
	}

	if c.settings.Username != "" {
		username := c.settings.Username
		pkt.Username = &username
		if c.settings.Password != "" {
			password := c.settings.Password
			pkt.Password = &password
		}
	}

	if will := c.settings.Will; will != nil {
		pkt.WillTopic = will.Topic
		pkt.WillMessage = will.Payload
		pkt.WillQoS = uint8(will.QoS)
		pkt.WillRetain = will.Retain
	}

	return pkt
}

// buildSubscribePacket lists every registered subscription in one packet.
func (c *Client) buildSubscribePacket(subs []subscription) *packets.SubscribePacket {
	pkt := &packets.SubscribePacket{
		PacketID: c.pending.allocateID(),
		Topics:   make([]string, len(subs)),
		QoS:      make([]uint8, len(subs)),
	}
	for i, sub := range subs {
		pkt.Topics[i] = sub.topic
		pkt.QoS[i] = uint8(sub.qos)
	}
	return pkt
}

func (c *Client) dialer() ContextDialer {
	if c.opts.Dialer != nil {
		return c.opts.Dialer
	}
	return &net.Dialer{}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type countingReader struct {
	io.Reader
	c *Client
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	if n > 0 {
		r.c.bytesReceived.Add(uint64(n))
	}
	return n, err
}

type countingWriter struct {
	io.Writer
	c *Client
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.Writer.Write(p)
	if n > 0 {
		w.c.bytesSent.Add(uint64(n))
	}
	return n, err
}
