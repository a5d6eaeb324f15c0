package edgemq

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gonzalop/edgemq/internal/packets"
)

const testTimeout = 2 * time.Second

func testLogger() *slog.Logger {
	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock drives Client.now and Client.sleep. Sleeps are recorded and
// block until ctx ends, unless wake returns true for the duration.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps chan time.Duration
	wake   func(time.Duration) bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		sleeps: make(chan time.Duration, 64),
	}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case f.sleeps <- d:
	default:
	}
	if f.wake != nil && f.wake(d) {
		f.Advance(d)
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

// waitForSleep waits until a sleep of d has been requested.
func (f *fakeClock) waitForSleep(t *testing.T, d time.Duration) {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case got := <-f.sleeps:
			if got == d {
				return
			}
		case <-deadline:
			t.Fatalf("no sleep of %v requested", d)
		}
	}
}

// testBroker is the server side of every connection the client dials.
type testBroker struct {
	conns chan net.Conn
}

func newTestBroker() *testBroker {
	return &testBroker{conns: make(chan net.Conn, 4)}
}

func (b *testBroker) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	server, client := net.Pipe()
	select {
	case b.conns <- server:
		return client, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// accept returns the broker side of the next connection.
func (b *testBroker) accept(t *testing.T) *brokerConn {
	t.Helper()
	select {
	case conn := <-b.conns:
		t.Cleanup(func() { conn.Close() })
		return &brokerConn{t: t, conn: conn, r: bufio.NewReader(conn)}
	case <-time.After(testTimeout):
		t.Fatal("client did not dial")
		return nil
	}
}

type brokerConn struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

// read returns the next packet the client wrote.
func (bc *brokerConn) read() packets.Packet {
	bc.t.Helper()
	require.NoError(bc.t, bc.conn.SetReadDeadline(time.Now().Add(testTimeout)))
	pkt, err := packets.ReadPacket(bc.r, 0)
	require.NoError(bc.t, err)
	return pkt
}

// expect reads until a packet of type typ arrives, skipping PINGREQ
// from the keep alive scheduler.
func (bc *brokerConn) expect(typ uint8) packets.Packet {
	bc.t.Helper()
	for {
		pkt := bc.read()
		if pkt.Type() == typ {
			return pkt
		}
		if pkt.Type() == packets.PINGREQ {
			continue
		}
		bc.t.Fatalf("expected %s, got %s", packets.PacketNames[typ], packets.PacketNames[pkt.Type()])
	}
}

func (bc *brokerConn) write(pkt packets.Packet) {
	bc.t.Helper()
	require.NoError(bc.t, bc.conn.SetWriteDeadline(time.Now().Add(testTimeout)))
	_, err := pkt.WriteTo(bc.conn)
	require.NoError(bc.t, err)
}

// handshake reads CONNECT and accepts it.
func (bc *brokerConn) handshake() *packets.ConnectPacket {
	bc.t.Helper()
	connect := bc.expect(packets.CONNECT).(*packets.ConnectPacket)
	bc.write(&packets.ConnackPacket{ReturnCode: packets.ConnAccepted})
	return connect
}

// expectClosed waits for the client to close the connection.
func (bc *brokerConn) expectClosed() {
	bc.t.Helper()
	require.NoError(bc.t, bc.conn.SetReadDeadline(time.Now().Add(testTimeout)))
	for {
		_, err := packets.ReadPacket(bc.r, 0)
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.ErrUnexpectedEOF) {
			return
		}
		bc.t.Fatalf("expected closed connection, got %v", err)
	}
}

func testSettings() Settings {
	return Settings{Host: "broker.test", ClientID: "dev-1"}
}

// newTestClient creates a client wired to a testBroker and a fakeClock.
func newTestClient(t *testing.T, settings Settings, opts ...Option) (*Client, *testBroker, *fakeClock) {
	t.Helper()
	broker := newTestBroker()
	clock := newFakeClock()

	opts = append([]Option{WithLogger(testLogger()), WithDialer(broker)}, opts...)
	c, err := New(settings, opts...)
	require.NoError(t, err)
	c.now = clock.Now
	c.sleep = clock.Sleep
	return c, broker, clock
}

// run starts c.Run and stops it when the test ends.
func run(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(testTimeout):
			t.Error("Run did not return after cancel")
		}
	})
}

// connect runs c and completes the handshake on the first connection.
func connect(t *testing.T, c *Client, broker *testBroker) *brokerConn {
	t.Helper()
	run(t, c)
	bc := broker.accept(t)
	bc.handshake()
	waitConnected(t, c)
	return bc
}

func waitConnected(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, c.IsConnected, testTimeout, 5*time.Millisecond, "client not established")
}

// establishedClient attaches c to a pipe in the established state without
// running the state machine, for driving handlers directly.
func establishedClient(t *testing.T, opts ...Option) (*Client, *brokerConn, *fakeClock) {
	t.Helper()
	c, _, clock := newTestClient(t, testSettings(), opts...)

	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	c.conn = client
	c.reader = bufio.NewReader(client)
	c.established = true
	c.state.Store(int32(StateEstablish))

	return c, &brokerConn{t: t, conn: server, r: bufio.NewReader(server)}, clock
}

// async runs fn in a goroutine; net.Pipe writes block until the broker
// side reads them.
func async(fn func() error) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	return ch
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(testTimeout):
		t.Fatal("operation did not complete")
		return nil
	}
}
