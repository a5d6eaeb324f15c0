package edgemq

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gonzalop/edgemq/internal/packets"
)

// Run connects to the broker and keeps the connection alive until ctx is
// cancelled. It runs the connection state machine and the keep alive
// scheduler and returns ctx's error once both have stopped.
//
// Connection failures never end Run; they lead to CLOSE and WAIT and a new
// attempt after a delay that grows with the time spent offline.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	c.lastEstablished = c.now()

	// Cancellation unblocks a pending read by closing the connection.
	stop := context.AfterFunc(ctx, c.closeConn)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.keepAliveLoop(ctx)
	}()

	c.machineLoop(ctx)
	<-done

	c.opts.Logger.Debug("client stopped")
	return ctx.Err()
}

// machineLoop steps through the states until ctx ends.
func (c *Client) machineLoop(ctx context.Context) {
	state := StateOpen
	for ctx.Err() == nil {
		c.enter(state)
		state = c.step(ctx, state)
	}

	c.release()
	c.enter(StateClose)
}

// step runs one state and returns the next.
func (c *Client) step(ctx context.Context, state State) State {
	switch state {
	case StateOpen:
		return c.open(ctx)
	case StateConnect:
		return c.sendConnect()
	case StateConnack:
		return c.awaitConnack()
	case StateAccepted:
		return c.accepted()
	case StateEstablish:
		return c.establish()
	case StateClose:
		c.release()
		return StateWait
	case StateWait:
		return c.wait(ctx)
	}
	panic(fmt.Sprintf("edgemq: unknown state %d", state))
}

// enter publishes s as the current state.
func (c *Client) enter(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev == s {
		return
	}
	c.opts.Logger.Debug("state transition", "from", prev, "to", s)

	if s == StateEstablish && prev == StateAccepted && c.opts.OnConnect != nil {
		go c.opts.OnConnect(c)
	}
}

// open dials the broker.
func (c *Client) open(ctx context.Context) State {
	addr := c.settings.Address()
	c.opts.Logger.Debug("connecting to MQTT server", "server", addr)

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	conn, err := c.dialer().DialContext(dialCtx, "tcp", addr)
	if err != nil {
		c.fail(fmt.Errorf("failed to connect to server: %w", err))
		return StateClose
	}

	c.connLock.Lock()
	c.conn = conn
	c.connLock.Unlock()
	c.reader = &countingReader{Reader: bufio.NewReader(conn), c: c}

	return StateConnect
}

func (c *Client) sendConnect() State {
	if err := c.send(c.buildConnectPacket()); err != nil {
		c.fail(err)
		return StateClose
	}
	return StateConnack
}

func (c *Client) awaitConnack() State {
	pkt, err := c.readPacket()
	if err != nil {
		c.fail(fmt.Errorf("failed to read CONNACK: %w", err))
		return StateClose
	}

	connack, ok := pkt.(*packets.ConnackPacket)
	if !ok {
		c.fail(fmt.Errorf("%w: expected CONNACK, got %s", ErrProtocolViolation, packets.PacketNames[pkt.Type()]))
		return StateClose
	}

	if connack.ReturnCode != packets.ConnAccepted {
		c.opts.Logger.Warn("connection refused",
			"return_code", connack.ReturnCode,
			"reason", packets.ConnackReturnCodeNames[connack.ReturnCode])
		c.lastError = connackError(connack.ReturnCode)
		return StateClose
	}

	return StateAccepted
}

// accepted restores the session on a fresh connection: subscriptions first,
// then the QoS 0 backlog, then every pending publication in ledger order.
// It enters ESTABLISH itself so nothing queued during the restore is left
// behind.
func (c *Client) accepted() State {
	clear(c.receivedQoS2)

	subs := c.subscriptions.snapshot()
	if len(subs) > 0 {
		if err := c.send(c.buildSubscribePacket(subs)); err != nil {
			c.fail(err)
			return StateClose
		}
	}

	for _, pub := range c.pending.drainBacklog() {
		if err := c.send(pub); err != nil {
			c.fail(err)
			return StateClose
		}
	}

	for _, pkt := range c.pending.flush(c.now()) {
		if err := c.send(pkt); err != nil {
			c.fail(err)
			return StateClose
		}
	}

	c.lastEstablished = c.now()
	c.lastError = nil
	c.established = true
	c.opts.Logger.Info("connected to MQTT server",
		"server", c.settings.Address(),
		"client_id", c.settings.ClientID)

	// Callers saw the client offline until now; send what they registered
	// or queued after the snapshot above.
	c.sessionLock.Lock()
	c.enter(StateEstablish)
	missed := c.subscriptions.missing(subs)
	backlog := c.pending.drainBacklog()
	unsent := c.pending.unsent(c.now())
	c.sessionLock.Unlock()

	if len(missed) > 0 {
		if err := c.send(c.buildSubscribePacket(missed)); err != nil {
			c.fail(err)
			return StateClose
		}
	}
	for _, pub := range backlog {
		if err := c.send(pub); err != nil {
			c.fail(err)
			return StateClose
		}
	}
	for _, pkt := range unsent {
		if err := c.send(pkt); err != nil {
			c.fail(err)
			return StateClose
		}
	}

	return StateEstablish
}

// establish reads and dispatches one packet.
func (c *Client) establish() State {
	pkt, err := c.readPacket()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("connection closed by server")
		}
		c.fail(fmt.Errorf("read failed: %w", err))
		return StateClose
	}

	if err := c.handleIncoming(pkt); err != nil {
		c.fail(err)
		return StateClose
	}
	c.lastEstablished = c.now()
	return StateEstablish
}

// release closes and forgets the connection, reporting the loss of an
// established connection to OnConnectionLost.
func (c *Client) release() {
	c.connLock.Lock()
	conn := c.conn
	c.conn = nil
	c.connLock.Unlock()

	c.reader = nil
	if conn != nil {
		conn.Close()
	}

	if !c.established {
		return
	}
	c.established = false
	c.lastEstablished = c.now()

	reason := c.lastError
	if reason == nil {
		reason = errors.New("connection lost")
	}
	if c.opts.OnConnectionLost != nil {
		go c.opts.OnConnectionLost(c, reason)
	}
}

// wait sleeps before the next attempt. The delay grows with the time since
// the connection was last known to be up.
func (c *Client) wait(ctx context.Context) State {
	elapsed := c.now().Sub(c.lastEstablished)
	delay := reconnectDelay(elapsed)

	c.opts.Logger.Info("not connected since",
		"since", c.lastEstablished.Format(time.RFC3339),
		"elapsed", elapsed.Round(time.Second),
		"retry_in", delay)

	if err := c.sleep(ctx, delay); err == nil {
		c.reconnectCount.Add(1)
	}
	return StateOpen
}

// readPacket reads the next packet, failing if nothing arrives within
// 1.5 times the keep alive interval.
func (c *Client) readPacket() (packets.Packet, error) {
	c.connLock.Lock()
	conn := c.conn
	c.connLock.Unlock()
	if conn == nil || c.reader == nil {
		return nil, ErrNotConnected
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout()))
	pkt, err := packets.ReadPacket(c.reader, c.opts.MaxIncomingPacket)
	if err != nil {
		return nil, err
	}
	c.packetsReceived.Add(1)
	return pkt, nil
}

func (c *Client) readTimeout() time.Duration {
	return c.settings.KeepAlive * 3 / 2
}

// fail records err as the cause of the coming CLOSE and logs it.
func (c *Client) fail(err error) {
	c.lastError = err
	c.opts.Logger.Warn("connection failed", "state", c.State(), "error", err)
}
