package edgemq

import (
	"context"

	"github.com/gonzalop/edgemq/internal/packets"
)

// keepAliveLoop pings the server and retransmits stale publications every
// keep alive interval while established. Outside the established state it
// only polls at half the interval.
func (c *Client) keepAliveLoop(ctx context.Context) {
	for {
		interval := c.settings.KeepAlive / 2
		if c.IsConnected() {
			c.keepAliveTick()
			interval = c.settings.KeepAlive
		}

		if err := c.sleep(ctx, interval); err != nil {
			c.opts.Logger.Debug("keepalive stopped")
			return
		}
	}
}

// keepAliveTick sends PINGREQ, then resends every ledger entry not sent
// within 1.5 times the keep alive interval. PUBLISH frames go out with DUP
// set; entries past PUBREC resend PUBREL.
func (c *Client) keepAliveTick() {
	if err := c.send(&packets.PingreqPacket{}); err != nil {
		c.opts.Logger.Debug("failed to send PINGREQ", "error", err)
		return
	}

	for _, pkt := range c.pending.due(c.now(), c.readTimeout()) {
		c.opts.Logger.Debug("retransmitting", "type", packets.PacketNames[pkt.Type()])
		if err := c.send(pkt); err != nil {
			c.opts.Logger.Debug("retransmission failed", "error", err)
			return
		}
	}
}
