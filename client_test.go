package edgemq

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/edgemq/internal/packets"
)

func TestConnectHandshake(t *testing.T) {
	settings := testSettings()
	settings.Username = "device"
	settings.Password = "secret"
	settings.KeepAlive = 30 * time.Second
	settings.Will = &Will{Topic: "dev-1/status", Payload: []byte("offline"), QoS: AtLeastOnce, Retain: true}

	connected := make(chan struct{})
	c, broker, _ := newTestClient(t, settings, WithOnConnect(func(*Client) { close(connected) }))
	run(t, c)

	bc := broker.accept(t)
	connect := bc.handshake()

	assert.Equal(t, "MQTT", connect.ProtocolName)
	assert.EqualValues(t, 4, connect.ProtocolLevel)
	assert.True(t, connect.CleanSession)
	assert.EqualValues(t, 30, connect.KeepAlive)
	assert.Equal(t, "dev-1", connect.ClientID)
	require.NotNil(t, connect.Username)
	assert.Equal(t, "device", *connect.Username)
	require.NotNil(t, connect.Password)
	assert.Equal(t, "secret", *connect.Password)
	assert.Equal(t, "dev-1/status", connect.WillTopic)
	assert.Equal(t, []byte("offline"), connect.WillMessage)
	assert.EqualValues(t, 1, connect.WillQoS)
	assert.True(t, connect.WillRetain)

	select {
	case <-connected:
	case <-time.After(testTimeout):
		t.Fatal("OnConnect not called")
	}
	assert.Equal(t, StateEstablish, c.State())
}

func TestConnectOmitsEmptyCredentials(t *testing.T) {
	tests := []struct {
		name         string
		username     string
		password     string
		wantUsername bool
		wantPassword bool
	}{
		{"none", "", "", false, false},
		{"username only", "device", "", true, false},
		{"password without username", "", "secret", false, false},
		{"both", "device", "secret", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testSettings()
			settings.Username = tt.username
			settings.Password = tt.password
			c, err := New(settings)
			require.NoError(t, err)

			pkt := c.buildConnectPacket()
			assert.Equal(t, tt.wantUsername, pkt.Username != nil)
			assert.Equal(t, tt.wantPassword, pkt.Password != nil)
			assert.Empty(t, pkt.WillTopic)
		})
	}
}

func TestConnackRefused(t *testing.T) {
	c, broker, clock := newTestClient(t, testSettings())
	run(t, c)

	bc := broker.accept(t)
	bc.expect(packets.CONNECT)
	bc.write(&packets.ConnackPacket{ReturnCode: packets.ConnRefusedNotAuthorized})

	bc.expectClosed()
	clock.waitForSleep(t, 11*time.Second)
	assert.Equal(t, StateWait, c.State())
	assert.False(t, c.IsConnected())
}

func TestUnexpectedPacketBeforeConnack(t *testing.T) {
	c, broker, clock := newTestClient(t, testSettings())
	run(t, c)

	bc := broker.accept(t)
	bc.expect(packets.CONNECT)
	bc.write(&packets.PingrespPacket{})

	bc.expectClosed()
	clock.waitForSleep(t, 11*time.Second)
}

func TestRunTwice(t *testing.T) {
	c, broker, _ := newTestClient(t, testSettings())
	connect(t, c, broker)

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestReconnectRestoresSession(t *testing.T) {
	lost := make(chan error, 1)
	c, broker, clock := newTestClient(t, testSettings(),
		WithOnConnectionLost(func(_ *Client, err error) { lost <- err }))
	clock.wake = func(d time.Duration) bool { return d == 11*time.Second }

	require.NoError(t, c.Subscribe("dev-1/cmd", AtLeastOnce, nil))
	run(t, c)

	bc := broker.accept(t)
	bc.handshake()
	sub := bc.expect(packets.SUBSCRIBE).(*packets.SubscribePacket)
	assert.Equal(t, []string{"dev-1/cmd"}, sub.Topics)
	assert.Equal(t, []uint8{1}, sub.QoS)
	bc.write(&packets.SubackPacket{PacketID: sub.PacketID, ReturnCodes: []uint8{packets.SubackQoS1}})
	waitConnected(t, c)

	errCh := async(func() error {
		return c.Publish("dev-1/event", []byte("boot"), AtLeastOnce, false)
	})
	first := bc.expect(packets.PUBLISH).(*packets.PublishPacket)
	require.NoError(t, waitErr(t, errCh))
	assert.False(t, first.Dup)

	// Drop the connection before PUBACK.
	bc.conn.Close()
	select {
	case err := <-lost:
		assert.Error(t, err)
	case <-time.After(testTimeout):
		t.Fatal("OnConnectionLost not called")
	}

	bc2 := broker.accept(t)
	bc2.handshake()
	sub = bc2.expect(packets.SUBSCRIBE).(*packets.SubscribePacket)
	assert.Equal(t, []string{"dev-1/cmd"}, sub.Topics)

	retry := bc2.expect(packets.PUBLISH).(*packets.PublishPacket)
	assert.True(t, retry.Dup)
	assert.Equal(t, first.PacketID, retry.PacketID)
	assert.Equal(t, []byte("boot"), retry.Payload)

	bc2.write(&packets.PubackPacket{PacketID: retry.PacketID})
	require.Eventually(t, func() bool { return c.GetStats().PendingPublications == 0 },
		testTimeout, 5*time.Millisecond)
	assert.EqualValues(t, 1, c.GetStats().ReconnectCount)
}

func TestSubscribedMessageAcknowledged(t *testing.T) {
	got := make(chan Message, 1)
	c, broker, _ := newTestClient(t, testSettings())
	require.NoError(t, c.Subscribe("sensors/t1", AtLeastOnce, func(_ *Client, msg Message) {
		got <- msg
	}))
	run(t, c)

	bc := broker.accept(t)
	bc.handshake()
	sub := bc.expect(packets.SUBSCRIBE).(*packets.SubscribePacket)
	assert.Equal(t, []string{"sensors/t1"}, sub.Topics)
	assert.Equal(t, []uint8{1}, sub.QoS)
	bc.write(&packets.SubackPacket{PacketID: sub.PacketID, ReturnCodes: []uint8{packets.SubackQoS1}})

	bc.write(&packets.PublishPacket{Topic: "sensors/t1", QoS: 1, PacketID: 7, Payload: []byte("23.5")})
	ack := bc.expect(packets.PUBACK).(*packets.PubackPacket)
	assert.EqualValues(t, 7, ack.PacketID)

	select {
	case msg := <-got:
		assert.Equal(t, "sensors/t1", msg.Topic)
		assert.Equal(t, "23.5", string(msg.Payload))
		assert.Equal(t, AtLeastOnce, msg.QoS)
	default:
		t.Fatal("handler did not run before PUBACK")
	}
}

func TestPublishQoS0Offline(t *testing.T) {
	c, _, _ := newTestClient(t, testSettings())

	for i := range 11 {
		require.NoError(t, c.Publish("dev-1/log", []byte(strconv.Itoa(i)), AtMostOnce, false))
	}

	stats := c.GetStats()
	assert.Zero(t, stats.PacketsSent)
	assert.Zero(t, stats.BytesSent)
	assert.Equal(t, 10, stats.QueuedMessages)
	assert.Zero(t, stats.PendingPublications)
}

func TestOfflineQueuesFlushedOnConnect(t *testing.T) {
	c, broker, _ := newTestClient(t, testSettings())

	for i := range 11 {
		require.NoError(t, c.Publish("dev-1/log", []byte(strconv.Itoa(i)), AtMostOnce, false))
	}
	for i := range 12 {
		require.NoError(t, c.Publish("dev-1/event", []byte(strconv.Itoa(i)), AtLeastOnce, false))
	}

	run(t, c)
	bc := broker.accept(t)
	bc.handshake()

	// Backlog first, oldest dropped.
	for i := 1; i <= 10; i++ {
		pub := bc.expect(packets.PUBLISH).(*packets.PublishPacket)
		assert.Equal(t, "dev-1/log", pub.Topic)
		assert.EqualValues(t, 0, pub.QoS)
		assert.Equal(t, strconv.Itoa(i), string(pub.Payload))
	}

	// Then the newest ten ledger entries in order.
	for i := 2; i < 12; i++ {
		pub := bc.expect(packets.PUBLISH).(*packets.PublishPacket)
		assert.Equal(t, "dev-1/event", pub.Topic)
		assert.EqualValues(t, 1, pub.QoS)
		assert.EqualValues(t, i+1, pub.PacketID)
		assert.False(t, pub.Dup)
		assert.Equal(t, strconv.Itoa(i), string(pub.Payload))
	}

	waitConnected(t, c)
	stats := c.GetStats()
	assert.Zero(t, stats.QueuedMessages)
	assert.Equal(t, 10, stats.PendingPublications)
}

func TestQueuedDuringRestoreSent(t *testing.T) {
	c, broker, _ := newTestClient(t, testSettings())
	require.NoError(t, c.Subscribe("dev-1/cmd", AtLeastOnce, nil))
	run(t, c)

	bc := broker.accept(t)
	bc.handshake()

	// The restore blocks on its SUBSCRIBE until the broker reads it.
	require.Eventually(t, func() bool { return c.State() == StateAccepted },
		testTimeout, time.Millisecond)
	require.NoError(t, c.Subscribe("dev-1/config", AtMostOnce, nil))
	require.NoError(t, c.Publish("dev-1/log", []byte("late"), AtMostOnce, false))
	require.NoError(t, c.Publish("dev-1/event", []byte("late"), AtLeastOnce, false))

	var topics, published []string
	for len(topics) < 2 || len(published) < 2 {
		switch pkt := bc.read().(type) {
		case *packets.SubscribePacket:
			topics = append(topics, pkt.Topics...)
		case *packets.PublishPacket:
			published = append(published, pkt.Topic)
		case *packets.PingreqPacket:
		default:
			t.Fatalf("unexpected %s", packets.PacketNames[pkt.Type()])
		}
	}
	assert.Equal(t, []string{"dev-1/cmd", "dev-1/config"}, topics)
	assert.ElementsMatch(t, []string{"dev-1/log", "dev-1/event"}, published)

	waitConnected(t, c)
	assert.Zero(t, c.GetStats().QueuedMessages)
}

func TestPublishValidation(t *testing.T) {
	c, _, _ := newTestClient(t, testSettings())

	assert.ErrorIs(t, c.Publish("", nil, AtMostOnce, false), ErrInvalidTopic)
	assert.ErrorIs(t, c.Publish("a/+/b", nil, AtMostOnce, false), ErrInvalidTopic)
	assert.ErrorIs(t, c.Publish("a/#", nil, AtMostOnce, false), ErrInvalidTopic)
	assert.ErrorIs(t, c.Publish("a/b", nil, QoS(3), false), ErrInvalidQoS)
	assert.Zero(t, c.GetStats().QueuedMessages)
}

func TestPublishCopiesPayload(t *testing.T) {
	c, _, _ := newTestClient(t, testSettings())

	payload := []byte("abc")
	require.NoError(t, c.Publish("dev-1/x", payload, AtLeastOnce, false))
	payload[0] = 'z'

	c.pending.mu.Lock()
	defer c.pending.mu.Unlock()
	assert.Equal(t, []byte("abc"), c.pending.entries[0].packet.Payload)
}

func TestQoS1Retransmission(t *testing.T) {
	c, bc, clock := establishedClient(t)

	errCh := async(func() error {
		return c.Publish("dev-1/event", []byte("motion"), AtLeastOnce, false)
	})
	first := bc.read().(*packets.PublishPacket)
	require.NoError(t, waitErr(t, errCh))
	assert.False(t, first.Dup)
	require.NotZero(t, first.PacketID)

	// Not stale yet: only PINGREQ.
	clock.Advance(60 * time.Second)
	done := async(func() error { c.keepAliveTick(); return nil })
	assert.EqualValues(t, packets.PINGREQ, bc.read().Type())
	require.NoError(t, waitErr(t, done))

	clock.Advance(31 * time.Second)
	done = async(func() error { c.keepAliveTick(); return nil })
	assert.EqualValues(t, packets.PINGREQ, bc.read().Type())
	retry := bc.read().(*packets.PublishPacket)
	require.NoError(t, waitErr(t, done))

	assert.True(t, retry.Dup)
	assert.Equal(t, first.PacketID, retry.PacketID)
	assert.Equal(t, first.Payload, retry.Payload)

	require.NoError(t, c.handleIncoming(&packets.PubackPacket{PacketID: first.PacketID}))
	assert.Empty(t, c.pending.ids())
}

func TestQoS2Exchange(t *testing.T) {
	c, bc, clock := establishedClient(t)

	errCh := async(func() error {
		return c.Publish("dev-1/event", []byte("once"), ExactlyOnce, false)
	})
	pub := bc.read().(*packets.PublishPacket)
	require.NoError(t, waitErr(t, errCh))
	assert.EqualValues(t, 2, pub.QoS)

	done := async(func() error {
		return c.handleIncoming(&packets.PubrecPacket{PacketID: pub.PacketID})
	})
	rel := bc.read().(*packets.PubrelPacket)
	require.NoError(t, waitErr(t, done))
	assert.Equal(t, pub.PacketID, rel.PacketID)

	// PUBREC does not complete the publication.
	assert.Equal(t, []uint16{pub.PacketID}, c.pending.ids())

	// A stale released entry resends PUBREL, not PUBLISH.
	clock.Advance(91 * time.Second)
	done = async(func() error { c.keepAliveTick(); return nil })
	rel = bc.expect(packets.PUBREL).(*packets.PubrelPacket)
	require.NoError(t, waitErr(t, done))
	assert.Equal(t, pub.PacketID, rel.PacketID)

	require.NoError(t, c.handleIncoming(&packets.PubcompPacket{PacketID: pub.PacketID}))
	assert.Empty(t, c.pending.ids())
}

func TestInboundQoS2Duplicate(t *testing.T) {
	var calls atomic.Int32
	c, bc, _ := establishedClient(t)
	c.subscriptions.put(subscription{topic: "dev-1/cmd", qos: ExactlyOnce, handler: func(*Client, Message) {
		calls.Add(1)
	}})

	pub := &packets.PublishPacket{Topic: "dev-1/cmd", QoS: 2, PacketID: 9, Payload: []byte("reboot")}
	exchange := func(pkt packets.Packet, want uint8) {
		t.Helper()
		done := async(func() error { return c.handleIncoming(pkt) })
		reply := bc.read()
		require.NoError(t, waitErr(t, done))
		assert.Equal(t, packets.PacketNames[want], packets.PacketNames[reply.Type()])
	}

	exchange(pub, packets.PUBREC)

	dup := *pub
	dup.Dup = true
	exchange(&dup, packets.PUBREC)
	assert.EqualValues(t, 1, calls.Load())

	exchange(&packets.PubrelPacket{PacketID: 9}, packets.PUBCOMP)

	// Released identifiers may carry a new message.
	exchange(pub, packets.PUBREC)
	assert.EqualValues(t, 2, calls.Load())
}

func TestSubscribeWhileEstablished(t *testing.T) {
	c, bc, _ := establishedClient(t)

	done := async(func() error { return c.Subscribe("dev-1/cmd", AtLeastOnce, nil) })
	sub := bc.read().(*packets.SubscribePacket)
	require.NoError(t, waitErr(t, done))
	assert.Equal(t, []string{"dev-1/cmd"}, sub.Topics)
	assert.Equal(t, []uint8{1}, sub.QoS)
	assert.NotZero(t, sub.PacketID)

	// Subscribing again replaces the entry.
	done = async(func() error { return c.Subscribe("dev-1/cmd", ExactlyOnce, nil) })
	bc.read()
	require.NoError(t, waitErr(t, done))
	subs := c.subscriptions.snapshot()
	require.Len(t, subs, 1)
	assert.Equal(t, ExactlyOnce, subs[0].qos)

	done = async(func() error { return c.Unsubscribe("dev-1/cmd") })
	unsub := bc.read().(*packets.UnsubscribePacket)
	require.NoError(t, waitErr(t, done))
	assert.Equal(t, []string{"dev-1/cmd"}, unsub.Topics)
	assert.Zero(t, c.subscriptions.len())
}

func TestSubscribeOffline(t *testing.T) {
	c, _, _ := newTestClient(t, testSettings())

	require.NoError(t, c.Subscribe("dev-1/cmd", AtMostOnce, nil))
	assert.ErrorIs(t, c.Subscribe("a/#/b", AtMostOnce, nil), ErrInvalidTopic)
	assert.ErrorIs(t, c.Subscribe("a/b", QoS(3), nil), ErrInvalidQoS)

	stats := c.GetStats()
	assert.Zero(t, stats.PacketsSent)
	assert.Equal(t, 1, stats.Subscriptions)

	require.NoError(t, c.Unsubscribe("dev-1/cmd"))
	require.NoError(t, c.Unsubscribe("never/subscribed"))
	assert.Zero(t, c.GetStats().Subscriptions)
}

func TestDisconnect(t *testing.T) {
	lost := make(chan error, 1)
	c, broker, _ := newTestClient(t, testSettings(),
		WithOnConnectionLost(func(_ *Client, err error) { lost <- err }))
	bc := connect(t, c, broker)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	done := async(func() error { return c.Disconnect(ctx) })

	bc.expect(packets.DISCONNECT)
	require.NoError(t, waitErr(t, done))
	assert.False(t, c.IsConnected())

	select {
	case <-lost:
	case <-time.After(testTimeout):
		t.Fatal("OnConnectionLost not called")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	c, broker, _ := newTestClient(t, testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	bc := broker.accept(t)
	bc.handshake()
	waitConnected(t, c)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(testTimeout):
		t.Fatal("Run did not return")
	}
	bc.expectClosed()
	assert.Equal(t, StateClose, c.State())
}
