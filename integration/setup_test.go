package edgemq_test

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/edgemq"
)

const waitTimeout = 5 * time.Second

// testBroker is an embedded broker with a TCP and a WebSocket listener.
type testBroker struct {
	server *mqtt.Server
	tcp    string
	ws     string
}

// getFreePort returns a free TCP port by opening a listener on :0 and closing it.
func getFreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// startBroker starts a broker that allows every client unless ledger is set.
func startBroker(t *testing.T, ledger *auth.Ledger) *testBroker {
	t.Helper()

	server := mqtt.New(&mqtt.Options{
		InlineClient: true,
		Logger:       testLogger(),
	})
	if ledger == nil {
		require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	} else {
		require.NoError(t, server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}))
	}

	b := &testBroker{
		server: server,
		tcp:    "127.0.0.1:" + strconv.Itoa(getFreePort(t)),
		ws:     "127.0.0.1:" + strconv.Itoa(getFreePort(t)),
	}
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{ID: "tcp", Address: b.tcp})))
	require.NoError(t, server.AddListener(listeners.NewWebsocket(listeners.Config{ID: "ws", Address: b.ws})))

	go func() {
		if err := server.Serve(); err != nil {
			t.Errorf("broker failed: %v", err)
		}
	}()
	t.Cleanup(func() { server.Close() })

	return b
}

// settings returns client settings for the broker's TCP listener.
func (b *testBroker) settings(t *testing.T, clientID string) edgemq.Settings {
	t.Helper()
	return settingsFor(t, b.tcp, clientID)
}

// wsSettings returns client settings for the broker's WebSocket listener.
func (b *testBroker) wsSettings(t *testing.T, clientID string) edgemq.Settings {
	t.Helper()
	return settingsFor(t, b.ws, clientID)
}

func settingsFor(t *testing.T, addr, clientID string) edgemq.Settings {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return edgemq.Settings{Host: host, Port: p, ClientID: clientID, KeepAlive: 10 * time.Second}
}

// peer connects a paho client used to observe and drive the edgemq client.
func (b *testBroker) peer(t *testing.T, clientID string) paho.Client {
	t.Helper()
	opts := paho.NewClientOptions().
		AddBroker("tcp://" + b.tcp).
		SetClientID(clientID).
		SetAutoReconnect(false).
		SetConnectTimeout(waitTimeout)

	client := paho.NewClient(opts)
	token := client.Connect()
	require.True(t, token.WaitTimeout(waitTimeout), "paho connect timed out")
	require.NoError(t, token.Error())
	t.Cleanup(func() { client.Disconnect(100) })
	return client
}

func peerSubscribe(t *testing.T, client paho.Client, topic string, qos byte) <-chan paho.Message {
	t.Helper()
	ch := make(chan paho.Message, 16)
	token := client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		ch <- msg
	})
	require.True(t, token.WaitTimeout(waitTimeout), "paho subscribe timed out")
	require.NoError(t, token.Error())
	return ch
}

func testLogger() *slog.Logger {
	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func uniqueID(t *testing.T) string {
	return fmt.Sprintf("it-%s-%d", t.Name(), time.Now().UnixNano()%100000)
}
